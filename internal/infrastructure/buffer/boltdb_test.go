package buffer

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T, maxSize int) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "outbox.db"), "", maxSize)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestEnqueueOrdersByPriority(t *testing.T) {
	store := openTestStore(t, 0)

	low, _ := NewItem("u1", EntityProfile, OperationUpdate, 4, map[string]string{"name": "Ann"})
	high, _ := NewItem("u2", EntityEarnings, OperationCredit, 1, Credit{TaskID: "t1", Amount: 100})
	for _, item := range []Item{low, high} {
		if err := store.Enqueue(item); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	items, err := store.GetBatch(10)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(items) != 2 || items[0].Entity != EntityEarnings {
		t.Fatalf("expected earnings first, got %+v", items)
	}

	var credit Credit
	if err := items[0].Decode(&credit); err != nil || credit.Amount != 100 || credit.TaskID != "t1" {
		t.Fatalf("decode credit: %+v err=%v", credit, err)
	}
}

func TestRequeueBumpsRetries(t *testing.T) {
	store := openTestStore(t, 0)
	item, _ := NewItem("u1", EntityEarnings, OperationCredit, 1, Credit{Amount: 5})
	if err := store.Enqueue(item); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	items, _ := store.GetBatch(1)
	if err := store.Requeue(items[0]); err != nil {
		t.Fatalf("requeue: %v", err)
	}

	items, _ = store.GetBatch(10)
	if len(items) != 1 || items[0].Retries != 1 {
		t.Fatalf("expected one item with one retry, got %+v", items)
	}

	if err := store.Remove(items[0]); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if size, _ := store.Size(); size != 0 {
		t.Fatalf("expected empty outbox, got %d", size)
	}
}

func TestEnqueueRespectsMaxSize(t *testing.T) {
	store := openTestStore(t, 1)
	first, _ := NewItem("u1", EntityEarnings, OperationCredit, 1, Credit{Amount: 1})
	second, _ := NewItem("u1", EntityEarnings, OperationCredit, 1, Credit{Amount: 2})

	if err := store.Enqueue(first); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := store.Enqueue(second); !errors.Is(err, ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}
}

func TestCleanupDropsOldItems(t *testing.T) {
	store := openTestStore(t, 0)
	old, _ := NewItem("u1", EntityProfile, OperationUpdate, 3, struct{}{})
	old.Timestamp = time.Now().Add(-48 * time.Hour)
	fresh, _ := NewItem("u1", EntityProfile, OperationUpdate, 3, struct{}{})
	_ = store.Enqueue(old)
	_ = store.Enqueue(fresh)

	dropped, err := store.Cleanup(time.Now().Add(-24 * time.Hour))
	if err != nil || dropped != 1 {
		t.Fatalf("cleanup dropped %d: %v", dropped, err)
	}
	if size, _ := store.Size(); size != 1 {
		t.Fatalf("expected 1 item left, got %d", size)
	}
}

func TestCleanupKeepsOldCredits(t *testing.T) {
	store := openTestStore(t, 0)
	credit, _ := NewItem("u1", EntityEarnings, OperationCredit, 1, Credit{TaskID: "t1", Amount: 40})
	credit.Key = CreditKey("t1")
	credit.Timestamp = time.Now().Add(-30 * 24 * time.Hour)
	profile, _ := NewItem("u1", EntityProfile, OperationUpdate, 3, struct{}{})
	profile.Timestamp = credit.Timestamp
	_ = store.Enqueue(credit)
	_ = store.Enqueue(profile)

	dropped, err := store.Cleanup(time.Now().Add(-24 * time.Hour))
	if err != nil || dropped != 1 {
		t.Fatalf("cleanup dropped %d: %v", dropped, err)
	}
	if ok, _ := store.Has(CreditKey("t1")); !ok {
		t.Fatalf("old credit was purged")
	}
}

func TestKeyedItemsAreParkedOnce(t *testing.T) {
	store := openTestStore(t, 0)
	first, _ := NewItem("u1", EntityEarnings, OperationCredit, 1, Credit{TaskID: "t1", Amount: 10})
	first.Key = CreditKey("t1")
	again, _ := NewItem("u1", EntityEarnings, OperationCredit, 1, Credit{TaskID: "t1", Amount: 10})
	again.Key = CreditKey("t1")

	if err := store.Enqueue(first); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := store.Enqueue(again); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	items, _ := store.GetBatch(10)
	if err := store.Requeue(items[0]); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if ok, _ := store.Has(CreditKey("t1")); !ok {
		t.Fatalf("key lost on requeue")
	}
	if err := store.Enqueue(again); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("requeued item must still block duplicates, got %v", err)
	}

	items, _ = store.GetBatch(10)
	if err := store.Remove(items[0]); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if ok, _ := store.Has(CreditKey("t1")); ok {
		t.Fatalf("key kept after remove")
	}
	if err := store.Enqueue(again); err != nil {
		t.Fatalf("enqueue after remove: %v", err)
	}
}
