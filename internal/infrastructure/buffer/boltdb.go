package buffer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	// ErrFull is returned by Enqueue once the outbox holds maxSize items.
	ErrFull = errors.New("outbox is full")
	// ErrDuplicate is returned by Enqueue when an item with the same key is already parked.
	ErrDuplicate = errors.New("outbox already holds this write")
)

// Store is a bbolt-backed outbox of writes the primary store could not take.
// Items live in one bucket keyed by priority then enqueue time. A second
// bucket maps each item's Key to its slot so one write is parked at most once.
type Store struct {
	db      *bolt.DB
	items   []byte
	keys    []byte
	maxSize int
}

// Open creates the file and buckets if needed. maxSize <= 0 means unbounded.
func Open(path string, bucket string, maxSize int) (*Store, error) {
	if bucket == "" {
		bucket = "outbox"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	s := &Store{
		db:      db,
		items:   []byte(bucket),
		keys:    []byte(bucket + "_keys"),
		maxSize: maxSize,
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{s.items, s.keys} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Enqueue parks item. It fails with ErrDuplicate if item.Key is already
// parked and with ErrFull at capacity.
func (s *Store) Enqueue(item Item) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	item.normalize()
	return s.db.Update(func(tx *bolt.Tx) error {
		if item.Key != "" && tx.Bucket(s.keys).Get([]byte(item.Key)) != nil {
			return ErrDuplicate
		}
		if s.maxSize > 0 && tx.Bucket(s.items).Stats().KeyN >= s.maxSize {
			return ErrFull
		}
		return s.put(tx, &item)
	})
}

// GetBatch returns up to limit items in drain order without removing them.
func (s *Store) GetBatch(limit int) ([]Item, error) {
	if s == nil || s.db == nil {
		return nil, bolt.ErrDatabaseNotOpen
	}
	if limit <= 0 {
		limit = 50
	}

	var items []Item
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(s.items).Cursor()
		for k, v := c.First(); k != nil && len(items) < limit; k, v = c.Next() {
			var item Item
			if err := json.Unmarshal(v, &item); err != nil {
				continue
			}
			item.slot = append([]byte(nil), k...)
			items = append(items, item)
		}
		return nil
	})
	return items, err
}

// Remove deletes item and releases its key.
func (s *Store) Remove(item Item) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return s.remove(tx, item)
	})
}

// Requeue moves item to the back of its priority with one more retry. The
// move is atomic, so a crash never loses or duplicates the write.
func (s *Store) Requeue(item Item) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := s.remove(tx, item); err != nil {
			return err
		}
		item.Retries++
		item.Timestamp = time.Now()
		return s.put(tx, &item)
	})
}

// Has reports whether a write with key is parked.
func (s *Store) Has(key string) (bool, error) {
	if s == nil || s.db == nil {
		return false, bolt.ErrDatabaseNotOpen
	}
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(s.keys).Get([]byte(key)) != nil
		return nil
	})
	return found, err
}

func (s *Store) Size() (int, error) {
	if s == nil || s.db == nil {
		return 0, bolt.ErrDatabaseNotOpen
	}
	var count int
	err := s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(s.items).Stats().KeyN
		return nil
	})
	return count, err
}

// Cleanup drops items enqueued before olderThan and returns how many went.
// Durable items are kept regardless of age.
func (s *Store) Cleanup(olderThan time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, bolt.ErrDatabaseNotOpen
	}
	var dropped int
	err := s.db.Update(func(tx *bolt.Tx) error {
		keys := tx.Bucket(s.keys)
		c := tx.Bucket(s.items).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var item Item
			if err := json.Unmarshal(v, &item); err != nil || !item.Timestamp.Before(olderThan) || item.Durable() {
				continue
			}
			if err := c.Delete(); err != nil {
				return err
			}
			if item.Key != "" {
				if err := keys.Delete([]byte(item.Key)); err != nil {
					return err
				}
			}
			dropped++
		}
		return nil
	})
	return dropped, err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) put(tx *bolt.Tx, item *Item) error {
	item.slot = []byte(slotKey(*item))
	payload, err := json.Marshal(item)
	if err != nil {
		return err
	}
	if err := tx.Bucket(s.items).Put(item.slot, payload); err != nil {
		return err
	}
	if item.Key == "" {
		return nil
	}
	return tx.Bucket(s.keys).Put([]byte(item.Key), item.slot)
}

func (s *Store) remove(tx *bolt.Tx, item Item) error {
	items := tx.Bucket(s.items)
	slot := item.slot
	if len(slot) == 0 && item.Key != "" {
		slot = tx.Bucket(s.keys).Get([]byte(item.Key))
	}
	if len(slot) == 0 {
		slot = findByID(items, item.ID)
	}
	if len(slot) > 0 {
		if err := items.Delete(slot); err != nil {
			return err
		}
	}
	if item.Key == "" {
		return nil
	}
	return tx.Bucket(s.keys).Delete([]byte(item.Key))
}

func findByID(items *bolt.Bucket, id string) []byte {
	if id == "" {
		return nil
	}
	c := items.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var item Item
		if json.Unmarshal(v, &item) == nil && item.ID == id {
			return append([]byte(nil), k...)
		}
	}
	return nil
}

func slotKey(item Item) string {
	return fmt.Sprintf("%d_%020d_%s", item.Priority, item.Timestamp.UnixNano(), item.ID)
}
