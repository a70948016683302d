package lifecycle

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestShutdownRunsHooksInReverseOnce(t *testing.T) {
	m := New(time.Second, nil)

	var order []string
	record := func(name string) ShutdownFunc {
		return func(context.Context) error {
			order = append(order, name)
			return nil
		}
	}
	m.Register("postgres", record("postgres"))
	m.RegisterCloser("outbox", closerFunc(func() error {
		order = append(order, "outbox")
		return nil
	}))
	m.Register("http_server", record("http_server"))

	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}

	want := []string{"http_server", "outbox", "postgres"}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("order = %v, want %v", order, want)
	}

	m.Register("late", record("late"))
	_ = m.Shutdown(context.Background())
	if len(order) != 3 {
		t.Fatalf("hook registered after shutdown ran: %v", order)
	}
}

func TestShutdownJoinsErrorsAndKeepsGoing(t *testing.T) {
	m := New(time.Second, nil)
	errA := errors.New("a failed")
	errB := errors.New("b failed")

	ran := 0
	m.Register("a", func(context.Context) error { ran++; return errA })
	m.Register("ok", func(context.Context) error { ran++; return nil })
	m.Register("b", func(context.Context) error { ran++; return errB })

	err := m.Shutdown(context.Background())
	if !errors.Is(err, errA) || !errors.Is(err, errB) || ran != 3 {
		t.Fatalf("err = %v, ran = %d", err, ran)
	}
	if again := m.Shutdown(context.Background()); !errors.Is(again, errA) {
		t.Fatalf("second shutdown should report the first result, got %v", again)
	}
}

func TestShutdownHooksSeeDeadline(t *testing.T) {
	m := New(50*time.Millisecond, nil)
	m.Register("slow", func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Errorf("hook context has no deadline")
		}
		<-ctx.Done()
		return ctx.Err()
	})
	if err := m.Shutdown(context.Background()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
