// Package feed pushes the full current value of a keyed query to every
// subscriber of that key whenever the key is notified as changed.
package feed

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Loader produces the current value for a key.
type Loader[T any] func(ctx context.Context, key string) (T, error)

// Notifier is the write side of a feed, used by Dispatch.
type Notifier interface {
	Notify(ctx context.Context, key string)
}

// Feed is a registry of key -> subscribers. Each subscriber owns a one-slot
// queue drained by its own goroutine; a newer value replaces an undelivered one.
type Feed[T any] struct {
	name   string
	load   Loader[T]
	logger *zap.Logger

	mu     sync.Mutex
	subs   map[string]map[uint64]*subscriber[T]
	locks  map[string]*keyLock
	nextID uint64
}

// keyLock orders loads of one key so a subscriber never sees an older value
// after a newer one. Other keys load concurrently.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

type subscriber[T any] struct {
	updates chan T
	done    chan struct{}
	once    sync.Once
}

func New[T any](name string, load Loader[T], logger *zap.Logger) *Feed[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed[T]{
		name:   name,
		load:   load,
		logger: logger.With(zap.String("feed", name)),
		subs:   make(map[string]map[uint64]*subscriber[T]),
		locks:  make(map[string]*keyLock),
	}
}

// Subscribe delivers the current value for key to fn, then every later value
// until the returned func is called. ctx only bounds the initial load; the
// subscription lives until unsubscribed or the feed is closed.
func (f *Feed[T]) Subscribe(ctx context.Context, key string, fn func(T)) (func(), error) {
	unlock := f.lockKey(key)
	defer unlock()

	value, err := f.load(ctx, key)
	if err != nil {
		return nil, err
	}

	sub := &subscriber[T]{
		updates: make(chan T, 1),
		done:    make(chan struct{}),
	}

	f.mu.Lock()
	f.nextID++
	id := f.nextID
	if f.subs[key] == nil {
		f.subs[key] = make(map[uint64]*subscriber[T])
	}
	f.subs[key][id] = sub
	f.mu.Unlock()

	sub.offer(value)
	go sub.run(fn)

	return func() { f.remove(key, id, sub) }, nil
}

// Notify reloads key and hands the value to its subscribers without blocking on them.
func (f *Feed[T]) Notify(ctx context.Context, key string) {
	unlock := f.lockKey(key)
	defer unlock()

	targets := f.subscribers(key)
	if len(targets) == 0 {
		return
	}

	value, err := f.load(ctx, key)
	if err != nil {
		f.logger.Warn("reload failed", zap.String("key", key), zap.Error(err))
		return
	}
	for _, sub := range targets {
		sub.offer(value)
	}
}

// Subscribers reports how many live subscriptions key has.
func (f *Feed[T]) Subscribers(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[key])
}

// Close ends every subscription.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	all := f.subs
	f.subs = make(map[string]map[uint64]*subscriber[T])
	f.mu.Unlock()

	for _, byID := range all {
		for _, sub := range byID {
			sub.stop()
		}
	}
}

func (f *Feed[T]) lockKey(key string) func() {
	f.mu.Lock()
	l := f.locks[key]
	if l == nil {
		l = &keyLock{}
		f.locks[key] = l
	}
	l.refs++
	f.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		f.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(f.locks, key)
		}
		f.mu.Unlock()
	}
}

func (f *Feed[T]) subscribers(key string) []*subscriber[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*subscriber[T], 0, len(f.subs[key]))
	for _, sub := range f.subs[key] {
		out = append(out, sub)
	}
	return out
}

func (f *Feed[T]) remove(key string, id uint64, sub *subscriber[T]) {
	f.mu.Lock()
	if byID, ok := f.subs[key]; ok {
		delete(byID, id)
		if len(byID) == 0 {
			delete(f.subs, key)
		}
	}
	f.mu.Unlock()
	sub.stop()
}

func (s *subscriber[T]) offer(value T) {
	for {
		select {
		case s.updates <- value:
			return
		default:
		}
		// drop the stale undelivered value
		select {
		case <-s.updates:
		default:
		}
	}
}

func (s *subscriber[T]) run(fn func(T)) {
	for {
		select {
		case <-s.done:
			return
		case value := <-s.updates:
			select {
			case <-s.done:
				return
			default:
			}
			fn(value)
		}
	}
}

func (s *subscriber[T]) stop() {
	s.once.Do(func() { close(s.done) })
}
