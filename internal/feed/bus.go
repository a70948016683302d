package feed

import (
	"context"
	"strings"
	"sync"

	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Topic kinds published on the bus.
const (
	KindCollege = "college"
	KindUser    = "user"
)

// Handler receives a changed topic.
type Handler func(ctx context.Context, topic string)

// Bus carries change notifications between instances.
type Bus interface {
	Publish(ctx context.Context, topic string) error
	Listen(handler Handler) (stop func() error, err error)
}

func Topic(kind, key string) string {
	return kind + ":" + key
}

// Dispatch routes "<kind>:<key>" topics to the notifier registered for kind.
func Dispatch(routes map[string]Notifier) Handler {
	return func(ctx context.Context, topic string) {
		kind, key, ok := strings.Cut(topic, ":")
		if !ok || key == "" {
			return
		}
		if n, found := routes[kind]; found {
			n.Notify(ctx, key)
		}
	}
}

// LocalBus delivers synchronously to handlers in the same process.
type LocalBus struct {
	mu       sync.RWMutex
	handlers map[uint64]Handler
	nextID   uint64
}

func NewLocalBus() *LocalBus {
	return &LocalBus{handlers: make(map[uint64]Handler)}
}

func (b *LocalBus) Publish(ctx context.Context, topic string) error {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, topic)
	}
	return nil
}

func (b *LocalBus) Listen(handler Handler) (func() error, error) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[id] = handler
	b.mu.Unlock()

	return func() error {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
		return nil
	}, nil
}

// RedisBus fans notifications out to every instance over one pub/sub channel.
// The publishing instance receives its own messages too.
type RedisBus struct {
	client  *redislib.Client
	channel string
	logger  *zap.Logger
}

func NewRedisBus(client *redislib.Client, channel string, logger *zap.Logger) *RedisBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	if channel == "" {
		channel = "hustle:changes"
	}
	return &RedisBus{client: client, channel: channel, logger: logger}
}

func (b *RedisBus) Publish(ctx context.Context, topic string) error {
	return b.client.Publish(ctx, b.channel, topic).Err()
}

func (b *RedisBus) Listen(handler Handler) (func() error, error) {
	ctx, cancel := context.WithCancel(context.Background())
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, err
	}

	go func() {
		for msg := range pubsub.Channel() {
			handler(ctx, msg.Payload)
		}
		b.logger.Debug("feed bus listener stopped", zap.String("channel", b.channel))
	}()

	return func() error {
		cancel()
		return pubsub.Close()
	}, nil
}

// Publisher turns lifecycle changes into bus topics. Publish failures are
// logged, the change itself is already committed.
type Publisher struct {
	bus    Bus
	logger *zap.Logger
}

func NewPublisher(bus Bus, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{bus: bus, logger: logger}
}

func (p *Publisher) CollegeChanged(ctx context.Context, college string) {
	p.publish(ctx, Topic(KindCollege, college))
}

func (p *Publisher) UserChanged(ctx context.Context, userID string) {
	p.publish(ctx, Topic(KindUser, userID))
}

func (p *Publisher) publish(ctx context.Context, topic string) {
	if p == nil || p.bus == nil {
		return
	}
	if err := p.bus.Publish(ctx, topic); err != nil {
		p.logger.Warn("publish change failed", zap.String("topic", topic), zap.Error(err))
	}
}
