package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fastygo/hustle/domain"
	"github.com/fastygo/hustle/internal/infrastructure/buffer"
	"github.com/fastygo/hustle/repository"
	"github.com/fastygo/hustle/usecase"
)

// ConnectionHealth abstracts the connection monitor functionality.
type ConnectionHealth interface {
	IsOnline() bool
}

// ProcessorConfig controls how frequently the buffer is drained.
type ProcessorConfig struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
	Retention  time.Duration
}

// BufferProcessor replays deferred earnings credits and profile edits against the user store.
type BufferProcessor struct {
	store    *buffer.Store
	monitor  ConnectionHealth
	userRepo repository.UserRepository
	notifier usecase.ChangeNotifier
	logger   *zap.Logger
	cron     *cron.Cron
	cfg      ProcessorConfig
}

func NewBufferProcessor(
	store *buffer.Store,
	monitor ConnectionHealth,
	userRepo repository.UserRepository,
	notifier usecase.ChangeNotifier,
	logger *zap.Logger,
	cfg ProcessorConfig,
) *BufferProcessor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	bp := &BufferProcessor{
		store:    store,
		monitor:  monitor,
		userRepo: userRepo,
		notifier: usecase.NotifierOrNop(notifier),
		logger:   logger,
		cfg:      cfg,
		cron:     cron.New(cron.WithSeconds()),
	}

	schedule := fmt.Sprintf("@every %ds", int(cfg.Interval.Seconds()))
	_, _ = bp.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Interval)
		defer cancel()
		if err := bp.Drain(ctx); err != nil {
			bp.logger.Error("outbox drain failed", zap.Error(err))
		}
	})
	if cfg.Retention > 0 {
		_, _ = bp.cron.AddFunc("@hourly", func() {
			dropped, err := bp.store.Cleanup(time.Now().Add(-cfg.Retention))
			if err != nil {
				bp.logger.Warn("outbox cleanup failed", zap.Error(err))
				return
			}
			if dropped > 0 {
				bp.logger.Warn("expired outbox items dropped", zap.Int("count", dropped))
			}
		})
	}

	return bp
}

// Start launches the cron scheduler.
func (bp *BufferProcessor) Start() {
	if bp == nil || bp.cron == nil {
		return
	}
	bp.cron.Start()
	bp.logger.Info("outbox processor started")
}

// Stop gracefully stops the scheduler.
func (bp *BufferProcessor) Stop(ctx context.Context) {
	if bp == nil || bp.cron == nil {
		return
	}
	stopCtx := bp.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	bp.logger.Info("outbox processor stopped")
}

// Drain replays one batch synchronously. Items that keep failing are dropped
// after MaxRetries, except durable earnings credits, which stay parked until
// the store accepts them or rejects them outright.
func (bp *BufferProcessor) Drain(ctx context.Context) error {
	if bp == nil || bp.store == nil {
		return nil
	}
	if bp.monitor != nil && !bp.monitor.IsOnline() {
		bp.logger.Debug("skipping outbox drain (offline)")
		return nil
	}

	items, err := bp.store.GetBatch(bp.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, item := range items {
		if err := bp.processItem(ctx, item); err != nil {
			bp.logger.Error("failed to replay outbox item",
				zap.String("item_id", item.ID),
				zap.String("entity", item.Entity),
				zap.Error(err))

			if bp.shouldDrop(item, err) {
				bp.logger.Warn("dropping outbox item",
					zap.String("item_id", item.ID),
					zap.String("user_id", item.UserID),
					zap.Int("retries", item.Retries+1))
				_ = bp.store.Remove(item)
				continue
			}

			if err := bp.store.Requeue(item); err != nil {
				bp.logger.Error("failed to requeue outbox item", zap.Error(err))
			}
			continue
		}

		if err := bp.store.Remove(item); err != nil {
			bp.logger.Warn("failed to purge replayed outbox item", zap.Error(err))
		}
		bp.notifier.UserChanged(ctx, item.UserID)
	}
	return nil
}

// Defer persists the item for a later drain.
func (bp *BufferProcessor) Defer(_ context.Context, item buffer.Item) error {
	if bp == nil || bp.store == nil {
		return fmt.Errorf("outbox processor not configured")
	}
	if err := bp.store.Enqueue(item); err != nil {
		if errors.Is(err, buffer.ErrDuplicate) {
			bp.logger.Debug("write already parked", zap.String("key", item.Key))
			return nil
		}
		return err
	}
	bp.logger.Warn("write deferred to outbox",
		zap.String("entity", item.Entity),
		zap.String("user_id", item.UserID))
	return nil
}

// Size returns the number of buffered items.
func (bp *BufferProcessor) Size() int {
	if bp == nil || bp.store == nil {
		return 0
	}
	size, err := bp.store.Size()
	if err != nil {
		return 0
	}
	return size
}

// shouldDrop reports whether a failed item is given up on. Missing users and
// malformed payloads never recover.
func (bp *BufferProcessor) shouldDrop(item buffer.Item, err error) bool {
	if domain.IsDomainError(err, domain.ErrCodeNotFound) || domain.IsDomainError(err, domain.ErrCodeInvalid) {
		return true
	}
	if item.Durable() {
		return false
	}
	return item.Retries+1 >= bp.cfg.MaxRetries
}

func (bp *BufferProcessor) processItem(ctx context.Context, item buffer.Item) error {
	switch item.Entity {
	case buffer.EntityEarnings:
		var credit buffer.Credit
		if err := item.Decode(&credit); err != nil {
			return err
		}
		return bp.userRepo.CreditEarnings(ctx, item.UserID, credit.TaskID, credit.Amount)

	case buffer.EntityProfile:
		var patch domain.ProfilePatch
		if err := item.Decode(&patch); err != nil {
			return err
		}
		_, err := bp.userRepo.UpdateProfile(ctx, item.UserID, patch)
		return err

	default:
		return fmt.Errorf("unsupported entity %s", item.Entity)
	}
}
