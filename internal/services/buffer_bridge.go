package services

import (
	"context"

	"github.com/fastygo/hustle/domain"
	"github.com/fastygo/hustle/internal/infrastructure/buffer"
	"github.com/fastygo/hustle/usecase"
)

const (
	priorityEarnings = 1
	priorityProfile  = 3
)

// BufferBridge adapts the processor to the use case OperationBuffer port.
type BufferBridge struct {
	processor *BufferProcessor
}

func NewBufferBridge(processor *BufferProcessor) *BufferBridge {
	return &BufferBridge{processor: processor}
}

func (b *BufferBridge) BufferCredit(ctx context.Context, userID, taskID string, amount int64) error {
	if b.processor == nil || userID == "" || taskID == "" {
		return domain.ErrInvalidPayload
	}
	item, err := buffer.NewItem(userID, buffer.EntityEarnings, buffer.OperationCredit, priorityEarnings,
		buffer.Credit{TaskID: taskID, Amount: amount})
	if err != nil {
		return err
	}
	item.Key = buffer.CreditKey(taskID)
	return b.processor.Defer(ctx, item)
}

func (b *BufferBridge) BufferProfile(ctx context.Context, userID string, patch domain.ProfilePatch) error {
	if b.processor == nil || userID == "" {
		return domain.ErrInvalidPayload
	}
	item, err := buffer.NewItem(userID, buffer.EntityProfile, buffer.OperationUpdate, priorityProfile, patch)
	if err != nil {
		return err
	}
	return b.processor.Defer(ctx, item)
}

var _ usecase.OperationBuffer = (*BufferBridge)(nil)
