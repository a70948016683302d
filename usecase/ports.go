package usecase

import (
	"context"

	"github.com/fastygo/hustle/domain"
)

// OperationBuffer defers writes the primary store rejected so they can be replayed later.
type OperationBuffer interface {
	BufferCredit(ctx context.Context, userID, taskID string, amount int64) error
	BufferProfile(ctx context.Context, userID string, patch domain.ProfilePatch) error
}

// ChangeNotifier tells live feeds that a college's tasks or a user's profile changed.
type ChangeNotifier interface {
	CollegeChanged(ctx context.Context, college string)
	UserChanged(ctx context.Context, userID string)
}

type nopNotifier struct{}

func (nopNotifier) CollegeChanged(context.Context, string) {}
func (nopNotifier) UserChanged(context.Context, string)    {}

// NotifierOrNop returns n, or a notifier that does nothing when n is nil.
func NotifierOrNop(n ChangeNotifier) ChangeNotifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}
