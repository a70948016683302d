package repository

import (
	"context"
	"time"

	"github.com/fastygo/hustle/domain"
)

// TaskFilter is an equality filter over tasks; empty fields match everything.
type TaskFilter struct {
	College    string
	PostedBy   string
	AcceptedBy string
	Status     domain.Status
	Limit      int
	Offset     int
}

// Transition is a conditional update: it applies only while the stored status is one of From
// (and, with RequireUnpaid, while payment is still outstanding).
type Transition struct {
	From          []domain.Status
	To            domain.Status
	AcceptedBy    string
	RequireUnpaid bool
	PaidAt        *time.Time
}

// TaskRepository lists tasks newest first (created_at desc, id desc).
type TaskRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Task, error)
	List(ctx context.Context, filter TaskFilter) ([]domain.Task, error)
	Create(ctx context.Context, task *domain.Task) (*domain.Task, error)
	// Transition returns domain.ErrTaskNotFound for unknown ids and an
	// INVALID_TRANSITION error when the precondition no longer holds.
	Transition(ctx context.Context, id string, t Transition) (*domain.Task, error)
}
