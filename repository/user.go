package repository

import (
	"context"

	"github.com/fastygo/hustle/domain"
)

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) error
	UpdateProfile(ctx context.Context, id string, patch domain.ProfilePatch) (*domain.User, error)
	// Delete removes a user that never finished registering. Deleting a
	// missing user is not an error.
	Delete(ctx context.Context, id string) error
	// CreditEarnings atomically adds amount to total_earned and bumps
	// completed_hustles. Each task is credited at most once: a repeated taskID
	// changes nothing and returns nil, so callers may retry after an
	// ambiguous failure.
	CreditEarnings(ctx context.Context, id, taskID string, amount int64) error
	// ApplyRating appends the review and folds its stars into the running average in one step.
	ApplyRating(ctx context.Context, review domain.Review) (*domain.User, error)
}

type ReviewRepository interface {
	ListByRatee(ctx context.Context, rateeID string, limit int) ([]domain.Review, error)
}

type CredentialRepository interface {
	Get(ctx context.Context, provider, subject string) (*domain.Credential, error)
	Create(ctx context.Context, cred *domain.Credential) error
}
