package profile

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/fastygo/hustle/domain"
	"github.com/fastygo/hustle/internal/feed"
	appLogger "github.com/fastygo/hustle/pkg/logger"
	"github.com/fastygo/hustle/repository"
	"github.com/fastygo/hustle/usecase"
)

const defaultReviewLimit = 50

type UseCase struct {
	users    repository.UserRepository
	reviews  repository.ReviewRepository
	buffer   usecase.OperationBuffer
	notifier usecase.ChangeNotifier
	profiles *feed.Feed[*domain.User]
	logger   *zap.Logger
}

func New(
	users repository.UserRepository,
	reviews repository.ReviewRepository,
	buffer usecase.OperationBuffer,
	notifier usecase.ChangeNotifier,
	logger *zap.Logger,
) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	uc := &UseCase{
		users:    users,
		reviews:  reviews,
		buffer:   buffer,
		notifier: usecase.NotifierOrNop(notifier),
		logger:   logger,
	}
	uc.profiles = feed.New[*domain.User]("profiles", uc.GetProfile, logger)
	return uc
}

// Feed is the per-user profile feed, notified through the change bus.
func (uc *UseCase) Feed() feed.Notifier {
	return uc.profiles
}

func (uc *UseCase) Close() {
	uc.profiles.Close()
}

func (uc *UseCase) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	user, err := uc.users.GetByID(ctx, userID)
	if err != nil {
		return nil, uc.gateway(ctx, "get profile", err)
	}
	return user, nil
}

// UpdateProfile merges the patch. When the store rejects the write for
// infrastructure reasons, the patch is parked in the outbox and echoed back.
func (uc *UseCase) UpdateProfile(ctx context.Context, userID string, patch domain.ProfilePatch) (*domain.User, error) {
	if err := normalizePatch(&patch); err != nil {
		return nil, err
	}

	user, err := uc.users.UpdateProfile(ctx, userID, patch)
	if err != nil {
		if isStoreFailure(err) && uc.buffer != nil {
			if bufErr := uc.buffer.BufferProfile(ctx, userID, patch); bufErr != nil {
				uc.log(ctx).Error("failed to buffer profile update", zap.Error(bufErr))
				return nil, uc.gateway(ctx, "update profile", err)
			}
			uc.log(ctx).Warn("profile update buffered due to repository error", zap.Error(err))
			pending := &domain.User{ID: userID}
			patch.Apply(pending)
			return pending, nil
		}
		return nil, uc.gateway(ctx, "update profile", err)
	}

	uc.notifier.UserChanged(ctx, userID)
	return user, nil
}

func isStoreFailure(err error) bool {
	return domain.IsDomainError(domain.Gateway("", err), domain.ErrCodeGateway)
}

func normalizePatch(patch *domain.ProfilePatch) error {
	if patch.Empty() {
		return domain.Validation("nothing to update")
	}
	for _, field := range []*string{patch.Name, patch.College, patch.Department, patch.Year, patch.Phone} {
		if field != nil {
			*field = strings.TrimSpace(*field)
		}
	}
	if patch.Name != nil && *patch.Name == "" {
		return domain.Validation("name cannot be empty")
	}
	if patch.College != nil && *patch.College == "" {
		return domain.Validation("college cannot be empty")
	}
	return nil
}

// CreditEarnings adds amount to the user's earnings and counts one more completed hustle.
// The store applies both increments atomically and at most once per task.
func (uc *UseCase) CreditEarnings(ctx context.Context, userID, taskID string, amount int64) error {
	if amount <= 0 {
		return domain.Validation("amount must be positive")
	}
	if taskID == "" {
		return domain.Validation("task id is required")
	}
	if err := uc.users.CreditEarnings(ctx, userID, taskID, amount); err != nil {
		return uc.gateway(ctx, "credit earnings", err)
	}
	uc.notifier.UserChanged(ctx, userID)
	return nil
}

// SubmitRating folds one rating into the ratee's average and appends it to the review log.
// Rating an unknown user is a logged no-op.
func (uc *UseCase) SubmitRating(ctx context.Context, review domain.Review) (*domain.User, error) {
	review.Text = strings.TrimSpace(review.Text)
	if err := review.Validate(); err != nil {
		return nil, err
	}

	user, err := uc.users.ApplyRating(ctx, review)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			uc.log(ctx).Warn("rating for unknown user ignored",
				zap.String("ratee_id", review.RateeID),
				zap.String("rater_id", review.RaterID))
			return nil, nil
		}
		return nil, uc.gateway(ctx, "submit rating", err)
	}

	uc.log(ctx).Info("rating submitted",
		zap.String("ratee_id", review.RateeID),
		zap.Int("stars", review.Stars),
		zap.Float64("rating", user.Rating),
		zap.Int("total_ratings", user.TotalRatings))
	uc.notifier.UserChanged(ctx, review.RateeID)
	return user, nil
}

func (uc *UseCase) ListReviews(ctx context.Context, userID string, limit int) ([]domain.Review, error) {
	if limit <= 0 || limit > defaultReviewLimit {
		limit = defaultReviewLimit
	}
	reviews, err := uc.reviews.ListByRatee(ctx, userID, limit)
	if err != nil {
		return nil, uc.gateway(ctx, "list reviews", err)
	}
	return reviews, nil
}

// Subscribe delivers the profile now and after every change. Call the returned func to stop.
func (uc *UseCase) Subscribe(ctx context.Context, userID string, onUpdate func(*domain.User)) (func(), error) {
	return uc.profiles.Subscribe(ctx, userID, onUpdate)
}

func (uc *UseCase) gateway(ctx context.Context, op string, err error) error {
	wrapped := domain.Gateway(op, err)
	if domain.IsDomainError(wrapped, domain.ErrCodeGateway) {
		uc.log(ctx).Error("store call failed", zap.String("op", op), zap.Error(err))
	}
	return wrapped
}

func (uc *UseCase) log(ctx context.Context) *zap.Logger {
	return appLogger.FromContext(ctx, uc.logger)
}
