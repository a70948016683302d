package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/hustle/domain"
	"github.com/fastygo/hustle/repository"
)

const userColumns = `id, name, email, college, department, year, phone, rating, total_ratings,
	completed_hustles, total_earned, created_at, updated_at`

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository instantiates a Postgres-backed user repository.
func NewUserRepository(pool *pgxpool.Pool) repository.UserRepository {
	return &userRepository{pool: pool}
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	if user == nil {
		return domain.ErrInvalidPayload
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	const query = `
	INSERT INTO users (id, name, email, college, department, year, phone)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING created_at, updated_at
	`

	if err := r.pool.QueryRow(ctx, query,
		user.ID,
		user.Name,
		strings.ToLower(user.Email),
		user.College,
		user.Department,
		user.Year,
		user.Phone,
	).Scan(&user.CreatedAt, &user.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrEmailTaken
		}
		return err
	}
	return nil
}

func (r *userRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}

func (r *userRepository) UpdateProfile(ctx context.Context, id string, patch domain.ProfilePatch) (*domain.User, error) {
	query := `
	UPDATE users
	SET name = COALESCE($2, name),
		college = COALESCE($3, college),
		department = COALESCE($4, department),
		year = COALESCE($5, year),
		phone = COALESCE($6, phone),
		updated_at = NOW()
	WHERE id = $1
	RETURNING ` + userColumns

	return scanUser(r.pool.QueryRow(ctx, query,
		id,
		patch.Name,
		patch.College,
		patch.Department,
		patch.Year,
		patch.Phone,
	))
}

const (
	recordCreditQuery = `
	INSERT INTO earnings_credits (task_id, user_id, amount)
	VALUES ($1, $2, $3)
	ON CONFLICT (task_id) DO NOTHING
	`
	creditEarningsQuery = `
	UPDATE users
	SET total_earned = total_earned + $2,
		completed_hustles = completed_hustles + 1,
		updated_at = NOW()
	WHERE id = $1
	`
)

// CreditEarnings records the task in earnings_credits and bumps the user in the
// same transaction. The ledger's primary key makes a second credit for the
// same task a no-op, including a replay after a commit whose reply was lost.
func (r *userRepository) CreditEarnings(ctx context.Context, id, taskID string, amount int64) error {
	if taskID == "" {
		return domain.ErrInvalidPayload
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, recordCreditQuery, taskID, id, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	tag, err = tx.Exec(ctx, creditEarningsQuery, id, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return tx.Commit(ctx)
}

// applyRatingQuery computes the new mean from the row's own values, so
// concurrent ratings are serialised by the row lock.
const applyRatingQuery = `
	UPDATE users
	SET rating = CASE WHEN total_ratings <= 0 THEN $2::double precision
			ELSE (rating * total_ratings + $2::double precision) / (total_ratings + 1) END,
		total_ratings = GREATEST(total_ratings, 0) + 1,
		updated_at = NOW()
	WHERE id = $1
	RETURNING ` + userColumns

// ApplyRating inserts the review and folds the stars into the average inside one
// transaction.
func (r *userRepository) ApplyRating(ctx context.Context, review domain.Review) (*domain.User, error) {
	if review.ID == "" {
		review.ID = uuid.NewString()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	user, err := scanUser(tx.QueryRow(ctx, applyRatingQuery, review.RateeID, review.Stars))
	if err != nil {
		return nil, err
	}

	const insert = `
	INSERT INTO reviews (id, task_id, rater_id, ratee_id, stars, text)
	VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := tx.Exec(ctx, insert,
		review.ID,
		review.TaskID,
		review.RaterID,
		review.RateeID,
		review.Stars,
		review.Text,
	); err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrAlreadyRated
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return user, nil
}

func scanUser(row rowScanner) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.College,
		&user.Department,
		&user.Year,
		&user.Phone,
		&user.Rating,
		&user.TotalRatings,
		&user.CompletedHustles,
		&user.TotalEarned,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}
