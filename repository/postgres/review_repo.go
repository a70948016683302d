package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/hustle/domain"
	"github.com/fastygo/hustle/repository"
)

type reviewRepository struct {
	pool *pgxpool.Pool
}

// NewReviewRepository reads the append-only review log.
func NewReviewRepository(pool *pgxpool.Pool) repository.ReviewRepository {
	return &reviewRepository{pool: pool}
}

func (r *reviewRepository) ListByRatee(ctx context.Context, rateeID string, limit int) ([]domain.Review, error) {
	const query = `
	SELECT id, task_id, rater_id, ratee_id, stars, text, created_at
	FROM reviews
	WHERE ratee_id = $1
	ORDER BY created_at DESC, id DESC
	LIMIT $2::bigint
	`
	rows, err := r.pool.Query(ctx, query, rateeID, pageLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reviews := make([]domain.Review, 0)
	for rows.Next() {
		var review domain.Review
		if err := rows.Scan(
			&review.ID,
			&review.TaskID,
			&review.RaterID,
			&review.RateeID,
			&review.Stars,
			&review.Text,
			&review.CreatedAt,
		); err != nil {
			return nil, err
		}
		reviews = append(reviews, review)
	}
	return reviews, rows.Err()
}
