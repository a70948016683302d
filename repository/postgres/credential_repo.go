package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/hustle/domain"
	"github.com/fastygo/hustle/repository"
)

type credentialRepository struct {
	pool *pgxpool.Pool
}

func NewCredentialRepository(pool *pgxpool.Pool) repository.CredentialRepository {
	return &credentialRepository{pool: pool}
}

func (r *credentialRepository) Get(ctx context.Context, provider, subject string) (*domain.Credential, error) {
	const query = `
	SELECT user_id, provider, subject, password_hash, created_at
	FROM credentials
	WHERE provider = $1 AND subject = $2
	`
	var cred domain.Credential
	if err := r.pool.QueryRow(ctx, query, provider, strings.ToLower(subject)).Scan(
		&cred.UserID,
		&cred.Provider,
		&cred.Subject,
		&cred.PasswordHash,
		&cred.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCredentialNotFound
		}
		return nil, err
	}
	return &cred, nil
}

func (r *credentialRepository) Create(ctx context.Context, cred *domain.Credential) error {
	if cred == nil {
		return domain.ErrInvalidPayload
	}
	const query = `
	INSERT INTO credentials (provider, subject, user_id, password_hash)
	VALUES ($1, $2, $3, $4)
	RETURNING created_at
	`
	if err := r.pool.QueryRow(ctx, query,
		cred.Provider,
		strings.ToLower(cred.Subject),
		cred.UserID,
		cred.PasswordHash,
	).Scan(&cred.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrEmailTaken
		}
		return err
	}
	return nil
}
