package repository

import (
	"context"

	"github.com/fastygo/hustle/domain"
)

// SessionRepository stores sign-in sessions. Get reports ErrSessionNotFound
// for unknown and expired sessions alike.
type SessionRepository interface {
	Get(ctx context.Context, id string) (*domain.Session, error)
	Save(ctx context.Context, session *domain.Session) error
	Delete(ctx context.Context, id string) error
	// Renew persists a session whose expiry was moved with Session.Renew.
	Renew(ctx context.Context, session *domain.Session) error
}
