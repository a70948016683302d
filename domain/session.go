package domain

import "time"

// Session backs one signed-in device. Tokens carry its ID so revoking the
// session revokes every token minted for it.
type Session struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Provider    string    `json:"provider,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	RefreshedAt time.Time `json:"refreshed_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// NewSession opens a session for userID that lives for ttl from now.
func NewSession(id, userID, provider string, now time.Time, ttl time.Duration) *Session {
	return &Session{
		ID:          id,
		UserID:      userID,
		Provider:    provider,
		CreatedAt:   now,
		RefreshedAt: now,
		ExpiresAt:   now.Add(ttl),
	}
}

// Renew slides the expiry to ttl past now.
func (s *Session) Renew(now time.Time, ttl time.Duration) {
	s.RefreshedAt = now
	s.ExpiresAt = now.Add(ttl)
}

func (s *Session) IsExpired(reference time.Time) bool {
	if s == nil {
		return true
	}
	if reference.IsZero() {
		reference = time.Now()
	}
	return !s.ExpiresAt.After(reference)
}
