package auth

import (
	"context"
	"sync"
	"time"

	"github.com/petlink/backend/internal/models"
)

// DefaultExpirySkew treats tokens as expired slightly early so a request
// does not race the server-side expiry.
const DefaultExpirySkew = 30 * time.Second

// Refresher exchanges a refresh token for a new session.
type Refresher func(ctx context.Context, refreshToken string) (models.SessionTokens, error)

// TokenSource holds the signed-in user's tokens on the client side and
// refreshes the access token when it has expired.
type TokenSource struct {
	mu      sync.Mutex
	tokens  *models.SessionTokens
	refresh Refresher
	Skew    time.Duration
	NowFunc func() time.Time
}

// NewTokenSource returns a source seeded with tokens. tokens may be nil for a
// signed-out user; refresh may be nil when refreshing is not possible.
func NewTokenSource(tokens *models.SessionTokens, refresh Refresher) *TokenSource {
	s := &TokenSource{refresh: refresh, Skew: DefaultExpirySkew}
	s.Set(tokens)
	return s
}

// Set replaces the held tokens, e.g. after login.
func (s *TokenSource) Set(tokens *models.SessionTokens) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tokens == nil {
		s.tokens = nil
		return
	}
	copied := *tokens
	s.tokens = &copied
}

// Clear forgets the held tokens, e.g. on sign-out.
func (s *TokenSource) Clear() {
	s.Set(nil)
}

// GetFreshTokens returns the held tokens, refreshing them first when the
// access token expired and the refresh token is still usable. It returns nil
// without error when no session exists.
func (s *TokenSource) GetFreshTokens(ctx context.Context) (*models.SessionTokens, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tokens == nil {
		return nil, nil
	}

	if s.refresh != nil && s.expiredLocked(s.tokens.AccessExpiresAt) &&
		s.tokens.RefreshToken != "" && !s.expiredLocked(s.tokens.RefreshExpiresAt) {
		refreshed, err := s.refresh(ctx, s.tokens.RefreshToken)
		if err != nil {
			return nil, err
		}
		s.tokens = &refreshed
	}

	copied := *s.tokens
	return &copied, nil
}

// IsTokenExpired reports whether expiresAt has passed, allowing for Skew. A
// zero time means the expiry is unknown and is treated as valid.
func (s *TokenSource) IsTokenExpired(expiresAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiredLocked(expiresAt)
}

func (s *TokenSource) expiredLocked(expiresAt time.Time) bool {
	if expiresAt.IsZero() {
		return false
	}
	now := time.Now()
	if s.NowFunc != nil {
		now = s.NowFunc()
	}
	return !now.Add(s.Skew).Before(expiresAt)
}
