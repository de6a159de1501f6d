package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/petlink/backend/internal/models"
)

var (
	// ErrSessionNotFound indicates the provided refresh token does not map to an active session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRefreshTokenExpired indicates the refresh token has expired and cannot be used.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	// ErrAccessTokenInvalid indicates the bearer token is unknown or no longer valid.
	ErrAccessTokenInvalid = errors.New("access token invalid")
)

// SessionStore persists issued sessions so they can survive process restarts.
type SessionStore interface {
	Save(ctx context.Context, session Session) error
	Find(ctx context.Context, refreshToken string) (Session, error)
	FindByAccessToken(ctx context.Context, accessToken string) (Session, error)
	Delete(ctx context.Context, refreshToken string) error
}

// Session is a token pair issued to a user.
type Session struct {
	AccessToken     string
	AccessExpiresAt time.Time
	RefreshToken    string
	UserID          string
	ExpiresAt       time.Time
}

// Manager issues bearer sessions and rotates refresh tokens. A refresh token
// is single use: exchanging it deletes the session it belonged to.
type Manager struct {
	accessTTL  time.Duration
	refreshTTL time.Duration

	store SessionStore

	mu  sync.RWMutex
	now func() time.Time
}

// NewManager builds a Manager on top of store. A nil store is a wiring bug.
func NewManager(accessTTL, refreshTTL time.Duration, store SessionStore) *Manager {
	if store == nil {
		panic("auth: nil session store")
	}
	return &Manager{accessTTL: accessTTL, refreshTTL: refreshTTL, store: store, now: time.Now}
}

// WithNowFunc replaces the clock.
func (m *Manager) WithNowFunc(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// Issue stores a fresh session for userID and returns its tokens.
func (m *Manager) Issue(ctx context.Context, userID string) (models.SessionTokens, error) {
	if userID == "" {
		return models.SessionTokens{}, errors.New("auth: empty user id")
	}

	session, err := m.newSession(userID)
	if err != nil {
		return models.SessionTokens{}, err
	}
	if err := m.store.Save(ctx, session); err != nil {
		return models.SessionTokens{}, err
	}

	return models.SessionTokens{
		AccessToken:      session.AccessToken,
		AccessExpiresAt:  session.AccessExpiresAt,
		RefreshToken:     session.RefreshToken,
		RefreshExpiresAt: session.ExpiresAt,
	}, nil
}

func (m *Manager) newSession(userID string) (Session, error) {
	var pair [2]string
	for i := range pair {
		token, err := randomToken()
		if err != nil {
			return Session{}, err
		}
		pair[i] = token
	}

	now := m.clock()
	return Session{
		AccessToken:     pair[0],
		AccessExpiresAt: now.Add(m.accessTTL),
		RefreshToken:    pair[1],
		UserID:          userID,
		ExpiresAt:       now.Add(m.refreshTTL),
	}, nil
}

// Refresh rotates refreshToken into a new session for the same user.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error) {
	if refreshToken == "" {
		return models.SessionTokens{}, ErrSessionNotFound
	}

	session, err := m.store.Find(ctx, refreshToken)
	if err != nil {
		return models.SessionTokens{}, err
	}

	// Expired or not, the old session is gone after this point.
	deleteErr := m.store.Delete(ctx, refreshToken)
	if m.clock().After(session.ExpiresAt) {
		return models.SessionTokens{}, ErrRefreshTokenExpired
	}
	if deleteErr != nil {
		return models.SessionTokens{}, deleteErr
	}

	return m.Issue(ctx, session.UserID)
}

// Authenticate resolves a bearer access token to the user it was issued to.
func (m *Manager) Authenticate(ctx context.Context, accessToken string) (string, error) {
	if accessToken == "" {
		return "", ErrAccessTokenInvalid
	}

	session, err := m.store.FindByAccessToken(ctx, accessToken)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return "", ErrAccessTokenInvalid
		}
		return "", err
	}

	if m.clock().After(session.AccessExpiresAt) {
		return "", ErrAccessTokenInvalid
	}
	return session.UserID, nil
}

// Revoke ends the session owning refreshToken. Unknown tokens are ignored.
func (m *Manager) Revoke(ctx context.Context, refreshToken string) {
	if refreshToken != "" {
		_ = m.store.Delete(ctx, refreshToken)
	}
}

func (m *Manager) clock() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now().UTC()
}

const tokenBytes = 32

func randomToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: read random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
