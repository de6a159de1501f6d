package auth

import (
	"context"
	"sync"
)

// InMemorySessionStore keeps sessions in process memory for tests.
type InMemorySessionStore struct {
	mu        sync.RWMutex
	byRefresh map[string]*Session
	byAccess  map[string]*Session
}

// NewInMemorySessionStore returns an empty store.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{
		byRefresh: map[string]*Session{},
		byAccess:  map[string]*Session{},
	}
}

func (s *InMemorySessionStore) Save(_ context.Context, session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropLocked(session.RefreshToken)
	stored := session
	s.byRefresh[stored.RefreshToken] = &stored
	if stored.AccessToken != "" {
		s.byAccess[stored.AccessToken] = &stored
	}
	return nil
}

func (s *InMemorySessionStore) Find(_ context.Context, refreshToken string) (Session, error) {
	return s.lookup(s.byRefresh, refreshToken)
}

func (s *InMemorySessionStore) FindByAccessToken(_ context.Context, accessToken string) (Session, error) {
	return s.lookup(s.byAccess, accessToken)
}

func (s *InMemorySessionStore) Delete(_ context.Context, refreshToken string) error {
	s.mu.Lock()
	s.dropLocked(refreshToken)
	s.mu.Unlock()
	return nil
}

// Has reports whether refreshToken still maps to a session.
func (s *InMemorySessionStore) Has(refreshToken string) bool {
	_, err := s.lookup(s.byRefresh, refreshToken)
	return err == nil
}

func (s *InMemorySessionStore) lookup(index map[string]*Session, token string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if session, ok := index[token]; ok {
		return *session, nil
	}
	return Session{}, ErrSessionNotFound
}

func (s *InMemorySessionStore) dropLocked(refreshToken string) {
	session, ok := s.byRefresh[refreshToken]
	if !ok {
		return
	}
	delete(s.byAccess, session.AccessToken)
	delete(s.byRefresh, refreshToken)
}

var _ SessionStore = (*InMemorySessionStore)(nil)
