package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/petlink/backend/internal/auth"
	"github.com/petlink/backend/internal/db"
)

const sessionColumns = `refresh_token, access_token, user_id, access_expires_at, expires_at`

// PostgresSessionStore keeps bearer sessions in the sessions table so they
// survive restarts and are shared between replicas.
type PostgresSessionStore struct {
	pool db.Pool
}

func NewPostgresSessionStore(pool db.Pool) *PostgresSessionStore {
	return &PostgresSessionStore{pool: pool}
}

// Save upserts session keyed by its refresh token.
func (s *PostgresSessionStore) Save(ctx context.Context, session auth.Session) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `
        INSERT INTO sessions (`+sessionColumns+`)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (refresh_token) DO UPDATE
        SET access_token = EXCLUDED.access_token,
            user_id = EXCLUDED.user_id,
            access_expires_at = EXCLUDED.access_expires_at,
            expires_at = EXCLUDED.expires_at
    `, session.RefreshToken, session.AccessToken, session.UserID, session.AccessExpiresAt.UTC(), session.ExpiresAt.UTC()); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *PostgresSessionStore) Find(ctx context.Context, refreshToken string) (auth.Session, error) {
	return s.lookup(ctx, `WHERE refresh_token = $1`, refreshToken)
}

func (s *PostgresSessionStore) FindByAccessToken(ctx context.Context, accessToken string) (auth.Session, error) {
	return s.lookup(ctx, `WHERE access_token = $1`, accessToken)
}

func (s *PostgresSessionStore) lookup(ctx context.Context, where, token string) (auth.Session, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return auth.Session{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	session, err := scanSession(conn.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions `+where, token))
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.Session{}, auth.ErrSessionNotFound
	}
	if err != nil {
		return auth.Session{}, fmt.Errorf("load session: %w", err)
	}
	return session, nil
}

// Delete drops the session owning refreshToken. Deleting a missing session
// is not an error.
func (s *PostgresSessionStore) Delete(ctx context.Context, refreshToken string) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `DELETE FROM sessions WHERE refresh_token = $1`, refreshToken); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func scanSession(row pgx.Row) (auth.Session, error) {
	var session auth.Session
	if err := row.Scan(&session.RefreshToken, &session.AccessToken, &session.UserID, &session.AccessExpiresAt, &session.ExpiresAt); err != nil {
		return auth.Session{}, err
	}
	session.AccessExpiresAt = session.AccessExpiresAt.UTC()
	session.ExpiresAt = session.ExpiresAt.UTC()
	return session, nil
}

var _ auth.SessionStore = (*PostgresSessionStore)(nil)
