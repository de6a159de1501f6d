package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/petlink/backend/internal/db"
	"github.com/petlink/backend/internal/models"
)

// InviteRepository defines data access for co-parent invites.
type InviteRepository interface {
	Create(ctx context.Context, invite models.CoParentInvite) error
	FindByToken(ctx context.Context, token string) (models.CoParentInvite, error)
	ListPendingForEmail(ctx context.Context, email string, now time.Time) ([]models.InviteDetail, error)
	ListPendingForCompanion(ctx context.Context, companionID string, now time.Time) ([]models.CoParentInvite, error)
	// Accept resolves the invite and inserts link for the invited companion
	// in one transaction.
	Accept(ctx context.Context, token string, link models.CompanionLink, now time.Time) error
	Decline(ctx context.Context, token string, now time.Time) error
}

const inviteColumns = `i.token, i.email, i.invitee_name, i.phone_number, i.companion_id, i.invited_by, i.status, i.expires_at, i.created_at, i.responded_at`

// PostgresInviteRepository provides PostgreSQL-backed persistence for invites.
type PostgresInviteRepository struct {
	pool db.Pool
}

// NewPostgresInviteRepository constructs an invite repository backed by PostgreSQL.
func NewPostgresInviteRepository(pool db.Pool) *PostgresInviteRepository {
	return &PostgresInviteRepository{pool: pool}
}

// Create stores a new invite.
func (r *PostgresInviteRepository) Create(ctx context.Context, invite models.CoParentInvite) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO coparent_invites (token, email, invitee_name, phone_number, companion_id, invited_by, status, expires_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `, invite.Token, invite.Email, invite.InviteeName, invite.PhoneNumber, invite.CompanionID, invite.InvitedBy, invite.Status, invite.ExpiresAt, invite.CreatedAt)
	if err != nil {
		if mapped := translatePgError(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert invite: %w", err)
	}
	return nil
}

// FindByToken loads an invite by its token.
func (r *PostgresInviteRepository) FindByToken(ctx context.Context, token string) (models.CoParentInvite, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.CoParentInvite{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	invite, err := scanInvite(conn.QueryRow(ctx, `
        SELECT `+inviteColumns+`
        FROM coparent_invites i
        WHERE i.token = $1
    `, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.CoParentInvite{}, ErrNotFound
		}
		return models.CoParentInvite{}, fmt.Errorf("select invite: %w", err)
	}
	return invite, nil
}

// ListPendingForEmail returns unexpired pending invites addressed to email,
// newest first, with the inviter and companion attached.
func (r *PostgresInviteRepository) ListPendingForEmail(ctx context.Context, email string, now time.Time) ([]models.InviteDetail, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+inviteColumns+`,
               u.email, u.first_name, u.last_name, u.profile_picture,
               c.name, c.breed, c.photo_url
        FROM coparent_invites i
        JOIN users u ON u.id = i.invited_by
        JOIN companions c ON c.id = i.companion_id
        WHERE lower(i.email) = lower($1) AND i.status = $2 AND i.expires_at > $3
        ORDER BY i.created_at DESC
    `, email, models.StatusPending, now)
	if err != nil {
		return nil, fmt.Errorf("query pending invites: %w", err)
	}
	defer rows.Close()

	details := []models.InviteDetail{}
	for rows.Next() {
		var (
			d           models.InviteDetail
			respondedAt sql.NullTime
		)
		i := &d.Invite
		if err := rows.Scan(&i.Token, &i.Email, &i.InviteeName, &i.PhoneNumber, &i.CompanionID, &i.InvitedBy, &i.Status, &i.ExpiresAt, &i.CreatedAt, &respondedAt,
			&d.Inviter.Email, &d.Inviter.FirstName, &d.Inviter.LastName, &d.Inviter.ProfilePicture,
			&d.Companion.Name, &d.Companion.Breed, &d.Companion.PhotoURL); err != nil {
			return nil, fmt.Errorf("scan pending invite: %w", err)
		}
		i.RespondedAt = nullTime(respondedAt)
		d.Inviter.ID = i.InvitedBy
		d.Companion.ID = i.CompanionID
		details = append(details, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending invites: %w", err)
	}
	return details, nil
}

// ListPendingForCompanion returns unexpired pending invites for a companion.
func (r *PostgresInviteRepository) ListPendingForCompanion(ctx context.Context, companionID string, now time.Time) ([]models.CoParentInvite, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+inviteColumns+`
        FROM coparent_invites i
        WHERE i.companion_id = $1 AND i.status = $2 AND i.expires_at > $3
        ORDER BY i.created_at ASC
    `, companionID, models.StatusPending, now)
	if err != nil {
		return nil, fmt.Errorf("query companion invites: %w", err)
	}
	defer rows.Close()

	invites := []models.CoParentInvite{}
	for rows.Next() {
		invite, err := scanInvite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan companion invite: %w", err)
		}
		invites = append(invites, invite)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate companion invites: %w", err)
	}
	return invites, nil
}

// Accept marks the invite accepted and inserts link. It fails with
// ErrConflict when the invite was already resolved or the parent is already
// linked, and with ErrInviteExpired once the invite lapsed.
func (r *PostgresInviteRepository) Accept(ctx context.Context, token string, link models.CompanionLink, now time.Time) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin accept transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	invite, err := lockPendingInvite(ctx, tx, token, now)
	if err != nil {
		return err
	}

	link.CompanionID = invite.CompanionID
	if err := insertLink(ctx, tx, link); err != nil {
		return err
	}

	if err := resolveInvite(ctx, tx, token, models.StatusAccepted, now); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit invite acceptance: %w", err)
	}
	return nil
}

// Decline marks a pending invite declined.
func (r *PostgresInviteRepository) Decline(ctx context.Context, token string, now time.Time) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin decline transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := lockPendingInvite(ctx, tx, token, now); err != nil {
		return err
	}
	if err := resolveInvite(ctx, tx, token, models.StatusDeclined, now); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit invite decline: %w", err)
	}
	return nil
}

func lockPendingInvite(ctx context.Context, tx pgx.Tx, token string, now time.Time) (models.CoParentInvite, error) {
	invite, err := scanInvite(tx.QueryRow(ctx, `
        SELECT `+inviteColumns+`
        FROM coparent_invites i
        WHERE i.token = $1
        FOR UPDATE
    `, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.CoParentInvite{}, ErrNotFound
		}
		return models.CoParentInvite{}, fmt.Errorf("lock invite: %w", err)
	}
	if invite.Status != models.StatusPending {
		return models.CoParentInvite{}, ErrConflict
	}
	if invite.Expired(now) {
		return models.CoParentInvite{}, ErrInviteExpired
	}
	return invite, nil
}

func resolveInvite(ctx context.Context, tx pgx.Tx, token, status string, now time.Time) error {
	if _, err := tx.Exec(ctx, `
        UPDATE coparent_invites
        SET status = $2, responded_at = $3
        WHERE token = $1
    `, token, status, now); err != nil {
		return fmt.Errorf("resolve invite: %w", err)
	}
	return nil
}

func scanInvite(row pgx.Row) (models.CoParentInvite, error) {
	var (
		i           models.CoParentInvite
		respondedAt sql.NullTime
	)
	err := row.Scan(&i.Token, &i.Email, &i.InviteeName, &i.PhoneNumber, &i.CompanionID, &i.InvitedBy, &i.Status, &i.ExpiresAt, &i.CreatedAt, &respondedAt)
	i.RespondedAt = nullTime(respondedAt)
	return i, err
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
