package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/petlink/backend/internal/db"
	"github.com/petlink/backend/internal/models"
)

// LinkRepository defines data access for parent-companion links.
type LinkRepository interface {
	Create(ctx context.Context, link models.CompanionLink) error
	Find(ctx context.Context, companionID, parentID string) (models.CompanionLink, error)
	ListByCompanion(ctx context.Context, companionID string) ([]models.LinkDetail, error)
	ListByParent(ctx context.Context, parentID string) ([]models.LinkDetail, error)
	UpdatePermissions(ctx context.Context, companionID, parentID string, perms models.CoParentPermissions, at time.Time) (models.CompanionLink, error)
	// PromoteToPrimary makes parentID the companion's only primary parent.
	PromoteToPrimary(ctx context.Context, companionID, parentID string, at time.Time) error
	Delete(ctx context.Context, companionID, parentID string) error
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const linkColumns = `l.id, l.parent_id, l.companion_id, l.role, l.status, l.permissions, l.created_at, l.updated_at`

const linkDetailQuery = `
        SELECT ` + linkColumns + `,
               u.email, u.first_name, u.last_name, u.phone_number, u.profile_picture,
               c.name, c.breed, c.photo_url
        FROM companion_links l
        JOIN users u ON u.id = l.parent_id
        JOIN companions c ON c.id = l.companion_id
`

// PostgresLinkRepository provides PostgreSQL-backed persistence for companion links.
type PostgresLinkRepository struct {
	pool db.Pool
}

// NewPostgresLinkRepository constructs a link repository backed by PostgreSQL.
func NewPostgresLinkRepository(pool db.Pool) *PostgresLinkRepository {
	return &PostgresLinkRepository{pool: pool}
}

// Create inserts a new link.
func (r *PostgresLinkRepository) Create(ctx context.Context, link models.CompanionLink) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	return insertLink(ctx, conn, link)
}

// Find loads the link between a companion and a parent.
func (r *PostgresLinkRepository) Find(ctx context.Context, companionID, parentID string) (models.CompanionLink, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.CompanionLink{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	link, err := scanLink(conn.QueryRow(ctx, `
        SELECT `+linkColumns+`
        FROM companion_links l
        WHERE l.companion_id = $1 AND l.parent_id = $2
    `, companionID, parentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.CompanionLink{}, ErrNotFound
		}
		return models.CompanionLink{}, fmt.Errorf("select link: %w", err)
	}
	return link, nil
}

// ListByCompanion returns every link of a companion, primary parents first.
func (r *PostgresLinkRepository) ListByCompanion(ctx context.Context, companionID string) ([]models.LinkDetail, error) {
	return r.listDetails(ctx, linkDetailQuery+`
        WHERE l.companion_id = $1
        ORDER BY (l.role = 'PRIMARY') DESC, l.created_at ASC
    `, companionID)
}

// ListByParent returns every link a parent holds.
func (r *PostgresLinkRepository) ListByParent(ctx context.Context, parentID string) ([]models.LinkDetail, error) {
	return r.listDetails(ctx, linkDetailQuery+`
        WHERE l.parent_id = $1
        ORDER BY l.created_at ASC
    `, parentID)
}

func (r *PostgresLinkRepository) listDetails(ctx context.Context, query string, arg string) ([]models.LinkDetail, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	details := []models.LinkDetail{}
	for rows.Next() {
		var d models.LinkDetail
		l := &d.Link
		if err := rows.Scan(&l.ID, &l.ParentID, &l.CompanionID, &l.Role, &l.Status, &l.Permissions, &l.CreatedAt, &l.UpdatedAt,
			&d.Parent.Email, &d.Parent.FirstName, &d.Parent.LastName, &d.Parent.PhoneNumber, &d.Parent.ProfilePicture,
			&d.Companion.Name, &d.Companion.Breed, &d.Companion.PhotoURL); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		d.Parent.ID = l.ParentID
		d.Companion.ID = l.CompanionID
		details = append(details, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}
	return details, nil
}

// UpdatePermissions replaces a link's permissions and returns the stored link.
func (r *PostgresLinkRepository) UpdatePermissions(ctx context.Context, companionID, parentID string, perms models.CoParentPermissions, at time.Time) (models.CompanionLink, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.CompanionLink{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	link, err := scanLink(conn.QueryRow(ctx, `
        UPDATE companion_links AS l
        SET permissions = $3, updated_at = $4
        WHERE l.companion_id = $1 AND l.parent_id = $2
        RETURNING `+linkColumns,
		companionID, parentID, perms, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.CompanionLink{}, ErrNotFound
		}
		return models.CompanionLink{}, fmt.Errorf("update link permissions: %w", err)
	}
	return link, nil
}

// PromoteToPrimary demotes the current primary parents to co-parents and
// promotes parentID in a single transaction. Only accepted links can be promoted.
func (r *PostgresLinkRepository) PromoteToPrimary(ctx context.Context, companionID, parentID string, at time.Time) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin promote transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status string
	err = tx.QueryRow(ctx, `
        SELECT status
        FROM companion_links
        WHERE companion_id = $1 AND parent_id = $2
        FOR UPDATE
    `, companionID, parentID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("select promoted link: %w", err)
	}
	if status != models.StatusAccepted {
		return ErrConflict
	}

	if _, err := tx.Exec(ctx, `
        UPDATE companion_links
        SET role = $3, updated_at = $4
        WHERE companion_id = $1 AND parent_id <> $2 AND role = $5
    `, companionID, parentID, models.RoleCoParent, at, models.RolePrimary); err != nil {
		return fmt.Errorf("demote primary parents: %w", err)
	}

	if _, err := tx.Exec(ctx, `
        UPDATE companion_links
        SET role = $3, permissions = $4, updated_at = $5
        WHERE companion_id = $1 AND parent_id = $2
    `, companionID, parentID, models.RolePrimary, models.FullPermissions(), at); err != nil {
		return fmt.Errorf("promote link: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit promotion: %w", err)
	}
	return nil
}

// Delete removes the link between a companion and a parent.
func (r *PostgresLinkRepository) Delete(ctx context.Context, companionID, parentID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM companion_links
        WHERE companion_id = $1 AND parent_id = $2
    `, companionID, parentID)
	if err != nil {
		return fmt.Errorf("delete link: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func insertLink(ctx context.Context, exec execer, link models.CompanionLink) error {
	_, err := exec.Exec(ctx, `
        INSERT INTO companion_links (id, parent_id, companion_id, role, status, permissions, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, link.ID, link.ParentID, link.CompanionID, link.Role, link.Status, link.Permissions, link.CreatedAt, link.UpdatedAt)
	if err != nil {
		if mapped := translatePgError(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert link: %w", err)
	}
	return nil
}

func scanLink(row pgx.Row) (models.CompanionLink, error) {
	var l models.CompanionLink
	err := row.Scan(&l.ID, &l.ParentID, &l.CompanionID, &l.Role, &l.Status, &l.Permissions, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}
