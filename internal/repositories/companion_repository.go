package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/petlink/backend/internal/db"
	"github.com/petlink/backend/internal/models"
)

// CompanionRepository defines data access for companions.
type CompanionRepository interface {
	// Create stores the companion together with its owner's primary link.
	Create(ctx context.Context, companion models.Companion, owner models.CompanionLink) error
	FindByID(ctx context.Context, id string) (models.Companion, error)
}

// PostgresCompanionRepository provides PostgreSQL-backed persistence for companions.
type PostgresCompanionRepository struct {
	pool db.Pool
}

// NewPostgresCompanionRepository constructs a companion repository backed by PostgreSQL.
func NewPostgresCompanionRepository(pool db.Pool) *PostgresCompanionRepository {
	return &PostgresCompanionRepository{pool: pool}
}

// Create inserts the companion and the owner link in one transaction.
func (r *PostgresCompanionRepository) Create(ctx context.Context, companion models.Companion, owner models.CompanionLink) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin companion transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
        INSERT INTO companions (id, name, breed, photo_url, created_at)
        VALUES ($1, $2, $3, $4, $5)
    `, companion.ID, companion.Name, companion.Breed, companion.PhotoURL, companion.CreatedAt); err != nil {
		if mapped := translatePgError(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert companion: %w", err)
	}

	if err := insertLink(ctx, tx, owner); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit companion: %w", err)
	}
	return nil
}

// FindByID fetches a companion by id.
func (r *PostgresCompanionRepository) FindByID(ctx context.Context, id string) (models.Companion, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Companion{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var companion models.Companion
	err = conn.QueryRow(ctx, `
        SELECT id, name, breed, photo_url, created_at
        FROM companions
        WHERE id = $1
    `, id).Scan(&companion.ID, &companion.Name, &companion.Breed, &companion.PhotoURL, &companion.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Companion{}, ErrNotFound
		}
		return models.Companion{}, fmt.Errorf("select companion: %w", err)
	}
	return companion, nil
}
