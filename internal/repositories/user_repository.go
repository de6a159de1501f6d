package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/petlink/backend/internal/db"
	"github.com/petlink/backend/internal/models"
)

// UserRepository is the data access contract for parent accounts.
type UserRepository interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
}

const userColumns = `id, email, password_hash, first_name, last_name, phone_number, profile_picture, created_at, updated_at`

// PostgresUserRepository stores parent accounts in the users table.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create inserts user. A taken email surfaces as ErrConflict.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO users (`+userColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `, user.ID, user.Email, user.Password, user.FirstName, user.LastName, user.PhoneNumber, user.ProfilePicture, user.CreatedAt, user.UpdatedAt)
	if errors.Is(translatePgError(err), ErrConflict) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// FindByEmail matches the stored, already lowercased, email.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, "email", email)
}

func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	return r.findOne(ctx, "id", id)
}

func (r *PostgresUserRepository) findOne(ctx context.Context, column, value string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	user, err := scanUser(conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = $1`, value))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("load user by %s: %w", column, err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Email, &user.Password, &user.FirstName, &user.LastName,
		&user.PhoneNumber, &user.ProfilePicture, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}

var _ UserRepository = (*PostgresUserRepository)(nil)
var _ CompanionRepository = (*PostgresCompanionRepository)(nil)
var _ LinkRepository = (*PostgresLinkRepository)(nil)
var _ InviteRepository = (*PostgresInviteRepository)(nil)
