package repositories

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates the attempted write would violate a uniqueness constraint
	// or the record is no longer in a state that allows it.
	ErrConflict = errors.New("record conflict")
	// ErrInviteExpired indicates a co-parent invite passed its expiry before being resolved.
	ErrInviteExpired = errors.New("invite expired")
)

// translatePgError maps constraint violations onto the package sentinels.
func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrConflict
		case "23503":
			return ErrNotFound
		}
	}
	return nil
}
