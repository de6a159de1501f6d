package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/petlink/backend/internal/logging"
	"github.com/petlink/backend/internal/middleware"
	"github.com/petlink/backend/internal/repositories"
)

var errForbidden = errors.New("forbidden")

// respondError maps store and authorization failures onto HTTP statuses.
// fallback is the message used for unexpected errors.
func respondError(ctx context.Context, w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, errForbidden):
		respondJSON(ctx, w, http.StatusForbidden, map[string]string{"error": "you do not have access to this companion"})
	case errors.Is(err, repositories.ErrNotFound):
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, repositories.ErrInviteExpired):
		respondJSON(ctx, w, http.StatusGone, map[string]string{"error": "invite has expired"})
	case errors.Is(err, repositories.ErrConflict):
		respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "request conflicts with the current state"})
	default:
		logging.FromContext(ctx).Error(fallback, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": fallback})
	}
}

// callerID returns the authenticated user id, writing a 401 when absent.
func callerID(ctx context.Context, w http.ResponseWriter) (string, bool) {
	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return "", false
	}
	return userID, true
}
