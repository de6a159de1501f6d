package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/petlink/backend/internal/logging"
)

// Authenticator resolves a bearer access token to a user id.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (string, error)
}

type userIDKey struct{}

// WithUserID stores the authenticated user id on the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext returns the authenticated user id, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey{}).(string)
	return userID, ok && userID != ""
}

// RequireBearer rejects requests without a valid "Authorization: Bearer" header
// and exposes the caller's user id to downstream handlers.
func RequireBearer(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := logging.FromContext(ctx)

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				logger.Warn("request missing bearer token")
				unauthorized(w, "missing bearer token")
				return
			}

			if authn == nil {
				logger.Error("authenticator unavailable")
				unauthorized(w, "authentication unavailable")
				return
			}

			userID, err := authn.Authenticate(ctx, token)
			if err != nil {
				logger.Warn("bearer authentication failed", "error", err)
				unauthorized(w, "invalid or expired access token")
				return
			}

			ctx = WithUserID(ctx, userID)
			ctx = logging.WithLogger(ctx, logger.With(slog.String("user_id", userID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
