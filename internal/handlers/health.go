package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/petlink/backend/internal/logging"
)

const healthCheckTimeout = 2 * time.Second

// HealthHandler responds with service health information.
type HealthHandler struct {
	DB Pinger
}

// Handle implements GET /healthz. The database is probed when configured.
func (h HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload := map[string]string{"status": "ok"}
	if h.DB == nil {
		respondJSON(ctx, w, http.StatusOK, payload)
		return
	}

	pingCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := h.DB.Ping(pingCtx); err != nil {
		logging.FromContext(ctx).Error("database health check failed", "error", err)
		payload["status"] = "degraded"
		payload["database"] = "unreachable"
		respondJSON(ctx, w, http.StatusServiceUnavailable, payload)
		return
	}

	payload["database"] = "ok"
	respondJSON(ctx, w, http.StatusOK, payload)
}
