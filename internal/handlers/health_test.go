package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthHandlerHandle(t *testing.T) {
	tests := []struct {
		name     string
		handler  HealthHandler
		status   int
		database string
	}{
		{name: "no database", handler: HealthHandler{}, status: http.StatusOK},
		{name: "database ok", handler: HealthHandler{DB: stubPinger{}}, status: http.StatusOK, database: "ok"},
		{name: "database down", handler: HealthHandler{DB: stubPinger{err: errPingFailed}}, status: http.StatusServiceUnavailable, database: "unreachable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			rec := httptest.NewRecorder()

			tt.handler.Handle(rec, req)

			expectStatus(t, rec, tt.status)
			if got := rec.Header().Get("Content-Type"); got != "application/json" {
				t.Fatalf("expected json content type got %s", got)
			}
			body := decodeBody[map[string]string](t, rec)
			if body["database"] != tt.database {
				t.Fatalf("expected database %q got %q", tt.database, body["database"])
			}
		})
	}
}

func TestHealthRouteRejectsOtherMethods(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/healthz", "", nil)
	expectStatus(t, rec, http.StatusMethodNotAllowed)
}
