package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/petlink/backend/internal/auth"
	"github.com/petlink/backend/internal/models"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// harness serves a seeded world through RegisterRoutes: Alice is the primary
// parent of Rex, Bob an accepted co-parent and Carol a stranger.
type harness struct {
	t        *testing.T
	world    *world
	notifier *recordingNotifier
	handler  http.Handler
	tokens   map[string]string
}

func newHarness(t *testing.T, mutate ...func(*Dependencies)) *harness {
	t.Helper()

	w := newWorld()
	w.addUser(models.User{ID: "u-alice", Email: "alice@example.com", FirstName: "Alice", LastName: "Smith"})
	w.addUser(models.User{ID: "u-bob", Email: "bob@example.com", FirstName: "Bob", LastName: "Jones", PhoneNumber: "555-0100"})
	w.addUser(models.User{ID: "u-carol", Email: "carol@example.com", FirstName: "Carol", LastName: "White"})
	w.addCompanion(models.Companion{ID: "c-rex", Name: "Rex", Breed: "Beagle", CreatedAt: testNow})
	w.addLink(models.CompanionLink{
		ID: "l-alice", ParentID: "u-alice", CompanionID: "c-rex",
		Role: models.RolePrimary, Status: models.StatusAccepted,
		Permissions: models.FullPermissions(), CreatedAt: testNow, UpdatedAt: testNow,
	})
	w.addLink(models.CompanionLink{
		ID: "l-bob", ParentID: "u-bob", CompanionID: "c-rex",
		Role: models.RoleCoParent, Status: models.StatusAccepted,
		Permissions: models.CoParentPermissions{Appointments: true}, CreatedAt: testNow, UpdatedAt: testNow,
	})

	manager := auth.NewManager(time.Hour, 24*time.Hour, auth.NewInMemorySessionStore())
	notifier := &recordingNotifier{}
	deps := Dependencies{
		Users:      memoryUsers{w},
		Sessions:   manager,
		Companions: memoryCompanions{w},
		Links:      memoryLinks{w},
		Invites:    memoryInvites{w},
		Notifier:   notifier,
		NowFunc:    func() time.Time { return testNow },
	}
	for _, m := range mutate {
		m(&deps)
	}

	mux := http.NewServeMux()
	RegisterRoutes(mux, deps)

	tokens := make(map[string]string)
	for _, id := range []string{"u-alice", "u-bob", "u-carol"} {
		issued, err := manager.Issue(context.Background(), id)
		if err != nil {
			t.Fatalf("issue tokens for %s: %v", id, err)
		}
		tokens[id] = issued.AccessToken
	}

	return &harness{t: t, world: w, notifier: notifier, handler: mux, tokens: tokens}
}

// do sends a request as userID; an empty userID sends no credentials.
func (h *harness) do(method, path, userID string, body any) *httptest.ResponseRecorder {
	h.t.Helper()

	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			h.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+h.tokens[userID])
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d got %d (body %s)", want, rec.Code, rec.Body.String())
	}
}
