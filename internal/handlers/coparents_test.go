package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/petlink/backend/internal/coparent"
	"github.com/petlink/backend/internal/models"
)

const rexLinks = "/v1/parent-companion/companion/c-rex"

func TestCoParentListByCompanion(t *testing.T) {
	h := newHarness(t)
	h.world.addInvite(models.CoParentInvite{
		Token: "tok-dave", Email: "dave@example.com", InviteeName: "Dave", CompanionID: "c-rex",
		InvitedBy: "u-alice", Status: models.StatusPending, ExpiresAt: testNow.Add(time.Hour), CreatedAt: testNow,
	})
	h.world.addInvite(models.CoParentInvite{
		Token: "tok-old", Email: "old@example.com", CompanionID: "c-rex",
		InvitedBy: "u-alice", Status: models.StatusPending, ExpiresAt: testNow.Add(-time.Hour), CreatedAt: testNow,
	})

	rec := h.do(http.MethodGet, rexLinks, "u-bob", nil)
	expectStatus(t, rec, http.StatusOK)

	resp := decodeBody[linksResponse](t, rec)
	if len(resp.Links) != 3 {
		t.Fatalf("expected 2 links and 1 pending invite got %d", len(resp.Links))
	}
	if resp.Links[0].Role != models.RolePrimary || resp.Links[0].Parent == nil || resp.Links[0].Parent.Email != "alice@example.com" {
		t.Fatalf("expected primary link first with parent attached got %+v", resp.Links[0])
	}
	if resp.Links[1].Companion == nil || resp.Links[1].Companion.Name != "Rex" {
		t.Fatalf("expected companion attached got %+v", resp.Links[1])
	}
	pending := resp.Links[2]
	if pending.ID != "tok-dave" || pending.Status != models.StatusPending || pending.Email != "dave@example.com" {
		t.Fatalf("unexpected pending record %+v", pending)
	}

	rec = h.do(http.MethodGet, rexLinks, "u-carol", nil)
	expectStatus(t, rec, http.StatusForbidden)

	rec = h.do(http.MethodGet, rexLinks, "", nil)
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestCoParentListByCompanionRejectsPendingLink(t *testing.T) {
	h := newHarness(t)
	h.world.addLink(models.CompanionLink{ID: "l-carol", ParentID: "u-carol", CompanionID: "c-rex", Role: models.RoleCoParent, Status: models.StatusPending})

	rec := h.do(http.MethodGet, rexLinks, "u-carol", nil)
	expectStatus(t, rec, http.StatusForbidden)
}

func TestCoParentListByParent(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/v1/parent-companion/parent/u-bob", "u-bob", nil)
	expectStatus(t, rec, http.StatusOK)
	resp := decodeBody[linksResponse](t, rec)
	if len(resp.Links) != 1 || resp.Links[0].CompanionID != "c-rex" {
		t.Fatalf("expected bob's single link got %+v", resp.Links)
	}
	if !resp.Links[0].Permissions.Appointments || resp.Links[0].Permissions.Documents {
		t.Fatalf("unexpected permissions %+v", resp.Links[0].Permissions)
	}

	rec = h.do(http.MethodGet, "/v1/parent-companion/parent/u-alice", "u-bob", nil)
	expectStatus(t, rec, http.StatusForbidden)
}

func TestCoParentUpdatePermissions(t *testing.T) {
	perms := models.CoParentPermissions{Documents: true, Tasks: true}

	tests := []struct {
		name   string
		caller string
		target string
		body   any
		status int
	}{
		{name: "by parent id", caller: "u-alice", target: "u-bob", body: perms, status: http.StatusOK},
		{name: "by link id", caller: "u-alice", target: "l-bob", body: perms, status: http.StatusOK},
		{name: "co-parent caller", caller: "u-bob", target: "u-bob", body: perms, status: http.StatusForbidden},
		{name: "primary target", caller: "u-alice", target: "u-alice", body: perms, status: http.StatusConflict},
		{name: "unknown target", caller: "u-alice", target: "u-nobody", body: perms, status: http.StatusNotFound},
		{name: "invalid body", caller: "u-alice", target: "u-bob", body: "{", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			rec := h.do(http.MethodPatch, rexLinks+"/"+tt.target+"/permissions", tt.caller, tt.body)
			expectStatus(t, rec, tt.status)
			if tt.status != http.StatusOK {
				return
			}

			resp := decodeBody[linkView](t, rec)
			if resp.ParentID != "u-bob" || resp.Permissions != perms {
				t.Fatalf("unexpected echo %+v", resp)
			}
			stored, _ := h.world.link("c-rex", "u-bob")
			if stored.Permissions != perms {
				t.Fatalf("expected stored permissions %+v got %+v", perms, stored.Permissions)
			}
		})
	}
}

func TestCoParentPromote(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, rexLinks+"/u-bob/promote", "u-bob", struct{}{})
	expectStatus(t, rec, http.StatusForbidden)

	rec = h.do(http.MethodPost, rexLinks+"/u-bob/promote", "u-alice", struct{}{})
	expectStatus(t, rec, http.StatusOK)
	if resp := decodeBody[map[string]bool](t, rec); !resp["success"] {
		t.Fatalf("expected success got %+v", resp)
	}

	bob, _ := h.world.link("c-rex", "u-bob")
	alice, _ := h.world.link("c-rex", "u-alice")
	if bob.Role != models.RolePrimary || bob.Permissions != models.FullPermissions() {
		t.Fatalf("expected bob promoted with full permissions got %+v", bob)
	}
	if alice.Role != models.RoleCoParent {
		t.Fatalf("expected alice demoted got %s", alice.Role)
	}

	rec = h.do(http.MethodPost, rexLinks+"/u-bob/promote", "u-bob", struct{}{})
	expectStatus(t, rec, http.StatusConflict)
}

func TestCoParentRemove(t *testing.T) {
	t.Run("primary cannot be removed", func(t *testing.T) {
		h := newHarness(t)
		rec := h.do(http.MethodDelete, rexLinks+"/u-alice", "u-alice", nil)
		expectStatus(t, rec, http.StatusConflict)
	})

	t.Run("co-parent cannot remove others", func(t *testing.T) {
		h := newHarness(t)
		rec := h.do(http.MethodDelete, rexLinks+"/u-alice", "u-bob", nil)
		expectStatus(t, rec, http.StatusForbidden)
	})

	t.Run("co-parent leaves", func(t *testing.T) {
		h := newHarness(t)
		rec := h.do(http.MethodDelete, rexLinks+"/u-bob", "u-bob", nil)
		expectStatus(t, rec, http.StatusOK)
		if _, ok := h.world.link("c-rex", "u-bob"); ok {
			t.Fatal("expected bob's link to be removed")
		}
	})

	t.Run("primary removes co-parent", func(t *testing.T) {
		h := newHarness(t)
		rec := h.do(http.MethodDelete, rexLinks+"/l-bob", "u-alice", nil)
		expectStatus(t, rec, http.StatusOK)
		if resp := decodeBody[map[string]bool](t, rec); !resp["success"] {
			t.Fatalf("expected success got %+v", resp)
		}
		if _, ok := h.world.link("c-rex", "u-bob"); ok {
			t.Fatal("expected bob's link to be removed")
		}
	})

	t.Run("stranger", func(t *testing.T) {
		h := newHarness(t)
		rec := h.do(http.MethodDelete, rexLinks+"/u-bob", "u-carol", nil)
		expectStatus(t, rec, http.StatusForbidden)
	})
}

func TestCoParentClientRoundTrip(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.handler)
	defer srv.Close()

	client := coparent.NewClient(srv.URL, srv.Client())
	ctx := context.Background()

	raw, err := client.ListByCompanion(ctx, "c-rex", h.tokens["u-alice"])
	if err != nil {
		t.Fatalf("list by companion: %v", err)
	}
	if len(raw) != 2 {
		t.Fatalf("expected 2 raw links got %d", len(raw))
	}

	bob := coparent.NormalizeCoParent(raw[1], nil)
	if bob.ParentID != "u-bob" || bob.Email != "bob@example.com" || bob.FirstName != "Bob" || bob.Status != models.StatusAccepted {
		t.Fatalf("unexpected normalized co-parent %+v", bob)
	}
	if len(bob.Companions) != 1 || bob.Companions[0].CompanionName != "Rex" {
		t.Fatalf("expected companion context from nested object got %+v", bob.Companions)
	}

	_, err = client.ListByCompanion(ctx, "c-rex", h.tokens["u-carol"])
	apiErr, ok := err.(*coparent.APIError)
	if !ok || apiErr.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 api error got %v", err)
	}

	promoted, err := client.PromoteToPrimary(ctx, "c-rex", "u-bob", h.tokens["u-alice"])
	if err != nil || !promoted {
		t.Fatalf("expected promotion to succeed got %v %v", promoted, err)
	}
}
