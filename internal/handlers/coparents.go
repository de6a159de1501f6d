package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/petlink/backend/internal/logging"
	"github.com/petlink/backend/internal/models"
	"github.com/petlink/backend/internal/repositories"
)

// CoParentHandler serves the parent-companion link endpoints.
type CoParentHandler struct {
	Links   LinkStore
	Invites InviteStore
	NowFunc func() time.Time
}

// ListByCompanion handles GET /v1/parent-companion/companion/{companionId}.
// Every accepted parent of the companion may list its links; unexpired
// pending invites are appended as pending records.
func (h CoParentHandler) ListByCompanion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Links == nil {
		logger.Error("link store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "co-parent services unavailable"})
		return
	}

	userID, ok := callerID(ctx, w)
	if !ok {
		return
	}

	companionID := strings.TrimSpace(r.PathValue("companionId"))
	if _, err := requireAccess(ctx, h.Links, companionID, userID); err != nil {
		respondError(ctx, w, err, "failed to load co-parents")
		return
	}

	details, err := h.Links.ListByCompanion(ctx, companionID)
	if err != nil {
		respondError(ctx, w, err, "failed to load co-parents")
		return
	}

	views := make([]linkView, 0, len(details))
	for _, d := range details {
		views = append(views, newLinkDetailView(d))
	}

	if h.Invites != nil {
		invites, err := h.Invites.ListPendingForCompanion(ctx, companionID, h.now())
		if err != nil {
			respondError(ctx, w, err, "failed to load co-parents")
			return
		}
		for _, invite := range invites {
			views = append(views, newPendingLinkView(invite))
		}
	}

	respondJSON(ctx, w, http.StatusOK, linksResponse{Links: views})
}

// ListByParent handles GET /v1/parent-companion/parent/{parentId}. Parents may
// only list their own links.
func (h CoParentHandler) ListByParent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Links == nil {
		logger.Error("link store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "co-parent services unavailable"})
		return
	}

	userID, ok := callerID(ctx, w)
	if !ok {
		return
	}

	parentID := strings.TrimSpace(r.PathValue("parentId"))
	if parentID != userID {
		logger.Warn("parent link listing denied", "parentId", parentID)
		respondError(ctx, w, errForbidden, "failed to load parent links")
		return
	}

	details, err := h.Links.ListByParent(ctx, parentID)
	if err != nil {
		respondError(ctx, w, err, "failed to load parent links")
		return
	}

	views := make([]linkView, 0, len(details))
	for _, d := range details {
		views = append(views, newLinkDetailView(d))
	}
	respondJSON(ctx, w, http.StatusOK, linksResponse{Links: views})
}

// UpdatePermissions handles PATCH
// /v1/parent-companion/companion/{companionId}/{coParentId}/permissions.
func (h CoParentHandler) UpdatePermissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Links == nil {
		logger.Error("link store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "co-parent services unavailable"})
		return
	}

	userID, ok := callerID(ctx, w)
	if !ok {
		return
	}

	var perms models.CoParentPermissions
	if err := json.NewDecoder(r.Body).Decode(&perms); err != nil {
		logger.Warn("invalid permissions payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	companionID := strings.TrimSpace(r.PathValue("companionId"))
	if err := requirePrimary(ctx, h.Links, companionID, userID); err != nil {
		respondError(ctx, w, err, "failed to update permissions")
		return
	}

	target, err := h.resolveLink(ctx, companionID, r.PathValue("coParentId"))
	if err != nil {
		respondError(ctx, w, err, "failed to update permissions")
		return
	}
	if models.IsPrimaryRole(target.Role) {
		logger.Warn("permission update targets primary parent", "companionId", companionID, "parentId", target.ParentID)
		respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "primary parent permissions cannot be changed"})
		return
	}

	updated, err := h.Links.UpdatePermissions(ctx, companionID, target.ParentID, perms, h.now())
	if err != nil {
		respondError(ctx, w, err, "failed to update permissions")
		return
	}

	logger.Info("co-parent permissions updated", "companionId", companionID, "parentId", target.ParentID)
	respondJSON(ctx, w, http.StatusOK, newLinkView(updated))
}

// Promote handles POST
// /v1/parent-companion/companion/{companionId}/{coParentId}/promote.
func (h CoParentHandler) Promote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Links == nil {
		logger.Error("link store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "co-parent services unavailable"})
		return
	}

	userID, ok := callerID(ctx, w)
	if !ok {
		return
	}

	companionID := strings.TrimSpace(r.PathValue("companionId"))
	if err := requirePrimary(ctx, h.Links, companionID, userID); err != nil {
		respondError(ctx, w, err, "failed to promote co-parent")
		return
	}

	target, err := h.resolveLink(ctx, companionID, r.PathValue("coParentId"))
	if err != nil {
		respondError(ctx, w, err, "failed to promote co-parent")
		return
	}
	if models.IsPrimaryRole(target.Role) {
		respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "parent is already primary"})
		return
	}

	if err := h.Links.PromoteToPrimary(ctx, companionID, target.ParentID, h.now()); err != nil {
		respondError(ctx, w, err, "failed to promote co-parent")
		return
	}

	logger.Info("co-parent promoted", "companionId", companionID, "parentId", target.ParentID)
	respondJSON(ctx, w, http.StatusOK, map[string]bool{"success": true})
}

// Remove handles DELETE /v1/parent-companion/companion/{companionId}/{coParentId}.
// Primary parents may remove any co-parent; co-parents may remove themselves.
func (h CoParentHandler) Remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Links == nil {
		logger.Error("link store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "co-parent services unavailable"})
		return
	}

	userID, ok := callerID(ctx, w)
	if !ok {
		return
	}

	companionID := strings.TrimSpace(r.PathValue("companionId"))
	caller, err := requireAccess(ctx, h.Links, companionID, userID)
	if err != nil {
		respondError(ctx, w, err, "failed to remove co-parent")
		return
	}

	target, err := h.resolveLink(ctx, companionID, r.PathValue("coParentId"))
	if err != nil {
		respondError(ctx, w, err, "failed to remove co-parent")
		return
	}

	if !models.IsPrimaryRole(caller.Role) && target.ParentID != userID {
		respondError(ctx, w, errForbidden, "failed to remove co-parent")
		return
	}
	if models.IsPrimaryRole(target.Role) {
		respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "primary parent cannot be removed"})
		return
	}

	if err := h.Links.Delete(ctx, companionID, target.ParentID); err != nil {
		respondError(ctx, w, err, "failed to remove co-parent")
		return
	}

	logger.Info("co-parent removed", "companionId", companionID, "parentId", target.ParentID)
	respondJSON(ctx, w, http.StatusOK, map[string]bool{"success": true})
}

// requireAccess returns the caller's accepted link to the companion.
func requireAccess(ctx context.Context, links LinkStore, companionID, userID string) (models.CompanionLink, error) {
	if companionID == "" {
		return models.CompanionLink{}, repositories.ErrNotFound
	}
	link, err := links.Find(ctx, companionID, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.CompanionLink{}, errForbidden
		}
		return models.CompanionLink{}, err
	}
	if link.Status != models.StatusAccepted {
		return models.CompanionLink{}, errForbidden
	}
	return link, nil
}

func requirePrimary(ctx context.Context, links LinkStore, companionID, userID string) error {
	link, err := requireAccess(ctx, links, companionID, userID)
	if err != nil {
		return err
	}
	if !models.IsPrimaryRole(link.Role) {
		return errForbidden
	}
	return nil
}

// resolveLink accepts either a parent id or a link id.
func (h CoParentHandler) resolveLink(ctx context.Context, companionID, coParentID string) (models.CompanionLink, error) {
	coParentID = strings.TrimSpace(coParentID)
	if coParentID == "" {
		return models.CompanionLink{}, repositories.ErrNotFound
	}

	link, err := h.Links.Find(ctx, companionID, coParentID)
	if err == nil {
		return link, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return models.CompanionLink{}, err
	}

	details, err := h.Links.ListByCompanion(ctx, companionID)
	if err != nil {
		return models.CompanionLink{}, err
	}
	for _, d := range details {
		if d.Link.ID == coParentID {
			return d.Link, nil
		}
	}
	return models.CompanionLink{}, repositories.ErrNotFound
}

func (h CoParentHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

type linksResponse struct {
	Links []linkView `json:"links"`
}
