package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/petlink/backend/internal/logging"
	"github.com/petlink/backend/internal/models"
)

// CompanionHandler serves the caller's companion directory.
type CompanionHandler struct {
	Companions CompanionStore
	Links      LinkStore
	NowFunc    func() time.Time
}

// List handles GET /v1/companions. Only accepted links are listed.
func (h CompanionHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Links == nil {
		logger.Error("link store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "companion services unavailable"})
		return
	}

	userID, ok := callerID(ctx, w)
	if !ok {
		return
	}

	details, err := h.Links.ListByParent(ctx, userID)
	if err != nil {
		respondError(ctx, w, err, "failed to load companions")
		return
	}

	entries := make([]companionEntry, 0, len(details))
	for _, d := range details {
		if d.Link.Status != models.StatusAccepted {
			continue
		}
		entries = append(entries, newCompanionEntry(d.Companion, d.Link))
	}
	respondJSON(ctx, w, http.StatusOK, companionsResponse{Companions: entries})
}

// Create handles POST /v1/companions. The caller becomes the primary parent.
func (h CompanionHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Companions == nil {
		logger.Error("companion store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "companion services unavailable"})
		return
	}

	userID, ok := callerID(ctx, w)
	if !ok {
		return
	}

	var req createCompanionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid companion payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	now := h.now()
	companion := models.Companion{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Breed:     strings.TrimSpace(req.Breed),
		PhotoURL:  strings.TrimSpace(req.PhotoURL),
		CreatedAt: now,
	}
	owner := models.CompanionLink{
		ID:          uuid.NewString(),
		ParentID:    userID,
		CompanionID: companion.ID,
		Role:        models.RolePrimary,
		Status:      models.StatusAccepted,
		Permissions: models.FullPermissions(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.Companions.Create(ctx, companion, owner); err != nil {
		respondError(ctx, w, err, "failed to create companion")
		return
	}

	logger.Info("companion created", "companionId", companion.ID)
	respondJSON(ctx, w, http.StatusCreated, newCompanionEntry(companion, owner))
}

func (h CompanionHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

type createCompanionRequest struct {
	Name     string `json:"name"`
	Breed    string `json:"breed"`
	PhotoURL string `json:"photoUrl"`
}

type companionEntry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Breed    string `json:"breed,omitempty"`
	PhotoURL string `json:"photoUrl,omitempty"`
	Role     string `json:"role"`
	Status   string `json:"status"`
}

func newCompanionEntry(c models.Companion, l models.CompanionLink) companionEntry {
	return companionEntry{ID: c.ID, Name: c.Name, Breed: c.Breed, PhotoURL: c.PhotoURL, Role: l.Role, Status: l.Status}
}

type companionsResponse struct {
	Companions []companionEntry `json:"companions"`
}
