package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/petlink/backend/internal/logging"
	"github.com/petlink/backend/internal/models"
	"github.com/petlink/backend/internal/notify"
	"github.com/petlink/backend/internal/repositories"
)

// DefaultInviteTTL is how long an invite stays acceptable when no TTL is configured.
const DefaultInviteTTL = 7 * 24 * time.Hour

// InviteHandler serves the co-parent invite endpoints.
type InviteHandler struct {
	Users      UserStore
	Companions CompanionStore
	Links      LinkStore
	Invites    InviteStore
	Notifier   InviteNotifier
	Limiter    RateLimiter
	TTL        time.Duration
	NowFunc    func() time.Time
}

// Send handles POST /v1/coparent-invite/sent.
func (h InviteHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "invite") {
		logger.Warn("invite rate limited", "client", clientIP(r))
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		return
	}

	if h.Users == nil || h.Companions == nil || h.Links == nil || h.Invites == nil {
		logger.Error("invite dependencies unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "invite services unavailable"})
		return
	}

	userID, ok := callerID(ctx, w)
	if !ok {
		return
	}

	var req sendInviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid invite payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.InviteeName = strings.TrimSpace(req.InviteeName)
	req.CompanionID = strings.TrimSpace(req.CompanionID)
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)

	if req.Email == "" || req.InviteeName == "" || req.CompanionID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "email, inviteeName and companionId are required"})
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		logger.Warn("invite invalid email", "email", req.Email, "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid email address"})
		return
	}

	if err := requirePrimary(ctx, h.Links, req.CompanionID, userID); err != nil {
		respondError(ctx, w, err, "failed to send invite")
		return
	}

	inviter, err := h.Users.FindByID(ctx, userID)
	if err != nil {
		respondError(ctx, w, err, "failed to send invite")
		return
	}
	if strings.EqualFold(inviter.Email, req.Email) {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "you cannot invite yourself"})
		return
	}

	if invitee, err := h.Users.FindByEmail(ctx, req.Email); err == nil {
		if _, err := h.Links.Find(ctx, req.CompanionID, invitee.ID); err == nil {
			respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "user is already a parent of this companion"})
			return
		} else if !errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, err, "failed to send invite")
			return
		}
	} else if !errors.Is(err, repositories.ErrNotFound) {
		respondError(ctx, w, err, "failed to send invite")
		return
	}

	companion, err := h.Companions.FindByID(ctx, req.CompanionID)
	if err != nil {
		respondError(ctx, w, err, "failed to send invite")
		return
	}

	now := h.now()
	invite := models.CoParentInvite{
		Token:       uuid.NewString(),
		Email:       req.Email,
		InviteeName: req.InviteeName,
		PhoneNumber: req.PhoneNumber,
		CompanionID: req.CompanionID,
		InvitedBy:   userID,
		Status:      models.StatusPending,
		ExpiresAt:   now.Add(h.ttl()),
		CreatedAt:   now,
	}
	if err := h.Invites.Create(ctx, invite); err != nil {
		respondError(ctx, w, err, "failed to send invite")
		return
	}

	if h.Notifier != nil {
		email := notify.InviteEmail{
			To:            invite.Email,
			InviteeName:   invite.InviteeName,
			InviterName:   strings.TrimSpace(inviter.FirstName + " " + inviter.LastName),
			CompanionName: companion.Name,
			Token:         invite.Token,
			ExpiresAt:     invite.ExpiresAt,
		}
		if err := h.Notifier.Enqueue(ctx, email); err != nil {
			logger.Warn("invite email not queued", "error", err, "companionId", invite.CompanionID)
		}
	}

	logger.Info("co-parent invite sent", "companionId", invite.CompanionID)
	respondJSON(ctx, w, http.StatusCreated, newInviteView(invite))
}

// Pending handles GET /v1/coparent-invite/pending.
func (h InviteHandler) Pending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Users == nil || h.Invites == nil {
		logger.Error("invite dependencies unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "invite services unavailable"})
		return
	}

	userID, ok := callerID(ctx, w)
	if !ok {
		return
	}

	user, err := h.Users.FindByID(ctx, userID)
	if err != nil {
		respondError(ctx, w, err, "failed to load pending invites")
		return
	}

	details, err := h.Invites.ListPendingForEmail(ctx, user.Email, h.now())
	if err != nil {
		respondError(ctx, w, err, "failed to load pending invites")
		return
	}

	views := make([]inviteView, 0, len(details))
	for _, d := range details {
		views = append(views, newInviteDetailView(d))
	}
	respondJSON(ctx, w, http.StatusOK, pendingInvitesResponse{PendingInvites: views})
}

// Accept handles POST /v1/coparent-invite/accept. The accepting parent joins
// the companion as an accepted co-parent with no permissions granted.
func (h InviteHandler) Accept(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	invite, userID, ok := h.loadOwnInvite(w, r)
	if !ok {
		return
	}

	now := h.now()
	link := models.CompanionLink{
		ID:          uuid.NewString(),
		ParentID:    userID,
		CompanionID: invite.CompanionID,
		Role:        models.RoleCoParent,
		Status:      models.StatusAccepted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.Invites.Accept(ctx, invite.Token, link, now); err != nil {
		respondError(ctx, w, err, "failed to accept invite")
		return
	}

	logger.Info("co-parent invite accepted", "companionId", invite.CompanionID)
	respondJSON(ctx, w, http.StatusOK, inviteResolution{Token: invite.Token, Status: models.StatusAccepted})
}

// Decline handles POST /v1/coparent-invite/decline.
func (h InviteHandler) Decline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	invite, _, ok := h.loadOwnInvite(w, r)
	if !ok {
		return
	}

	if err := h.Invites.Decline(ctx, invite.Token, h.now()); err != nil {
		respondError(ctx, w, err, "failed to decline invite")
		return
	}

	logger.Info("co-parent invite declined", "companionId", invite.CompanionID)
	respondJSON(ctx, w, http.StatusOK, inviteResolution{Token: invite.Token, Status: models.StatusDeclined})
}

// loadOwnInvite decodes the invite token and checks it is addressed to the caller.
func (h InviteHandler) loadOwnInvite(w http.ResponseWriter, r *http.Request) (models.CoParentInvite, string, bool) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Users == nil || h.Invites == nil {
		logger.Error("invite dependencies unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "invite services unavailable"})
		return models.CoParentInvite{}, "", false
	}

	userID, ok := callerID(ctx, w)
	if !ok {
		return models.CoParentInvite{}, "", false
	}

	var req inviteTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid invite token payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return models.CoParentInvite{}, "", false
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "token is required"})
		return models.CoParentInvite{}, "", false
	}

	user, err := h.Users.FindByID(ctx, userID)
	if err != nil {
		respondError(ctx, w, err, "failed to load invite")
		return models.CoParentInvite{}, "", false
	}

	invite, err := h.Invites.FindByToken(ctx, req.Token)
	if err != nil {
		respondError(ctx, w, err, "failed to load invite")
		return models.CoParentInvite{}, "", false
	}
	if !strings.EqualFold(invite.Email, user.Email) {
		logger.Warn("invite addressed to another account", "companionId", invite.CompanionID)
		respondJSON(ctx, w, http.StatusForbidden, map[string]string{"error": "invite is addressed to another account"})
		return models.CoParentInvite{}, "", false
	}
	return invite, userID, true
}

func (h InviteHandler) ttl() time.Duration {
	if h.TTL > 0 {
		return h.TTL
	}
	return DefaultInviteTTL
}

func (h InviteHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

type sendInviteRequest struct {
	InviteeName string `json:"inviteeName"`
	Email       string `json:"email"`
	CompanionID string `json:"companionId"`
	PhoneNumber string `json:"phoneNumber"`
}

type inviteTokenRequest struct {
	Token string `json:"token"`
}

type inviteResolution struct {
	Token  string `json:"token"`
	Status string `json:"status"`
}

type pendingInvitesResponse struct {
	PendingInvites []inviteView `json:"pendingInvites"`
}
