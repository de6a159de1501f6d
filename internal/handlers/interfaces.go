package handlers

import (
	"context"
	"time"

	"github.com/petlink/backend/internal/models"
	"github.com/petlink/backend/internal/notify"
)

// UserStore captures the persistence operations required by the auth handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
}

// SessionManager issues, refreshes and validates authentication tokens for users.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Authenticate(ctx context.Context, accessToken string) (string, error)
	Revoke(ctx context.Context, refreshToken string)
}

// CompanionStore persists companions.
type CompanionStore interface {
	Create(ctx context.Context, companion models.Companion, owner models.CompanionLink) error
	FindByID(ctx context.Context, id string) (models.Companion, error)
}

// LinkStore captures operations on parent-companion links.
type LinkStore interface {
	Find(ctx context.Context, companionID, parentID string) (models.CompanionLink, error)
	ListByCompanion(ctx context.Context, companionID string) ([]models.LinkDetail, error)
	ListByParent(ctx context.Context, parentID string) ([]models.LinkDetail, error)
	UpdatePermissions(ctx context.Context, companionID, parentID string, perms models.CoParentPermissions, at time.Time) (models.CompanionLink, error)
	PromoteToPrimary(ctx context.Context, companionID, parentID string, at time.Time) error
	Delete(ctx context.Context, companionID, parentID string) error
}

// InviteStore captures operations on co-parent invites.
type InviteStore interface {
	Create(ctx context.Context, invite models.CoParentInvite) error
	FindByToken(ctx context.Context, token string) (models.CoParentInvite, error)
	ListPendingForEmail(ctx context.Context, email string, now time.Time) ([]models.InviteDetail, error)
	ListPendingForCompanion(ctx context.Context, companionID string, now time.Time) ([]models.CoParentInvite, error)
	Accept(ctx context.Context, token string, link models.CompanionLink, now time.Time) error
	Decline(ctx context.Context, token string, now time.Time) error
}

// InviteNotifier schedules delivery of invite emails.
type InviteNotifier interface {
	Enqueue(ctx context.Context, email notify.InviteEmail) error
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
