package handlers

import (
	"net/http"
	"time"

	"github.com/petlink/backend/internal/middleware"
)

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{DB: deps.Health}
	auth := AuthHandler{Users: deps.Users, Sessions: deps.Sessions, Limiter: deps.Limiter, NowFunc: deps.NowFunc}
	companions := CompanionHandler{Companions: deps.Companions, Links: deps.Links, NowFunc: deps.NowFunc}
	coparents := CoParentHandler{Links: deps.Links, Invites: deps.Invites, NowFunc: deps.NowFunc}
	invites := InviteHandler{
		Users:      deps.Users,
		Companions: deps.Companions,
		Links:      deps.Links,
		Invites:    deps.Invites,
		Notifier:   deps.Notifier,
		Limiter:    deps.Limiter,
		TTL:        deps.InviteTTL,
		NowFunc:    deps.NowFunc,
	}

	mux.HandleFunc("GET /healthz", health.Handle)
	mux.HandleFunc("POST /api/v1/auth/login", auth.Login)
	mux.HandleFunc("POST /api/v1/auth/signup", auth.SignUp)
	mux.HandleFunc("POST /api/v1/auth/refresh", auth.Refresh)
	mux.HandleFunc("POST /api/v1/auth/logout", auth.Logout)

	var authn middleware.Authenticator
	if deps.Sessions != nil {
		authn = deps.Sessions
	}
	protected := middleware.RequireBearer(authn)
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, protected(h))
	}

	handle("GET /v1/companions", companions.List)
	handle("POST /v1/companions", companions.Create)

	handle("GET /v1/parent-companion/companion/{companionId}", coparents.ListByCompanion)
	handle("GET /v1/parent-companion/parent/{parentId}", coparents.ListByParent)
	handle("PATCH /v1/parent-companion/companion/{companionId}/{coParentId}/permissions", coparents.UpdatePermissions)
	handle("POST /v1/parent-companion/companion/{companionId}/{coParentId}/promote", coparents.Promote)
	handle("DELETE /v1/parent-companion/companion/{companionId}/{coParentId}", coparents.Remove)

	handle("POST /v1/coparent-invite/sent", invites.Send)
	handle("GET /v1/coparent-invite/pending", invites.Pending)
	handle("POST /v1/coparent-invite/accept", invites.Accept)
	handle("POST /v1/coparent-invite/decline", invites.Decline)
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users      UserStore
	Sessions   SessionManager
	Companions CompanionStore
	Links      LinkStore
	Invites    InviteStore
	Notifier   InviteNotifier
	Limiter    RateLimiter
	Health     Pinger
	InviteTTL  time.Duration
	NowFunc    func() time.Time
}
