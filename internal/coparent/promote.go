package coparent

import (
	"context"

	"github.com/petlink/backend/internal/logging"
)

// RoutePostPromotion is the screen shown once a co-parent becomes primary.
const RoutePostPromotion = "CompanionsHome"

// CompanionRefresher reloads the signed-in parent's companions and returns their ids.
type CompanionRefresher interface {
	RefreshCompanions(ctx context.Context) ([]string, error)
}

// Navigator performs the terminal navigation of a flow.
type Navigator interface {
	ResetTo(route string)
}

// PromoteFlow promotes a co-parent and then resynchronises the caller's view:
// promote, refresh companions, refresh parent access, navigate. Only the
// promotion itself can abort the flow.
type PromoteFlow struct {
	Service    *Service
	Companions CompanionRefresher
	Navigator  Navigator
	// ParentID is the signed-in parent whose access is refreshed.
	ParentID string
	Route    string
}

// Run executes the flow. It returns an error only when the promotion fails.
func (p *PromoteFlow) Run(ctx context.Context, companionID, coParentID string) error {
	ctx, span := logging.StartSpan(ctx, "coparent.promote_flow")
	defer span.End()
	logger := logging.FromContext(ctx)

	if err := p.Service.PromoteCoParentToPrimary(ctx, companionID, coParentID); err != nil {
		span.Fail(err)
		return err
	}

	companionIDs := []string{companionID}
	if p.Companions != nil {
		refreshed, err := p.Companions.RefreshCompanions(ctx)
		if err != nil {
			logger.Warn("refresh companions after promotion failed", "companionId", companionID, "error", err)
		} else if len(refreshed) > 0 {
			companionIDs = refreshed
		}
	}

	if _, err := p.Service.FetchParentAccess(ctx, p.ParentID, companionIDs); err != nil {
		logger.Warn("refresh parent access after promotion failed", "parentId", p.ParentID, "error", err)
	}

	if p.Navigator != nil {
		route := p.Route
		if route == "" {
			route = RoutePostPromotion
		}
		p.Navigator.ResetTo(route)
	}
	return nil
}
