package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/petlink/backend/internal/auth"
	"github.com/petlink/backend/internal/config"
	"github.com/petlink/backend/internal/coparent"
	"github.com/petlink/backend/internal/logging"
	"github.com/petlink/backend/internal/models"
)

const clientTimeout = 15 * time.Second

// clientSession is the client core as the CLI drives it: a token source that
// refreshes through the API, the transport client and a fresh store.
type clientSession struct {
	cfg     config.Config
	tokens  *auth.TokenSource
	client  *coparent.Client
	service *coparent.Service
}

func newClientSession(ctx context.Context) (context.Context, *clientSession, error) {
	cfg, err := config.Load()
	if err != nil {
		return ctx, nil, err
	}
	if cfg.Client.AccessToken == "" && cfg.Client.RefreshToken == "" {
		return ctx, nil, errors.New("PETLINK_ACCESS_TOKEN or PETLINK_REFRESH_TOKEN is required")
	}
	ctx = logging.WithLogger(ctx, logging.New(os.Stderr, cfg.LogLevel))

	client := coparent.NewClient(cfg.Client.APIURL, &http.Client{Timeout: clientTimeout})

	seed := &models.SessionTokens{AccessToken: cfg.Client.AccessToken, RefreshToken: cfg.Client.RefreshToken}
	if seed.AccessToken == "" {
		// Only a refresh token: mark the access token stale so the first call refreshes.
		seed.AccessExpiresAt = time.Unix(0, 0).UTC()
	}
	var refresh auth.Refresher
	if seed.RefreshToken != "" {
		refresh = client.RefreshSession
	}
	tokens := auth.NewTokenSource(seed, refresh)

	return ctx, &clientSession{
		cfg:     cfg,
		tokens:  tokens,
		client:  client,
		service: coparent.NewService(tokens, client, coparent.NewStore()),
	}, nil
}

// runCoParents prints the normalized co-parents of a companion as JSON.
func runCoParents(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 || args[0] == "" {
		return errors.New("expected companion id")
	}

	ctx, session, err := newClientSession(ctx)
	if err != nil {
		return err
	}

	list, err := session.service.FetchCoParents(ctx, args[0], "", "")
	if err != nil {
		if coparent.IsUnauthorized(err) {
			return fmt.Errorf("fetch co-parents: access token rejected: %w", err)
		}
		return fmt.Errorf("fetch co-parents: %w", err)
	}
	return writeJSON(out, list)
}

// routeRecorder stands in for the app navigator on the command line.
type routeRecorder struct {
	route string
}

func (r *routeRecorder) ResetTo(route string) {
	r.route = route
}

type promoteResult struct {
	CompanionID string                                  `json:"companionId"`
	CoParentID  string                                  `json:"coParentId"`
	Route       string                                  `json:"route"`
	Access      map[string]models.ParentCompanionAccess `json:"access"`
}

// runPromote makes a co-parent the companion's primary parent, then refreshes
// the caller's companions and access the way the app does, and prints the
// resulting access map.
func runPromote(ctx context.Context, args []string, out io.Writer) error {
	if len(args) < 2 || args[0] == "" || args[1] == "" {
		return errors.New("expected companion id and co-parent id")
	}

	ctx, session, err := newClientSession(ctx)
	if err != nil {
		return err
	}
	if session.cfg.Client.ParentID == "" {
		return errors.New("PETLINK_PARENT_ID is required")
	}

	nav := &routeRecorder{}
	flow := coparent.PromoteFlow{
		Service:    session.service,
		Companions: &coparent.CompanionDirectory{Client: session.client, Tokens: session.tokens},
		Navigator:  nav,
		ParentID:   session.cfg.Client.ParentID,
	}
	if err := flow.Run(ctx, args[0], args[1]); err != nil {
		return fmt.Errorf("promote co-parent: %w", err)
	}

	return writeJSON(out, promoteResult{
		CompanionID: args[0],
		CoParentID:  args[1],
		Route:       nav.route,
		Access:      session.service.Store.Snapshot().AccessByCompanionID,
	})
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
