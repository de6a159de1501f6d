package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/petlink/backend/internal/auth"
	"github.com/petlink/backend/internal/config"
	"github.com/petlink/backend/internal/db"
	"github.com/petlink/backend/internal/handlers"
	"github.com/petlink/backend/internal/middleware"
	"github.com/petlink/backend/internal/notify"
	"github.com/petlink/backend/internal/repositories"
)

// buildDependencies wires together concrete implementations used by the HTTP
// handlers. The returned cleanup drains the invite email queue.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, func(context.Context) error, error) {
	mailer, err := newMailer(ctx, cfg.Mail, logger)
	if err != nil {
		return handlers.Dependencies{}, nil, err
	}

	dispatcher := notify.NewDispatcher(mailer, notify.DispatcherConfig{
		QueueSize:   cfg.Notifier.QueueSize,
		Workers:     cfg.Notifier.Workers,
		SendTimeout: cfg.Notifier.SendTimeout,
	}, logger)

	sessionStore := repositories.NewPostgresSessionStore(pool)

	deps := handlers.Dependencies{
		Users:      repositories.NewPostgresUserRepository(pool),
		Sessions:   auth.NewManager(cfg.AccessTokenTTL, cfg.RefreshTokenTTL, sessionStore),
		Companions: repositories.NewPostgresCompanionRepository(pool),
		Links:      repositories.NewPostgresLinkRepository(pool),
		Invites:    repositories.NewPostgresInviteRepository(pool),
		Notifier:   dispatcher,
		Limiter: middleware.NewIPRateLimiter(middleware.RateLimitConfig{
			Requests: cfg.RateLimit.Requests,
			Window:   cfg.RateLimit.Window,
			Burst:    cfg.RateLimit.Burst,
		}),
		Health:    pool,
		InviteTTL: cfg.InviteTTL,
	}

	return deps, dispatcher.Shutdown, nil
}

func newMailer(ctx context.Context, cfg config.MailConfig, logger *slog.Logger) (notify.Mailer, error) {
	if cfg.From == "" {
		logger.Warn("PETLINK_MAIL_FROM not set, invite emails will only be logged")
		return notify.LogMailer{Logger: logger}, nil
	}

	mailer, err := notify.NewSESMailer(ctx, cfg.Region, cfg.From, cfg.FromName, cfg.AppBaseURL)
	if err != nil {
		return nil, fmt.Errorf("configure invite mailer: %w", err)
	}
	return mailer, nil
}
