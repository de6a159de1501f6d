package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/petlink/backend/internal/config"
	"github.com/petlink/backend/internal/db"
	"github.com/petlink/backend/internal/handlers"
	"github.com/petlink/backend/internal/httpserver"
	"github.com/petlink/backend/internal/logging"
	"github.com/petlink/backend/internal/middleware"
)

// Run bootstraps the PetLink backend application.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: serve, migrate, seed, coparents, or promote")
	}

	switch args[0] {
	case "serve":
		return serve(ctx)
	case "migrate":
		return runMigrations(ctx, args[1:], os.Stdout)
	case "seed":
		return runSeed(ctx, args[1:], os.Stdout)
	case "coparents":
		return runCoParents(ctx, args[1:], os.Stdout)
	case "promote":
		return runPromote(ctx, args[1:], os.Stdout)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(os.Stdout, cfg.LogLevel)
	ctx = logging.WithLogger(ctx, logger)

	pool, err := db.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	deps, cleanup, err := buildDependencies(ctx, pool, cfg, logger)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, deps)

	handler := middleware.RequestLogger(logger)(mux)

	srv := httpserver.New(cfg.AppPort, handler, httpserver.Timeouts{
		ReadHeader: cfg.HTTP.ReadHeaderTimeout,
		Write:      cfg.HTTP.WriteTimeout,
	})

	logger.Info("starting http server", "port", cfg.AppPort)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Start()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested, stopping server")
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}

	if err := srv.ShutdownWithin(cfg.HTTP.ShutdownTimeout); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := cleanup(drainCtx); err != nil {
		logger.Warn("invite email queue not fully drained", "error", err)
	}

	return serveErr
}
