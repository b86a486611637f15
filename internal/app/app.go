// Package app provides the top-level application lifecycle management for the
// arbitrage scanner. It wires together all components (feeds, detection
// engine, risk breaker, notifications, and the API server) and runs them
// until the context is cancelled.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oddslab/arbscan/internal/config"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all components, starts the feed,
// scan, and API goroutines, and blocks until the context is cancelled or a
// subsystem fails. Cleanup functions registered during wiring run on Close.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.Bool("server_enabled", a.cfg.Server.Enabled),
		slog.Bool("limitless_enabled", a.cfg.Limitless.Enabled),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Feed.Run(ctx)
	})
	g.Go(func() error {
		return deps.Engine.Run(ctx)
	})
	g.Go(func() error {
		return deps.Hub.Run(ctx)
	})

	if deps.Poller != nil {
		g.Go(func() error {
			return deps.Poller.Run(ctx)
		})
	}

	if deps.Server != nil {
		g.Go(func() error {
			return deps.Server.Start()
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := deps.Server.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("server shutdown error", slog.String("error", err.Error()))
			}
			return ctx.Err()
		})
	}

	return g.Wait()
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
