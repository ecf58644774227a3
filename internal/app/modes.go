package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/upstreampay/payrouter/internal/domain"
	"github.com/upstreampay/payrouter/internal/server"
	"github.com/upstreampay/payrouter/internal/server/handler"
	"github.com/upstreampay/payrouter/internal/server/ws"
)

// ServerMode runs the HTTP + WebSocket API without the background
// archive loop.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	a.startWebhooks(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)

	return waitGroup(g)
}

// ArchiveMode runs only the periodic archive loop, for deployments that
// separate the API from housekeeping.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	a.startArchiveLoop(ctx, g, deps)

	return waitGroup(g)
}

// FullMode runs everything: API server, WebSocket hub, webhook
// dispatcher, and the archive loop.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	a.startWebhooks(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)
	a.startArchiveLoop(ctx, g, deps)

	return waitGroup(g)
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to
// the group. It is a no-op when the server is disabled in config.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Server.Enabled {
		a.logger.Info("http server disabled")
		return
	}

	hub := ws.NewHub(a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	deps.Events.Add(hub)

	healthDeps := map[string]handler.Pinger{
		"postgres": deps.PG,
		"redis":    deps.RedisClient,
	}

	healthTTL := time.Duration(a.cfg.Redis.HealthTTLSeconds) * time.Second
	handlers := server.Handlers{
		Health:     handler.NewHealthHandler(healthDeps, a.logger),
		Routing:    handler.NewRoutingHandler(deps.Router, a.logger),
		Disputes:   handler.NewDisputeHandler(deps.Settlement, a.logger),
		Audits:     handler.NewAuditHandler(deps.Audits, a.logger),
		Scoring:    handler.NewScoringHandler(deps.Overrides, a.scoringDefaults(), a.logger),
		BankHealth: handler.NewBankHealthHandler(deps.Health, deps.Events, healthTTL, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:               a.cfg.Server.Port,
		CORSOrigins:        a.cfg.Server.CORSOrigins,
		APIKey:             a.cfg.Server.APIKey,
		RateLimitPerMinute: a.cfg.Server.RateLimitPerMinute,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return hub.Run(ctx)
	})

	g.Go(func() error {
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err := <-errCh:
			return err
		}
	})
}

// startWebhooks adds the webhook dispatcher goroutine to the group when
// endpoints are configured.
func (a *App) startWebhooks(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Webhooks == nil {
		return
	}
	g.Go(func() error {
		return deps.Webhooks.Run(ctx)
	})
}

// startArchiveLoop adds the periodic archive goroutine to the group. It
// is a no-op when archival is disabled or the archiver was not wired.
func (a *App) startArchiveLoop(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Archive.Enabled || deps.Archiver == nil {
		a.logger.Info("archive loop disabled")
		return
	}

	interval := a.cfg.Archive.Interval.Duration
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		a.logger.Info("archive loop started",
			slog.Duration("interval", interval),
			slog.Int("retention_days", a.cfg.Archive.RetentionDays),
		)

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				cutoff := time.Now().UTC().Add(-retention)
				count, err := deps.Archiver.Run(ctx, cutoff)
				if err != nil {
					// Archival is housekeeping; log and retry next tick
					// instead of taking the whole process down.
					a.logger.Error("archive run failed",
						slog.String("error", err.Error()),
					)
					continue
				}
				if count > 0 {
					a.logger.Info("archive run complete",
						slog.Int64("records", count),
					)
				}
			}
		}
	})
}

// scoringDefaults maps engine name to its built-in scoring config for
// the override endpoints.
func (a *App) scoringDefaults() map[string]domain.ScoringConfig {
	return map[string]domain.ScoringConfig{
		"payin":  a.cfg.Scoring.Payin,
		"payout": a.cfg.Scoring.Payout,
	}
}

// waitGroup waits for the group and swallows the context-cancelled
// error that a clean shutdown produces.
func waitGroup(g *errgroup.Group) error {
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
