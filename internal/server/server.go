// Package server exposes the routing and dispute engines over an HTTP
// + WebSocket API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/upstreampay/payrouter/internal/domain"
	"github.com/upstreampay/payrouter/internal/server/handler"
	"github.com/upstreampay/payrouter/internal/server/middleware"
	"github.com/upstreampay/payrouter/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	// RateLimitPerMinute caps requests per client IP; 0 disables.
	RateLimitPerMinute int
}

// Handlers aggregates all HTTP handlers that the server registers.
type Handlers struct {
	Health     *handler.HealthHandler
	Routing    *handler.RoutingHandler
	Disputes   *handler.DisputeHandler
	Audits     *handler.AuditHandler
	Scoring    *handler.ScoringHandler
	BankHealth *handler.BankHealthHandler
}

// Server is the headless HTTP + WebSocket API server for the payment
// router.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the
// ServeMux and the middleware chain (rate limit, auth, logging, CORS)
// wrapped around it. limiter may be nil when rate limiting is disabled.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required; registered before the chain would
	// matter if auth exempted paths, but the chain applies to all).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Selection endpoints.
	mux.HandleFunc("POST /api/route/payin", handlers.Routing.SelectPayin)
	mux.HandleFunc("POST /api/route/payout", handlers.Routing.SelectPayout)
	mux.HandleFunc("POST /api/route/payin/outcome", handlers.Routing.ReportPayinOutcome)
	mux.HandleFunc("POST /api/route/payout/outcome", handlers.Routing.ReportPayoutOutcome)

	// Dispute endpoints.
	mux.HandleFunc("POST /api/disputes", handlers.Disputes.Open)
	mux.HandleFunc("GET /api/disputes/{id}", handlers.Disputes.Get)
	mux.HandleFunc("POST /api/disputes/{id}/response", handlers.Disputes.TraderResponse)
	mux.HandleFunc("POST /api/disputes/{id}/resolve", handlers.Disputes.AdminResolve)

	// Audit trail.
	mux.HandleFunc("GET /api/audits", handlers.Audits.ListAudits)

	// Scoring config overrides.
	mux.HandleFunc("GET /api/scoring/{engine}", handlers.Scoring.GetConfig)
	mux.HandleFunc("PUT /api/scoring/{engine}", handlers.Scoring.UpdateConfig)

	// Bank health reporting.
	mux.HandleFunc("GET /api/banks/health", handlers.BankHealth.ListHealth)
	mux.HandleFunc("PUT /api/banks/{code}/health", handlers.BankHealth.SetHealth)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil && cfg.RateLimitPerMinute > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimitPerMinute, time.Minute)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight
// requests to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
