package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger verifies connectivity to a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the health-check endpoint, reporting the status
// of each backing service it was given.
type HealthHandler struct {
	deps   map[string]Pinger
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler. deps maps a service name
// (e.g. "redis") to its pinger; nil entries are skipped.
func NewHealthHandler(deps map[string]Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{deps: deps, logger: logger}
}

// HealthCheck responds with the overall status and a per-service
// breakdown. Any failing dependency turns the response into a 503.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	services := make(map[string]string, len(h.deps))
	status := http.StatusOK
	overall := "ok"

	for name, p := range h.deps {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			services[name] = "down"
			status = http.StatusServiceUnavailable
			overall = "degraded"
			h.logger.Warn("health check dependency failed",
				slog.String("service", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		services[name] = "ok"
	}

	writeJSON(w, status, map[string]any{
		"status":    overall,
		"services":  services,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
