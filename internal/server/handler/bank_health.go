package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/upstreampay/payrouter/internal/domain"
)

// BankHealthHandler serves the bank-health endpoints. Health monitors
// report statuses in; the scoring engine reads them out per selection.
type BankHealthHandler struct {
	health domain.HealthCache
	events domain.EventSink
	ttl    time.Duration
	logger *slog.Logger
}

// NewBankHealthHandler creates a BankHealthHandler. events may be nil.
func NewBankHealthHandler(health domain.HealthCache, events domain.EventSink, ttl time.Duration, logger *slog.Logger) *BankHealthHandler {
	return &BankHealthHandler{health: health, events: events, ttl: ttl, logger: logger}
}

// ListHealth returns every currently cached bank status.
// GET /api/banks/health
func (h *BankHealthHandler) ListHealth(w http.ResponseWriter, r *http.Request) {
	health, err := h.health.GetAll(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list bank health failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list bank health")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"banks": health})
}

// setHealthRequest is the JSON body for reporting a bank status.
type setHealthRequest struct {
	Status string `json:"status"` // healthy, degraded, down
}

// SetHealth records a bank's status with the configured TTL.
// PUT /api/banks/{code}/health
func (h *BankHealthHandler) SetHealth(w http.ResponseWriter, r *http.Request) {
	code := pathParam(r, "code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing bank code")
		return
	}

	var body setHealthRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	status := domain.HealthStatus(body.Status)
	switch status {
	case domain.HealthHealthy, domain.HealthDegraded, domain.HealthDown:
	default:
		writeError(w, http.StatusBadRequest, "status must be healthy, degraded, or down")
		return
	}

	if err := h.health.Set(r.Context(), code, status, h.ttl); err != nil {
		h.logger.ErrorContext(r.Context(), "set bank health failed",
			slog.String("bank_code", code),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to set bank health")
		return
	}

	if h.events != nil {
		h.events.Publish(domain.Event{
			Type: "bank_health",
			At:   time.Now().UTC(),
			Payload: map[string]string{
				"bankCode": code,
				"status":   string(status),
			},
		})
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"bankCode": code,
		"status":   string(status),
	})
}
