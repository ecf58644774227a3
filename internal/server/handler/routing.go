package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/upstreampay/payrouter/internal/domain"
	"github.com/upstreampay/payrouter/internal/routing"
)

// RoutingService defines what the routing handler needs from the
// orchestrator. Declared locally so the handler package does not depend
// on the concrete engine wiring.
type RoutingService interface {
	SelectPayin(ctx context.Context, req routing.Request) (domain.SelectionResult, error)
	SelectPayout(ctx context.Context, req routing.Request) (domain.SelectionResult, error)
	ReportPayinOutcome(ctx context.Context, accountID string, amount float64, success bool) error
	ReportPayoutOutcome(ctx context.Context, traderID string, amount float64, success bool, completionMinutes float64) error
}

// RoutingHandler serves the selection endpoints.
type RoutingHandler struct {
	router RoutingService
	logger *slog.Logger
}

// NewRoutingHandler creates a RoutingHandler with the given service and
// logger.
func NewRoutingHandler(router RoutingService, logger *slog.Logger) *RoutingHandler {
	return &RoutingHandler{router: router, logger: logger}
}

// selectRequest is the JSON body for both selection endpoints.
type selectRequest struct {
	Amount               float64  `json:"amount"`
	CounterpartyID       string   `json:"counterpartyId"`
	CounterpartyCapacity float64  `json:"counterpartyCapacity"`
	Exclude              []string `json:"exclude"`
}

// SelectPayin picks a receiving account for a collection request.
// POST /api/route/payin
func (h *RoutingHandler) SelectPayin(w http.ResponseWriter, r *http.Request) {
	h.selectCandidate(w, r, h.router.SelectPayin)
}

// SelectPayout picks a trader for a disbursement request.
// POST /api/route/payout
func (h *RoutingHandler) SelectPayout(w http.ResponseWriter, r *http.Request) {
	h.selectCandidate(w, r, h.router.SelectPayout)
}

func (h *RoutingHandler) selectCandidate(
	w http.ResponseWriter,
	r *http.Request,
	selectFn func(ctx context.Context, req routing.Request) (domain.SelectionResult, error),
) {
	var body selectRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	result, err := selectFn(r.Context(), routing.Request{
		Amount:               body.Amount,
		CounterpartyID:       body.CounterpartyID,
		CounterpartyCapacity: body.CounterpartyCapacity,
		Exclude:              body.Exclude,
	})
	if err != nil {
		h.writeSelectionError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// writeSelectionError maps the selection error taxonomy onto HTTP
// statuses: the three no-candidate conditions are 409s carrying a
// machine-readable code, everything else is a 500.
func (h *RoutingHandler) writeSelectionError(w http.ResponseWriter, r *http.Request, err error) {
	var code string
	switch {
	case errors.Is(err, domain.ErrNoEligibleCandidates):
		code = "no_eligible_candidates"
	case errors.Is(err, domain.ErrAllBelowThreshold):
		code = "all_below_threshold"
	case errors.Is(err, domain.ErrSelectionExhausted):
		code = "selection_exhausted"
	default:
		h.logger.ErrorContext(r.Context(), "selection failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "selection failed")
		return
	}
	writeJSON(w, http.StatusConflict, map[string]string{
		"error": err.Error(),
		"code":  code,
	})
}

// outcomeRequest is the JSON body for both outcome endpoints.
type outcomeRequest struct {
	CandidateID string  `json:"candidateId"`
	Amount      float64 `json:"amount"`
	Success     bool    `json:"success"`
	// CompletionMinutes is only meaningful for successful payouts.
	CompletionMinutes float64 `json:"completionMinutes"`
}

// ReportPayinOutcome settles a previously selected account attempt.
// POST /api/route/payin/outcome
func (h *RoutingHandler) ReportPayinOutcome(w http.ResponseWriter, r *http.Request) {
	var body outcomeRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.CandidateID == "" {
		writeError(w, http.StatusBadRequest, "missing candidateId")
		return
	}

	err := h.router.ReportPayinOutcome(r.Context(), body.CandidateID, body.Amount, body.Success)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "record payin outcome failed",
			slog.String("account_id", body.CandidateID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to record outcome")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// ReportPayoutOutcome settles a previously selected trader assignment.
// POST /api/route/payout/outcome
func (h *RoutingHandler) ReportPayoutOutcome(w http.ResponseWriter, r *http.Request) {
	var body outcomeRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.CandidateID == "" {
		writeError(w, http.StatusBadRequest, "missing candidateId")
		return
	}

	err := h.router.ReportPayoutOutcome(r.Context(), body.CandidateID, body.Amount, body.Success, body.CompletionMinutes)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "trader not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "record payout outcome failed",
			slog.String("trader_id", body.CandidateID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to record outcome")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}
