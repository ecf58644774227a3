package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/upstreampay/payrouter/internal/dispute"
	"github.com/upstreampay/payrouter/internal/domain"
)

// DisputeService defines what the dispute handler needs from the
// settlement engine.
type DisputeService interface {
	Open(ctx context.Context, typ domain.DisputeType, amount float64, traderID, counterpartyID string) (domain.Dispute, error)
	ProcessTraderResponse(ctx context.Context, disputeID string, action domain.TraderAction, note, proofRef string) (dispute.ResponseResult, error)
	AdminResolve(ctx context.Context, disputeID string, decision domain.AdminDecision, note, adminID string) (dispute.ResolutionResult, error)
	Get(ctx context.Context, disputeID string) (domain.Dispute, error)
}

// DisputeHandler serves the dispute endpoints.
type DisputeHandler struct {
	disputes DisputeService
	logger   *slog.Logger
}

// NewDisputeHandler creates a DisputeHandler with the given service and
// logger.
func NewDisputeHandler(disputes DisputeService, logger *slog.Logger) *DisputeHandler {
	return &DisputeHandler{disputes: disputes, logger: logger}
}

// openRequest is the JSON body for opening a dispute.
type openRequest struct {
	Type           string  `json:"type"` // "payin" or "payout"
	Amount         float64 `json:"amount"`
	TraderID       string  `json:"traderId"`
	CounterpartyID string  `json:"counterpartyId"`
}

// Open creates a new dispute routed to the trader.
// POST /api/disputes
func (h *DisputeHandler) Open(w http.ResponseWriter, r *http.Request) {
	var body openRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	typ := domain.DisputeType(body.Type)
	if typ != domain.DisputePayin && typ != domain.DisputePayout {
		writeError(w, http.StatusBadRequest, "type must be payin or payout")
		return
	}
	if body.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}
	if body.TraderID == "" {
		writeError(w, http.StatusBadRequest, "missing traderId")
		return
	}

	d, err := h.disputes.Open(r.Context(), typ, body.Amount, body.TraderID, body.CounterpartyID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "open dispute failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to open dispute")
		return
	}

	writeJSON(w, http.StatusCreated, d)
}

// Get returns one dispute by id.
// GET /api/disputes/{id}
func (h *DisputeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing dispute id")
		return
	}

	d, err := h.disputes.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrDisputeNotFound) || errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "dispute not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get dispute failed",
			slog.String("dispute_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get dispute")
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// responseRequest is the JSON body for the trader-response endpoint.
type responseRequest struct {
	Action   string `json:"action"` // "accept" or "reject"
	Note     string `json:"note"`
	ProofRef string `json:"proofRef"`
}

// TraderResponse records the trader's answer to a routed dispute.
// POST /api/disputes/{id}/response
func (h *DisputeHandler) TraderResponse(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing dispute id")
		return
	}

	var body responseRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	action := domain.TraderAction(body.Action)
	if action != domain.TraderActionAccept && action != domain.TraderActionReject {
		writeError(w, http.StatusBadRequest, "action must be accept or reject")
		return
	}

	result, err := h.disputes.ProcessTraderResponse(r.Context(), id, action, body.Note, body.ProofRef)
	if err != nil {
		h.writeDisputeError(w, r, id, err, "record trader response failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// resolveRequest is the JSON body for the admin-resolution endpoint.
type resolveRequest struct {
	Decision string `json:"decision"` // "approve" or "reject"
	Note     string `json:"note"`
	AdminID  string `json:"adminId"`
}

// AdminResolve applies the administrator's final decision.
// POST /api/disputes/{id}/resolve
func (h *DisputeHandler) AdminResolve(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing dispute id")
		return
	}

	var body resolveRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	decision := domain.AdminDecision(body.Decision)
	if decision != domain.AdminDecisionApprove && decision != domain.AdminDecisionReject {
		writeError(w, http.StatusBadRequest, "decision must be approve or reject")
		return
	}

	result, err := h.disputes.AdminResolve(r.Context(), id, decision, body.Note, body.AdminID)
	if err != nil {
		h.writeDisputeError(w, r, id, err, "resolve dispute failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// writeDisputeError maps dispute engine errors to HTTP statuses.
func (h *DisputeHandler) writeDisputeError(w http.ResponseWriter, r *http.Request, id string, err error, logMsg string) {
	switch {
	case errors.Is(err, domain.ErrDisputeNotFound), errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "dispute not found")
	case errors.Is(err, domain.ErrInvalidDisputeTransition):
		writeError(w, http.StatusConflict, "dispute is not in a state that allows this action")
	case errors.Is(err, domain.ErrLockHeld):
		writeError(w, http.StatusConflict, "dispute is being resolved by another request")
	default:
		h.logger.ErrorContext(r.Context(), logMsg,
			slog.String("dispute_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "dispute operation failed")
	}
}
