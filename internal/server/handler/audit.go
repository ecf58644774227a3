package handler

import (
	"log/slog"
	"net/http"

	"github.com/upstreampay/payrouter/internal/domain"
)

// AuditHandler serves the selection audit trail.
type AuditHandler struct {
	audits domain.SelectionAuditStore
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler with the given store and
// logger.
func NewAuditHandler(audits domain.SelectionAuditStore, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{audits: audits, logger: logger}
}

// listAuditsResponse wraps the list endpoint output with paging echo.
type listAuditsResponse struct {
	Audits []domain.SelectionAudit `json:"audits"`
	Limit  int                     `json:"limit"`
	Offset int                     `json:"offset"`
}

// ListAudits returns selection audits for one engine, newest first.
// GET /api/audits?engine=payin&limit=50&offset=0&since=...&until=...
func (h *AuditHandler) ListAudits(w http.ResponseWriter, r *http.Request) {
	engine := r.URL.Query().Get("engine")
	if engine != "payin" && engine != "payout" {
		writeError(w, http.StatusBadRequest, "engine must be payin or payout")
		return
	}

	opts := parseListOpts(r)
	audits, err := h.audits.List(r.Context(), engine, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list audits failed",
			slog.String("engine", engine),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list audits")
		return
	}
	if audits == nil {
		audits = []domain.SelectionAudit{}
	}

	writeJSON(w, http.StatusOK, listAuditsResponse{
		Audits: audits,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}
