package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/upstreampay/payrouter/internal/domain"
)

// ScoringHandler serves the per-engine scoring override endpoints used
// by operators to tune weights without a redeploy.
type ScoringHandler struct {
	overrides domain.ScoringOverrideStore
	defaults  map[string]domain.ScoringConfig
	logger    *slog.Logger
}

// NewScoringHandler creates a ScoringHandler. defaults maps engine name
// to the built-in config the stored override merges over.
func NewScoringHandler(overrides domain.ScoringOverrideStore, defaults map[string]domain.ScoringConfig, logger *slog.Logger) *ScoringHandler {
	return &ScoringHandler{overrides: overrides, defaults: defaults, logger: logger}
}

// scoringConfigResponse carries the effective config plus the raw
// stored override (absent when nothing is stored).
type scoringConfigResponse struct {
	Engine    string                  `json:"engine"`
	Effective domain.ScoringConfig    `json:"effective"`
	Override  *domain.ScoringOverride `json:"override,omitempty"`
}

// GetConfig returns the effective scoring config for an engine.
// GET /api/scoring/{engine}
func (h *ScoringHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	engine := pathParam(r, "engine")
	defaults, ok := h.defaults[engine]
	if !ok {
		writeError(w, http.StatusBadRequest, "engine must be payin or payout")
		return
	}

	resp := scoringConfigResponse{Engine: engine}

	override, err := h.overrides.Get(r.Context(), engine)
	switch {
	case err == nil:
		resp.Override = &override
		resp.Effective = defaults.Merge(&override)
	case errors.Is(err, domain.ErrNotFound):
		resp.Effective = defaults.Merge(nil)
	default:
		h.logger.ErrorContext(r.Context(), "load scoring override failed",
			slog.String("engine", engine),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load scoring config")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// UpdateConfig stores a sparse override for an engine and echoes the
// new effective config.
// PUT /api/scoring/{engine}
func (h *ScoringHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	engine := pathParam(r, "engine")
	defaults, ok := h.defaults[engine]
	if !ok {
		writeError(w, http.StatusBadRequest, "engine must be payin or payout")
		return
	}

	var override domain.ScoringOverride
	if err := decodeJSON(r, &override); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	effective := defaults.Merge(&override)
	if err := validateEffective(effective); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.overrides.Upsert(r.Context(), engine, override); err != nil {
		h.logger.ErrorContext(r.Context(), "store scoring override failed",
			slog.String("engine", engine),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to store scoring config")
		return
	}

	h.logger.InfoContext(r.Context(), "scoring override updated",
		slog.String("engine", engine),
	)

	writeJSON(w, http.StatusOK, scoringConfigResponse{
		Engine:    engine,
		Effective: effective,
		Override:  &override,
	})
}

// validateEffective rejects overrides that would produce an unusable
// merged config.
func validateEffective(cfg domain.ScoringConfig) error {
	switch {
	case cfg.MinScore < 0:
		return errors.New("minScore must not be negative")
	case cfg.MaxCandidates < 1:
		return errors.New("maxCandidates must be at least 1")
	case cfg.ScoreExponent <= 0:
		return errors.New("scoreExponent must be positive")
	case cfg.RandomnessFactor < 0 || cfg.RandomnessFactor > 1:
		return errors.New("randomnessFactor must be between 0 and 1")
	case cfg.TierLowMax <= 0 || cfg.TierMediumMax <= cfg.TierLowMax:
		return errors.New("tier boundaries must satisfy 0 < tierLowMax < tierMediumMax")
	}
	for factor, w := range cfg.Weights {
		if w < 0 {
			return errors.New("weight " + factor + " must not be negative")
		}
	}
	return nil
}
