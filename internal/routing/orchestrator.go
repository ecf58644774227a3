// Package routing wires the candidate pool filter, the scoring
// framework, and the weighted selector into the two routing entry
// points: payin account selection and payout trader selection.
package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/upstreampay/payrouter/internal/domain"
	"github.com/upstreampay/payrouter/internal/scoring"
	"github.com/upstreampay/payrouter/internal/selection"
)

// Engine names used for audits and scoring-override lookups.
const (
	EnginePayin  = "payin"
	EnginePayout = "payout"
)

// reserveRetries bounds the intra-call retries when a reservation loses
// a capacity race against a concurrent selection.
const reserveRetries = 3

// Request describes one routing request. Exclude carries the candidate
// ids already tried in earlier fallback rounds; the attempt number is
// derived from its length.
type Request struct {
	Amount         float64
	CounterpartyID string
	// CounterpartyCapacity is the counterparty's remaining capacity,
	// consumed by the payin capacity-headroom factor.
	CounterpartyCapacity float64
	Exclude              []string
}

// Orchestrator loads candidate snapshots and ambient context, runs the
// selection pipeline, persists the audit trail, and applies the
// fallback-retry policy.
type Orchestrator struct {
	accounts  domain.UpiAccountStore
	traders   domain.TraderStore
	audits    domain.SelectionAuditStore
	overrides domain.ScoringOverrideStore
	health    domain.HealthCache
	scorer    *scoring.Scorer
	selector  *selection.Selector
	payinCfg  domain.ScoringConfig
	payoutCfg domain.ScoringConfig
	events    domain.EventSink
	logger    *slog.Logger
	now       func() time.Time
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Accounts  domain.UpiAccountStore
	Traders   domain.TraderStore
	Audits    domain.SelectionAuditStore
	Overrides domain.ScoringOverrideStore
	Health    domain.HealthCache
	Rand      domain.RandSource
	// PayinDefaults and PayoutDefaults are the built-in scoring configs
	// that stored overrides merge over, per call.
	PayinDefaults  domain.ScoringConfig
	PayoutDefaults domain.ScoringConfig
	// Events is optional; selections are published to it when set.
	Events domain.EventSink
}

// NewOrchestrator creates an Orchestrator from its dependencies.
func NewOrchestrator(deps Deps, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		accounts:  deps.Accounts,
		traders:   deps.Traders,
		audits:    deps.Audits,
		overrides: deps.Overrides,
		health:    deps.Health,
		scorer:    scoring.NewScorer(deps.Rand),
		selector:  selection.NewSelector(deps.Rand),
		payinCfg:  deps.PayinDefaults,
		payoutCfg: deps.PayoutDefaults,
		events:    deps.Events,
		logger:    logger.With(slog.String("component", "routing")),
		now:       time.Now,
	}
}

// SelectPayin picks a receiving account for a collection request.
func (o *Orchestrator) SelectPayin(ctx context.Context, req Request) (domain.SelectionResult, error) {
	cfg, attempt, err := o.prepare(ctx, EnginePayin, o.payinCfg, req)
	if err != nil {
		return domain.SelectionResult{}, err
	}

	snapshots, err := o.accounts.ListActive(ctx)
	if err != nil {
		return domain.SelectionResult{}, fmt.Errorf("routing: load account snapshots: %w", err)
	}
	snapshots = excludeAccounts(snapshots, req.Exclude)

	eligible := selection.FilterAccounts(snapshots, req.Amount)
	if len(eligible) == 0 {
		return domain.SelectionResult{}, domain.ErrNoEligibleCandidates
	}

	sc := o.scoringContext(ctx, req)
	scored := o.scorer.ScoreAccounts(eligible, req.Amount, sc, cfg)

	pick, err := o.pickAndReserve(ctx, scored, cfg, func(ctx context.Context, id string) error {
		return o.accounts.ReserveDailyVolume(ctx, id, req.Amount)
	})
	if err != nil {
		return domain.SelectionResult{}, err
	}

	return o.commit(ctx, EnginePayin, req, pick, attempt)
}

// SelectPayout picks a trader for a disbursement request.
func (o *Orchestrator) SelectPayout(ctx context.Context, req Request) (domain.SelectionResult, error) {
	cfg, attempt, err := o.prepare(ctx, EnginePayout, o.payoutCfg, req)
	if err != nil {
		return domain.SelectionResult{}, err
	}

	snapshots, err := o.traders.ListAvailable(ctx)
	if err != nil {
		return domain.SelectionResult{}, fmt.Errorf("routing: load trader snapshots: %w", err)
	}
	snapshots = excludeTraders(snapshots, req.Exclude)

	eligible := selection.FilterTraders(snapshots, req.Amount)
	if len(eligible) == 0 {
		return domain.SelectionResult{}, domain.ErrNoEligibleCandidates
	}

	sc := o.scoringContext(ctx, req)
	scored := o.scorer.ScoreTraders(eligible, req.Amount, sc, cfg)

	pick, err := o.pickAndReserve(ctx, scored, cfg, func(ctx context.Context, id string) error {
		return o.traders.ReserveAssignment(ctx, id, req.Amount)
	})
	if err != nil {
		return domain.SelectionResult{}, err
	}

	return o.commit(ctx, EnginePayout, req, pick, attempt)
}

// ReportPayinOutcome settles a previously selected account attempt.
func (o *Orchestrator) ReportPayinOutcome(ctx context.Context, accountID string, amount float64, success bool) error {
	if err := o.accounts.RecordOutcome(ctx, accountID, amount, success); err != nil {
		return fmt.Errorf("routing: record payin outcome: %w", err)
	}
	o.logger.Info("payin outcome recorded",
		slog.String("account_id", accountID),
		slog.Bool("success", success),
	)
	return nil
}

// ReportPayoutOutcome settles a previously selected trader assignment.
// completionMinutes feeds the trader's running speed average and is
// ignored for failures.
func (o *Orchestrator) ReportPayoutOutcome(ctx context.Context, traderID string, amount float64, success bool, completionMinutes float64) error {
	if err := o.traders.RecordOutcome(ctx, traderID, amount, success, completionMinutes); err != nil {
		return fmt.Errorf("routing: record payout outcome: %w", err)
	}
	o.logger.Info("payout outcome recorded",
		slog.String("trader_id", traderID),
		slog.Bool("success", success),
	)
	return nil
}

// prepare merges the effective config and enforces the fallback policy.
// The attempt number is 1 plus the count of already-tried candidates.
func (o *Orchestrator) prepare(ctx context.Context, engine string, defaults domain.ScoringConfig, req Request) (domain.ScoringConfig, int, error) {
	cfg := o.mergedConfig(ctx, engine, defaults)

	attempt := len(req.Exclude) + 1
	if attempt > 1 {
		if !cfg.EnableFallback || len(req.Exclude) > cfg.MaxFallbackAttempts {
			return cfg, attempt, domain.ErrSelectionExhausted
		}
	}
	return cfg, attempt, nil
}

// mergedConfig loads the stored override for the engine and merges it
// over the defaults. A missing override is normal; a store failure
// degrades to defaults with a warning rather than blocking routing.
func (o *Orchestrator) mergedConfig(ctx context.Context, engine string, defaults domain.ScoringConfig) domain.ScoringConfig {
	override, err := o.overrides.Get(ctx, engine)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			o.logger.Warn("scoring override load failed, using defaults",
				slog.String("engine", engine),
				slog.String("error", err.Error()),
			)
		}
		return defaults.Merge(nil)
	}
	return defaults.Merge(&override)
}

// scoringContext assembles the ambient facts shared by every candidate
// in one call. Health-cache failures degrade to all-healthy.
func (o *Orchestrator) scoringContext(ctx context.Context, req Request) domain.ScoringContext {
	health, err := o.health.GetAll(ctx)
	if err != nil {
		o.logger.Warn("bank health unavailable, assuming healthy",
			slog.String("error", err.Error()),
		)
		health = nil
	}
	return domain.ScoringContext{
		Now:                  o.now(),
		BankHealth:           health,
		CounterpartyCapacity: req.CounterpartyCapacity,
	}
}

// pickAndReserve runs the weighted pick and claims capacity on the
// winner. When the reservation loses a race (another selection filled
// the candidate's cap between snapshot and commit) the candidate is
// dropped from the window and the pick re-runs, a bounded number of
// times.
func (o *Orchestrator) pickAndReserve(
	ctx context.Context,
	scored []domain.ScoredCandidate,
	cfg domain.ScoringConfig,
	reserve func(ctx context.Context, id string) error,
) (*domain.ScoredCandidate, error) {
	for try := 0; try <= reserveRetries; try++ {
		pick := o.selector.Pick(scored, cfg)
		if pick == nil {
			return nil, domain.ErrAllBelowThreshold
		}

		err := reserve(ctx, pick.CandidateID)
		if err == nil {
			return pick, nil
		}
		if !errors.Is(err, domain.ErrCapacityExceeded) {
			return nil, fmt.Errorf("routing: reserve capacity for %s: %w", pick.CandidateID, err)
		}

		o.logger.Info("candidate lost capacity race, repicking",
			slog.String("candidate_id", pick.CandidateID),
		)
		scored = dropCandidate(scored, pick.CandidateID)
	}
	return nil, domain.ErrNoEligibleCandidates
}

// commit persists the audit row, publishes the event, and builds the
// caller-facing result.
func (o *Orchestrator) commit(ctx context.Context, engine string, req Request, pick *domain.ScoredCandidate, attempt int) (domain.SelectionResult, error) {
	audit := domain.SelectionAudit{
		ID:             uuid.New().String(),
		Engine:         engine,
		CandidateID:    pick.CandidateID,
		CounterpartyID: req.CounterpartyID,
		Amount:         req.Amount,
		Score:          pick.Score,
		Breakdown:      pick.Breakdown,
		Summary:        pick.Summary,
		Attempt:        attempt,
		CreatedAt:      o.now(),
	}
	if err := o.audits.Insert(ctx, audit); err != nil {
		return domain.SelectionResult{}, fmt.Errorf("routing: persist selection audit: %w", err)
	}

	if o.events != nil {
		o.events.Publish(domain.Event{
			Type:    "selection",
			At:      audit.CreatedAt,
			Payload: audit,
		})
	}

	o.logger.Info("candidate selected",
		slog.String("engine", engine),
		slog.String("candidate_id", pick.CandidateID),
		slog.Int("score", pick.Score),
		slog.Int("attempt", attempt),
	)

	return domain.SelectionResult{
		CandidateID: pick.CandidateID,
		Name:        pick.Name,
		Score:       pick.Score,
		Attempt:     attempt,
	}, nil
}

func excludeAccounts(accounts []domain.UpiAccount, exclude []string) []domain.UpiAccount {
	if len(exclude) == 0 {
		return accounts
	}
	drop := toSet(exclude)
	out := accounts[:0]
	for _, a := range accounts {
		if !drop[a.ID] {
			out = append(out, a)
		}
	}
	return out
}

func excludeTraders(traders []domain.Trader, exclude []string) []domain.Trader {
	if len(exclude) == 0 {
		return traders
	}
	drop := toSet(exclude)
	out := traders[:0]
	for _, t := range traders {
		if !drop[t.ID] {
			out = append(out, t)
		}
	}
	return out
}

func dropCandidate(scored []domain.ScoredCandidate, id string) []domain.ScoredCandidate {
	out := make([]domain.ScoredCandidate, 0, len(scored))
	for _, c := range scored {
		if c.CandidateID != id {
			out = append(out, c)
		}
	}
	return out
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
