// Package dispute implements the settlement engine that adjudicates
// flagged transactions: the trader's response moves a dispute out of
// routed_to_trader, and the administrator's decision terminates it,
// computing the exact balance adjustment from a fixed outcome table.
package dispute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/upstreampay/payrouter/internal/domain"
)

// resolveLockTTL bounds how long a resolution may hold the per-dispute
// lock before it expires on its own.
const resolveLockTTL = 30 * time.Second

// ResponseResult is returned after a trader response is recorded.
type ResponseResult struct {
	DisputeID string
	NewStatus domain.DisputeStatus
}

// ResolutionResult is returned after an administrator resolution.
type ResolutionResult struct {
	DisputeID      string
	Status         domain.DisputeStatus
	BalanceChanges []domain.BalanceChange
	ResolutionText string
}

// Engine adjudicates disputes against the store. Resolutions run under
// a per-dispute distributed lock and a status-guarded transition so a
// dispute settles at most once.
type Engine struct {
	disputes domain.DisputeStore
	balances domain.BalanceStore
	locks    domain.LockManager
	events   domain.EventSink
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine creates a settlement Engine. events may be nil.
func NewEngine(disputes domain.DisputeStore, balances domain.BalanceStore, locks domain.LockManager, events domain.EventSink, logger *slog.Logger) *Engine {
	return &Engine{
		disputes: disputes,
		balances: balances,
		locks:    locks,
		events:   events,
		logger:   logger.With(slog.String("component", "dispute_engine")),
		now:      time.Now,
	}
}

// Open creates a new dispute in routed_to_trader for a flagged
// transaction and returns it.
func (e *Engine) Open(ctx context.Context, typ domain.DisputeType, amount float64, traderID, counterpartyID string) (domain.Dispute, error) {
	if amount <= 0 {
		return domain.Dispute{}, fmt.Errorf("dispute: amount must be positive, got %.2f", amount)
	}
	d := domain.Dispute{
		ID:             uuid.New().String(),
		Type:           typ,
		Amount:         amount,
		TraderID:       traderID,
		CounterpartyID: counterpartyID,
		Status:         domain.DisputeRoutedToTrader,
		CreatedAt:      e.now(),
	}
	if err := e.disputes.Create(ctx, d); err != nil {
		return domain.Dispute{}, fmt.Errorf("dispute: create: %w", err)
	}
	e.logger.Info("dispute opened",
		slog.String("dispute_id", d.ID),
		slog.String("type", string(typ)),
		slog.Float64("amount", amount),
	)
	return d, nil
}

// Get returns one dispute by id.
func (e *Engine) Get(ctx context.Context, disputeID string) (domain.Dispute, error) {
	d, err := e.disputes.GetByID(ctx, disputeID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Dispute{}, domain.ErrDisputeNotFound
		}
		return domain.Dispute{}, fmt.Errorf("dispute: load %s: %w", disputeID, err)
	}
	return d, nil
}

// ProcessTraderResponse records the trader's answer to a routed
// dispute. For payout disputes the verbs are inverted on purpose:
// accepting admits the payout was NOT sent, rejecting claims it was
// sent and should carry a proof reference.
func (e *Engine) ProcessTraderResponse(ctx context.Context, disputeID string, action domain.TraderAction, note, proofRef string) (ResponseResult, error) {
	d, err := e.disputes.GetByID(ctx, disputeID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ResponseResult{}, domain.ErrDisputeNotFound
		}
		return ResponseResult{}, fmt.Errorf("dispute: load %s: %w", disputeID, err)
	}
	if d.Status != domain.DisputeRoutedToTrader {
		return ResponseResult{}, domain.ErrInvalidDisputeTransition
	}

	var to domain.DisputeStatus
	switch action {
	case domain.TraderActionAccept:
		to = domain.DisputeTraderAccepted
	case domain.TraderActionReject:
		to = domain.DisputeTraderRejected
	default:
		return ResponseResult{}, fmt.Errorf("dispute: unknown trader action %q", action)
	}

	if err := e.disputes.SetTraderResponse(ctx, disputeID, domain.DisputeRoutedToTrader, to, note, proofRef, e.now()); err != nil {
		return ResponseResult{}, fmt.Errorf("dispute: record trader response: %w", err)
	}

	e.logger.Info("trader responded to dispute",
		slog.String("dispute_id", disputeID),
		slog.String("action", string(action)),
		slog.String("new_status", string(to)),
	)
	return ResponseResult{DisputeID: disputeID, NewStatus: to}, nil
}

// AdminResolve applies the administrator's decision to a responded
// dispute, computes the balance adjustment from the outcome table,
// applies it atomically, and returns the resolution. Re-invoking on an
// already-terminal dispute fails with ErrInvalidDisputeTransition
// instead of double-settling.
func (e *Engine) AdminResolve(ctx context.Context, disputeID string, decision domain.AdminDecision, note, adminID string) (ResolutionResult, error) {
	unlock, err := e.locks.Acquire(ctx, "dispute:"+disputeID, resolveLockTTL)
	if err != nil {
		return ResolutionResult{}, fmt.Errorf("dispute: lock %s: %w", disputeID, err)
	}
	defer unlock()

	d, err := e.disputes.GetByID(ctx, disputeID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ResolutionResult{}, domain.ErrDisputeNotFound
		}
		return ResolutionResult{}, fmt.Errorf("dispute: load %s: %w", disputeID, err)
	}
	if !d.Status.Responded() {
		return ResolutionResult{}, domain.ErrInvalidDisputeTransition
	}

	var to domain.DisputeStatus
	switch decision {
	case domain.AdminDecisionApprove:
		to = domain.DisputeAdminApproved
	case domain.AdminDecisionReject:
		to = domain.DisputeAdminRejected
	default:
		return ResolutionResult{}, fmt.Errorf("dispute: unknown admin decision %q", decision)
	}

	commissionRate := 0.0
	if d.Type == domain.DisputePayout {
		bal, err := e.balances.Get(ctx, d.TraderID)
		if err != nil {
			return ResolutionResult{}, fmt.Errorf("dispute: load balance for trader %s: %w", d.TraderID, err)
		}
		commissionRate = bal.PayoutCommission
	}

	change, text := settle(d, decision, commissionRate)

	// The guarded transition is the idempotency barrier: it succeeds at
	// most once, so the balance change below cannot be applied twice.
	from := []domain.DisputeStatus{domain.DisputeTraderAccepted, domain.DisputeTraderRejected}
	if err := e.disputes.SetResolution(ctx, disputeID, from, to, adminID, note, e.now()); err != nil {
		return ResolutionResult{}, fmt.Errorf("dispute: record resolution: %w", err)
	}

	result := ResolutionResult{
		DisputeID:      disputeID,
		Status:         to,
		ResolutionText: text,
	}
	if change != nil {
		if err := e.balances.ApplyChange(ctx, change); err != nil {
			// Status already terminal; the balance must be settled by hand.
			e.logger.Error("dispute resolved but balance change failed",
				slog.String("dispute_id", disputeID),
				slog.String("error", err.Error()),
			)
			return ResolutionResult{}, fmt.Errorf("dispute: apply balance change: %w", err)
		}
		result.BalanceChanges = []domain.BalanceChange{*change}
	}

	if e.events != nil {
		e.events.Publish(domain.Event{
			Type:    "dispute_resolved",
			At:      e.now(),
			Payload: result,
		})
	}

	e.logger.Info("dispute resolved",
		slog.String("dispute_id", disputeID),
		slog.String("decision", string(decision)),
		slog.String("status", string(to)),
		slog.Int("balance_changes", len(result.BalanceChanges)),
	)
	return result, nil
}

// settle applies the fixed outcome table and builds the resolution
// sentence. The returned change is nil when the table calls for no
// balance effect. Rounding to the currency's minor unit happens once,
// on the final figure.
func settle(d domain.Dispute, decision domain.AdminDecision, commissionRate float64) (*domain.BalanceChange, string) {
	approved := decision == domain.AdminDecisionApprove
	accepted := d.Status == domain.DisputeTraderAccepted

	if d.Type == domain.DisputePayin {
		switch {
		case accepted && approved:
			// Trader admitted receiving the customer's payment.
			return &domain.BalanceChange{
					EntityType: "trader",
					EntityID:   d.TraderID,
					Type:       domain.ChangeCredit,
					Amount:     domain.RoundMoney(d.Amount),
					Reason:     fmt.Sprintf("payin dispute approved: trader confirmed receipt of %.2f", d.Amount),
				}, fmt.Sprintf("Payin dispute approved; %.2f credited to trader %s.", d.Amount, d.TraderID)
		case accepted && !approved:
			return nil, fmt.Sprintf("Payin dispute for %.2f rejected; no balance change.", d.Amount)
		case !accepted && approved:
			// The trader's denial stands.
			return nil, fmt.Sprintf("Payin dispute for %.2f closed; trader's denial upheld, no balance change.", d.Amount)
		default:
			// Admin rejected the trader's denial: the payment is deemed
			// received despite the trader's claim.
			return &domain.BalanceChange{
					EntityType: "trader",
					EntityID:   d.TraderID,
					Type:       domain.ChangeCredit,
					Amount:     domain.RoundMoney(d.Amount),
					Reason:     fmt.Sprintf("payin dispute: administrator overrode the trader's denial, crediting %.2f", d.Amount),
				}, fmt.Sprintf("Payin dispute settled at %.2f: the administrator overrode the trader's denial and credited the amount to trader %s.", d.Amount, d.TraderID)
		}
	}

	// Payout disputes. "Accept" admits the payout was not sent.
	commission := d.Amount * commissionRate / 100
	debit := domain.RoundMoney(d.Amount + commission)
	breakdown := &domain.PayoutBreakdown{
		PayoutAmount:   d.Amount,
		Commission:     domain.RoundMoney(commission),
		CommissionRate: commissionRate,
	}

	switch {
	case accepted && approved:
		return &domain.BalanceChange{
				EntityType: "trader",
				EntityID:   d.TraderID,
				Type:       domain.ChangeDebit,
				Amount:     debit,
				Breakdown:  breakdown,
				Reason:     fmt.Sprintf("payout dispute approved: trader admitted non-delivery, debiting %.2f (%.2f + %.2f commission)", debit, d.Amount, commission),
			}, fmt.Sprintf("Payout dispute approved; %.2f debited from trader %s.", debit, d.TraderID)
	case accepted && !approved:
		return nil, fmt.Sprintf("Payout dispute for %.2f closed: the administrator overrode the trader's admission, payout deemed sent; no balance change.", d.Amount)
	case !accepted && approved:
		return nil, fmt.Sprintf("Payout dispute for %.2f closed; trader's payment proof accepted, no balance change.", d.Amount)
	default:
		return &domain.BalanceChange{
				EntityType: "trader",
				EntityID:   d.TraderID,
				Type:       domain.ChangeDebit,
				Amount:     debit,
				Breakdown:  breakdown,
				Reason:     fmt.Sprintf("payout dispute: administrator overrode the trader's claim, proof rejected as invalid, debiting %.2f (%.2f + %.2f commission)", debit, d.Amount, commission),
			}, fmt.Sprintf("Payout dispute settled at %.2f: the administrator overrode the trader's claim and rejected the payment proof; trader %s debited.", debit, d.TraderID)
	}
}
