package domain

import "time"

// DisputeType distinguishes the two dispute flows. The agent-response
// semantics are intentionally inverted between them: accepting a payin
// dispute admits the money WAS received, accepting a payout dispute
// admits the money was NOT sent.
type DisputeType string

const (
	DisputePayin  DisputeType = "payin"
	DisputePayout DisputeType = "payout"
)

// DisputeStatus is the dispute state machine:
//
//	routed_to_trader -> trader_accepted | trader_rejected
//	                 -> admin_approved  | admin_rejected (terminal)
type DisputeStatus string

const (
	DisputeRoutedToTrader DisputeStatus = "routed_to_trader"
	DisputeTraderAccepted DisputeStatus = "trader_accepted"
	DisputeTraderRejected DisputeStatus = "trader_rejected"
	DisputeAdminApproved  DisputeStatus = "admin_approved"
	DisputeAdminRejected  DisputeStatus = "admin_rejected"
)

// Terminal reports whether the status admits no further transitions.
func (s DisputeStatus) Terminal() bool {
	return s == DisputeAdminApproved || s == DisputeAdminRejected
}

// Responded reports whether the trader has already answered.
func (s DisputeStatus) Responded() bool {
	return s == DisputeTraderAccepted || s == DisputeTraderRejected
}

// Dispute is a flagged transaction awaiting trader response and
// administrator adjudication. Disputes are never deleted by the
// settlement engine.
type Dispute struct {
	ID             string
	Type           DisputeType
	Amount         float64
	TraderID       string
	CounterpartyID string
	Status         DisputeStatus
	TraderNote     string
	// ProofRef points at the payment proof a trader supplies when
	// rejecting a payout dispute (claiming the payout was sent).
	ProofRef    string
	AdminID     string
	AdminNote   string
	CreatedAt   time.Time
	RespondedAt *time.Time
	ResolvedAt  *time.Time
}

// TraderAction is the trader's answer to a routed dispute.
type TraderAction string

const (
	TraderActionAccept TraderAction = "accept"
	TraderActionReject TraderAction = "reject"
)

// AdminDecision is the administrator's final call on a dispute.
type AdminDecision string

const (
	AdminDecisionApprove AdminDecision = "approve"
	AdminDecisionReject  AdminDecision = "reject"
)
