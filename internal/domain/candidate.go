package domain

import "time"

// AmountTier buckets a request amount into a coarse size class. Tier
// boundaries come from ScoringConfig and are inclusive on the upper
// bound of each tier.
type AmountTier string

const (
	TierLow    AmountTier = "low"
	TierMedium AmountTier = "medium"
	TierHigh   AmountTier = "high"
)

// Priority is the admin-assigned routing priority of a trader.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// HealthStatus describes the current health of an upstream bank/PSP.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthDown     HealthStatus = "down"
)

// UpiAccount is a point-in-time snapshot of a pooled receiving account,
// the candidate type for payin routing. The engine never mutates a
// snapshot; stat updates flow through UpiAccountStore after the caller
// reports the transaction outcome.
type UpiAccount struct {
	ID            string
	UpiID         string // display VPA, e.g. merchant@okaxis
	TraderID      string // owning trader
	BankCode      string
	Active        bool
	TraderActive  bool // owner's status, denormalised into the snapshot
	Attempts      int
	Completions   int
	FailuresLastHour int
	LastUsedAt    *time.Time
	DailyUsed     float64
	DailyCap      float64
	InFlight      int
	PreferredTier AmountTier
}

// IsNew reports whether the account has no routing history yet. New
// accounts score with documented defaults instead of erroring out.
func (a UpiAccount) IsNew() bool { return a.Attempts == 0 }

// SuccessRate returns the historical completion ratio in [0,1].
// Callers must check IsNew first; the rate is undefined without history.
func (a UpiAccount) SuccessRate() float64 {
	if a.Attempts == 0 {
		return 0
	}
	return float64(a.Completions) / float64(a.Attempts)
}

// DailyHeadroom is the remaining daily volume allowance.
func (a UpiAccount) DailyHeadroom() float64 { return a.DailyCap - a.DailyUsed }

// Trader is a point-in-time snapshot of a field agent, the candidate
// type for payout routing.
type Trader struct {
	ID                 string
	Name               string
	Active             bool
	Online             bool
	LastActiveAt       *time.Time
	LastAssignedAt     *time.Time
	Attempts           int
	Completions        int
	Cancellations      int
	CancellationsToday int
	// AvgCompletionMinutes is 0 when the trader has no completed payout
	// yet; the speed factor then falls back to its 60% default.
	AvgCompletionMinutes float64
	ConcurrentActive     int
	ConcurrentCap        int
	DailyCount           int
	DailyCountCap        int
	DailyUsed            float64
	DailyCap             float64
	PreferredTier        AmountTier
	Priority             Priority
	// PayoutCommission is the trader's current payout commission rate in
	// percent, used when a payout dispute settles against the trader.
	PayoutCommission float64
}

// IsNew reports whether the trader has no payout history yet.
func (t Trader) IsNew() bool { return t.Attempts == 0 }

// SuccessRate returns the historical completion ratio in [0,1].
func (t Trader) SuccessRate() float64 {
	if t.Attempts == 0 {
		return 0
	}
	return float64(t.Completions) / float64(t.Attempts)
}

// CancellationRate returns the lifetime cancellation ratio in [0,1].
func (t Trader) CancellationRate() float64 {
	if t.Attempts == 0 {
		return 0
	}
	return float64(t.Cancellations) / float64(t.Attempts)
}

// DailyHeadroom is the remaining daily volume allowance.
func (t Trader) DailyHeadroom() float64 { return t.DailyCap - t.DailyUsed }

// ScoringContext carries ambient facts loaded once per selection call
// and shared by every candidate scored in that call.
type ScoringContext struct {
	Now time.Time
	// BankHealth maps bank code to current upstream health. Missing
	// entries score as healthy so a cold cache never blocks routing.
	BankHealth map[string]HealthStatus
	// CounterpartyCapacity is the counterparty's remaining capacity for
	// this request, used by the payin capacity-headroom factor.
	CounterpartyCapacity float64
}

// HealthFor returns the health for a bank code, defaulting to healthy.
func (c ScoringContext) HealthFor(bankCode string) HealthStatus {
	if s, ok := c.BankHealth[bankCode]; ok {
		return s
	}
	return HealthHealthy
}
