package domain

import (
	"math"
	"time"
)

// ChangeType is the direction of a balance mutation.
type ChangeType string

const (
	ChangeCredit ChangeType = "credit"
	ChangeDebit  ChangeType = "debit"
)

// PayoutBreakdown itemises a payout-related debit.
type PayoutBreakdown struct {
	PayoutAmount   float64 `json:"payoutAmount"`
	Commission     float64 `json:"commission"`
	CommissionRate float64 `json:"commissionRate"`
}

// BalanceChange is the settlement engine's computed adjustment to a
// trader balance. The store fills PreviousBalance/NewBalance when it
// applies the change; the invariant newBalance = previousBalance ±
// amount holds exactly, with minor-unit rounding applied once at the
// end of the computation.
type BalanceChange struct {
	EntityType      string // "trader"
	EntityID        string
	Type            ChangeType
	Amount          float64
	Breakdown       *PayoutBreakdown
	PreviousBalance float64
	NewBalance      float64
	Reason          string
}

// TraderBalance is a trader's current settlement balance together with
// the payout commission rate in force.
type TraderBalance struct {
	TraderID         string
	Available        float64
	PayoutCommission float64 // percent
	UpdatedAt        time.Time
}

// RoundMoney rounds to the currency's minor unit (two decimal places).
func RoundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
