package domain

import "time"

// ScoredCandidate is the scoring framework's output for one candidate.
// It is created fresh per selection call and never persisted as mutable
// state; audits copy the fields they need.
type ScoredCandidate struct {
	CandidateID string
	Name        string
	// Score is the final non-negative integer score, post-penalties and
	// post-randomness.
	Score int
	// Breakdown maps factor name to awarded points. The penalties entry
	// is <= 0; the randomness entry records the applied perturbation.
	Breakdown map[string]float64
	// Reasons holds one human-readable line per factor.
	Reasons []string
	// Summary is a one-line digest for logs and audits.
	Summary string
}

// SelectionResult is returned to the caller after a successful
// selection. Attempt is 1-based and counts fallback rounds.
type SelectionResult struct {
	CandidateID string
	Name        string
	Score       int
	Attempt     int
}

// SelectionAudit is the persisted record of one successful selection.
type SelectionAudit struct {
	ID             string
	Engine         string // "payin" or "payout"
	CandidateID    string
	CounterpartyID string
	Amount         float64
	Score          int
	Breakdown      map[string]float64
	Summary        string
	Attempt        int
	CreatedAt      time.Time
}
