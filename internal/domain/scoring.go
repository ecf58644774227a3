package domain

import (
	"time"
)

// Factor names used as weight keys and breakdown keys. The penalties
// key only ever appears in breakdowns; it carries no weight.
const (
	FactorSuccessRate          = "success_rate"
	FactorDailyHeadroom        = "daily_headroom"
	FactorCooldown             = "cooldown"
	FactorTierMatch            = "tier_match"
	FactorCounterpartyCapacity = "counterparty_capacity"
	FactorBankHealth           = "bank_health"
	FactorTimeWindow           = "time_window"
	FactorRecentFailures       = "recent_failures"
	FactorSpeed                = "speed"
	FactorLoad                 = "load"
	FactorCancellationRate     = "cancellation_rate"
	FactorAvailability         = "availability"
	FactorPriority             = "priority"
	FactorPenalties            = "penalties"
	FactorRandomness           = "randomness"
)

// TimeWindow is a daily maintenance window in "HH:MM" wall-clock form.
// Windows that cross midnight (start > end) wrap to the next day.
type TimeWindow struct {
	Start string `toml:"start" json:"start"`
	End   string `toml:"end" json:"end"`
}

// Contains reports whether t falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	start, err1 := time.Parse("15:04", w.Start)
	end, err2 := time.Parse("15:04", w.End)
	if err1 != nil || err2 != nil {
		return false
	}
	mins := t.Hour()*60 + t.Minute()
	s := start.Hour()*60 + start.Minute()
	e := end.Hour()*60 + end.Minute()
	if s <= e {
		return mins >= s && mins <= e
	}
	return mins >= s || mins <= e
}

// ScoringConfig parameterises one selection call. A merged config is
// immutable for the duration of the call; concurrent calls may carry
// different merged configs.
type ScoringConfig struct {
	// Weights maps factor name to its maximum point contribution.
	Weights map[string]float64 `toml:"weights" json:"weights"`
	// MinScore is the eligibility floor applied by the selector.
	MinScore int `toml:"min_score" json:"min_score"`
	// MaxCandidates bounds the weighted-random selection window.
	MaxCandidates int `toml:"max_candidates" json:"max_candidates"`
	// ScoreExponent controls how strongly the random pick favours high
	// scores (weight = score^exponent).
	ScoreExponent float64 `toml:"score_exponent" json:"score_exponent"`
	// CooldownMinutes is the reuse cooldown window.
	CooldownMinutes float64 `toml:"cooldown_minutes" json:"cooldown_minutes"`
	// DailyCancellationLimit zeroes the cancellation factor once a
	// trader hits this many cancellations today.
	DailyCancellationLimit int `toml:"daily_cancellation_limit" json:"daily_cancellation_limit"`
	// CancellationPenaltyThreshold is the today-cancellation count at
	// which the flat cancellation penalty applies.
	CancellationPenaltyThreshold int `toml:"cancellation_penalty_threshold" json:"cancellation_penalty_threshold"`
	// Amount tier boundaries, inclusive on the upper bound.
	TierLowMax    float64 `toml:"tier_low_max" json:"tier_low_max"`
	TierMediumMax float64 `toml:"tier_medium_max" json:"tier_medium_max"`
	// SpeedBreakpoints are the completion-minute benchmarks for the
	// trader speed factor, ascending: full / good / acceptable.
	SpeedBreakpoints []float64 `toml:"speed_breakpoints" json:"speed_breakpoints"`
	// MaintenanceWindows maps bank code to declared maintenance windows
	// during which accounts on that bank lose the time-window factor.
	MaintenanceWindows map[string][]TimeWindow `toml:"maintenance_windows" json:"maintenance_windows"`
	// EnableRandomness toggles the additive scoring perturbation.
	EnableRandomness bool `toml:"enable_randomness" json:"enable_randomness"`
	// RandomnessFactor is the perturbation magnitude as a fraction of
	// the pre-randomness total.
	RandomnessFactor float64 `toml:"randomness_factor" json:"randomness_factor"`
	// EnableFallback toggles retry-with-exclusions after a reported
	// transaction failure.
	EnableFallback      bool `toml:"enable_fallback" json:"enable_fallback"`
	MaxFallbackAttempts int  `toml:"max_fallback_attempts" json:"max_fallback_attempts"`
}

// Weight returns the configured weight for a factor, 0 when unset.
func (c ScoringConfig) Weight(factor string) float64 { return c.Weights[factor] }

// ScoringOverride is a sparse, externally stored override merged over a
// default ScoringConfig. Nil pointers and missing map keys leave the
// default untouched.
type ScoringOverride struct {
	Weights                      map[string]float64      `json:"weights,omitempty"`
	MinScore                     *int                    `json:"min_score,omitempty"`
	MaxCandidates                *int                    `json:"max_candidates,omitempty"`
	ScoreExponent                *float64                `json:"score_exponent,omitempty"`
	CooldownMinutes              *float64                `json:"cooldown_minutes,omitempty"`
	DailyCancellationLimit       *int                    `json:"daily_cancellation_limit,omitempty"`
	CancellationPenaltyThreshold *int                    `json:"cancellation_penalty_threshold,omitempty"`
	TierLowMax                   *float64                `json:"tier_low_max,omitempty"`
	TierMediumMax                *float64                `json:"tier_medium_max,omitempty"`
	SpeedBreakpoints             []float64               `json:"speed_breakpoints,omitempty"`
	MaintenanceWindows           map[string][]TimeWindow `json:"maintenance_windows,omitempty"`
	EnableRandomness             *bool                   `json:"enable_randomness,omitempty"`
	RandomnessFactor             *float64                `json:"randomness_factor,omitempty"`
	EnableFallback               *bool                   `json:"enable_fallback,omitempty"`
	MaxFallbackAttempts          *int                    `json:"max_fallback_attempts,omitempty"`
}

// Merge returns a copy of c with the override applied. The receiver is
// never mutated: maps are copied before overlaying so the default stays
// reusable across calls.
func (c ScoringConfig) Merge(o *ScoringOverride) ScoringConfig {
	out := c

	out.Weights = make(map[string]float64, len(c.Weights))
	for k, v := range c.Weights {
		out.Weights[k] = v
	}
	out.MaintenanceWindows = make(map[string][]TimeWindow, len(c.MaintenanceWindows))
	for k, v := range c.MaintenanceWindows {
		out.MaintenanceWindows[k] = append([]TimeWindow(nil), v...)
	}
	out.SpeedBreakpoints = append([]float64(nil), c.SpeedBreakpoints...)

	if o == nil {
		return out
	}

	for k, v := range o.Weights {
		out.Weights[k] = v
	}
	for k, v := range o.MaintenanceWindows {
		out.MaintenanceWindows[k] = append([]TimeWindow(nil), v...)
	}
	if o.MinScore != nil {
		out.MinScore = *o.MinScore
	}
	if o.MaxCandidates != nil {
		out.MaxCandidates = *o.MaxCandidates
	}
	if o.ScoreExponent != nil {
		out.ScoreExponent = *o.ScoreExponent
	}
	if o.CooldownMinutes != nil {
		out.CooldownMinutes = *o.CooldownMinutes
	}
	if o.DailyCancellationLimit != nil {
		out.DailyCancellationLimit = *o.DailyCancellationLimit
	}
	if o.CancellationPenaltyThreshold != nil {
		out.CancellationPenaltyThreshold = *o.CancellationPenaltyThreshold
	}
	if o.TierLowMax != nil {
		out.TierLowMax = *o.TierLowMax
	}
	if o.TierMediumMax != nil {
		out.TierMediumMax = *o.TierMediumMax
	}
	if len(o.SpeedBreakpoints) > 0 {
		out.SpeedBreakpoints = append([]float64(nil), o.SpeedBreakpoints...)
	}
	if o.EnableRandomness != nil {
		out.EnableRandomness = *o.EnableRandomness
	}
	if o.RandomnessFactor != nil {
		out.RandomnessFactor = *o.RandomnessFactor
	}
	if o.EnableFallback != nil {
		out.EnableFallback = *o.EnableFallback
	}
	if o.MaxFallbackAttempts != nil {
		out.MaxFallbackAttempts = *o.MaxFallbackAttempts
	}
	return out
}

// RandSource yields uniform draws in [0,1). Both the scoring
// perturbation and the selector's weighted draw go through this
// interface so tests can pin outcomes. *math/rand.Rand satisfies it.
type RandSource interface {
	Float64() float64
}
