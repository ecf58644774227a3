package scoring

import (
	"fmt"

	"github.com/upstreampay/payrouter/internal/domain"
)

// defaultSpeedConfidence is the speed-factor fraction assumed for
// traders who have not completed a payout yet.
const defaultSpeedConfidence = 0.60

// Flat penalties applied on top of the factor sum. All are subtracted.
const (
	penaltyDailyCapReached = 50
	penaltyDailyCapNear    = 20
	penaltyCancellations   = 15
)

func scoreTraderSuccessRate(t domain.Trader, cfg domain.ScoringConfig) factorResult {
	w := cfg.Weight(domain.FactorSuccessRate)
	if t.IsNew() {
		return factorResult{
			name:   domain.FactorSuccessRate,
			points: defaultSuccessRate * w,
			reason: "no history, assuming 80% success",
		}
	}
	rate := t.SuccessRate()
	return factorResult{
		name:   domain.FactorSuccessRate,
		points: rate * w,
		reason: fmt.Sprintf("%.0f%% success over %d payouts", rate*100, t.Attempts),
	}
}

// scoreTraderSpeed buckets the trader's average completion time against
// the configured benchmark breakpoints (fast/good/acceptable minutes).
func scoreTraderSpeed(t domain.Trader, cfg domain.ScoringConfig) factorResult {
	w := cfg.Weight(domain.FactorSpeed)
	if t.AvgCompletionMinutes <= 0 {
		return factorResult{
			name:   domain.FactorSpeed,
			points: defaultSpeedConfidence * w,
			reason: "no completion data, assuming 60%",
		}
	}
	fast, good, acceptable := 5.0, 15.0, 30.0
	if len(cfg.SpeedBreakpoints) >= 3 {
		fast, good, acceptable = cfg.SpeedBreakpoints[0], cfg.SpeedBreakpoints[1], cfg.SpeedBreakpoints[2]
	}
	avg := t.AvgCompletionMinutes
	var frac float64
	switch {
	case avg <= fast:
		frac = 1.0
	case avg <= good:
		frac = 0.8
	case avg <= acceptable:
		frac = 0.5
	default:
		frac = 0.2
	}
	return factorResult{
		name:   domain.FactorSpeed,
		points: frac * w,
		reason: fmt.Sprintf("avg completion %.1f min", avg),
	}
}

// scoreTraderLoad maps current concurrent load onto its weight. A
// trader at or over the concurrent cap scores zero here and is also
// hard-blocked by the pool filter.
func scoreTraderLoad(t domain.Trader, cfg domain.ScoringConfig) factorResult {
	w := cfg.Weight(domain.FactorLoad)
	if t.ConcurrentCap <= 0 || t.ConcurrentActive >= t.ConcurrentCap {
		return factorResult{
			name:   domain.FactorLoad,
			points: 0,
			reason: fmt.Sprintf("at concurrent cap (%d/%d)", t.ConcurrentActive, t.ConcurrentCap),
		}
	}
	if t.ConcurrentActive == 0 {
		return factorResult{name: domain.FactorLoad, points: w, reason: "no active payouts"}
	}
	ratio := float64(t.ConcurrentActive) / float64(t.ConcurrentCap)
	var frac float64
	switch {
	case ratio <= 0.3:
		frac = 0.8
	case ratio <= 0.6:
		frac = 0.5
	default:
		frac = 0.2
	}
	return factorResult{
		name:   domain.FactorLoad,
		points: frac * w,
		reason: fmt.Sprintf("%d of %d concurrent slots busy", t.ConcurrentActive, t.ConcurrentCap),
	}
}

// scoreTraderCancellations buckets the lifetime cancellation rate, with
// a hard zero once today's cancellations reach the configured limit.
func scoreTraderCancellations(t domain.Trader, cfg domain.ScoringConfig) factorResult {
	w := cfg.Weight(domain.FactorCancellationRate)
	if cfg.DailyCancellationLimit > 0 && t.CancellationsToday >= cfg.DailyCancellationLimit {
		return factorResult{
			name:   domain.FactorCancellationRate,
			points: 0,
			reason: fmt.Sprintf("%d cancellations today, at daily limit", t.CancellationsToday),
		}
	}
	rate := t.CancellationRate()
	var frac float64
	switch {
	case rate <= 0.02:
		frac = 1.0
	case rate <= 0.10:
		frac = 0.7
	case rate <= 0.25:
		frac = 0.3
	default:
		frac = 0
	}
	return factorResult{
		name:   domain.FactorCancellationRate,
		points: frac * w,
		reason: fmt.Sprintf("%.1f%% cancellation rate", rate*100),
	}
}

// scoreTraderCooldown rewards elapsed time since the last assignment:
// full weight at twice the cooldown window, 70% at one window, and a
// linear ramp below that. Never-assigned traders get full weight.
func scoreTraderCooldown(t domain.Trader, sc domain.ScoringContext, cfg domain.ScoringConfig) factorResult {
	w := cfg.Weight(domain.FactorCooldown)
	if t.LastAssignedAt == nil {
		return factorResult{name: domain.FactorCooldown, points: w, reason: "never assigned"}
	}
	mins := sc.Now.Sub(*t.LastAssignedAt).Minutes()
	if mins < 0 {
		mins = 0
	}
	window := cfg.CooldownMinutes
	var frac float64
	switch {
	case window <= 0 || mins >= 2*window:
		frac = 1.0
	case mins >= window:
		frac = 0.7
	default:
		frac = 0.7 * (mins / window)
	}
	return factorResult{
		name:   domain.FactorCooldown,
		points: frac * w,
		reason: fmt.Sprintf("last assigned %.0f min ago", mins),
	}
}

// scoreTraderTierMatch gives full weight on an exact amount-tier match
// and 40% otherwise.
func scoreTraderTierMatch(t domain.Trader, amount float64, cfg domain.ScoringConfig) factorResult {
	w := cfg.Weight(domain.FactorTierMatch)
	reqTier := TierFor(amount, cfg)
	if t.PreferredTier == reqTier {
		return factorResult{
			name:   domain.FactorTierMatch,
			points: w,
			reason: fmt.Sprintf("preferred tier matches %s", reqTier),
		}
	}
	return factorResult{
		name:   domain.FactorTierMatch,
		points: w * 0.4,
		reason: fmt.Sprintf("tier mismatch (%s vs %s)", t.PreferredTier, reqTier),
	}
}

// scoreTraderAvailability combines the online flag with activity
// recency. Offline traders and traders silent for an hour score zero.
func scoreTraderAvailability(t domain.Trader, sc domain.ScoringContext, cfg domain.ScoringConfig) factorResult {
	w := cfg.Weight(domain.FactorAvailability)
	if !t.Online || t.LastActiveAt == nil {
		return factorResult{name: domain.FactorAvailability, points: 0, reason: "offline"}
	}
	mins := sc.Now.Sub(*t.LastActiveAt).Minutes()
	var frac float64
	switch {
	case mins < 5:
		frac = 1.0
	case mins < 15:
		frac = 0.7
	case mins < 60:
		frac = 0.3
	default:
		frac = 0
	}
	return factorResult{
		name:   domain.FactorAvailability,
		points: frac * w,
		reason: fmt.Sprintf("online, active %.0f min ago", mins),
	}
}

// scoreTraderPriority maps the admin-set priority tier onto its weight.
// Unrecognised values fall back to normal.
func scoreTraderPriority(t domain.Trader, cfg domain.ScoringConfig) factorResult {
	w := cfg.Weight(domain.FactorPriority)
	var frac float64
	switch t.Priority {
	case domain.PriorityHigh:
		frac = 1.0
	case domain.PriorityLow:
		frac = 0.2
	default:
		frac = 0.6
	}
	return factorResult{
		name:   domain.FactorPriority,
		points: frac * w,
		reason: fmt.Sprintf("priority %s", t.Priority),
	}
}

// traderPenalty sums the flat penalties: hitting the daily payout-count
// cap, approaching it, and repeated same-day cancellations. The daily
// cancellation penalty stacks with the cancellation factor's hard zero.
func traderPenalty(t domain.Trader, cfg domain.ScoringConfig) (float64, []string) {
	var total float64
	var reasons []string

	if t.DailyCountCap > 0 {
		switch {
		case t.DailyCount >= t.DailyCountCap:
			total += penaltyDailyCapReached
			reasons = append(reasons, fmt.Sprintf("daily payout cap reached (%d/%d)", t.DailyCount, t.DailyCountCap))
		case float64(t.DailyCount) >= 0.9*float64(t.DailyCountCap):
			total += penaltyDailyCapNear
			reasons = append(reasons, fmt.Sprintf("near daily payout cap (%d/%d)", t.DailyCount, t.DailyCountCap))
		}
	}
	if cfg.CancellationPenaltyThreshold > 0 && t.CancellationsToday >= cfg.CancellationPenaltyThreshold {
		total += penaltyCancellations
		reasons = append(reasons, fmt.Sprintf("%d cancellations today", t.CancellationsToday))
	}
	return -total, reasons
}
