package scoring

import (
	"fmt"

	"github.com/upstreampay/payrouter/internal/domain"
)

// defaultSuccessRate is assumed for candidates with no routing history,
// keeping new accounts and traders eligible.
const defaultSuccessRate = 0.80

// scoreAccountSuccessRate maps the historical completion ratio onto the
// success-rate weight. Accounts with no history get the 80% default.
func scoreAccountSuccessRate(a domain.UpiAccount, cfg domain.ScoringConfig) factorResult {
	w := cfg.Weight(domain.FactorSuccessRate)
	if a.IsNew() {
		return factorResult{
			name:   domain.FactorSuccessRate,
			points: defaultSuccessRate * w,
			reason: "no history, assuming 80% success",
		}
	}
	rate := a.SuccessRate()
	return factorResult{
		name:   domain.FactorSuccessRate,
		points: rate * w,
		reason: fmt.Sprintf("%.0f%% success over %d attempts", rate*100, a.Attempts),
	}
}

// scoreAccountDailyHeadroom rewards accounts with room left under their
// daily volume cap. An account whose headroom cannot even hold the
// requested amount contributes nothing; the pool filter normally drops
// those before scoring, this is the in-factor guard.
func scoreAccountDailyHeadroom(a domain.UpiAccount, amount float64, cfg domain.ScoringConfig) factorResult {
	w := cfg.Weight(domain.FactorDailyHeadroom)
	headroom := a.DailyHeadroom()
	if headroom < amount || a.DailyCap <= 0 {
		return factorResult{
			name:   domain.FactorDailyHeadroom,
			points: 0,
			reason: fmt.Sprintf("headroom %.0f below request %.0f", headroom, amount),
		}
	}
	frac := headroom / a.DailyCap
	if frac > 1 {
		frac = 1
	}
	return factorResult{
		name:   domain.FactorDailyHeadroom,
		points: frac * w,
		reason: fmt.Sprintf("%.0f%% of daily cap remaining", frac*100),
	}
}

// scoreAccountCooldown ramps from zero to full weight as the minutes
// since last use approach the configured cooldown window. Never-used
// accounts get full weight.
func scoreAccountCooldown(a domain.UpiAccount, sc domain.ScoringContext, cfg domain.ScoringConfig) factorResult {
	w := cfg.Weight(domain.FactorCooldown)
	if a.LastUsedAt == nil {
		return factorResult{name: domain.FactorCooldown, points: w, reason: "never used"}
	}
	mins := sc.Now.Sub(*a.LastUsedAt).Minutes()
	if mins < 0 {
		mins = 0
	}
	frac := 1.0
	if cfg.CooldownMinutes > 0 {
		frac = mins / cfg.CooldownMinutes
		if frac > 1 {
			frac = 1
		}
	}
	return factorResult{
		name:   domain.FactorCooldown,
		points: frac * w,
		reason: fmt.Sprintf("idle %.0f min", mins),
	}
}

// scoreAccountTierMatch compares the account's preferred amount tier to
// the request's tier: full weight on a match, half on an adjacent tier,
// nothing otherwise.
func scoreAccountTierMatch(a domain.UpiAccount, amount float64, cfg domain.ScoringConfig) factorResult {
	w := cfg.Weight(domain.FactorTierMatch)
	reqTier := TierFor(amount, cfg)
	switch {
	case a.PreferredTier == reqTier:
		return factorResult{
			name:   domain.FactorTierMatch,
			points: w,
			reason: fmt.Sprintf("preferred tier matches %s", reqTier),
		}
	case tiersAdjacent(a.PreferredTier, reqTier):
		return factorResult{
			name:   domain.FactorTierMatch,
			points: w * 0.5,
			reason: fmt.Sprintf("adjacent tier (%s vs %s)", a.PreferredTier, reqTier),
		}
	default:
		return factorResult{
			name:   domain.FactorTierMatch,
			points: 0,
			reason: fmt.Sprintf("tier mismatch (%s vs %s)", a.PreferredTier, reqTier),
		}
	}
}

// scoreCounterpartyCapacity rewards requests well inside the
// counterparty's remaining capacity.
func scoreCounterpartyCapacity(amount float64, sc domain.ScoringContext, cfg domain.ScoringConfig) factorResult {
	w := cfg.Weight(domain.FactorCounterpartyCapacity)
	if amount <= 0 {
		return factorResult{name: domain.FactorCounterpartyCapacity, points: w, reason: "zero amount"}
	}
	frac := sc.CounterpartyCapacity / amount
	if frac > 1 {
		frac = 1
	}
	if frac < 0 {
		frac = 0
	}
	return factorResult{
		name:   domain.FactorCounterpartyCapacity,
		points: frac * w,
		reason: fmt.Sprintf("counterparty capacity %.0f for request %.0f", sc.CounterpartyCapacity, amount),
	}
}

// scoreBankHealth maps the account's upstream bank health onto its
// weight: full when healthy, 30% degraded, nothing when down.
func scoreBankHealth(a domain.UpiAccount, sc domain.ScoringContext, cfg domain.ScoringConfig) factorResult {
	w := cfg.Weight(domain.FactorBankHealth)
	health := sc.HealthFor(a.BankCode)
	var frac float64
	switch health {
	case domain.HealthHealthy:
		frac = 1
	case domain.HealthDegraded:
		frac = 0.3
	case domain.HealthDown:
		frac = 0
	default:
		frac = 1
	}
	return factorResult{
		name:   domain.FactorBankHealth,
		points: frac * w,
		reason: fmt.Sprintf("bank %s is %s", a.BankCode, health),
	}
}

// scoreTimeWindow awards full weight unless the account's bank is
// inside a declared maintenance window right now.
func scoreTimeWindow(a domain.UpiAccount, sc domain.ScoringContext, cfg domain.ScoringConfig) factorResult {
	w := cfg.Weight(domain.FactorTimeWindow)
	for _, win := range cfg.MaintenanceWindows[a.BankCode] {
		if win.Contains(sc.Now) {
			return factorResult{
				name:   domain.FactorTimeWindow,
				points: 0,
				reason: fmt.Sprintf("bank %s in maintenance %s-%s", a.BankCode, win.Start, win.End),
			}
		}
	}
	return factorResult{name: domain.FactorTimeWindow, points: w, reason: "outside maintenance windows"}
}

// accountPenalty is the recent-failure penalty: each failure in the
// last hour costs a fifth of the recent-failures weight, capped at five
// failures. Returned as a non-positive value.
func accountPenalty(a domain.UpiAccount, cfg domain.ScoringConfig) (float64, []string) {
	failures := a.FailuresLastHour
	if failures <= 0 {
		return 0, nil
	}
	if failures > 5 {
		failures = 5
	}
	w := cfg.Weight(domain.FactorRecentFailures)
	p := float64(failures) * (w / 5)
	return -p, []string{fmt.Sprintf("%d failures in the last hour", a.FailuresLastHour)}
}
