package scoring

import "github.com/upstreampay/payrouter/internal/domain"

// TierFor classifies a request amount into a coarse size tier using the
// configured boundaries. Boundaries are inclusive on the upper bound of
// each tier: an amount exactly at TierLowMax is still low.
func TierFor(amount float64, cfg domain.ScoringConfig) domain.AmountTier {
	switch {
	case amount <= cfg.TierLowMax:
		return domain.TierLow
	case amount <= cfg.TierMediumMax:
		return domain.TierMedium
	default:
		return domain.TierHigh
	}
}

// tiersAdjacent reports whether two tiers sit next to each other in the
// low/medium/high ordering. Low and high are not adjacent.
func tiersAdjacent(a, b domain.AmountTier) bool {
	if a == b {
		return false
	}
	return a == domain.TierMedium || b == domain.TierMedium
}
