package selection

import (
	"math"

	"github.com/upstreampay/payrouter/internal/domain"
)

// Selector picks one candidate from a score-sorted list with
// probability proportional to score^exponent, restricted to a top-N
// window above a minimum-score floor.
type Selector struct {
	rand domain.RandSource
}

// NewSelector creates a Selector drawing from rand.
func NewSelector(rand domain.RandSource) *Selector {
	return &Selector{rand: rand}
}

// Pick returns the chosen candidate, or nil when no candidate clears
// the minimum score. The input must already be sorted by descending
// score. With a random source pinned at 0, Pick always returns the
// top-scored candidate in the window.
func (s *Selector) Pick(scored []domain.ScoredCandidate, cfg domain.ScoringConfig) *domain.ScoredCandidate {
	window := make([]domain.ScoredCandidate, 0, len(scored))
	for _, c := range scored {
		if c.Score < cfg.MinScore {
			continue
		}
		window = append(window, c)
	}
	if len(window) == 0 {
		return nil
	}
	if len(window) == 1 {
		return &window[0]
	}
	if cfg.MaxCandidates > 0 && len(window) > cfg.MaxCandidates {
		window = window[:cfg.MaxCandidates]
	}

	exponent := cfg.ScoreExponent
	if exponent <= 0 {
		exponent = 1
	}

	// Exponentiated scores as draw weights. A zero score still gets
	// weight 1 so every windowed candidate keeps a nonzero chance.
	weights := make([]float64, len(window))
	var totalWeight float64
	for i, c := range window {
		base := float64(c.Score)
		if base < 1 {
			base = 1
		}
		weights[i] = math.Pow(base, exponent)
		totalWeight += weights[i]
	}

	// Single uniform draw walked over the cumulative weights.
	target := s.rand.Float64() * totalWeight
	var cum float64
	for i := range window {
		cum += weights[i]
		if target < cum {
			return &window[i]
		}
	}
	// Floating-point edge: the draw landed exactly on the total.
	return &window[len(window)-1]
}
