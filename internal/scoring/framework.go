// Package scoring implements the multi-factor candidate scoring
// framework shared by payin (account) and payout (trader) routing. Each
// factor maps one raw signal onto a fraction of its configured weight;
// the framework sums contributions, applies penalties and an optional
// bounded random perturbation, and clamps the result at zero.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/upstreampay/payrouter/internal/domain"
)

// factorResult is one factor's contribution to a candidate's score.
type factorResult struct {
	name   string
	points float64
	reason string
}

// Scorer scores candidates. It is stateless apart from the injected
// random source and safe for concurrent use when that source is.
type Scorer struct {
	rand domain.RandSource
}

// NewScorer creates a Scorer drawing perturbations from rand.
func NewScorer(rand domain.RandSource) *Scorer {
	return &Scorer{rand: rand}
}

// ScoreAccount scores one payin account candidate against a request.
func (s *Scorer) ScoreAccount(a domain.UpiAccount, amount float64, sc domain.ScoringContext, cfg domain.ScoringConfig) domain.ScoredCandidate {
	factors := []factorResult{
		scoreAccountSuccessRate(a, cfg),
		scoreAccountDailyHeadroom(a, amount, cfg),
		scoreAccountCooldown(a, sc, cfg),
		scoreAccountTierMatch(a, amount, cfg),
		scoreCounterpartyCapacity(amount, sc, cfg),
		scoreBankHealth(a, sc, cfg),
		scoreTimeWindow(a, sc, cfg),
	}
	penalty, penaltyReasons := accountPenalty(a, cfg)
	return s.finalize(a.ID, a.UpiID, factors, penalty, penaltyReasons, cfg)
}

// ScoreTrader scores one payout trader candidate against a request.
func (s *Scorer) ScoreTrader(t domain.Trader, amount float64, sc domain.ScoringContext, cfg domain.ScoringConfig) domain.ScoredCandidate {
	factors := []factorResult{
		scoreTraderSuccessRate(t, cfg),
		scoreTraderSpeed(t, cfg),
		scoreTraderLoad(t, cfg),
		scoreTraderCancellations(t, cfg),
		scoreTraderCooldown(t, sc, cfg),
		scoreTraderTierMatch(t, amount, cfg),
		scoreTraderAvailability(t, sc, cfg),
		scoreTraderPriority(t, cfg),
	}
	penalty, penaltyReasons := traderPenalty(t, cfg)
	return s.finalize(t.ID, t.Name, factors, penalty, penaltyReasons, cfg)
}

// ScoreAccounts scores every account and returns the results sorted by
// score, highest first. Equal scores keep their input order.
func (s *Scorer) ScoreAccounts(accounts []domain.UpiAccount, amount float64, sc domain.ScoringContext, cfg domain.ScoringConfig) []domain.ScoredCandidate {
	scored := make([]domain.ScoredCandidate, 0, len(accounts))
	for _, a := range accounts {
		scored = append(scored, s.ScoreAccount(a, amount, sc, cfg))
	}
	sortByScore(scored)
	return scored
}

// ScoreTraders scores every trader and returns the results sorted by
// score, highest first.
func (s *Scorer) ScoreTraders(traders []domain.Trader, amount float64, sc domain.ScoringContext, cfg domain.ScoringConfig) []domain.ScoredCandidate {
	scored := make([]domain.ScoredCandidate, 0, len(traders))
	for _, t := range traders {
		scored = append(scored, s.ScoreTrader(t, amount, sc, cfg))
	}
	sortByScore(scored)
	return scored
}

func sortByScore(scored []domain.ScoredCandidate) {
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
}

// finalize sums factor contributions, applies the penalty term and the
// optional bounded perturbation, and rounds to a non-negative integer.
func (s *Scorer) finalize(id, name string, factors []factorResult, penalty float64, penaltyReasons []string, cfg domain.ScoringConfig) domain.ScoredCandidate {
	breakdown := make(map[string]float64, len(factors)+2)
	reasons := make([]string, 0, len(factors)+len(penaltyReasons))

	var total float64
	for _, f := range factors {
		breakdown[f.name] = f.points
		reasons = append(reasons, fmt.Sprintf("%s: %.1f (%s)", f.name, f.points, f.reason))
		total += f.points
	}

	if penalty != 0 {
		breakdown[domain.FactorPenalties] = penalty
		for _, r := range penaltyReasons {
			reasons = append(reasons, fmt.Sprintf("penalty: %s", r))
		}
		total += penalty
	}

	if cfg.EnableRandomness && cfg.RandomnessFactor > 0 && total > 0 {
		r := cfg.RandomnessFactor * total
		perturbation := (s.rand.Float64()*2 - 1) * r
		breakdown[domain.FactorRandomness] = perturbation
		total += perturbation
	}

	score := int(math.Round(total))
	if score < 0 {
		score = 0
	}

	return domain.ScoredCandidate{
		CandidateID: id,
		Name:        name,
		Score:       score,
		Breakdown:   breakdown,
		Reasons:     reasons,
		Summary:     fmt.Sprintf("%s scored %d: %s", name, score, strings.Join(reasons, "; ")),
	}
}
