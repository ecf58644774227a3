package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upstreampay/payrouter/internal/domain"
)

// fixedRand always returns the same draw so perturbations are pinned.
type fixedRand struct{ v float64 }

func (r fixedRand) Float64() float64 { return r.v }

func testPayinConfig() domain.ScoringConfig {
	return domain.ScoringConfig{
		Weights: map[string]float64{
			domain.FactorSuccessRate:          25,
			domain.FactorDailyHeadroom:        20,
			domain.FactorCooldown:             15,
			domain.FactorTierMatch:            15,
			domain.FactorCounterpartyCapacity: 10,
			domain.FactorBankHealth:           5,
			domain.FactorTimeWindow:           5,
			domain.FactorRecentFailures:       5,
		},
		MinScore:                     30,
		MaxCandidates:                3,
		ScoreExponent:                2,
		CooldownMinutes:              30,
		DailyCancellationLimit:       5,
		CancellationPenaltyThreshold: 3,
		TierLowMax:                   1000,
		TierMediumMax:                10000,
		SpeedBreakpoints:             []float64{5, 15, 30},
		EnableRandomness:             false,
		RandomnessFactor:             0.10,
	}
}

func testPayoutConfig() domain.ScoringConfig {
	cfg := testPayinConfig()
	cfg.Weights = map[string]float64{
		domain.FactorSuccessRate:      25,
		domain.FactorSpeed:            20,
		domain.FactorLoad:             15,
		domain.FactorCancellationRate: 15,
		domain.FactorCooldown:         10,
		domain.FactorTierMatch:        5,
		domain.FactorAvailability:     5,
		domain.FactorPriority:         5,
	}
	return cfg
}

func idealAccount(now time.Time) domain.UpiAccount {
	return domain.UpiAccount{
		ID:            "acc-1",
		UpiID:         "merchant@okaxis",
		BankCode:      "HDFC",
		Active:        true,
		TraderActive:  true,
		Attempts:      100,
		Completions:   100,
		DailyUsed:     0,
		DailyCap:      100000,
		PreferredTier: domain.TierMedium,
	}
}

func idealTrader(now time.Time) domain.Trader {
	active := now.Add(-1 * time.Minute)
	return domain.Trader{
		ID:                   "tr-1",
		Name:                 "alpha",
		Active:               true,
		Online:               true,
		LastActiveAt:         &active,
		Attempts:             100,
		Completions:          100,
		AvgCompletionMinutes: 4,
		ConcurrentActive:     0,
		ConcurrentCap:        5,
		DailyCountCap:        100,
		DailyCap:             100000,
		PreferredTier:        domain.TierMedium,
		Priority:             domain.PriorityHigh,
	}
}

func TestScoreAccount_PerfectCandidateHitsMaxScore(t *testing.T) {
	now := time.Now()
	cfg := testPayinConfig()
	s := NewScorer(fixedRand{0.5})

	sc := domain.ScoringContext{Now: now, CounterpartyCapacity: 5000}
	got := s.ScoreAccount(idealAccount(now), 5000, sc, cfg)

	// All seven factors at full weight: 25+20+15+15+10+5+5 = 95.
	assert.Equal(t, 95, got.Score)
	assert.Empty(t, got.Breakdown[domain.FactorPenalties])
	assert.Len(t, got.Reasons, 7)
	assert.Equal(t, "acc-1", got.CandidateID)
}

func TestScoreAccount_FactorsStayWithinWeights(t *testing.T) {
	now := time.Now()
	cfg := testPayinConfig()
	s := NewScorer(fixedRand{0.5})
	sc := domain.ScoringContext{
		Now:                  now,
		CounterpartyCapacity: 100,
		BankHealth:           map[string]domain.HealthStatus{"HDFC": domain.HealthDegraded},
	}

	lastUsed := now.Add(-5 * time.Minute)
	a := domain.UpiAccount{
		ID:               "acc-2",
		BankCode:         "HDFC",
		Active:           true,
		TraderActive:     true,
		Attempts:         10,
		Completions:      4,
		FailuresLastHour: 2,
		LastUsedAt:       &lastUsed,
		DailyUsed:        90000,
		DailyCap:         100000,
		PreferredTier:    domain.TierHigh,
	}

	got := s.ScoreAccount(a, 5000, sc, cfg)
	for name, pts := range got.Breakdown {
		if name == domain.FactorPenalties {
			assert.LessOrEqual(t, pts, 0.0, "penalties must never add points")
			continue
		}
		w := cfg.Weights[name]
		assert.GreaterOrEqual(t, pts, 0.0, "factor %s went negative", name)
		assert.LessOrEqual(t, pts, w, "factor %s exceeded its weight", name)
	}
	assert.GreaterOrEqual(t, got.Score, 0)
}

func TestScoreAccount_NewAccountGetsDefaultSuccessRate(t *testing.T) {
	now := time.Now()
	cfg := testPayinConfig()
	s := NewScorer(fixedRand{0.5})

	a := idealAccount(now)
	a.Attempts = 0
	a.Completions = 0

	got := s.ScoreAccount(a, 5000, domain.ScoringContext{Now: now, CounterpartyCapacity: 5000}, cfg)
	assert.InDelta(t, 0.80*25, got.Breakdown[domain.FactorSuccessRate], 1e-9)
}

func TestScoreAccount_RecentFailuresPenalty(t *testing.T) {
	now := time.Now()
	cfg := testPayinConfig()
	s := NewScorer(fixedRand{0.5})
	sc := domain.ScoringContext{Now: now, CounterpartyCapacity: 5000}

	tests := []struct {
		name     string
		failures int
		penalty  float64
	}{
		{"no failures", 0, 0},
		{"two failures", 2, -2},
		{"five failures", 5, -5},
		{"capped at five", 9, -5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := idealAccount(now)
			a.FailuresLastHour = tt.failures
			got := s.ScoreAccount(a, 5000, sc, cfg)
			assert.InDelta(t, tt.penalty, got.Breakdown[domain.FactorPenalties], 1e-9)
		})
	}
}

func TestScoreAccount_MaintenanceWindowZeroesTimeFactor(t *testing.T) {
	now := time.Date(2026, 3, 10, 23, 45, 0, 0, time.UTC)
	cfg := testPayinConfig()
	cfg.MaintenanceWindows = map[string][]domain.TimeWindow{
		"HDFC": {{Start: "23:30", End: "00:30"}},
	}
	s := NewScorer(fixedRand{0.5})

	got := s.ScoreAccount(idealAccount(now), 5000, domain.ScoringContext{Now: now, CounterpartyCapacity: 5000}, cfg)
	assert.Zero(t, got.Breakdown[domain.FactorTimeWindow])
}

func TestScoreAccount_BankHealthBuckets(t *testing.T) {
	now := time.Now()
	cfg := testPayinConfig()
	s := NewScorer(fixedRand{0.5})

	tests := []struct {
		name   string
		health domain.HealthStatus
		points float64
	}{
		{"healthy", domain.HealthHealthy, 5},
		{"degraded", domain.HealthDegraded, 1.5},
		{"down", domain.HealthDown, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := domain.ScoringContext{
				Now:                  now,
				CounterpartyCapacity: 5000,
				BankHealth:           map[string]domain.HealthStatus{"HDFC": tt.health},
			}
			got := s.ScoreAccount(idealAccount(now), 5000, sc, cfg)
			assert.InDelta(t, tt.points, got.Breakdown[domain.FactorBankHealth], 1e-9)
		})
	}
}

func TestScoreTrader_PerfectCandidateHitsMaxScore(t *testing.T) {
	now := time.Now()
	cfg := testPayoutConfig()
	s := NewScorer(fixedRand{0.5})

	got := s.ScoreTrader(idealTrader(now), 5000, domain.ScoringContext{Now: now}, cfg)
	// 25+20+15+15+10+5+5+5 = 100.
	assert.Equal(t, 100, got.Score)
}

func TestScoreTrader_DailyCancellationLimitZeroesFactor(t *testing.T) {
	now := time.Now()
	cfg := testPayoutConfig()
	s := NewScorer(fixedRand{0.5})

	tr := idealTrader(now)
	tr.CancellationsToday = cfg.DailyCancellationLimit

	got := s.ScoreTrader(tr, 5000, domain.ScoringContext{Now: now}, cfg)
	assert.Zero(t, got.Breakdown[domain.FactorCancellationRate])
	// Past the penalty threshold too: flat 15-point deduction.
	assert.InDelta(t, -15, got.Breakdown[domain.FactorPenalties], 1e-9)
}

func TestScoreTrader_DailyCapPenalties(t *testing.T) {
	now := time.Now()
	cfg := testPayoutConfig()
	s := NewScorer(fixedRand{0.5})

	tests := []struct {
		name    string
		count   int
		cap     int
		penalty float64
	}{
		{"well under cap", 10, 100, 0},
		{"near cap", 91, 100, -20},
		{"at cap", 100, 100, -50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := idealTrader(now)
			tr.DailyCount = tt.count
			tr.DailyCountCap = tt.cap
			got := s.ScoreTrader(tr, 5000, domain.ScoringContext{Now: now}, cfg)
			assert.InDelta(t, tt.penalty, got.Breakdown[domain.FactorPenalties], 1e-9)
		})
	}
}

func TestScoreTrader_OfflineScoresZeroAvailability(t *testing.T) {
	now := time.Now()
	cfg := testPayoutConfig()
	s := NewScorer(fixedRand{0.5})

	tr := idealTrader(now)
	tr.Online = false

	got := s.ScoreTrader(tr, 5000, domain.ScoringContext{Now: now}, cfg)
	assert.Zero(t, got.Breakdown[domain.FactorAvailability])
}

func TestFinalize_ScoreNeverNegative(t *testing.T) {
	now := time.Now()
	cfg := testPayoutConfig()
	s := NewScorer(fixedRand{0.5})

	// Everything bad at once: offline, slow, cancel-happy, capped out.
	tr := domain.Trader{
		ID:                   "tr-bad",
		Name:                 "omega",
		Active:               true,
		Attempts:             100,
		Completions:          40,
		Cancellations:        40,
		CancellationsToday:   10,
		AvgCompletionMinutes: 90,
		ConcurrentActive:     5,
		ConcurrentCap:        5,
		DailyCount:           100,
		DailyCountCap:        100,
		PreferredTier:        domain.TierHigh,
		Priority:             domain.PriorityLow,
	}

	got := s.ScoreTrader(tr, 500, domain.ScoringContext{Now: now}, cfg)
	assert.GreaterOrEqual(t, got.Score, 0)
}

func TestFinalize_RandomnessBounded(t *testing.T) {
	now := time.Now()
	cfg := testPayinConfig()
	cfg.EnableRandomness = true
	cfg.RandomnessFactor = 0.10
	sc := domain.ScoringContext{Now: now, CounterpartyCapacity: 5000}

	// Base total without randomness is 95.
	base := 95.0

	tests := []struct {
		name string
		draw float64
		want float64
	}{
		{"minimum draw", 0, -base * 0.10},
		{"midpoint draw", 0.5, 0},
		{"maximum-ish draw", 0.9999, base * 0.10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScorer(fixedRand{tt.draw})
			got := s.ScoreAccount(idealAccount(now), 5000, sc, cfg)
			perturbation := got.Breakdown[domain.FactorRandomness]
			assert.InDelta(t, tt.want, perturbation, base*0.10*0.001+1e-9)
			assert.LessOrEqual(t, perturbation, base*0.10)
			assert.GreaterOrEqual(t, perturbation, -base*0.10)
		})
	}
}

func TestScoreAccounts_SortedByScoreDescending(t *testing.T) {
	now := time.Now()
	cfg := testPayinConfig()
	s := NewScorer(fixedRand{0.5})
	sc := domain.ScoringContext{Now: now, CounterpartyCapacity: 5000}

	weak := idealAccount(now)
	weak.ID = "acc-weak"
	weak.Completions = 50
	weak.DailyUsed = 95000

	mid := idealAccount(now)
	mid.ID = "acc-mid"
	mid.Completions = 80

	accounts := []domain.UpiAccount{weak, mid, idealAccount(now)}
	scored := s.ScoreAccounts(accounts, 3000, sc, cfg)

	require.Len(t, scored, 3)
	for i := 1; i < len(scored); i++ {
		assert.GreaterOrEqual(t, scored[i-1].Score, scored[i].Score)
	}
	assert.Equal(t, "acc-1", scored[0].CandidateID)
}
