package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func baseConfig() ScoringConfig {
	return ScoringConfig{
		Weights: map[string]float64{
			FactorSuccessRate: 25,
			FactorCooldown:    15,
		},
		MinScore:         30,
		MaxCandidates:    3,
		ScoreExponent:    2,
		CooldownMinutes:  30,
		TierLowMax:       1000,
		TierMediumMax:    10000,
		SpeedBreakpoints: []float64{5, 15, 30},
		MaintenanceWindows: map[string][]TimeWindow{
			"HDFC": {{Start: "23:30", End: "00:30"}},
		},
		EnableRandomness: true,
		RandomnessFactor: 0.10,
	}
}

func TestMerge_NilOverrideCopiesDefaults(t *testing.T) {
	cfg := baseConfig()
	merged := cfg.Merge(nil)

	assert.Equal(t, cfg.MinScore, merged.MinScore)
	assert.Equal(t, cfg.Weights, merged.Weights)

	// Mutating the merged copy must not leak back into the defaults.
	merged.Weights[FactorSuccessRate] = 1
	merged.MaintenanceWindows["HDFC"][0].Start = "00:00"
	merged.SpeedBreakpoints[0] = 99

	assert.Equal(t, 25.0, cfg.Weights[FactorSuccessRate])
	assert.Equal(t, "23:30", cfg.MaintenanceWindows["HDFC"][0].Start)
	assert.Equal(t, 5.0, cfg.SpeedBreakpoints[0])
}

func TestMerge_SparseOverride(t *testing.T) {
	cfg := baseConfig()
	minScore := 50
	exponent := 3.0
	randomness := false

	merged := cfg.Merge(&ScoringOverride{
		Weights:          map[string]float64{FactorCooldown: 5},
		MinScore:         &minScore,
		ScoreExponent:    &exponent,
		EnableRandomness: &randomness,
	})

	assert.Equal(t, 50, merged.MinScore)
	assert.Equal(t, 3.0, merged.ScoreExponent)
	assert.False(t, merged.EnableRandomness)
	assert.Equal(t, 5.0, merged.Weights[FactorCooldown])
	// Untouched fields keep the defaults.
	assert.Equal(t, 25.0, merged.Weights[FactorSuccessRate])
	assert.Equal(t, 3, merged.MaxCandidates)
	assert.Equal(t, 30.0, merged.CooldownMinutes)

	// The defaults themselves stay intact.
	assert.Equal(t, 30, cfg.MinScore)
	assert.Equal(t, 15.0, cfg.Weights[FactorCooldown])
}

func TestTimeWindow_Contains(t *testing.T) {
	day := func(h, m int) time.Time {
		return time.Date(2026, 3, 10, h, m, 0, 0, time.UTC)
	}

	tests := []struct {
		name   string
		window TimeWindow
		at     time.Time
		want   bool
	}{
		{"inside plain window", TimeWindow{Start: "09:00", End: "17:00"}, day(12, 0), true},
		{"before plain window", TimeWindow{Start: "09:00", End: "17:00"}, day(8, 59), false},
		{"boundary start", TimeWindow{Start: "09:00", End: "17:00"}, day(9, 0), true},
		{"boundary end", TimeWindow{Start: "09:00", End: "17:00"}, day(17, 0), true},
		{"wrapping window late side", TimeWindow{Start: "23:30", End: "00:30"}, day(23, 45), true},
		{"wrapping window early side", TimeWindow{Start: "23:30", End: "00:30"}, day(0, 15), true},
		{"outside wrapping window", TimeWindow{Start: "23:30", End: "00:30"}, day(12, 0), false},
		{"malformed times never match", TimeWindow{Start: "25:99", End: "xx"}, day(12, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.window.Contains(tt.at))
		})
	}
}

func TestRoundMoney(t *testing.T) {
	assert.Equal(t, 10.23, RoundMoney(10.234))
	assert.Equal(t, 10.24, RoundMoney(10.235000001))
	assert.Equal(t, -3.33, RoundMoney(-3.333))
	assert.Equal(t, 0.0, RoundMoney(0))
}
