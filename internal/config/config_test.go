package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upstreampay/payrouter/internal/domain"
)

func TestDefaults_PassValidation(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
}

func TestDefaultScoring_WeightsSumTo100(t *testing.T) {
	for name, sc := range map[string]domain.ScoringConfig{
		"payin":  DefaultPayinScoring(),
		"payout": DefaultPayoutScoring(),
	} {
		var sum float64
		for _, w := range sc.Weights {
			sum += w
		}
		assert.InDelta(t, 100, sum, 1e-9, "%s weights", name)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "batch"
	cfg.LogLevel = "verbose"
	cfg.Postgres.Host = ""
	cfg.Redis.Addr = ""
	cfg.Scoring.Payin.MaxCandidates = 0
	cfg.Scoring.Payout.RandomnessFactor = 1.5

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"unknown mode",
		"unknown log_level",
		"postgres: host",
		"redis: addr",
		"scoring.payin: max_candidates",
		"scoring.payout: randomness_factor",
	} {
		assert.Contains(t, msg, want)
	}
	// Every problem is reported in one pass.
	assert.GreaterOrEqual(t, strings.Count(msg, "\n  - "), 5)
}

func TestValidate_ArchiveRequirementsOnlyWhenEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.S3.Endpoint = ""
	cfg.S3.Bucket = ""
	assert.NoError(t, cfg.Validate(), "s3 settings are optional while archival is off")

	cfg.Archive.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3: endpoint")
	assert.Contains(t, err.Error(), "s3: bucket")
}

func TestValidate_TierBoundaryOrdering(t *testing.T) {
	cfg := Defaults()
	cfg.Scoring.Payin.TierMediumMax = cfg.Scoring.Payin.TierLowMax

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tier boundaries")
}

func TestValidate_EncryptedKeyNeedsPassword(t *testing.T) {
	cfg := Defaults()
	cfg.Webhook.EncryptedKeyPath = "/etc/payrouter/webhook.key"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key_password")
}
