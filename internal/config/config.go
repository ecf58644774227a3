// Package config defines the top-level configuration for the payment
// router and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/upstreampay/payrouter/internal/domain"
)

// Config is the root configuration structure. Fields are populated from
// a TOML file and then optionally overridden by PAYROUTER_* environment
// variables.
type Config struct {
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Scoring  ScoringSection `toml:"scoring"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Webhook  WebhookConfig  `toml:"webhook"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	// HealthTTLSeconds bounds how long a cached bank-health status is
	// trusted before it expires and reads fall back to healthy.
	HealthTTLSeconds int `toml:"health_ttl_seconds"`
}

// S3Config holds S3-compatible object storage parameters for the audit
// archiver.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ScoringSection carries the built-in scoring defaults for both routing
// engines. Stored per-engine overrides merge over these at call time.
type ScoringSection struct {
	Payin  domain.ScoringConfig `toml:"payin"`
	Payout domain.ScoringConfig `toml:"payout"`
}

// ArchiveConfig holds audit-archival parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
	BatchSize     int      `toml:"batch_size"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimitPerMinute caps API requests per client key; 0 disables.
	RateLimitPerMinute int `toml:"rate_limit_per_minute"`
}

// WebhookConfig holds the signing secret handed to downstream webhook
// consumers. The secret can live in an encrypted key file produced by
// the crypto package.
type WebhookConfig struct {
	// Endpoints receive signed JSON deliveries of the listed event
	// types. Empty Events forwards everything.
	Endpoints        []string `toml:"endpoints"`
	Events           []string `toml:"events"`
	SigningKey       string   `toml:"signing_key"`
	EncryptedKeyPath string   `toml:"encrypted_key_path"`
	KeyPassword      string   `toml:"key_password"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "1h", "30m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder
// can parse duration strings.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultPayinScoring returns the built-in factor weights and knobs for
// payin account selection.
func DefaultPayinScoring() domain.ScoringConfig {
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
		TierLowMax:                   1_000,
		TierMediumMax:                10_000,
		SpeedBreakpoints:             []float64{5, 15, 30},
		MaintenanceWindows:           map[string][]domain.TimeWindow{},
		EnableRandomness:             true,
		RandomnessFactor:             0.10,
		EnableFallback:               true,
		MaxFallbackAttempts:          3,
	}
}

// DefaultPayoutScoring returns the built-in factor weights and knobs
// for payout trader selection. The non-weight knobs match the payin
// defaults.
func DefaultPayoutScoring() domain.ScoringConfig {
	cfg := DefaultPayinScoring()
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

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "payrouter",
			User:          "payrouter",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:             "localhost:6379",
			DB:               0,
			PoolSize:         20,
			MaxRetries:       3,
			TLSEnabled:       false,
			HealthTTLSeconds: 120,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "ap-south-1",
			Bucket:         "payrouter-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Scoring: ScoringSection{
			Payin:  DefaultPayinScoring(),
			Payout: DefaultPayoutScoring(),
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{6 * time.Hour},
			BatchSize:     5_000,
		},
		Server: ServerConfig{
			Enabled:            true,
			Port:               8000,
			CORSOrigins:        []string{"http://localhost:3000"},
			RateLimitPerMinute: 300,
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":  true,
	"archive": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, archive, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 / archive settings are only required when archival is on.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be positive")
		}
	}

	// Scoring
	for engine, sc := range map[string]domain.ScoringConfig{
		"scoring.payin":  c.Scoring.Payin,
		"scoring.payout": c.Scoring.Payout,
	} {
		for factor, w := range sc.Weights {
			if w < 0 {
				errs = append(errs, fmt.Sprintf("%s: weight %s must not be negative", engine, factor))
			}
		}
		if sc.MinScore < 0 {
			errs = append(errs, fmt.Sprintf("%s: min_score must not be negative", engine))
		}
		if sc.MaxCandidates < 1 {
			errs = append(errs, fmt.Sprintf("%s: max_candidates must be >= 1", engine))
		}
		if sc.ScoreExponent <= 0 {
			errs = append(errs, fmt.Sprintf("%s: score_exponent must be > 0", engine))
		}
		if sc.TierLowMax <= 0 || sc.TierMediumMax <= sc.TierLowMax {
			errs = append(errs, fmt.Sprintf("%s: tier boundaries must satisfy 0 < tier_low_max < tier_medium_max", engine))
		}
		if sc.RandomnessFactor < 0 || sc.RandomnessFactor > 1 {
			errs = append(errs, fmt.Sprintf("%s: randomness_factor must be in [0,1]", engine))
		}
		if sc.EnableFallback && sc.MaxFallbackAttempts < 1 {
			errs = append(errs, fmt.Sprintf("%s: max_fallback_attempts must be >= 1 when fallback is enabled", engine))
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimitPerMinute < 0 {
			errs = append(errs, "server: rate_limit_per_minute must not be negative")
		}
	}

	// Webhook: an encrypted key file needs its password.
	if c.Webhook.EncryptedKeyPath != "" && c.Webhook.KeyPassword == "" {
		errs = append(errs, "webhook: key_password is required when encrypted_key_path is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
