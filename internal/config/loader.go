package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PAYROUTER_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PAYROUTER_* environment variables
// and overwrites the corresponding Config fields when a variable is set
// (i.e. not empty). This lets operators inject secrets at deploy time
// without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PAYROUTER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PAYROUTER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PAYROUTER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PAYROUTER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PAYROUTER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PAYROUTER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PAYROUTER_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PAYROUTER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PAYROUTER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PAYROUTER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PAYROUTER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PAYROUTER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PAYROUTER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PAYROUTER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PAYROUTER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PAYROUTER_REDIS_TLS_ENABLED")
	setInt(&cfg.Redis.HealthTTLSeconds, "PAYROUTER_REDIS_HEALTH_TTL_SECONDS")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PAYROUTER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PAYROUTER_S3_REGION")
	setStr(&cfg.S3.Bucket, "PAYROUTER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PAYROUTER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PAYROUTER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PAYROUTER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PAYROUTER_S3_FORCE_PATH_STYLE")

	// ── Scoring ──
	// Only the coarse per-engine knobs are overridable from the
	// environment; weight maps come from TOML or stored overrides.
	setInt(&cfg.Scoring.Payin.MinScore, "PAYROUTER_SCORING_PAYIN_MIN_SCORE")
	setInt(&cfg.Scoring.Payin.MaxCandidates, "PAYROUTER_SCORING_PAYIN_MAX_CANDIDATES")
	setFloat64(&cfg.Scoring.Payin.ScoreExponent, "PAYROUTER_SCORING_PAYIN_SCORE_EXPONENT")
	setBool(&cfg.Scoring.Payin.EnableRandomness, "PAYROUTER_SCORING_PAYIN_ENABLE_RANDOMNESS")
	setBool(&cfg.Scoring.Payin.EnableFallback, "PAYROUTER_SCORING_PAYIN_ENABLE_FALLBACK")
	setInt(&cfg.Scoring.Payout.MinScore, "PAYROUTER_SCORING_PAYOUT_MIN_SCORE")
	setInt(&cfg.Scoring.Payout.MaxCandidates, "PAYROUTER_SCORING_PAYOUT_MAX_CANDIDATES")
	setFloat64(&cfg.Scoring.Payout.ScoreExponent, "PAYROUTER_SCORING_PAYOUT_SCORE_EXPONENT")
	setBool(&cfg.Scoring.Payout.EnableRandomness, "PAYROUTER_SCORING_PAYOUT_ENABLE_RANDOMNESS")
	setBool(&cfg.Scoring.Payout.EnableFallback, "PAYROUTER_SCORING_PAYOUT_ENABLE_FALLBACK")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "PAYROUTER_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "PAYROUTER_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "PAYROUTER_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.BatchSize, "PAYROUTER_ARCHIVE_BATCH_SIZE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PAYROUTER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PAYROUTER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PAYROUTER_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "PAYROUTER_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimitPerMinute, "PAYROUTER_SERVER_RATE_LIMIT_PER_MINUTE")

	// ── Webhook ──
	setStringSlice(&cfg.Webhook.Endpoints, "PAYROUTER_WEBHOOK_ENDPOINTS")
	setStringSlice(&cfg.Webhook.Events, "PAYROUTER_WEBHOOK_EVENTS")
	setStr(&cfg.Webhook.SigningKey, "PAYROUTER_WEBHOOK_SIGNING_KEY")
	setStr(&cfg.Webhook.EncryptedKeyPath, "PAYROUTER_WEBHOOK_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Webhook.KeyPassword, "PAYROUTER_WEBHOOK_KEY_PASSWORD")

	// ── Top-level ──
	setStr(&cfg.Mode, "PAYROUTER_MODE")
	setStr(&cfg.LogLevel, "PAYROUTER_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
