package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	s3blob "github.com/upstreampay/payrouter/internal/blob/s3"
	"github.com/upstreampay/payrouter/internal/cache/redis"
	"github.com/upstreampay/payrouter/internal/config"
	"github.com/upstreampay/payrouter/internal/crypto"
	"github.com/upstreampay/payrouter/internal/dispute"
	"github.com/upstreampay/payrouter/internal/domain"
	"github.com/upstreampay/payrouter/internal/notify"
	"github.com/upstreampay/payrouter/internal/routing"
	"github.com/upstreampay/payrouter/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application
// modes need. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Clients
	PG *postgres.Client

	// Stores
	Accounts  domain.UpiAccountStore
	Traders   domain.TraderStore
	Disputes  domain.DisputeStore
	Balances  domain.BalanceStore
	Audits    domain.SelectionAuditStore
	Overrides domain.ScoringOverrideStore

	// Caches
	Health      domain.HealthCache
	LockManager domain.LockManager
	RateLimiter domain.RateLimiter
	RedisClient *redis.Client

	// Blob storage (nil unless archival is enabled)
	BlobWriter domain.BlobWriter
	Archiver   *s3blob.Archiver

	// Engines
	Router     *routing.Orchestrator
	Settlement *dispute.Engine

	// Event fan-out
	Events *EventFanout

	// Webhooks (nil when no endpoints are configured)
	Webhooks *notify.Dispatcher
}

// lockedRand guards a math/rand source for concurrent draws.
type lockedRand struct {
	mu  sync.Mutex
	src *rand.Rand
}

// Float64 returns the next uniform draw in [0,1).
func (r *lockedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src.Float64()
}

// EventFanout forwards one published event to every registered sink.
type EventFanout struct {
	sinks []domain.EventSink
}

// Add registers a sink; nil sinks are ignored.
func (f *EventFanout) Add(sink domain.EventSink) {
	if sink != nil {
		f.sinks = append(f.sinks, sink)
	}
}

// Publish implements domain.EventSink.
func (f *EventFanout) Publish(evt domain.Event) {
	for _, s := range f.sinks {
		s.Publish(evt)
	}
}

// needsS3 reports whether the configured mode requires object storage.
func needsS3(cfg *config.Config) bool {
	return cfg.Archive.Enabled
}

// Wire constructs all concrete dependency implementations from the
// configuration and returns them together with a cleanup function that
// must be called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Events: &EventFanout{}}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	deps.PG = pgClient
	pool := pgClient.Pool()
	deps.Accounts = postgres.NewUpiAccountStore(pool)
	deps.Traders = postgres.NewTraderStore(pool)
	deps.Disputes = postgres.NewDisputeStore(pool)
	deps.Balances = postgres.NewBalanceStore(pool)
	deps.Audits = postgres.NewSelectionAuditStore(pool)
	deps.Overrides = postgres.NewScoringOverrideStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.RedisClient = redisClient
	deps.Health = redis.NewHealthCache(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)

	// --- S3 (only when archival is on) ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.Audits, deps.Disputes, logger)
		if cfg.Archive.BatchSize > 0 {
			deps.Archiver.BatchSize = cfg.Archive.BatchSize
		}
	}

	// --- Webhooks ---
	if len(cfg.Webhook.Endpoints) > 0 {
		var signer *crypto.WebhookSigner
		secret, err := crypto.LoadSigningKey(crypto.SecretConfig{
			RawSecret:     cfg.Webhook.SigningKey,
			EncryptedPath: cfg.Webhook.EncryptedKeyPath,
			Password:      cfg.Webhook.KeyPassword,
		})
		switch {
		case err == nil:
			signer = crypto.NewWebhookSigner(secret)
		default:
			logger.Warn("webhook signing disabled",
				slog.String("error", err.Error()),
			)
		}

		senders := make([]notify.Sender, 0, len(cfg.Webhook.Endpoints))
		for _, url := range cfg.Webhook.Endpoints {
			senders = append(senders, notify.NewWebhookSender(url, signer))
		}
		deps.Webhooks = notify.NewDispatcher(senders, cfg.Webhook.Events, logger)
		deps.Events.Add(deps.Webhooks)
	}

	// --- Engines ---
	// Selections run concurrently from HTTP handlers; math/rand sources
	// are not safe for concurrent use, so the draw source is locked.
	rng := &lockedRand{src: rand.New(rand.NewSource(time.Now().UnixNano()))}
	deps.Router = routing.NewOrchestrator(routing.Deps{
		Accounts:       deps.Accounts,
		Traders:        deps.Traders,
		Audits:         deps.Audits,
		Overrides:      deps.Overrides,
		Health:         deps.Health,
		Rand:           rng,
		PayinDefaults:  cfg.Scoring.Payin,
		PayoutDefaults: cfg.Scoring.Payout,
		Events:         deps.Events,
	}, logger)

	deps.Settlement = dispute.NewEngine(
		deps.Disputes, deps.Balances, deps.LockManager, deps.Events, logger,
	)

	return deps, cleanup, nil
}
