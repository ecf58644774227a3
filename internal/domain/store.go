package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// UpiAccountStore persists payin candidate accounts. Snapshot reads may
// be stale; ReserveDailyVolume is the authoritative capacity check and
// must be a single conditional update.
type UpiAccountStore interface {
	ListActive(ctx context.Context) ([]UpiAccount, error)
	GetByID(ctx context.Context, id string) (UpiAccount, error)
	// ReserveDailyVolume atomically adds amount to the account's daily
	// usage, bumps the in-flight count, and stamps last_used_at, but
	// only when the daily cap allows it. Returns ErrCapacityExceeded
	// when the conditional update matches no row for a live account.
	ReserveDailyVolume(ctx context.Context, id string, amount float64) error
	// RecordOutcome settles a previously reserved attempt. Failures
	// release the reserved daily volume and count against the account's
	// recent-failure window.
	RecordOutcome(ctx context.Context, id string, amount float64, success bool) error
}

// TraderStore persists payout candidate traders.
type TraderStore interface {
	ListAvailable(ctx context.Context) ([]Trader, error)
	GetByID(ctx context.Context, id string) (Trader, error)
	// ReserveAssignment atomically claims one concurrent slot and the
	// requested daily volume, stamping last_assigned_at. Returns
	// ErrCapacityExceeded when either cap would be breached.
	ReserveAssignment(ctx context.Context, id string, amount float64) error
	// RecordOutcome settles a reserved assignment, releasing the
	// concurrent slot and folding completionMinutes into the trader's
	// running speed average on success.
	RecordOutcome(ctx context.Context, id string, amount float64, success bool, completionMinutes float64) error
}

// DisputeStore persists disputes. Both guarded updates return
// ErrInvalidDisputeTransition when the row exists but is not in the
// expected source status, keeping terminal disputes idempotent.
type DisputeStore interface {
	Create(ctx context.Context, d Dispute) error
	GetByID(ctx context.Context, id string) (Dispute, error)
	SetTraderResponse(ctx context.Context, id string, from, to DisputeStatus, note, proofRef string, at time.Time) error
	SetResolution(ctx context.Context, id string, from []DisputeStatus, to DisputeStatus, adminID, note string, at time.Time) error
	ListResolvedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Dispute, error)
}

// BalanceStore persists trader balances. ApplyChange must be atomic
// with respect to concurrent changes to the same trader and fills the
// change's PreviousBalance/NewBalance from the applied row.
type BalanceStore interface {
	Get(ctx context.Context, traderID string) (TraderBalance, error)
	ApplyChange(ctx context.Context, change *BalanceChange) error
}

// SelectionAuditStore persists one row per successful selection.
type SelectionAuditStore interface {
	Insert(ctx context.Context, a SelectionAudit) error
	List(ctx context.Context, engine string, opts ListOpts) ([]SelectionAudit, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]SelectionAudit, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ScoringOverrideStore persists sparse per-engine overrides merged over
// the built-in scoring defaults at call time. Get returns ErrNotFound
// when no override is stored for the engine.
type ScoringOverrideStore interface {
	Get(ctx context.Context, engine string) (ScoringOverride, error)
	Upsert(ctx context.Context, engine string, o ScoringOverride) error
}

// HealthCache caches per-bank upstream health with a TTL. Get returns
// ErrNotFound for unknown banks; callers treat that as healthy.
type HealthCache interface {
	Get(ctx context.Context, bankCode string) (HealthStatus, error)
	GetAll(ctx context.Context) (map[string]HealthStatus, error)
	Set(ctx context.Context, bankCode string, status HealthStatus, ttl time.Duration) error
}

// LockManager provides distributed locks keyed by string.
type LockManager interface {
	// Acquire returns an unlock func on success, ErrLockHeld when the
	// lock is already held by another party.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter enforces fixed-window request limits per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// BlobWriter stores an object under a key in blob storage.
type BlobWriter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Event is a routing/dispute occurrence broadcast to dashboard clients.
type Event struct {
	Type    string    `json:"type"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// EventSink receives engine events for fan-out; the websocket hub
// implements it.
type EventSink interface {
	Publish(evt Event)
}
