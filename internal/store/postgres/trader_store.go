package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/upstreampay/payrouter/internal/domain"
)

// TraderStore implements domain.TraderStore using PostgreSQL.
type TraderStore struct {
	pool *pgxpool.Pool
}

// NewTraderStore creates a new TraderStore backed by the given
// connection pool.
func NewTraderStore(pool *pgxpool.Pool) *TraderStore {
	return &TraderStore{pool: pool}
}

const traderColumns = `
	id, name, active, online, last_active_at, last_assigned_at,
	attempts, completions, cancellations, cancellations_today,
	avg_completion_minutes, concurrent_active, concurrent_cap,
	daily_count, daily_count_cap, daily_used, daily_cap,
	preferred_tier, priority, payout_commission`

// ListAvailable returns snapshots of every active trader. Cap and
// availability checks stay with the pool filter and the scorer.
func (s *TraderStore) ListAvailable(ctx context.Context) ([]domain.Trader, error) {
	query := `SELECT` + traderColumns + ` FROM traders WHERE active ORDER BY id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list available traders: %w", err)
	}
	defer rows.Close()

	var traders []domain.Trader
	for rows.Next() {
		t, err := scanTrader(rows)
		if err != nil {
			return nil, err
		}
		traders = append(traders, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list available traders rows: %w", err)
	}
	return traders, nil
}

// GetByID returns one trader snapshot.
func (s *TraderStore) GetByID(ctx context.Context, id string) (domain.Trader, error) {
	query := `SELECT` + traderColumns + ` FROM traders WHERE id = $1`

	t, err := scanTrader(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Trader{}, domain.ErrNotFound
		}
		return domain.Trader{}, fmt.Errorf("postgres: get trader %s: %w", id, err)
	}
	return t, nil
}

// ReserveAssignment claims one concurrent slot, one daily assignment,
// and the requested volume in a single conditional update. A cap of
// zero means unlimited.
func (s *TraderStore) ReserveAssignment(ctx context.Context, id string, amount float64) error {
	const query = `
		UPDATE traders
		SET concurrent_active = concurrent_active + 1,
		    daily_count = daily_count + 1,
		    daily_used = daily_used + $2,
		    last_assigned_at = NOW()
		WHERE id = $1 AND active
		  AND (concurrent_cap = 0 OR concurrent_active < concurrent_cap)
		  AND (daily_count_cap = 0 OR daily_count < daily_count_cap)
		  AND daily_used + $2 <= daily_cap`

	tag, err := s.pool.Exec(ctx, query, id, amount)
	if err != nil {
		return fmt.Errorf("postgres: reserve assignment for trader %s: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM traders WHERE id = $1)", id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: check trader %s: %w", id, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrCapacityExceeded
}

// RecordOutcome settles a reserved assignment. Success folds the
// completion time into the running average; failure releases the
// reserved volume and counts as a cancellation. The average update
// reads the pre-update completions count, so the SET order is safe.
func (s *TraderStore) RecordOutcome(ctx context.Context, id string, amount float64, success bool, completionMinutes float64) error {
	var query string
	var args []any
	if success {
		query = `
			UPDATE traders
			SET attempts = attempts + 1,
			    completions = completions + 1,
			    concurrent_active = GREATEST(concurrent_active - 1, 0),
			    avg_completion_minutes = CASE
			        WHEN completions = 0 THEN $2
			        ELSE (avg_completion_minutes * completions + $2) / (completions + 1)
			    END
			WHERE id = $1`
		args = []any{id, completionMinutes}
	} else {
		query = `
			UPDATE traders
			SET attempts = attempts + 1,
			    cancellations = cancellations + 1,
			    cancellations_today = cancellations_today + 1,
			    concurrent_active = GREATEST(concurrent_active - 1, 0),
			    daily_count = GREATEST(daily_count - 1, 0),
			    daily_used = GREATEST(daily_used - $2, 0)
			WHERE id = $1`
		args = []any{id, amount}
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres: record trader outcome %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanTrader(row pgx.Row) (domain.Trader, error) {
	var t domain.Trader
	err := row.Scan(
		&t.ID, &t.Name, &t.Active, &t.Online, &t.LastActiveAt, &t.LastAssignedAt,
		&t.Attempts, &t.Completions, &t.Cancellations, &t.CancellationsToday,
		&t.AvgCompletionMinutes, &t.ConcurrentActive, &t.ConcurrentCap,
		&t.DailyCount, &t.DailyCountCap, &t.DailyUsed, &t.DailyCap,
		&t.PreferredTier, &t.Priority, &t.PayoutCommission,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Trader{}, err
		}
		return domain.Trader{}, fmt.Errorf("postgres: scan trader: %w", err)
	}
	return t, nil
}
