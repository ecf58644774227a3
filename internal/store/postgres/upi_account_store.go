package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/upstreampay/payrouter/internal/domain"
)

// UpiAccountStore implements domain.UpiAccountStore using PostgreSQL.
type UpiAccountStore struct {
	pool *pgxpool.Pool
}

// NewUpiAccountStore creates a new UpiAccountStore backed by the given
// connection pool.
func NewUpiAccountStore(pool *pgxpool.Pool) *UpiAccountStore {
	return &UpiAccountStore{pool: pool}
}

// accountColumns is the snapshot projection shared by the list and get
// queries. The owner's active flag and the trailing-hour failure count
// are denormalised into the snapshot so scoring never issues extra
// queries per candidate.
const accountColumns = `
	a.id, a.upi_id, a.trader_id, a.bank_code, a.active, t.active,
	a.attempts, a.completions,
	(SELECT COUNT(*) FROM upi_account_failures f
	  WHERE f.account_id = a.id AND f.occurred_at > NOW() - INTERVAL '1 hour'),
	a.last_used_at, a.daily_used, a.daily_cap, a.in_flight, a.preferred_tier`

// ListActive returns snapshots of every account whose own flag is set.
// Owner inactivity is reported in the snapshot rather than filtered
// here so the pool filter stays the single eligibility authority.
func (s *UpiAccountStore) ListActive(ctx context.Context) ([]domain.UpiAccount, error) {
	query := `SELECT` + accountColumns + `
		FROM upi_accounts a
		JOIN traders t ON t.id = a.trader_id
		WHERE a.active
		ORDER BY a.id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.UpiAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list active accounts rows: %w", err)
	}
	return accounts, nil
}

// GetByID returns one account snapshot.
func (s *UpiAccountStore) GetByID(ctx context.Context, id string) (domain.UpiAccount, error) {
	query := `SELECT` + accountColumns + `
		FROM upi_accounts a
		JOIN traders t ON t.id = a.trader_id
		WHERE a.id = $1`

	a, err := scanAccount(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UpiAccount{}, domain.ErrNotFound
		}
		return domain.UpiAccount{}, fmt.Errorf("postgres: get account %s: %w", id, err)
	}
	return a, nil
}

// ReserveDailyVolume claims amount against the account's daily cap in a
// single conditional update, so two concurrent selections can never
// both squeeze through the same remaining allowance.
func (s *UpiAccountStore) ReserveDailyVolume(ctx context.Context, id string, amount float64) error {
	const query = `
		UPDATE upi_accounts
		SET daily_used = daily_used + $2,
		    in_flight = in_flight + 1,
		    last_used_at = NOW()
		WHERE id = $1 AND active AND daily_used + $2 <= daily_cap`

	tag, err := s.pool.Exec(ctx, query, id, amount)
	if err != nil {
		return fmt.Errorf("postgres: reserve daily volume for account %s: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// No row matched: distinguish a missing account from a full one.
	var exists bool
	if err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM upi_accounts WHERE id = $1)", id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: check account %s: %w", id, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrCapacityExceeded
}

// RecordOutcome settles a reserved attempt. Success counts a
// completion; failure releases the reserved daily volume and logs a
// failure row for the trailing-hour penalty window.
func (s *UpiAccountStore) RecordOutcome(ctx context.Context, id string, amount float64, success bool) error {
	if success {
		const query = `
			UPDATE upi_accounts
			SET attempts = attempts + 1,
			    completions = completions + 1,
			    in_flight = GREATEST(in_flight - 1, 0)
			WHERE id = $1`
		tag, err := s.pool.Exec(ctx, query, id)
		if err != nil {
			return fmt.Errorf("postgres: record account success %s: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin outcome tx for account %s: %w", id, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const release = `
		UPDATE upi_accounts
		SET attempts = attempts + 1,
		    in_flight = GREATEST(in_flight - 1, 0),
		    daily_used = GREATEST(daily_used - $2, 0)
		WHERE id = $1`
	tag, err := tx.Exec(ctx, release, id, amount)
	if err != nil {
		return fmt.Errorf("postgres: record account failure %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	if _, err := tx.Exec(ctx,
		"INSERT INTO upi_account_failures (account_id) VALUES ($1)", id,
	); err != nil {
		return fmt.Errorf("postgres: log account failure %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit outcome for account %s: %w", id, err)
	}
	return nil
}

// scanAccount reads one snapshot row in accountColumns order.
func scanAccount(row pgx.Row) (domain.UpiAccount, error) {
	var a domain.UpiAccount
	err := row.Scan(
		&a.ID, &a.UpiID, &a.TraderID, &a.BankCode, &a.Active, &a.TraderActive,
		&a.Attempts, &a.Completions, &a.FailuresLastHour,
		&a.LastUsedAt, &a.DailyUsed, &a.DailyCap, &a.InFlight, &a.PreferredTier,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UpiAccount{}, err
		}
		return domain.UpiAccount{}, fmt.Errorf("postgres: scan account: %w", err)
	}
	return a, nil
}
