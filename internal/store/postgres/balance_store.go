package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/upstreampay/payrouter/internal/domain"
)

// BalanceStore implements domain.BalanceStore using PostgreSQL. Every
// applied change writes a balance_changes journal row in the same
// transaction as the balance update.
type BalanceStore struct {
	pool *pgxpool.Pool
}

// NewBalanceStore creates a new BalanceStore backed by the given
// connection pool.
func NewBalanceStore(pool *pgxpool.Pool) *BalanceStore {
	return &BalanceStore{pool: pool}
}

// Get returns a trader's current balance and commission rate. A trader
// without a balance row reads as zero available.
func (s *BalanceStore) Get(ctx context.Context, traderID string) (domain.TraderBalance, error) {
	const query = `
		SELECT t.id, COALESCE(b.available, 0), t.payout_commission,
		       COALESCE(b.updated_at, t.created_at)
		FROM traders t
		LEFT JOIN trader_balances b ON b.trader_id = t.id
		WHERE t.id = $1`

	var bal domain.TraderBalance
	err := s.pool.QueryRow(ctx, query, traderID).Scan(
		&bal.TraderID, &bal.Available, &bal.PayoutCommission, &bal.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TraderBalance{}, domain.ErrNotFound
		}
		return domain.TraderBalance{}, fmt.Errorf("postgres: get balance for trader %s: %w", traderID, err)
	}
	return bal, nil
}

// ApplyChange applies a credit or debit atomically and fills the
// change's PreviousBalance/NewBalance from the updated row. The row
// update serialises concurrent changes to the same trader.
func (s *BalanceStore) ApplyChange(ctx context.Context, change *domain.BalanceChange) error {
	delta := change.Amount
	if change.Type == domain.ChangeDebit {
		delta = -delta
	}

	var breakdownJSON []byte
	if change.Breakdown != nil {
		var err error
		breakdownJSON, err = json.Marshal(change.Breakdown)
		if err != nil {
			return fmt.Errorf("postgres: marshal balance breakdown: %w", err)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin balance tx for %s: %w", change.EntityID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO trader_balances (trader_id, available)
		 VALUES ($1, 0) ON CONFLICT (trader_id) DO NOTHING`,
		change.EntityID,
	); err != nil {
		return fmt.Errorf("postgres: ensure balance row for %s: %w", change.EntityID, err)
	}

	var newBalance float64
	err = tx.QueryRow(ctx,
		`UPDATE trader_balances
		 SET available = available + $2, updated_at = NOW()
		 WHERE trader_id = $1
		 RETURNING available`,
		change.EntityID, delta,
	).Scan(&newBalance)
	if err != nil {
		return fmt.Errorf("postgres: apply balance change for %s: %w", change.EntityID, err)
	}

	change.NewBalance = domain.RoundMoney(newBalance)
	change.PreviousBalance = domain.RoundMoney(newBalance - delta)

	if _, err := tx.Exec(ctx,
		`INSERT INTO balance_changes (
			entity_type, entity_id, change_type, amount, breakdown,
			previous_balance, new_balance, reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		change.EntityType, change.EntityID, change.Type, change.Amount,
		breakdownJSON, change.PreviousBalance, change.NewBalance, change.Reason,
	); err != nil {
		return fmt.Errorf("postgres: journal balance change for %s: %w", change.EntityID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit balance change for %s: %w", change.EntityID, err)
	}
	return nil
}
