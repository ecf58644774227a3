package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/upstreampay/payrouter/internal/domain"
)

// DisputeStore implements domain.DisputeStore using PostgreSQL. Both
// transition methods are guarded updates: the WHERE clause names the
// expected source status, so a dispute that has already moved on makes
// the update match nothing and the caller gets
// ErrInvalidDisputeTransition instead of a double transition.
type DisputeStore struct {
	pool *pgxpool.Pool
}

// NewDisputeStore creates a new DisputeStore backed by the given
// connection pool.
func NewDisputeStore(pool *pgxpool.Pool) *DisputeStore {
	return &DisputeStore{pool: pool}
}

const disputeColumns = `
	id, type, amount, trader_id, counterparty_id, status,
	trader_note, proof_ref, admin_id, admin_note,
	created_at, responded_at, resolved_at`

// Create inserts a new dispute row.
func (s *DisputeStore) Create(ctx context.Context, d domain.Dispute) error {
	const query = `
		INSERT INTO disputes (
			id, type, amount, trader_id, counterparty_id, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		d.ID, d.Type, d.Amount, d.TraderID, d.CounterpartyID, d.Status, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create dispute %s: %w", d.ID, err)
	}
	return nil
}

// GetByID returns one dispute.
func (s *DisputeStore) GetByID(ctx context.Context, id string) (domain.Dispute, error) {
	query := `SELECT` + disputeColumns + ` FROM disputes WHERE id = $1`

	d, err := scanDispute(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Dispute{}, domain.ErrNotFound
		}
		return domain.Dispute{}, fmt.Errorf("postgres: get dispute %s: %w", id, err)
	}
	return d, nil
}

// SetTraderResponse moves a dispute from the routed status to the
// trader's answer, recording note and proof reference.
func (s *DisputeStore) SetTraderResponse(ctx context.Context, id string, from, to domain.DisputeStatus, note, proofRef string, at time.Time) error {
	const query = `
		UPDATE disputes
		SET status = $3, trader_note = $4, proof_ref = $5, responded_at = $6
		WHERE id = $1 AND status = $2`

	tag, err := s.pool.Exec(ctx, query, id, from, to, note, proofRef, at)
	if err != nil {
		return fmt.Errorf("postgres: set trader response on dispute %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionFailure(ctx, id)
	}
	return nil
}

// SetResolution moves a responded dispute to its terminal status. The
// guarded update succeeds at most once per dispute, which is what makes
// resolution idempotent for the settlement engine.
func (s *DisputeStore) SetResolution(ctx context.Context, id string, from []domain.DisputeStatus, to domain.DisputeStatus, adminID, note string, at time.Time) error {
	const query = `
		UPDATE disputes
		SET status = $3, admin_id = $4, admin_note = $5, resolved_at = $6
		WHERE id = $1 AND status = ANY($2)`

	fromStrs := make([]string, len(from))
	for i, f := range from {
		fromStrs[i] = string(f)
	}

	tag, err := s.pool.Exec(ctx, query, id, fromStrs, to, adminID, note, at)
	if err != nil {
		return fmt.Errorf("postgres: set resolution on dispute %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionFailure(ctx, id)
	}
	return nil
}

// ListResolvedBefore returns terminal disputes resolved before cutoff,
// oldest first, for the archiver.
func (s *DisputeStore) ListResolvedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Dispute, error) {
	query := `SELECT` + disputeColumns + `
		FROM disputes
		WHERE resolved_at IS NOT NULL AND resolved_at < $1
		ORDER BY resolved_at
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list resolved disputes: %w", err)
	}
	defer rows.Close()

	var disputes []domain.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		disputes = append(disputes, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list resolved disputes rows: %w", err)
	}
	return disputes, nil
}

// transitionFailure maps a zero-row guarded update to the right
// sentinel: missing row or wrong source status.
func (s *DisputeStore) transitionFailure(ctx context.Context, id string) error {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM disputes WHERE id = $1)", id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: check dispute %s: %w", id, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrInvalidDisputeTransition
}

func scanDispute(row pgx.Row) (domain.Dispute, error) {
	var d domain.Dispute
	err := row.Scan(
		&d.ID, &d.Type, &d.Amount, &d.TraderID, &d.CounterpartyID, &d.Status,
		&d.TraderNote, &d.ProofRef, &d.AdminID, &d.AdminNote,
		&d.CreatedAt, &d.RespondedAt, &d.ResolvedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Dispute{}, err
		}
		return domain.Dispute{}, fmt.Errorf("postgres: scan dispute: %w", err)
	}
	return d, nil
}
