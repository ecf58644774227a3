package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/upstreampay/payrouter/internal/domain"
)

// SelectionAuditStore implements domain.SelectionAuditStore using
// PostgreSQL. Factor breakdowns are stored as JSONB.
type SelectionAuditStore struct {
	pool *pgxpool.Pool
}

// NewSelectionAuditStore creates a new SelectionAuditStore backed by
// the given connection pool.
func NewSelectionAuditStore(pool *pgxpool.Pool) *SelectionAuditStore {
	return &SelectionAuditStore{pool: pool}
}

const auditColumns = `
	id, engine, candidate_id, counterparty_id, amount, score,
	breakdown, summary, attempt, created_at`

// Insert appends one audit row.
func (s *SelectionAuditStore) Insert(ctx context.Context, a domain.SelectionAudit) error {
	breakdownJSON, err := json.Marshal(a.Breakdown)
	if err != nil {
		return fmt.Errorf("postgres: marshal audit breakdown: %w", err)
	}

	const query = `
		INSERT INTO selection_audits (
			id, engine, candidate_id, counterparty_id, amount, score,
			breakdown, summary, attempt, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = s.pool.Exec(ctx, query,
		a.ID, a.Engine, a.CandidateID, a.CounterpartyID, a.Amount, a.Score,
		breakdownJSON, a.Summary, a.Attempt, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert selection audit %s: %w", a.ID, err)
	}
	return nil
}

// List returns audits for one engine, newest first, with pagination and
// optional time filtering.
func (s *SelectionAuditStore) List(ctx context.Context, engine string, opts domain.ListOpts) ([]domain.SelectionAudit, error) {
	query := `SELECT` + auditColumns + ` FROM selection_audits WHERE engine = $1`
	args := []any{engine}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	return s.queryAudits(ctx, query, args...)
}

// ListBefore returns audits created before cutoff, oldest first, for
// the archiver.
func (s *SelectionAuditStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.SelectionAudit, error) {
	query := `SELECT` + auditColumns + `
		FROM selection_audits
		WHERE created_at < $1
		ORDER BY created_at
		LIMIT $2`
	return s.queryAudits(ctx, query, cutoff, limit)
}

// DeleteBefore removes audits created before cutoff and reports how
// many rows went away.
func (s *SelectionAuditStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM selection_audits WHERE created_at < $1", cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete selection audits: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *SelectionAuditStore) queryAudits(ctx context.Context, query string, args ...any) ([]domain.SelectionAudit, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list selection audits: %w", err)
	}
	defer rows.Close()

	var audits []domain.SelectionAudit
	for rows.Next() {
		a, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		audits = append(audits, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list selection audits rows: %w", err)
	}
	return audits, nil
}

func scanAudit(row pgx.Row) (domain.SelectionAudit, error) {
	var a domain.SelectionAudit
	var breakdownJSON []byte

	err := row.Scan(
		&a.ID, &a.Engine, &a.CandidateID, &a.CounterpartyID, &a.Amount, &a.Score,
		&breakdownJSON, &a.Summary, &a.Attempt, &a.CreatedAt,
	)
	if err != nil {
		return domain.SelectionAudit{}, fmt.Errorf("postgres: scan selection audit: %w", err)
	}

	if breakdownJSON != nil {
		if err := json.Unmarshal(breakdownJSON, &a.Breakdown); err != nil {
			return domain.SelectionAudit{}, fmt.Errorf("postgres: unmarshal audit breakdown: %w", err)
		}
	}
	return a, nil
}
