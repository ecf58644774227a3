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

// ScoringOverrideStore implements domain.ScoringOverrideStore using
// PostgreSQL. The sparse override is stored as one JSONB document per
// engine.
type ScoringOverrideStore struct {
	pool *pgxpool.Pool
}

// NewScoringOverrideStore creates a new ScoringOverrideStore backed by
// the given connection pool.
func NewScoringOverrideStore(pool *pgxpool.Pool) *ScoringOverrideStore {
	return &ScoringOverrideStore{pool: pool}
}

// Get retrieves the stored override for an engine.
func (s *ScoringOverrideStore) Get(ctx context.Context, engine string) (domain.ScoringOverride, error) {
	const query = `SELECT override_json FROM scoring_overrides WHERE engine = $1`

	var overrideJSON []byte
	err := s.pool.QueryRow(ctx, query, engine).Scan(&overrideJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ScoringOverride{}, domain.ErrNotFound
		}
		return domain.ScoringOverride{}, fmt.Errorf("postgres: get scoring override %s: %w", engine, err)
	}

	var o domain.ScoringOverride
	if err := json.Unmarshal(overrideJSON, &o); err != nil {
		return domain.ScoringOverride{}, fmt.Errorf("postgres: unmarshal scoring override %s: %w", engine, err)
	}
	return o, nil
}

// Upsert inserts or replaces the override for an engine.
func (s *ScoringOverrideStore) Upsert(ctx context.Context, engine string, o domain.ScoringOverride) error {
	overrideJSON, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("postgres: marshal scoring override %s: %w", engine, err)
	}

	const query = `
		INSERT INTO scoring_overrides (engine, override_json, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (engine) DO UPDATE SET
			override_json = EXCLUDED.override_json,
			updated_at    = NOW()`

	if _, err := s.pool.Exec(ctx, query, engine, overrideJSON); err != nil {
		return fmt.Errorf("postgres: upsert scoring override %s: %w", engine, err)
	}
	return nil
}
