package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upstreampay/payrouter/internal/domain"
)

type memOverrideStore struct {
	overrides map[string]domain.ScoringOverride
}

func (m *memOverrideStore) Get(ctx context.Context, engine string) (domain.ScoringOverride, error) {
	o, ok := m.overrides[engine]
	if !ok {
		return domain.ScoringOverride{}, domain.ErrNotFound
	}
	return o, nil
}

func (m *memOverrideStore) Upsert(ctx context.Context, engine string, o domain.ScoringOverride) error {
	if m.overrides == nil {
		m.overrides = map[string]domain.ScoringOverride{}
	}
	m.overrides[engine] = o
	return nil
}

func scoringDefaults() map[string]domain.ScoringConfig {
	return map[string]domain.ScoringConfig{
		"payin": {
			Weights:       map[string]float64{domain.FactorSuccessRate: 25},
			MinScore:      30,
			MaxCandidates: 3,
			ScoreExponent: 2,
			TierLowMax:    1000,
			TierMediumMax: 10000,
		},
	}
}

func TestGetScoringConfig(t *testing.T) {
	t.Run("defaults when nothing stored", func(t *testing.T) {
		h := NewScoringHandler(&memOverrideStore{}, scoringDefaults(), testLogger())

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.SetPathValue("engine", "payin")
		w := httptest.NewRecorder()
		h.GetConfig(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var got struct {
			Engine    string                  `json:"engine"`
			Effective domain.ScoringConfig    `json:"effective"`
			Override  *domain.ScoringOverride `json:"override"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, 30, got.Effective.MinScore)
		assert.Nil(t, got.Override)
	})

	t.Run("merges stored override", func(t *testing.T) {
		minScore := 60
		store := &memOverrideStore{overrides: map[string]domain.ScoringOverride{
			"payin": {MinScore: &minScore},
		}}
		h := NewScoringHandler(store, scoringDefaults(), testLogger())

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.SetPathValue("engine", "payin")
		w := httptest.NewRecorder()
		h.GetConfig(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var got struct {
			Effective domain.ScoringConfig `json:"effective"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, 60, got.Effective.MinScore)
	})

	t.Run("unknown engine", func(t *testing.T) {
		h := NewScoringHandler(&memOverrideStore{}, scoringDefaults(), testLogger())
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.SetPathValue("engine", "refunds")
		w := httptest.NewRecorder()
		h.GetConfig(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestUpdateScoringConfig(t *testing.T) {
	t.Run("stores valid override", func(t *testing.T) {
		store := &memOverrideStore{}
		h := NewScoringHandler(store, scoringDefaults(), testLogger())

		body, _ := json.Marshal(map[string]any{"min_score": 45})
		req := httptest.NewRequest(http.MethodPut, "/", bytes.NewReader(body))
		req.SetPathValue("engine", "payin")
		w := httptest.NewRecorder()
		h.UpdateConfig(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, store.overrides, "payin")
		require.NotNil(t, store.overrides["payin"].MinScore)
		assert.Equal(t, 45, *store.overrides["payin"].MinScore)
	})

	t.Run("rejects unusable merged config", func(t *testing.T) {
		store := &memOverrideStore{}
		h := NewScoringHandler(store, scoringDefaults(), testLogger())

		body, _ := json.Marshal(map[string]any{"max_candidates": 0})
		req := httptest.NewRequest(http.MethodPut, "/", bytes.NewReader(body))
		req.SetPathValue("engine", "payin")
		w := httptest.NewRecorder()
		h.UpdateConfig(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, store.overrides)
	})
}

type memHealthCache struct {
	set map[string]domain.HealthStatus
	ttl time.Duration
}

func (m *memHealthCache) Get(ctx context.Context, bankCode string) (domain.HealthStatus, error) {
	s, ok := m.set[bankCode]
	if !ok {
		return "", domain.ErrNotFound
	}
	return s, nil
}

func (m *memHealthCache) GetAll(ctx context.Context) (map[string]domain.HealthStatus, error) {
	return m.set, nil
}

func (m *memHealthCache) Set(ctx context.Context, bankCode string, status domain.HealthStatus, ttl time.Duration) error {
	if m.set == nil {
		m.set = map[string]domain.HealthStatus{}
	}
	m.set[bankCode] = status
	m.ttl = ttl
	return nil
}

type captureSink struct {
	events []domain.Event
}

func (c *captureSink) Publish(evt domain.Event) { c.events = append(c.events, evt) }

func TestSetBankHealth(t *testing.T) {
	cache := &memHealthCache{}
	sink := &captureSink{}
	h := NewBankHealthHandler(cache, sink, 2*time.Minute, testLogger())

	body, _ := json.Marshal(map[string]string{"status": "degraded"})
	req := httptest.NewRequest(http.MethodPut, "/", bytes.NewReader(body))
	req.SetPathValue("code", "HDFC")
	w := httptest.NewRecorder()
	h.SetHealth(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.HealthDegraded, cache.set["HDFC"])
	assert.Equal(t, 2*time.Minute, cache.ttl)
	require.Len(t, sink.events, 1)
	assert.Equal(t, "bank_health", sink.events[0].Type)
}

func TestSetBankHealth_RejectsUnknownStatus(t *testing.T) {
	h := NewBankHealthHandler(&memHealthCache{}, nil, time.Minute, testLogger())

	body, _ := json.Marshal(map[string]string{"status": "flaky"})
	req := httptest.NewRequest(http.MethodPut, "/", bytes.NewReader(body))
	req.SetPathValue("code", "HDFC")
	w := httptest.NewRecorder()
	h.SetHealth(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
