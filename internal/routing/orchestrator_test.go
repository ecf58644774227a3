package routing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upstreampay/payrouter/internal/domain"
)

type fixedRand struct{ v float64 }

func (r fixedRand) Float64() float64 { return r.v }

type fakeAccountStore struct {
	accounts   []domain.UpiAccount
	reserved   []string
	reserveErr map[string]error
	outcomes   []string
}

func (f *fakeAccountStore) ListActive(ctx context.Context) ([]domain.UpiAccount, error) {
	return f.accounts, nil
}

func (f *fakeAccountStore) GetByID(ctx context.Context, id string) (domain.UpiAccount, error) {
	for _, a := range f.accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return domain.UpiAccount{}, domain.ErrNotFound
}

func (f *fakeAccountStore) ReserveDailyVolume(ctx context.Context, id string, amount float64) error {
	if err := f.reserveErr[id]; err != nil {
		return err
	}
	f.reserved = append(f.reserved, id)
	return nil
}

func (f *fakeAccountStore) RecordOutcome(ctx context.Context, id string, amount float64, success bool) error {
	f.outcomes = append(f.outcomes, id)
	return nil
}

type fakeTraderStore struct {
	traders  []domain.Trader
	reserved []string
}

func (f *fakeTraderStore) ListAvailable(ctx context.Context) ([]domain.Trader, error) {
	return f.traders, nil
}

func (f *fakeTraderStore) GetByID(ctx context.Context, id string) (domain.Trader, error) {
	for _, tr := range f.traders {
		if tr.ID == id {
			return tr, nil
		}
	}
	return domain.Trader{}, domain.ErrNotFound
}

func (f *fakeTraderStore) ReserveAssignment(ctx context.Context, id string, amount float64) error {
	f.reserved = append(f.reserved, id)
	return nil
}

func (f *fakeTraderStore) RecordOutcome(ctx context.Context, id string, amount float64, success bool, completionMinutes float64) error {
	return nil
}

type fakeAuditStore struct {
	inserted []domain.SelectionAudit
}

func (f *fakeAuditStore) Insert(ctx context.Context, a domain.SelectionAudit) error {
	f.inserted = append(f.inserted, a)
	return nil
}

func (f *fakeAuditStore) List(ctx context.Context, engine string, opts domain.ListOpts) ([]domain.SelectionAudit, error) {
	return f.inserted, nil
}

func (f *fakeAuditStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.SelectionAudit, error) {
	return nil, nil
}

func (f *fakeAuditStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type fakeOverrideStore struct {
	overrides map[string]domain.ScoringOverride
	err       error
}

func (f *fakeOverrideStore) Get(ctx context.Context, engine string) (domain.ScoringOverride, error) {
	if f.err != nil {
		return domain.ScoringOverride{}, f.err
	}
	o, ok := f.overrides[engine]
	if !ok {
		return domain.ScoringOverride{}, domain.ErrNotFound
	}
	return o, nil
}

func (f *fakeOverrideStore) Upsert(ctx context.Context, engine string, o domain.ScoringOverride) error {
	if f.overrides == nil {
		f.overrides = map[string]domain.ScoringOverride{}
	}
	f.overrides[engine] = o
	return nil
}

type fakeHealthCache struct {
	health map[string]domain.HealthStatus
}

func (f *fakeHealthCache) Get(ctx context.Context, bankCode string) (domain.HealthStatus, error) {
	s, ok := f.health[bankCode]
	if !ok {
		return "", domain.ErrNotFound
	}
	return s, nil
}

func (f *fakeHealthCache) GetAll(ctx context.Context) (map[string]domain.HealthStatus, error) {
	return f.health, nil
}

func (f *fakeHealthCache) Set(ctx context.Context, bankCode string, status domain.HealthStatus, ttl time.Duration) error {
	if f.health == nil {
		f.health = map[string]domain.HealthStatus{}
	}
	f.health[bankCode] = status
	return nil
}

type fakeSink struct {
	events []domain.Event
}

func (f *fakeSink) Publish(evt domain.Event) { f.events = append(f.events, evt) }

func testScoringDefaults() domain.ScoringConfig {
	return domain.ScoringConfig{
		Weights: map[string]float64{
			domain.FactorSuccessRate:          25,
			domain.FactorDailyHeadroom:        20,
			domain.FactorCooldown:             15,
			domain.FactorTierMatch:            15,
			domain.FactorCounterpartyCapacity: 10,
			domain.FactorBankHealth:           5,
			domain.FactorTimeWindow:           5,
			domain.FactorRecentFailures:       5,
		},
		MinScore:            30,
		MaxCandidates:       3,
		ScoreExponent:       2,
		CooldownMinutes:     30,
		TierLowMax:          1000,
		TierMediumMax:       10000,
		EnableFallback:      true,
		MaxFallbackAttempts: 3,
	}
}

func healthyAccount(id string) domain.UpiAccount {
	return domain.UpiAccount{
		ID:            id,
		UpiID:         id + "@okaxis",
		BankCode:      "HDFC",
		Active:        true,
		TraderActive:  true,
		Attempts:      100,
		Completions:   95,
		DailyCap:      100000,
		PreferredTier: domain.TierMedium,
	}
}

func newTestOrchestrator(accounts *fakeAccountStore, traders *fakeTraderStore, audits *fakeAuditStore, overrides *fakeOverrideStore, sink *fakeSink) *Orchestrator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	defaults := testScoringDefaults()
	var events domain.EventSink
	if sink != nil {
		events = sink
	}
	return NewOrchestrator(Deps{
		Accounts:       accounts,
		Traders:        traders,
		Audits:         audits,
		Overrides:      overrides,
		Health:         &fakeHealthCache{},
		Rand:           fixedRand{0},
		PayinDefaults:  defaults,
		PayoutDefaults: defaults,
		Events:         events,
	}, logger)
}

func TestSelectPayin_PersistsAuditAndPublishesEvent(t *testing.T) {
	accounts := &fakeAccountStore{accounts: []domain.UpiAccount{healthyAccount("acc-1"), healthyAccount("acc-2")}}
	audits := &fakeAuditStore{}
	sink := &fakeSink{}
	o := newTestOrchestrator(accounts, &fakeTraderStore{}, audits, &fakeOverrideStore{}, sink)

	got, err := o.SelectPayin(context.Background(), Request{
		Amount:               5000,
		CounterpartyID:       "cp-9",
		CounterpartyCapacity: 5000,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, got.Attempt)
	assert.NotEmpty(t, got.CandidateID)
	assert.Contains(t, accounts.reserved, got.CandidateID)

	require.Len(t, audits.inserted, 1)
	audit := audits.inserted[0]
	assert.Equal(t, EnginePayin, audit.Engine)
	assert.Equal(t, got.CandidateID, audit.CandidateID)
	assert.Equal(t, "cp-9", audit.CounterpartyID)
	assert.Equal(t, got.Score, audit.Score)
	assert.NotEmpty(t, audit.Breakdown)

	require.Len(t, sink.events, 1)
	assert.Equal(t, "selection", sink.events[0].Type)
}

func TestSelectPayin_EmptyPoolAfterFilter(t *testing.T) {
	inactive := healthyAccount("acc-1")
	inactive.Active = false
	accounts := &fakeAccountStore{accounts: []domain.UpiAccount{inactive}}
	o := newTestOrchestrator(accounts, &fakeTraderStore{}, &fakeAuditStore{}, &fakeOverrideStore{}, nil)

	_, err := o.SelectPayin(context.Background(), Request{Amount: 5000})
	assert.ErrorIs(t, err, domain.ErrNoEligibleCandidates)
}

func TestSelectPayin_AllBelowThreshold(t *testing.T) {
	// A fresh account with a tier mismatch and zero counterparty capacity
	// cannot clear a floor of 90.
	a := healthyAccount("acc-1")
	a.PreferredTier = domain.TierHigh
	accounts := &fakeAccountStore{accounts: []domain.UpiAccount{a}}
	overrides := &fakeOverrideStore{overrides: map[string]domain.ScoringOverride{
		EnginePayin: {MinScore: intPtr(90)},
	}}
	o := newTestOrchestrator(accounts, &fakeTraderStore{}, &fakeAuditStore{}, overrides, nil)

	_, err := o.SelectPayin(context.Background(), Request{Amount: 500})
	assert.ErrorIs(t, err, domain.ErrAllBelowThreshold)
}

func TestSelectPayin_RepicksAfterCapacityRace(t *testing.T) {
	accounts := &fakeAccountStore{
		accounts:   []domain.UpiAccount{healthyAccount("acc-1"), healthyAccount("acc-2")},
		reserveErr: map[string]error{"acc-1": domain.ErrCapacityExceeded},
	}
	audits := &fakeAuditStore{}
	o := newTestOrchestrator(accounts, &fakeTraderStore{}, audits, &fakeOverrideStore{}, nil)

	got, err := o.SelectPayin(context.Background(), Request{Amount: 5000, CounterpartyCapacity: 5000})
	require.NoError(t, err)
	assert.Equal(t, "acc-2", got.CandidateID)
	require.Len(t, audits.inserted, 1)
	assert.Equal(t, "acc-2", audits.inserted[0].CandidateID)
}

func TestSelectPayin_ReserveFailureIsNotRetried(t *testing.T) {
	storeErr := errors.New("connection reset")
	accounts := &fakeAccountStore{
		accounts:   []domain.UpiAccount{healthyAccount("acc-1")},
		reserveErr: map[string]error{"acc-1": storeErr},
	}
	o := newTestOrchestrator(accounts, &fakeTraderStore{}, &fakeAuditStore{}, &fakeOverrideStore{}, nil)

	_, err := o.SelectPayin(context.Background(), Request{Amount: 5000, CounterpartyCapacity: 5000})
	assert.ErrorIs(t, err, storeErr)
}

func TestSelectPayin_FallbackPolicy(t *testing.T) {
	tests := []struct {
		name     string
		exclude  []string
		fallback bool
		maxAtt   int
		wantErr  error
	}{
		{"first attempt always allowed", nil, false, 0, nil},
		{"retry within budget", []string{"x"}, true, 3, nil},
		{"retry with fallback disabled", []string{"x"}, false, 3, domain.ErrSelectionExhausted},
		{"budget exhausted", []string{"w", "x", "y", "z"}, true, 3, domain.ErrSelectionExhausted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts := &fakeAccountStore{accounts: []domain.UpiAccount{healthyAccount("acc-1")}}
			overrides := &fakeOverrideStore{overrides: map[string]domain.ScoringOverride{
				EnginePayin: {
					EnableFallback:      boolPtr(tt.fallback),
					MaxFallbackAttempts: intPtr(tt.maxAtt),
				},
			}}
			o := newTestOrchestrator(accounts, &fakeTraderStore{}, &fakeAuditStore{}, overrides, nil)

			got, err := o.SelectPayin(context.Background(), Request{
				Amount:               5000,
				CounterpartyCapacity: 5000,
				Exclude:              tt.exclude,
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.exclude)+1, got.Attempt)
		})
	}
}

func TestSelectPayin_ExcludedCandidatesNeverPicked(t *testing.T) {
	accounts := &fakeAccountStore{accounts: []domain.UpiAccount{healthyAccount("acc-1"), healthyAccount("acc-2")}}
	o := newTestOrchestrator(accounts, &fakeTraderStore{}, &fakeAuditStore{}, &fakeOverrideStore{}, nil)

	got, err := o.SelectPayin(context.Background(), Request{
		Amount:               5000,
		CounterpartyCapacity: 5000,
		Exclude:              []string{"acc-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "acc-2", got.CandidateID)
	assert.Equal(t, 2, got.Attempt)
}

func TestSelectPayin_OverrideStoreFailureDegradesToDefaults(t *testing.T) {
	accounts := &fakeAccountStore{accounts: []domain.UpiAccount{healthyAccount("acc-1")}}
	overrides := &fakeOverrideStore{err: errors.New("redis down")}
	o := newTestOrchestrator(accounts, &fakeTraderStore{}, &fakeAuditStore{}, overrides, nil)

	_, err := o.SelectPayin(context.Background(), Request{Amount: 5000, CounterpartyCapacity: 5000})
	assert.NoError(t, err)
}

func TestSelectPayout_PersistsAuditForTrader(t *testing.T) {
	now := time.Now()
	active := now.Add(-1 * time.Minute)
	traders := &fakeTraderStore{traders: []domain.Trader{{
		ID:                   "tr-1",
		Name:                 "alpha",
		Active:               true,
		Online:               true,
		LastActiveAt:         &active,
		Attempts:             50,
		Completions:          48,
		AvgCompletionMinutes: 4,
		ConcurrentCap:        5,
		DailyCap:             100000,
		PreferredTier:        domain.TierMedium,
		Priority:             domain.PriorityHigh,
	}}}
	audits := &fakeAuditStore{}
	o := newTestOrchestrator(&fakeAccountStore{}, traders, audits, &fakeOverrideStore{}, nil)

	got, err := o.SelectPayout(context.Background(), Request{Amount: 5000, CounterpartyID: "cp-1"})
	require.NoError(t, err)
	assert.Equal(t, "tr-1", got.CandidateID)
	assert.Equal(t, "alpha", got.Name)
	assert.Contains(t, traders.reserved, "tr-1")

	require.Len(t, audits.inserted, 1)
	assert.Equal(t, EnginePayout, audits.inserted[0].Engine)
}

func TestReportOutcomes_Delegate(t *testing.T) {
	accounts := &fakeAccountStore{accounts: []domain.UpiAccount{healthyAccount("acc-1")}}
	o := newTestOrchestrator(accounts, &fakeTraderStore{}, &fakeAuditStore{}, &fakeOverrideStore{}, nil)

	require.NoError(t, o.ReportPayinOutcome(context.Background(), "acc-1", 5000, true))
	assert.Equal(t, []string{"acc-1"}, accounts.outcomes)
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }
