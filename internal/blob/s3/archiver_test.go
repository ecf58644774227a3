package s3blob

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upstreampay/payrouter/internal/domain"
)

type memWriter struct {
	objects map[string][]byte
	types   map[string]string
}

func (m *memWriter) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if m.objects == nil {
		m.objects = map[string][]byte{}
		m.types = map[string]string{}
	}
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

type memAuditStore struct {
	audits        []domain.SelectionAudit
	deletedBefore *time.Time
}

func (m *memAuditStore) Insert(ctx context.Context, a domain.SelectionAudit) error {
	m.audits = append(m.audits, a)
	return nil
}

func (m *memAuditStore) List(ctx context.Context, engine string, opts domain.ListOpts) ([]domain.SelectionAudit, error) {
	return m.audits, nil
}

func (m *memAuditStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.SelectionAudit, error) {
	var out []domain.SelectionAudit
	for _, a := range m.audits {
		if a.CreatedAt.Before(cutoff) {
			out = append(out, a)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memAuditStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.deletedBefore = &cutoff
	var kept []domain.SelectionAudit
	var deleted int64
	for _, a := range m.audits {
		if a.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, a)
	}
	m.audits = kept
	return deleted, nil
}

type memDisputeStore struct {
	resolved []domain.Dispute
}

func (m *memDisputeStore) Create(ctx context.Context, d domain.Dispute) error { return nil }

func (m *memDisputeStore) GetByID(ctx context.Context, id string) (domain.Dispute, error) {
	return domain.Dispute{}, domain.ErrNotFound
}

func (m *memDisputeStore) SetTraderResponse(ctx context.Context, id string, from, to domain.DisputeStatus, note, proofRef string, at time.Time) error {
	return nil
}

func (m *memDisputeStore) SetResolution(ctx context.Context, id string, from []domain.DisputeStatus, to domain.DisputeStatus, adminID, note string, at time.Time) error {
	return nil
}

func (m *memDisputeStore) ListResolvedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Dispute, error) {
	return m.resolved, nil
}

func auditAt(id string, at time.Time) domain.SelectionAudit {
	return domain.SelectionAudit{ID: id, Engine: "payin", CandidateID: "acc-1", CreatedAt: at}
}

func newTestArchiver(w *memWriter, audits *memAuditStore, disputes *memDisputeStore) *Archiver {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewArchiver(w, audits, disputes, logger)
}

func TestArchiveSelections_UploadsAndDeletes(t *testing.T) {
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	old := cutoff.Add(-24 * time.Hour)
	fresh := cutoff.Add(24 * time.Hour)

	w := &memWriter{}
	audits := &memAuditStore{audits: []domain.SelectionAudit{
		auditAt("a-1", old),
		auditAt("a-2", old.Add(time.Hour)),
		auditAt("a-3", fresh),
	}}
	a := newTestArchiver(w, audits, &memDisputeStore{})

	count, err := a.ArchiveSelections(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	key := "archive/selections/2026-08.jsonl"
	require.Contains(t, w.objects, key)
	assert.Equal(t, "application/x-ndjson", w.types[key])
	assert.Equal(t, 2, bytes.Count(w.objects[key], []byte("\n")))

	// Only the archived rows were deleted.
	require.Len(t, audits.audits, 1)
	assert.Equal(t, "a-3", audits.audits[0].ID)
}

func TestArchiveSelections_NothingToArchive(t *testing.T) {
	w := &memWriter{}
	a := newTestArchiver(w, &memAuditStore{}, &memDisputeStore{})

	count, err := a.ArchiveSelections(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, w.objects)
}

func TestArchiveSelections_FullBatchNarrowsDeleteCutoff(t *testing.T) {
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	first := cutoff.Add(-48 * time.Hour)
	second := cutoff.Add(-24 * time.Hour)

	w := &memWriter{}
	audits := &memAuditStore{audits: []domain.SelectionAudit{
		auditAt("a-1", first),
		auditAt("a-2", second),
	}}
	a := newTestArchiver(w, audits, &memDisputeStore{})
	a.BatchSize = 2

	_, err := a.ArchiveSelections(context.Background(), cutoff)
	require.NoError(t, err)

	// The batch filled up, so deletion stops just past the last archived
	// row instead of the full cutoff.
	require.NotNil(t, audits.deletedBefore)
	assert.Equal(t, second.Add(time.Millisecond), *audits.deletedBefore)
}

func TestRun_ArchivesBothKindsAndKeepsDisputeRows(t *testing.T) {
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	old := cutoff.Add(-24 * time.Hour)
	resolved := cutoff.Add(-36 * time.Hour)

	w := &memWriter{}
	audits := &memAuditStore{audits: []domain.SelectionAudit{auditAt("a-1", old)}}
	disputes := &memDisputeStore{resolved: []domain.Dispute{{
		ID: "d-1", Type: domain.DisputePayin, Amount: 5000,
		Status: domain.DisputeAdminApproved, ResolvedAt: &resolved,
	}}}
	a := newTestArchiver(w, audits, disputes)

	count, err := a.Run(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	assert.Contains(t, w.objects, "archive/selections/2026-08.jsonl")
	assert.Contains(t, w.objects, "archive/disputes/2026-08.jsonl")
	// Dispute rows are never deleted from the database.
	assert.Len(t, disputes.resolved, 1)
}
