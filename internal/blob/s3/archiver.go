package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/upstreampay/payrouter/internal/domain"
)

// Archiver moves aged records out of the primary store into object
// storage: selection audits are uploaded as JSONL and then deleted,
// resolved disputes are uploaded but never deleted (the dispute table
// is the system of record for settled money).
type Archiver struct {
	writer   domain.BlobWriter
	audits   domain.SelectionAuditStore
	disputes domain.DisputeStore
	logger   *slog.Logger

	// BatchSize bounds how many rows one archive run uploads per kind.
	BatchSize int
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, audits domain.SelectionAuditStore, disputes domain.DisputeStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:    writer,
		audits:    audits,
		disputes:  disputes,
		logger:    logger.With(slog.String("component", "archiver")),
		BatchSize: 5000,
	}
}

// Run executes one archive pass for both kinds, returning the total
// number of records uploaded.
func (a *Archiver) Run(ctx context.Context, before time.Time) (int64, error) {
	audits, err := a.ArchiveSelections(ctx, before)
	if err != nil {
		return audits, err
	}
	disputes, err := a.ArchiveDisputes(ctx, before)
	if err != nil {
		return audits + disputes, err
	}
	return audits + disputes, nil
}

// ArchiveSelections uploads selection audits created before the cutoff
// to archive/selections/YYYY-MM.jsonl and deletes the archived rows.
// Deletion only happens after the upload succeeded.
func (a *Archiver) ArchiveSelections(ctx context.Context, before time.Time) (int64, error) {
	audits, err := a.audits.ListBefore(ctx, before, a.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive selections query: %w", err)
	}
	if len(audits) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(audits)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive selections marshal: %w", err)
	}

	key := archiveKey("selections", before)
	if err := a.writer.Put(ctx, key, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive selections upload: %w", err)
	}

	// Only the rows older than the last archived row are safe to delete:
	// a partial batch must not take newer, unarchived rows with it.
	cutoff := before
	if len(audits) == a.BatchSize {
		last := audits[len(audits)-1].CreatedAt
		cutoff = last.Add(time.Millisecond)
	}

	deleted, err := a.audits.DeleteBefore(ctx, cutoff)
	if err != nil {
		return int64(len(audits)), fmt.Errorf("s3blob: archive selections delete: %w", err)
	}

	a.logger.Info("archived selection audits",
		slog.String("key", key),
		slog.Int("uploaded", len(audits)),
		slog.Int64("deleted", deleted),
	)
	return int64(len(audits)), nil
}

// ArchiveDisputes uploads disputes resolved before the cutoff to
// archive/disputes/YYYY-MM.jsonl. Dispute rows stay in the database.
func (a *Archiver) ArchiveDisputes(ctx context.Context, before time.Time) (int64, error) {
	disputes, err := a.disputes.ListResolvedBefore(ctx, before, a.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive disputes query: %w", err)
	}
	if len(disputes) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(disputes)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive disputes marshal: %w", err)
	}

	key := archiveKey("disputes", before)
	if err := a.writer.Put(ctx, key, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive disputes upload: %w", err)
	}

	a.logger.Info("archived resolved disputes",
		slog.String("key", key),
		slog.Int("uploaded", len(disputes)),
	)
	return int64(len(disputes)), nil
}

// archiveKey builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time:
//
//	archive/selections/2026-08.jsonl
//	archive/disputes/2026-08.jsonl
func archiveKey(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
