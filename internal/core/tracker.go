package core

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"
	"unicode/utf8"

	"github.com/JonMunkholm/stageload/internal/domain"
	"github.com/JonMunkholm/stageload/internal/logging"
	"github.com/google/uuid"
)

// MaxDetailLength caps the error detail stored on a failed manifest.
const MaxDetailLength = 2000

// FileMeta describes a file before it is tracked.
type FileMeta struct {
	BatchID       uuid.UUID
	ParentBatchID *uuid.UUID
	FileName      string
	FilePath      string
	ContentType   string
	SizeBytes     int64
	TableName     string
	CreatedBy     string
}

// Counts are the record and issue totals of an attempt.
type Counts struct {
	Total     int64
	Failed    int64
	Corrected int64
	Warnings  int
	Errors    int
}

// Tracker drives manifests through PENDING, PROCESSING and a terminal state.
type Tracker struct {
	store domain.ManifestStore
	now   func() time.Time
}

func NewTracker(store domain.ManifestStore) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

// FindByChecksum returns the newest COMPLETED manifest for checksum.
func (t *Tracker) FindByChecksum(ctx context.Context, checksum string) (*domain.Manifest, bool, error) {
	m, ok, err := t.store.FindByChecksumAndStatus(ctx, checksum, domain.StatusCompleted)
	if err != nil {
		return nil, false, fmt.Errorf("find manifest by checksum: %w", err)
	}
	return m, ok, nil
}

// Create saves a PENDING manifest. A zero meta.BatchID gets a fresh id.
func (t *Tracker) Create(ctx context.Context, meta FileMeta, checksum string) (*domain.Manifest, error) {
	id := meta.BatchID
	if id == uuid.Nil {
		id = uuid.New()
	}
	now := t.now()
	m := &domain.Manifest{
		BatchID:       id,
		ParentBatchID: meta.ParentBatchID,
		FileName:      meta.FileName,
		FilePath:      meta.FilePath,
		FileSizeBytes: meta.SizeBytes,
		Checksum:      checksum,
		ContentType:   meta.ContentType,
		TableName:     meta.TableName,
		Status:        domain.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
		CreatedBy:     meta.CreatedBy,
	}
	if err := t.store.Save(ctx, m); err != nil {
		return nil, fmt.Errorf("create manifest for %s: %w", meta.FileName, err)
	}
	logging.FromContext(ctx).Debug("manifest created", "batch_id", m.BatchID, "file", m.FileName)
	return m, nil
}

// Begin moves m to PROCESSING and stamps its start time.
func (t *Tracker) Begin(ctx context.Context, m *domain.Manifest) error {
	now := t.now()
	m.Status = domain.StatusProcessing
	m.StartedAt = &now
	return t.update(ctx, m)
}

// Complete marks m COMPLETED with rows loaded. Processed and total records
// both equal rows.
func (t *Tracker) Complete(ctx context.Context, m *domain.Manifest, rows int64, c Counts) error {
	t.finish(m, domain.StatusCompleted)
	m.TotalRecords = rows
	m.ProcessedRecords = rows
	m.FailedRecords = c.Failed
	m.CorrectedRecords = c.Corrected
	m.WarningCount = c.Warnings
	m.ErrorCount = c.Errors
	m.DataQuality = domain.QualityFor(c.Corrected, c.Warnings, c.Errors)
	m.ErrorMessage, m.ErrorDetail = "", ""
	return t.update(ctx, m)
}

// Fail marks m FAILED. Counts already on m are kept.
func (t *Tracker) Fail(ctx context.Context, m *domain.Manifest, message, detail string) error {
	if message == "" {
		message = "processing failed"
	}
	t.finish(m, domain.StatusFailed)
	m.DataQuality = domain.QualityRejected
	m.ErrorMessage = message
	m.ErrorDetail = truncate(detail, MaxDetailLength)
	return t.update(ctx, m)
}

func (t *Tracker) finish(m *domain.Manifest, status domain.Status) {
	now := t.now()
	m.Status = status
	m.CompletedAt = &now
	start := m.CreatedAt
	if m.StartedAt != nil {
		start = *m.StartedAt
	}
	m.DurationMs = now.Sub(start).Milliseconds()
}

func (t *Tracker) update(ctx context.Context, m *domain.Manifest) error {
	m.UpdatedAt = t.now()
	if err := t.store.Update(ctx, m); err != nil {
		return fmt.Errorf("update manifest %s to %s: %w", m.BatchID, m.Status, err)
	}
	return nil
}

// FailureDetail renders err's chain followed by the current goroutine stack,
// cut to MaxDetailLength.
func FailureDetail(err error) string {
	var detail string
	for e := err; e != nil; e = errors.Unwrap(e) {
		detail += fmt.Sprintf("%T: %v\n", e, e)
	}
	detail += "\n" + string(debug.Stack())
	return truncate(detail, MaxDetailLength)
}

// StackTrace returns the current goroutine stack cut to limit bytes.
func StackTrace(limit int) string {
	return truncate(string(debug.Stack()), limit)
}

func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
