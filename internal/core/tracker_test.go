package core

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/stageload/internal/domain"
	"github.com/google/uuid"
)

func fixedClock(times ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		t := times[i]
		if i < len(times)-1 {
			i++
		}
		return t
	}
}

func TestTracker_Lifecycle(t *testing.T) {
	store := newMemManifests()
	tr := NewTracker(store)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tr.now = fixedClock(base, base.Add(time.Second), base.Add(time.Second), base.Add(3*time.Second))
	ctx := context.Background()

	m, err := tr.Create(ctx, FileMeta{FileName: "a.csv", SizeBytes: 10}, "sum")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if m.BatchID == uuid.Nil || m.Status != domain.StatusPending {
		t.Errorf("created manifest = %+v", m)
	}

	if err := tr.Begin(ctx, m); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if m.Status != domain.StatusProcessing || m.StartedAt == nil {
		t.Errorf("begun manifest = %+v", m)
	}

	if _, ok, _ := tr.FindByChecksum(ctx, "sum"); ok {
		t.Error("FindByChecksum matched a PROCESSING manifest")
	}

	if err := tr.Complete(ctx, m, 5, Counts{Corrected: 1, Warnings: 2}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if m.Status != domain.StatusCompleted || m.ProcessedRecords != 5 || m.TotalRecords != 5 {
		t.Errorf("completed manifest = %+v", m)
	}
	if m.DataQuality != domain.QualityCorrected || m.DurationMs != 2000 {
		t.Errorf("quality = %s duration = %d", m.DataQuality, m.DurationMs)
	}

	got, ok, err := tr.FindByChecksum(ctx, "sum")
	if err != nil || !ok || got.BatchID != m.BatchID {
		t.Errorf("FindByChecksum() = %+v, %v, %v", got, ok, err)
	}
}

func TestTracker_FailKeepsCounts(t *testing.T) {
	tr := NewTracker(newMemManifests())
	ctx := context.Background()
	m, _ := tr.Create(ctx, FileMeta{FileName: "b.csv"}, "sum")
	m.TotalRecords = 7

	if err := tr.Fail(ctx, m, "", strings.Repeat("x", MaxDetailLength+50)); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}
	if m.Status != domain.StatusFailed || m.DataQuality != domain.QualityRejected || m.TotalRecords != 7 {
		t.Errorf("failed manifest = %+v", m)
	}
	if m.ErrorMessage != "processing failed" || len(m.ErrorDetail) != MaxDetailLength || m.CompletedAt == nil {
		t.Errorf("failure fields: message=%q detail=%d", m.ErrorMessage, len(m.ErrorDetail))
	}
}

func TestFailureDetail(t *testing.T) {
	err := fmt.Errorf("outer: %w", &domain.SchemaMismatch{Table: "t", FieldCount: 3, ColumnCount: 2})
	detail := FailureDetail(err)
	if !strings.Contains(detail, "*domain.SchemaMismatch") || !strings.Contains(detail, "goroutine") {
		t.Errorf("FailureDetail() = %q", detail)
	}
}

func TestTruncateKeepsRunes(t *testing.T) {
	if got := truncate("aé", 2); got != "a" {
		t.Errorf("truncate() = %q, want %q", got, "a")
	}
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
}
