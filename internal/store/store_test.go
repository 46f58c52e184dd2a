package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/stageload/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestMigrateURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@host:5432/db": "pgx5://u:p@host:5432/db",
		"postgresql://u@host/db":      "pgx5://u@host/db",
		"pgx5://u@host/db":            "pgx5://u@host/db",
	}
	for in, want := range tests {
		if got := migrateURL(in); got != want {
			t.Errorf("migrateURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEmbeddedMigrationsPaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}

	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	if len(ups) == 0 {
		t.Fatal("no migrations embedded")
	}
	for v := range ups {
		if !downs[v] {
			t.Errorf("migration %s has no down file", v)
		}
	}
}

func TestListManifestsQuery(t *testing.T) {
	q, args := listManifestsQuery(domain.ManifestFilter{})
	if !strings.HasSuffix(q, "ORDER BY created_at DESC LIMIT $1") || len(args) != 1 || args[0] != DefaultListLimit {
		t.Errorf("unfiltered query = %q %v", q, args)
	}

	q, args = listManifestsQuery(domain.ManifestFilter{Status: domain.StatusFailed, Limit: 5})
	if !strings.Contains(q, "WHERE status = $1 ORDER BY created_at DESC LIMIT $2") {
		t.Errorf("filtered query = %q", q)
	}
	if len(args) != 2 || args[0] != "FAILED" || args[1] != 5 {
		t.Errorf("filtered args = %v", args)
	}
}

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("STAGELOAD_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("STAGELOAD_TEST_DATABASE_URL not set")
	}
	if err := Migrate(url, DirectionUp); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	pool, err := pgxpool.New(context.Background(), url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func TestManifestStore_Lifecycle(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	s := NewManifestStore(pool)

	parent := uuid.New()
	checksum := strings.Repeat("ab", 32) + uuid.NewString()[:4]
	m := &domain.Manifest{
		BatchID:       uuid.New(),
		ParentBatchID: &parent,
		FileName:      "PM162.txt",
		FileSizeBytes: 42,
		Checksum:      checksum,
		Status:        domain.StatusPending,
	}
	if err := s.Save(ctx, m); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, ok, err := s.FindByChecksumAndStatus(ctx, checksum, domain.StatusCompleted); err != nil || ok {
		t.Fatalf("pending manifest matched COMPLETED lookup: ok=%v err=%v", ok, err)
	}

	now := time.Now()
	m.Status = domain.StatusCompleted
	m.TableName = "staging_pm1"
	m.TotalRecords, m.ProcessedRecords = 3, 3
	m.StartedAt, m.CompletedAt = &now, &now
	m.DataQuality = domain.QualityClean
	if err := s.Update(ctx, m); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, ok, err := s.FindByChecksumAndStatus(ctx, checksum, domain.StatusCompleted)
	if err != nil || !ok {
		t.Fatalf("FindByChecksumAndStatus: ok=%v err=%v", ok, err)
	}
	if got.BatchID != m.BatchID || got.TableName != "staging_pm1" || got.ProcessedRecords != 3 {
		t.Errorf("unexpected manifest: %+v", got)
	}
	if got.ParentBatchID == nil || *got.ParentBatchID != parent {
		t.Errorf("ParentBatchID = %v, want %s", got.ParentBatchID, parent)
	}

	children, err := s.FindByParent(ctx, parent)
	if err != nil || len(children) != 1 {
		t.Errorf("FindByParent = %d, %v; want 1 child", len(children), err)
	}

	if _, err := s.FindByBatchID(ctx, uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("FindByBatchID(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestRuleAndIssueStores(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	rules := NewRuleStore(pool)
	issues := NewIssueStore(pool)

	pattern := "ZZ" + uuid.NewString()[:1]
	t.Cleanup(func() { rules.Delete(context.Background(), pattern) })

	r := &domain.Rule{FilePattern: pattern, ExpectedDelimiters: 3, ValidationEnabled: true, AutoFixEnabled: true}
	if err := rules.Upsert(ctx, r); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if r.ID == 0 {
		t.Error("Upsert did not set ID")
	}

	disabled, err := rules.SetEnabled(ctx, pattern, false)
	if err != nil || disabled.ValidationEnabled {
		t.Fatalf("SetEnabled: %+v, %v", disabled, err)
	}

	batch := uuid.New()
	err = issues.SaveAll(ctx, []domain.Issue{
		{BatchID: batch, FileName: "f", LineNumber: 2, Kind: domain.IssueExcessDelimiters, Severity: domain.SeverityWarning, AutoFixed: true, Description: "b"},
		{BatchID: batch, FileName: "f", LineNumber: 1, Kind: domain.IssueInsufficientDelimiters, Severity: domain.SeverityCritical, Description: "a"},
	})
	if err != nil {
		t.Fatalf("SaveAll: %v", err)
	}

	got, err := issues.FindByBatch(ctx, batch)
	if err != nil || len(got) != 2 || got[0].LineNumber != 1 {
		t.Fatalf("FindByBatch = %+v, %v", got, err)
	}
	crit, err := issues.FindByBatchAndSeverity(ctx, batch, domain.SeverityCritical)
	if err != nil || len(crit) != 1 {
		t.Errorf("FindByBatchAndSeverity = %d, %v; want 1", len(crit), err)
	}
	sum, err := issues.Summary(ctx, batch)
	if err != nil || len(sum) != 2 {
		t.Errorf("Summary = %+v, %v", sum, err)
	}

	if err := rules.Delete(ctx, pattern); err != nil {
		t.Errorf("Delete: %v", err)
	}
	if err := rules.Delete(ctx, pattern); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
}
