package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"

	"github.com/JonMunkholm/stageload/internal/domain"
	"github.com/JonMunkholm/stageload/internal/loader"
	"github.com/JonMunkholm/stageload/internal/routing"
	"github.com/JonMunkholm/stageload/internal/transform"
	"github.com/JonMunkholm/stageload/internal/validation"
	"github.com/google/uuid"
)

type memManifests struct {
	mu   sync.Mutex
	byID map[uuid.UUID]domain.Manifest
	seq  []uuid.UUID
}

func newMemManifests() *memManifests {
	return &memManifests{byID: map[uuid.UUID]domain.Manifest{}}
}

func (s *memManifests) Save(_ context.Context, m *domain.Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[m.BatchID] = *m
	s.seq = append(s.seq, m.BatchID)
	return nil
}

func (s *memManifests) Update(_ context.Context, m *domain.Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[m.BatchID]; !ok {
		return domain.ErrNotFound
	}
	s.byID[m.BatchID] = *m
	return nil
}

func (s *memManifests) FindByBatchID(_ context.Context, id uuid.UUID) (*domain.Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("manifest %s: %w", id, domain.ErrNotFound)
	}
	return &m, nil
}

func (s *memManifests) FindByChecksumAndStatus(_ context.Context, checksum string, status domain.Status) (*domain.Manifest, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.seq) - 1; i >= 0; i-- {
		m := s.byID[s.seq[i]]
		if m.Checksum == checksum && m.Status == status {
			return &m, true, nil
		}
	}
	return nil, false, nil
}

func (s *memManifests) FindByParent(_ context.Context, parent uuid.UUID) ([]domain.Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Manifest
	for _, id := range s.seq {
		m := s.byID[id]
		if m.ParentBatchID != nil && *m.ParentBatchID == parent {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memManifests) List(context.Context, domain.ManifestFilter) ([]domain.Manifest, error) {
	return s.all(), nil
}

func (s *memManifests) Stats(context.Context) (domain.ManifestStats, error) {
	return domain.ManifestStats{}, nil
}

func (s *memManifests) all() []domain.Manifest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Manifest, 0, len(s.seq))
	for _, id := range s.seq {
		out = append(out, s.byID[id])
	}
	return out
}

func (s *memManifests) byStatus(status domain.Status) []domain.Manifest {
	var out []domain.Manifest
	for _, m := range s.all() {
		if m.Status == status {
			out = append(out, m)
		}
	}
	return out
}

type memRules struct {
	rules map[string]domain.Rule
}

func (s *memRules) FindByPattern(_ context.Context, pattern string) (*domain.Rule, bool, error) {
	r, ok := s.rules[pattern]
	if !ok {
		return nil, false, nil
	}
	return &r, true, nil
}

func (s *memRules) List(context.Context) ([]domain.Rule, error) { return nil, nil }

func (s *memRules) Upsert(context.Context, *domain.Rule) error { return nil }

func (s *memRules) Delete(context.Context, string) error { return nil }

func (s *memRules) SetEnabled(context.Context, string, bool) (*domain.Rule, error) {
	return nil, domain.ErrNotFound
}

type memIssues struct {
	mu     sync.Mutex
	issues []domain.Issue
}

func (s *memIssues) SaveAll(_ context.Context, issues []domain.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues = append(s.issues, issues...)
	return nil
}

func (s *memIssues) FindByBatch(_ context.Context, id uuid.UUID) ([]domain.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Issue
	for _, is := range s.issues {
		if is.BatchID == id {
			out = append(out, is)
		}
	}
	return out, nil
}

func (s *memIssues) FindByBatchAndSeverity(context.Context, uuid.UUID, domain.Severity) ([]domain.Issue, error) {
	return nil, nil
}

func (s *memIssues) Summary(context.Context, uuid.UUID) ([]domain.IssueSummary, error) {
	return nil, nil
}

func (s *memIssues) FindCritical(context.Context, int) ([]domain.Issue, error) { return nil, nil }

// stubResolver keeps staging table columns in memory.
type stubResolver struct {
	mu     sync.Mutex
	tables map[string][]string
}

func (r *stubResolver) TableExists(_ context.Context, table string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tables[table]
	return ok, nil
}

func (r *stubResolver) EnsureTable(_ context.Context, table string, columns []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	have := r.tables[table]
	for _, c := range columns {
		found := false
		for _, h := range have {
			found = found || h == c
		}
		if !found {
			have = append(have, c)
		}
	}
	r.tables[table] = have
	return nil
}

func (r *stubResolver) ResolveColumnOrder(_ context.Context, table string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cols := r.tables[table]
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s does not exist or has no columns", table)
	}
	return cols, nil
}

type loadCall struct {
	req  loader.LoadRequest
	data string
}

// stubLoader records loads and reports one row per data line.
type stubLoader struct {
	mu    sync.Mutex
	calls []loadCall
	err   error
}

func (l *stubLoader) Load(_ context.Context, r io.Reader, req loader.LoadRequest) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return 0, &domain.LoadFailure{Table: req.Table, Phase: loader.PhaseCopy, Err: l.err}
	}
	l.calls = append(l.calls, loadCall{req: req, data: string(data)})
	return loader.CountLines(data, req.HasHeaders), nil
}

func (l *stubLoader) tables() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, c := range l.calls {
		out = append(out, c.req.Table)
	}
	sort.Strings(out)
	return out
}

type recordingLocker struct {
	mu       sync.Mutex
	locked   []string
	unlocked int
}

func (l *recordingLocker) Lock(_ context.Context, checksum string) (func(), error) {
	l.mu.Lock()
	l.locked = append(l.locked, checksum)
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		l.unlocked++
		l.mu.Unlock()
	}, nil
}

type fixture struct {
	pipeline  *Pipeline
	manifests *memManifests
	issues    *memIssues
	resolver  *stubResolver
	loader    *stubLoader
}

func newFixture(t *testing.T, rules ...domain.Rule) *fixture {
	t.Helper()

	router, err := routing.NewRouter(routing.Rule{Enabled: true, Prefix: routing.DefaultPrefix})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}

	f := &fixture{
		manifests: newMemManifests(),
		issues:    &memIssues{},
		resolver:  &stubResolver{tables: map[string][]string{}},
		loader:    &stubLoader{},
	}
	ruleStore := &memRules{rules: map[string]domain.Rule{}}
	for _, r := range rules {
		ruleStore.rules[r.FilePattern] = r
	}

	reg := transform.NewRegistry()
	t.Cleanup(reg.Close)

	f.pipeline, err = NewPipeline(Deps{
		Manifests:  f.manifests,
		Rules:      ruleStore,
		Issues:     f.issues,
		Router:     router,
		Namer:      routing.NewNamer(routing.DefaultPrefix),
		Validator:  validation.NewEngine(ruleStore, f.issues),
		Transforms: reg,
		Resolver:   f.resolver,
		Loader:     f.loader,
		TempDir:    t.TempDir(),
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return f
}

var errBoom = errors.New("boom")
