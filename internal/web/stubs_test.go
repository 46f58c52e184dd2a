package web

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/stageload/internal/config"
	"github.com/JonMunkholm/stageload/internal/core"
	"github.com/JonMunkholm/stageload/internal/domain"
	"github.com/JonMunkholm/stageload/internal/schema"
	"github.com/JonMunkholm/stageload/internal/validation"
	"github.com/JonMunkholm/stageload/internal/watch"
	"github.com/google/uuid"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8080},
		Ingest: config.IngestConfig{
			MaxFileSize:   1 << 20,
			MaxConcurrent: 2,
			MaxWaitTime:   time.Second,
		},
		Routing:  config.RoutingConfig{Enabled: true, Prefix: "staging"},
		Naming:   config.NamingConfig{Prefix: "staging"},
		Watch:    config.WatchConfig{Root: "/srv/watch"},
		Security: config.SecurityConfig{EnableCSP: true},
	}
}

type stubPipeline struct {
	mu        sync.Mutex
	subs      []core.Submission
	submitter string
	archives  []string

	manifest *domain.Manifest
	err      error
	batch    *domain.BatchResult
	analysis *domain.ArchiveAnalysis
	routable map[string]bool
}

func (p *stubPipeline) Ingest(ctx context.Context, sub core.Submission) (*domain.Manifest, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs = append(p.subs, sub)
	p.submitter = core.Submitter(ctx)
	if p.manifest != nil || p.err != nil {
		return p.manifest, p.err
	}
	return &domain.Manifest{BatchID: uuid.New(), FileName: sub.FileName, Status: domain.StatusCompleted}, nil
}

func (p *stubPipeline) IngestArchive(ctx context.Context, data []byte, filename string) (*domain.BatchResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.archives = append(p.archives, filename)
	if p.batch != nil || p.err != nil {
		return p.batch, p.err
	}
	return &domain.BatchResult{ParentBatchID: uuid.New(), FileName: filename, Status: domain.BatchSuccess}, nil
}

func (p *stubPipeline) AnalyzeArchive(ctx context.Context, data []byte, filename string) (*domain.ArchiveAnalysis, error) {
	if p.analysis != nil || p.err != nil {
		return p.analysis, p.err
	}
	return &domain.ArchiveAnalysis{}, nil
}

func (p *stubPipeline) CanRoute(filename string) bool {
	return p.routable[filename]
}

func (p *stubPipeline) lastSubmission() core.Submission {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subs[len(p.subs)-1]
}

type memManifests struct {
	mu   sync.Mutex
	byID map[uuid.UUID]domain.Manifest

	lastFilter domain.ManifestFilter
}

func newMemManifests(list ...domain.Manifest) *memManifests {
	s := &memManifests{byID: make(map[uuid.UUID]domain.Manifest)}
	for _, m := range list {
		s.byID[m.BatchID] = m
	}
	return s
}

func (s *memManifests) Save(ctx context.Context, m *domain.Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[m.BatchID] = *m
	return nil
}

func (s *memManifests) Update(ctx context.Context, m *domain.Manifest) error {
	return s.Save(ctx, m)
}

func (s *memManifests) FindByBatchID(ctx context.Context, id uuid.UUID) (*domain.Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("manifest %s: %w", id, domain.ErrNotFound)
	}
	return &m, nil
}

func (s *memManifests) FindByChecksumAndStatus(ctx context.Context, checksum string, status domain.Status) (*domain.Manifest, bool, error) {
	return nil, false, nil
}

func (s *memManifests) FindByParent(ctx context.Context, parentID uuid.UUID) ([]domain.Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Manifest
	for _, m := range s.byID {
		if m.ParentBatchID != nil && *m.ParentBatchID == parentID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileName < out[j].FileName })
	return out, nil
}

func (s *memManifests) List(ctx context.Context, f domain.ManifestFilter) ([]domain.Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFilter = f
	var out []domain.Manifest
	for _, m := range s.byID {
		if f.Status == "" || m.Status == f.Status {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileName < out[j].FileName })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *memManifests) Stats(ctx context.Context) (domain.ManifestStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := domain.ManifestStats{ByStatus: make(map[domain.Status]int64)}
	for _, m := range s.byID {
		st.ByStatus[m.Status]++
		st.TotalBatches++
		st.TotalRows += m.ProcessedRecords
	}
	return st, nil
}

type memRules struct {
	mu    sync.Mutex
	rules map[string]domain.Rule
}

func newMemRules() *memRules {
	return &memRules{rules: make(map[string]domain.Rule)}
}

func (s *memRules) FindByPattern(ctx context.Context, pattern string) (*domain.Rule, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[pattern]
	if !ok {
		return nil, false, nil
	}
	return &r, true, nil
}

func (s *memRules) List(ctx context.Context) ([]domain.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Rule
	for _, r := range s.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FilePattern < out[j].FilePattern })
	return out, nil
}

func (s *memRules) Upsert(ctx context.Context, r *domain.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[r.FilePattern] = *r
	return nil
}

func (s *memRules) SetEnabled(ctx context.Context, pattern string, enabled bool) (*domain.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[pattern]
	if !ok {
		return nil, fmt.Errorf("rule %s: %w", pattern, domain.ErrNotFound)
	}
	r.ValidationEnabled = enabled
	s.rules[pattern] = r
	return &r, nil
}

func (s *memRules) Delete(ctx context.Context, pattern string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[pattern]; !ok {
		return fmt.Errorf("rule %s: %w", pattern, domain.ErrNotFound)
	}
	delete(s.rules, pattern)
	return nil
}

type memIssues struct {
	issues []domain.Issue
}

func (s *memIssues) SaveAll(ctx context.Context, issues []domain.Issue) error {
	s.issues = append(s.issues, issues...)
	return nil
}

func (s *memIssues) FindByBatch(ctx context.Context, batchID uuid.UUID) ([]domain.Issue, error) {
	var out []domain.Issue
	for _, is := range s.issues {
		if is.BatchID == batchID {
			out = append(out, is)
		}
	}
	return out, nil
}

func (s *memIssues) FindByBatchAndSeverity(ctx context.Context, batchID uuid.UUID, sev domain.Severity) ([]domain.Issue, error) {
	var out []domain.Issue
	for _, is := range s.issues {
		if is.BatchID == batchID && is.Severity == sev {
			out = append(out, is)
		}
	}
	return out, nil
}

func (s *memIssues) Summary(ctx context.Context, batchID uuid.UUID) ([]domain.IssueSummary, error) {
	counts := make(map[domain.IssueSummary]int64)
	for _, is := range s.issues {
		if is.BatchID == batchID {
			counts[domain.IssueSummary{Kind: is.Kind, Severity: is.Severity}]++
		}
	}
	var out []domain.IssueSummary
	for k, n := range counts {
		k.Count = n
		out = append(out, k)
	}
	return out, nil
}

func (s *memIssues) FindCritical(ctx context.Context, limit int) ([]domain.Issue, error) {
	var out []domain.Issue
	for _, is := range s.issues {
		if is.Severity == domain.SeverityCritical && len(out) < limit {
			out = append(out, is)
		}
	}
	return out, nil
}

type stubReports struct{ issues *memIssues }

func (r stubReports) GenerateReport(ctx context.Context, batchID uuid.UUID) (*validation.Report, error) {
	list, _ := r.issues.FindByBatch(ctx, batchID)
	rep := &validation.Report{BatchID: batchID, TotalIssues: len(list), Issues: list}
	return rep, nil
}

type stubTables struct {
	byPrefix map[string][]schema.StagingTable
	prefixes []string
}

func (s *stubTables) ListStagingTables(ctx context.Context, prefix string) ([]schema.StagingTable, error) {
	s.prefixes = append(s.prefixes, prefix)
	return s.byPrefix[prefix], nil
}

type stubWatch struct {
	status   watch.Status
	files    map[string][]watch.FileInfo
	retryErr error
	retried  []string
}

func (s *stubWatch) Status() watch.Status { return s.status }

func (s *stubWatch) ListFiles(folder string) ([]watch.FileInfo, error) {
	files, ok := s.files[folder]
	if !ok {
		return nil, fmt.Errorf("%w: %s", watch.ErrUnknownFolder, folder)
	}
	return files, nil
}

func (s *stubWatch) Retry(name string) (string, error) {
	if s.retryErr != nil {
		return "", s.retryErr
	}
	s.retried = append(s.retried, name)
	return watch.OriginalName(name), nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }
