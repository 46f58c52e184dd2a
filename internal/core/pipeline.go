package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/JonMunkholm/stageload/internal/domain"
	"github.com/JonMunkholm/stageload/internal/loader"
	"github.com/JonMunkholm/stageload/internal/logging"
	"github.com/JonMunkholm/stageload/internal/routing"
	"github.com/JonMunkholm/stageload/internal/schema"
	"github.com/JonMunkholm/stageload/internal/transform"
	"github.com/JonMunkholm/stageload/internal/validation"
	"github.com/google/uuid"
)

// ErrFileTooLarge is returned for submissions above the configured limit.
var ErrFileTooLarge = errors.New("file too large")

// Validator checks and repairs file content line by line.
type Validator interface {
	ValidateAndFix(ctx context.Context, r io.Reader, req validation.Request) (*validation.Result, error)
}

// TransformerSource hands out the transformer configured by a rule.
type TransformerSource interface {
	ForRule(rule *domain.Rule) transform.Transformer
}

// TableResolver creates staging tables and reports their columns.
type TableResolver interface {
	TableExists(ctx context.Context, table string) (bool, error)
	EnsureTable(ctx context.Context, table string, columns []string) error
	ResolveColumnOrder(ctx context.Context, table string) ([]string, error)
}

// BulkLoader copies delimited content into a staging table.
type BulkLoader interface {
	Load(ctx context.Context, r io.Reader, req loader.LoadRequest) (int64, error)
}

// ChecksumLocker serializes work on identical content. Unlock must be
// called exactly once.
type ChecksumLocker interface {
	Lock(ctx context.Context, checksum string) (unlock func(), err error)
}

// Submission is one file handed to the pipeline.
type Submission struct {
	Data        []byte
	FileName    string
	FilePath    string
	ContentType string

	// Format defaults to a guess from the file extension.
	Format     domain.Format
	HasHeaders bool

	// RouteByFilename resolves the table with the router instead of
	// generating a unique name. Routing failures fail the attempt.
	RouteByFilename bool

	ParentBatchID *uuid.UUID
}

// Deps are the collaborators of a Pipeline. Locker is optional.
type Deps struct {
	Manifests  domain.ManifestStore
	Rules      domain.RuleStore
	Issues     domain.IssueStore
	Router     *routing.Router
	Namer      *routing.Namer
	Validator  Validator
	Transforms TransformerSource
	Resolver   TableResolver
	Loader     BulkLoader
	Locker     ChecksumLocker

	// TempDir hosts archive workspaces; empty means os.TempDir.
	TempDir string
	// MaxFileSize rejects larger submissions; zero disables the check.
	MaxFileSize int64
}

// Pipeline ingests files into staging tables. It is shared by the HTTP
// API, the CLI and the watch folder and is safe for concurrent use.
type Pipeline struct {
	tracker    *Tracker
	manifests  domain.ManifestStore
	rules      domain.RuleStore
	issues     domain.IssueStore
	router     *routing.Router
	namer      *routing.Namer
	validator  Validator
	transforms TransformerSource
	resolver   TableResolver
	loader     BulkLoader
	locker     ChecksumLocker

	tempDir     string
	maxFileSize int64
}

// NewPipeline wires a Pipeline. Every dependency except Locker is required.
func NewPipeline(d Deps) (*Pipeline, error) {
	switch {
	case d.Manifests == nil, d.Rules == nil, d.Issues == nil:
		return nil, errors.New("pipeline: stores are required")
	case d.Router == nil, d.Namer == nil:
		return nil, errors.New("pipeline: router and namer are required")
	case d.Validator == nil, d.Transforms == nil, d.Resolver == nil, d.Loader == nil:
		return nil, errors.New("pipeline: validator, transforms, resolver and loader are required")
	}

	tmp := d.TempDir
	if tmp == "" {
		tmp = os.TempDir()
	}

	return &Pipeline{
		tracker:     NewTracker(d.Manifests),
		manifests:   d.Manifests,
		rules:       d.Rules,
		issues:      d.Issues,
		router:      d.Router,
		namer:       d.Namer,
		validator:   d.Validator,
		transforms:  d.Transforms,
		resolver:    d.Resolver,
		loader:      d.Loader,
		locker:      d.Locker,
		tempDir:     tmp,
		maxFileSize: d.MaxFileSize,
	}, nil
}

// Ingest loads one delimited file. Content already loaded by a COMPLETED
// batch returns that manifest with AlreadyProcessed set and no new rows.
//
// Once a manifest exists every failure marks it FAILED; the failed
// manifest is returned together with the error.
func (p *Pipeline) Ingest(ctx context.Context, sub Submission) (*domain.Manifest, error) {
	if len(sub.Data) == 0 {
		return nil, fmt.Errorf("%s: %w", sub.FileName, ErrEmptyFile)
	}
	if p.maxFileSize > 0 && int64(len(sub.Data)) > p.maxFileSize {
		return nil, fmt.Errorf("%s is %d bytes (limit %d): %w", sub.FileName, len(sub.Data), p.maxFileSize, ErrFileTooLarge)
	}
	if sub.Format == "" {
		sub.Format = domain.FormatForFile(sub.FileName)
	}
	if sub.FilePath == "" {
		sub.FilePath = "upload://" + sub.FileName
	}

	start := time.Now()
	ctx = logging.WithFile(ctx, sub.FileName)
	checksum := Checksum(sub.Data)

	if p.locker != nil {
		unlock, err := p.locker.Lock(ctx, checksum)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	prior, ok, err := p.tracker.FindByChecksum(ctx, checksum)
	if err != nil {
		return nil, err
	}
	if ok {
		prior.AlreadyProcessed = true
		logging.FromContext(ctx).Info("file already processed",
			"prior_batch_id", prior.BatchID,
			"table", prior.TableName,
		)
		return prior, nil
	}

	batchID := uuid.New()
	table, routeErr := p.targetTable(sub, batchID)

	m, err := p.tracker.Create(ctx, FileMeta{
		BatchID:       batchID,
		ParentBatchID: sub.ParentBatchID,
		FileName:      sub.FileName,
		FilePath:      sub.FilePath,
		ContentType:   sub.ContentType,
		SizeBytes:     int64(len(sub.Data)),
		TableName:     table,
		CreatedBy:     Submitter(ctx),
	}, checksum)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithBatch(ctx, m.BatchID)
	logging.FromContext(ctx).Info("ingest started",
		"table", table,
		"size_bytes", len(sub.Data),
		"submitted_by", m.CreatedBy,
		"client_ip", ClientIP(ctx),
	)

	if routeErr != nil {
		return p.fail(ctx, m, routeErr)
	}
	if err := p.tracker.Begin(ctx, m); err != nil {
		return p.fail(ctx, m, err)
	}

	var counts Counts
	rows, err := p.process(ctx, m, sub, &counts)
	if err != nil {
		m.TotalRecords = counts.Total
		m.FailedRecords = counts.Failed
		m.CorrectedRecords = counts.Corrected
		m.WarningCount = counts.Warnings
		m.ErrorCount = counts.Errors
		return p.fail(ctx, m, err)
	}

	// Rows are committed; finish the manifest even if the caller left.
	if err := p.tracker.Complete(context.WithoutCancel(ctx), m, rows, counts); err != nil {
		return m, err
	}

	logging.FromContext(ctx).Info("ingest completed",
		"table", m.TableName,
		"rows", rows,
		"quality", m.DataQuality,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return m, nil
}

func (p *Pipeline) targetTable(sub Submission, batchID uuid.UUID) (string, error) {
	if sub.RouteByFilename {
		return p.router.ResolveTable(sub.FileName)
	}
	return p.namer.TableName(sub.FileName, batchID), nil
}

// process runs validation, transformation, column resolution and the load.
// counts is filled as steps finish so a failure keeps partial totals.
func (p *Pipeline) process(ctx context.Context, m *domain.Manifest, sub Submission, counts *Counts) (int64, error) {
	logger := logging.FromContext(ctx)

	data, err := PrepareInput(sub.Data)
	if err != nil {
		return 0, err
	}
	counts.Total = loader.CountLines(data, sub.HasHeaders)

	pattern := routing.FilePattern(sub.FileName)
	vres, err := p.validator.ValidateAndFix(ctx, bytes.NewReader(data), validation.Request{
		FileName:  sub.FileName,
		Pattern:   pattern,
		BatchID:   m.BatchID,
		Delimiter: sub.Format.Delimiter(),
	})
	if err != nil {
		return 0, fmt.Errorf("validate %s: %w", sub.FileName, err)
	}
	fixed := make(map[int]struct{})
	markCorrected(fixed, vres.Issues)
	counts.Corrected = int64(len(fixed))
	counts.Warnings = vres.WarningCount
	counts.Errors = vres.ErrorCount
	if vres.Rejected {
		counts.Failed = counts.Total
		return 0, &domain.ValidationRejection{
			FileName:      sub.FileName,
			Pattern:       pattern,
			CriticalCount: vres.CriticalCount,
			IssueCount:    len(vres.Issues),
		}
	}

	// Transformation is configured on the same rule but does not depend on
	// validation being enabled.
	rule := vres.Rule
	if rule == nil {
		if rule, _, err = p.rules.FindByPattern(ctx, pattern); err != nil {
			return 0, fmt.Errorf("find transformation rule %s: %w", pattern, err)
		}
	}
	tout, err := transform.Apply(ctx, p.transforms.ForRule(rule), vres.Data, m.BatchID, sub.FileName)
	if err != nil {
		return 0, err
	}
	if len(tout.Issues) > 0 {
		if err := p.issues.SaveAll(ctx, tout.Issues); err != nil {
			return 0, fmt.Errorf("save transformation issues: %w", err)
		}
		counts.Warnings += len(tout.Issues)
		markCorrected(fixed, tout.Issues)
		counts.Corrected = int64(len(fixed))
	}
	data = tout.Data

	columns, err := p.columns(ctx, m.TableName, data, sub)
	if err != nil {
		return 0, err
	}

	// An in-flight load is never cancelled.
	rows, err := p.loader.Load(context.WithoutCancel(ctx), bytes.NewReader(data), loader.LoadRequest{
		Table:      m.TableName,
		Columns:    columns,
		Format:     sub.Format,
		HasHeaders: sub.HasHeaders,
		BatchID:    m.BatchID,
	})
	if err != nil {
		return 0, err
	}

	logger.Debug("rows loaded", "table", m.TableName, "rows", rows, "columns", len(columns))
	return rows, nil
}

// markCorrected adds the line of every auto-fixed issue to lines. A line
// repaired by validation and changed again by a transformer counts once.
func markCorrected(lines map[int]struct{}, issues []domain.Issue) {
	for _, is := range issues {
		if is.AutoFixed {
			lines[is.LineNumber] = struct{}{}
		}
	}
}

// columns returns the COPY column list. Files with headers shape the table;
// headerless files load into the leading columns of an existing table.
func (p *Pipeline) columns(ctx context.Context, table string, data []byte, sub Submission) ([]string, error) {
	if sub.HasHeaders {
		header, err := loader.FirstRecord(data, sub.Format)
		if err != nil {
			return nil, fmt.Errorf("read header of %s: %w", sub.FileName, err)
		}
		cols := schema.SanitizeColumns(header)
		if err := p.resolver.EnsureTable(ctx, table, cols); err != nil {
			return nil, err
		}
		return cols, nil
	}

	order, err := p.resolver.ResolveColumnOrder(ctx, table)
	if err != nil {
		return nil, err
	}
	n, err := loader.FieldCount(data, sub.Format)
	if err != nil {
		return nil, fmt.Errorf("count fields of %s: %w", sub.FileName, err)
	}
	cols, err := schema.FitColumns(table, order, n)
	if err != nil {
		return nil, err
	}
	// Adds the bookkeeping columns and indexes to tables created elsewhere.
	if err := p.resolver.EnsureTable(ctx, table, cols); err != nil {
		return nil, err
	}
	return cols, nil
}

func (p *Pipeline) fail(ctx context.Context, m *domain.Manifest, cause error) (*domain.Manifest, error) {
	logging.FromContext(ctx).Error("ingest failed",
		"table", m.TableName,
		"error_type", domain.ErrorType(cause),
		"error", cause,
	)
	if err := p.tracker.Fail(context.WithoutCancel(ctx), m, cause.Error(), FailureDetail(cause)); err != nil {
		logging.FromContext(ctx).Error("record failed manifest", "error", err)
	}
	return m, cause
}

// GetStatus returns the manifest of a batch. Unknown ids wrap
// domain.ErrNotFound.
func (p *Pipeline) GetStatus(ctx context.Context, batchID uuid.UUID) (*domain.Manifest, error) {
	return p.manifests.FindByBatchID(ctx, batchID)
}

// CanRoute reports whether filename would be routed to a table.
func (p *Pipeline) CanRoute(filename string) bool {
	return p.router.CanRoute(filename)
}

// MatchesRoutingPattern reports whether filename follows the routing naming
// convention, whether or not routing is enabled.
func (p *Pipeline) MatchesRoutingPattern(filename string) bool {
	return p.router.MatchesPattern(filename)
}

// TableExists reports whether a staging table exists.
func (p *Pipeline) TableExists(ctx context.Context, table string) (bool, error) {
	return p.resolver.TableExists(ctx, table)
}
