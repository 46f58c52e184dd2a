package core

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/JonMunkholm/stageload/internal/domain"
	"github.com/JonMunkholm/stageload/internal/loader"
	"github.com/JonMunkholm/stageload/internal/logging"
	"github.com/google/uuid"
)

// ErrUnsafeArchiveEntry is returned for members that would extract outside
// the workspace.
var ErrUnsafeArchiveEntry = errors.New("unsafe archive entry")

// delimitedExts are the member extensions ingested regardless of name.
var delimitedExts = map[string]bool{".csv": true, ".tsv": true, ".txt": true}

// IsArchive reports whether name has a .zip extension.
func IsArchive(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".zip")
}

// IsDelimited reports whether name has a .csv, .tsv or .txt extension.
func IsDelimited(name string) bool {
	return delimitedExts[strings.ToLower(filepath.Ext(name))]
}

type member struct {
	name string // path inside the archive
	path string // extracted location
}

// IngestArchive loads every eligible member of a zip archive as a child of
// one parent manifest. Members following the routing convention load as
// headerless TSV into their routed table; the rest load with headers into
// generated tables. The extraction workspace is always removed.
func (p *Pipeline) IngestArchive(ctx context.Context, data []byte, filename string) (*domain.BatchResult, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%s: %w", filename, ErrEmptyFile)
	}
	if p.maxFileSize > 0 && int64(len(data)) > p.maxFileSize {
		return nil, fmt.Errorf("%s is %d bytes (limit %d): %w", filename, len(data), p.maxFileSize, ErrFileTooLarge)
	}

	start := time.Now()
	ctx = logging.WithFile(ctx, filename)
	checksum := Checksum(data)

	prior, ok, err := p.tracker.FindByChecksum(ctx, checksum)
	if err != nil {
		return nil, err
	}
	if ok {
		logging.FromContext(ctx).Info("archive already processed", "prior_batch_id", prior.BatchID)
		return &domain.BatchResult{
			ParentBatchID: prior.BatchID,
			FileName:      filename,
			Status:        domain.BatchAlreadyProcessed,
			TotalRows:     prior.ProcessedRecords,
			DurationMs:    time.Since(start).Milliseconds(),
			Message: fmt.Sprintf("DUPLICATE FILE: %s was already processed as batch %s on %s",
				filename, prior.BatchID, prior.CreatedAt.Format(time.RFC3339)),
		}, nil
	}

	parent, err := p.tracker.Create(ctx, FileMeta{
		FileName:    filename,
		FilePath:    "upload://" + filename,
		ContentType: "application/zip",
		SizeBytes:   int64(len(data)),
		CreatedBy:   Submitter(ctx),
	}, checksum)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithBatch(ctx, parent.BatchID)
	logger := logging.FromContext(ctx)

	if err := p.tracker.Begin(ctx, parent); err != nil {
		_, err = p.fail(ctx, parent, err)
		return nil, err
	}

	dir, err := os.MkdirTemp(p.tempDir, "batch_"+parent.BatchID.String()+"_*")
	if err != nil {
		_, err = p.fail(ctx, parent, fmt.Errorf("create archive workspace: %w", err))
		return nil, err
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("remove archive workspace", "dir", dir, "error", err)
		}
	}()

	members, err := p.extract(data, dir)
	if err != nil {
		_, err = p.fail(ctx, parent, err)
		return nil, err
	}
	logger.Info("archive extracted", "members", len(members))

	res := &domain.BatchResult{
		ParentBatchID: parent.BatchID,
		FileName:      filename,
		TotalFiles:    len(members),
		Files:         make([]domain.FileResult, 0, len(members)),
	}
	for _, mem := range members {
		fr := p.ingestMember(ctx, filename, mem, parent.BatchID)
		res.Files = append(res.Files, fr)

		switch fr.Status {
		case domain.MemberSuccess:
			res.Succeeded++
			res.TotalRows += fr.Rows
			if fr.Rows > 0 {
				res.Summary.FilesReady++
			} else {
				res.Summary.FilesNeedReview++
				res.Summary.QualityMessages = append(res.Summary.QualityMessages,
					fmt.Sprintf("%s contains no data rows", fr.FileName))
			}
		case domain.MemberDuplicate:
			res.Duplicates++
		default:
			res.Failed++
			res.Summary.FilesNeedReview++
			res.Summary.QualityMessages = append(res.Summary.QualityMessages,
				fmt.Sprintf("Failed to process: %s - %s", fr.FileName, fr.Error))
		}
	}

	res.Status = domain.OverallStatus(res.Succeeded, res.Failed, res.Duplicates)
	res.Message = batchMessage(res)
	res.DurationMs = time.Since(start).Milliseconds()

	parent.TotalRecords = res.TotalRows
	if res.Status == domain.BatchFailed {
		parent.FailedRecords = int64(res.Failed)
		_, _ = p.fail(ctx, parent, errors.New(res.Message))
	} else if err := p.tracker.Complete(context.WithoutCancel(ctx), parent, res.TotalRows, Counts{Failed: int64(res.Failed)}); err != nil {
		return res, err
	}

	logger.Info("archive processed",
		"status", res.Status,
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"duplicates", res.Duplicates,
		"rows", res.TotalRows,
		"duration_ms", res.DurationMs,
	)
	return res, nil
}

func (p *Pipeline) ingestMember(ctx context.Context, archive string, mem member, parentID uuid.UUID) domain.FileResult {
	base := path.Base(mem.name)
	fr := domain.FileResult{FileName: base}

	if err := ctx.Err(); err != nil {
		fr.Status = domain.MemberFailed
		fr.Error = err.Error()
		return fr
	}

	content, err := os.ReadFile(mem.path)
	if err != nil {
		fr.Status = domain.MemberFailed
		fr.Error = err.Error()
		return fr
	}

	sub := Submission{
		Data:          content,
		FileName:      base,
		FilePath:      "archive://" + archive + "/" + mem.name,
		ContentType:   "text/plain",
		ParentBatchID: &parentID,
	}
	if p.router.MatchesPattern(base) {
		sub.Format = domain.FormatTSV
		sub.RouteByFilename = true
	} else {
		sub.Format = domain.FormatForFile(base)
		sub.HasHeaders = true
	}

	m, err := p.Ingest(ctx, sub)
	if m != nil {
		id := m.BatchID
		fr.BatchID = &id
		fr.TableName = m.TableName
	}
	switch {
	case err != nil:
		fr.Status = domain.MemberFailed
		fr.Error = err.Error()
	case m.AlreadyProcessed:
		fr.Status = domain.MemberDuplicate
	default:
		fr.Status = domain.MemberSuccess
		fr.Rows = m.ProcessedRecords
	}
	return fr
}

func batchMessage(res *domain.BatchResult) string {
	switch res.Status {
	case domain.BatchAllDuplicates:
		return fmt.Sprintf("All %d files were already processed", res.Duplicates)
	case domain.BatchPartialSuccess:
		return fmt.Sprintf("Processed %d of %d files (%d failed, %d duplicates)",
			res.Succeeded, res.TotalFiles, res.Failed, res.Duplicates)
	case domain.BatchSuccess:
		return fmt.Sprintf("Processed %d files, %d rows loaded", res.Succeeded, res.TotalRows)
	default:
		if res.TotalFiles == 0 {
			return "Archive contains no eligible files"
		}
		return fmt.Sprintf("All %d files failed", res.Failed)
	}
}

// eligible reports whether an archive member is ingested.
func (p *Pipeline) eligible(name string) bool {
	base := path.Base(name)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(name, "__MACOSX/") {
		return false
	}
	return IsDelimited(base) || p.router.MatchesPattern(base)
}

// extract writes eligible members below dir in name order.
func (p *Pipeline) extract(data []byte, dir string) ([]member, error) {
	zr, err := openArchive(data)
	if err != nil {
		return nil, err
	}

	var out []member
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !p.eligible(f.Name) {
			continue
		}
		dest, err := safeJoin(dir, f.Name)
		if err != nil {
			return nil, err
		}
		if err := p.extractFile(f, dest); err != nil {
			return nil, err
		}
		out = append(out, member{name: f.Name, path: dest})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

func (p *Pipeline) extractFile(f *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", f.Name, err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open archive member %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}

	var src io.Reader = rc
	if p.maxFileSize > 0 {
		src = io.LimitReader(rc, p.maxFileSize+1)
	}
	n, err := io.Copy(out, src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	if p.maxFileSize > 0 && n > p.maxFileSize {
		return fmt.Errorf("archive member %s exceeds %d bytes: %w", f.Name, p.maxFileSize, ErrFileTooLarge)
	}
	return nil
}

// openArchive reads a zip from memory. Insecure member names are not fatal
// here; extraction refuses them.
func openArchive(data []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return zr, nil
}

// safeJoin resolves name below dir, refusing absolute paths and parent
// traversal.
func safeJoin(dir, name string) (string, error) {
	if name == "" || path.IsAbs(name) || strings.Contains(name, `\`) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeArchiveEntry, name)
	}
	dest := filepath.Join(dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(dir, dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeArchiveEntry, name)
	}
	return dest, nil
}

// AnalyzeArchive lists what IngestArchive would do with an archive without
// loading anything.
func (p *Pipeline) AnalyzeArchive(ctx context.Context, data []byte, filename string) (*domain.ArchiveAnalysis, error) {
	zr, err := openArchive(data)
	if err != nil {
		return nil, err
	}

	a := &domain.ArchiveAnalysis{FileName: filename}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		a.TotalEntries++

		base := path.Base(f.Name)
		entry := domain.ArchiveEntry{
			FileName:  f.Name,
			SizeBytes: int64(f.UncompressedSize64),
			FileType:  strings.TrimPrefix(strings.ToLower(filepath.Ext(base)), "."),
			Eligible:  p.eligible(f.Name),
		}
		if entry.Eligible {
			a.EligibleEntries++
			if err := p.inspectMember(ctx, f, base, &entry); err != nil {
				a.Recommendations = append(a.Recommendations,
					fmt.Sprintf("%s could not be inspected: %v", f.Name, err))
			}
		}
		a.Entries = append(a.Entries, entry)
	}

	a.Recommendations = append(a.Recommendations, recommendations(a)...)
	return a, nil
}

func (p *Pipeline) inspectMember(ctx context.Context, f *zip.File, base string, entry *domain.ArchiveEntry) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	var src io.Reader = rc
	if p.maxFileSize > 0 {
		src = io.LimitReader(rc, p.maxFileSize)
	}
	content, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	content, err = PrepareInput(content)
	if err != nil {
		return err
	}

	if p.router.MatchesPattern(base) {
		entry.EstimatedRows = loader.CountLines(content, false)
		table, err := p.router.ResolveTable(base)
		if err != nil {
			return err
		}
		entry.SuggestedTable = table
		entry.TableExists, err = p.resolver.TableExists(ctx, table)
		return err
	}

	entry.EstimatedRows = loader.CountLines(content, true)
	if header, err := loader.FirstRecord(content, domain.FormatForFile(base)); err == nil {
		entry.Headers = header
	}
	// Generated names carry the batch id, so the table never exists yet.
	entry.SuggestedTable = p.namer.TableName(base, uuid.Nil)
	return nil
}

func recommendations(a *domain.ArchiveAnalysis) []string {
	var out []string
	switch {
	case a.EligibleEntries == 0:
		out = append(out, "No eligible files found; include .csv, .tsv or .txt files")
	case a.EligibleEntries < a.TotalEntries:
		out = append(out, fmt.Sprintf("%d of %d files will be skipped", a.TotalEntries-a.EligibleEntries, a.TotalEntries))
	}
	for _, e := range a.Entries {
		if e.Eligible && e.EstimatedRows == 0 {
			out = append(out, fmt.Sprintf("%s contains no data rows", e.FileName))
		}
		if e.Eligible && e.SuggestedTable != "" && !e.TableExists && e.Headers == nil {
			out = append(out, fmt.Sprintf("%s is headerless and table %s does not exist yet", e.FileName, e.SuggestedTable))
		}
	}
	return out
}
