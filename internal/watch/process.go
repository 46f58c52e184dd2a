package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/stageload/internal/core"
	"github.com/JonMunkholm/stageload/internal/domain"
	"github.com/JonMunkholm/stageload/internal/notify"
	"github.com/JonMunkholm/stageload/internal/storage"
	"github.com/google/uuid"
)

const retryInstructions = "Fix the issue and retry from the error folder, or re-upload with a " + MarkerExt + " marker"

// outcome is what one file produced.
type outcome struct {
	manifest *domain.Manifest
	batch    *domain.BatchResult
	err      error
}

func (o outcome) batchID() *uuid.UUID {
	switch {
	case o.manifest != nil && o.manifest.BatchID != uuid.Nil:
		id := o.manifest.BatchID
		return &id
	case o.batch != nil:
		id := o.batch.ParentBatchID
		return &id
	}
	return nil
}

// process owns one file from upload to archive or error.
func (w *Watcher) process(ctx context.Context, name string) {
	start := w.now()
	log := slog.With("file", name)
	log.Info("watch file processing started")

	defer w.deleteMarkerQuietly(name)

	wipPath, err := move(filepath.Join(w.folders.uploadDir(), name), w.folders.wipDir(), name)
	if err != nil {
		log.Error("move to wip failed", "error", err)
		return
	}

	out := w.ingest(ctx, name, wipPath)
	w.countProcessed()

	if out.err == nil {
		w.succeed(ctx, name, wipPath, out, start)
		return
	}
	w.failFile(ctx, name, wipPath, out, start)
}

// ingest dispatches on the file extension.
func (w *Watcher) ingest(ctx context.Context, name, path string) outcome {
	data, err := os.ReadFile(path)
	if err != nil {
		return outcome{err: fmt.Errorf("read %s: %w", name, err)}
	}

	switch {
	case core.IsArchive(name):
		res, err := w.ingester.IngestArchive(ctx, data, name)
		if err != nil {
			return outcome{batch: res, err: err}
		}
		o := outcome{batch: res}
		if m, err := w.ingester.GetStatus(ctx, res.ParentBatchID); err == nil {
			o.manifest = m
		}
		if res.Status == domain.BatchFailed {
			o.err = archiveFailure(res)
		}
		return o

	case core.IsWorkbook(name):
		csvData, err := core.ConvertWorkbook(data)
		if err != nil {
			return outcome{err: err}
		}
		return w.ingestDelimited(ctx, core.Submission{
			Data:        csvData,
			FileName:    core.WorkbookCSVName(name),
			FilePath:    "watch://" + name,
			ContentType: "text/csv",
			Format:      domain.FormatCSV,
			HasHeaders:  true,
		})

	case core.IsDelimited(name):
		sub := core.Submission{
			Data:        data,
			FileName:    name,
			FilePath:    "watch://" + name,
			ContentType: storage.ContentType(name),
			Format:      domain.FormatForFile(name),
			HasHeaders:  true,
		}
		if w.ingester.CanRoute(name) {
			sub.Format = domain.FormatTSV
			sub.HasHeaders = false
			sub.RouteByFilename = true
		}
		return w.ingestDelimited(ctx, sub)
	}

	return outcome{err: fmt.Errorf("%w: %s", core.ErrUnsupportedFileType, filepath.Ext(name))}
}

func (w *Watcher) ingestDelimited(ctx context.Context, sub core.Submission) outcome {
	m, err := w.ingester.Ingest(ctx, sub)
	return outcome{manifest: m, err: err}
}

func archiveFailure(res *domain.BatchResult) error {
	if res.Message != "" {
		return errors.New(res.Message)
	}
	return fmt.Errorf("archive %s: no member was ingested", res.FileName)
}

func (w *Watcher) succeed(ctx context.Context, name, wipPath string, out outcome, start time.Time) {
	archived, err := move(wipPath, w.folders.archiveDir(), TimestampedName(name, w.now()))
	if err != nil {
		slog.Error("move to archive failed", "file", name, "error", err)
		return
	}

	elapsed := w.now().Sub(start)
	if err := os.WriteFile(archived+MarkerExt, []byte(summary(archived, out, elapsed)), 0o644); err != nil {
		slog.Warn("write summary", "file", name, "error", err)
	}

	key, err := w.mirror.Put(ctx, archived)
	if err != nil {
		slog.Warn("mirror archived file", "file", name, "error", err)
	}

	ev := notify.Event{
		Outcome:    notify.OutcomeSuccess,
		FileName:   name,
		ArchivedAs: filepath.Base(archived),
		BatchID:    out.batchID(),
		ObjectKey:  key,
		At:         w.now().UTC(),
	}
	if out.manifest != nil {
		ev.TableName = out.manifest.TableName
		ev.Rows = out.manifest.TotalRecords
		ev.Status = string(out.manifest.Status)
	}
	if out.batch != nil {
		ev.Rows = out.batch.TotalRows
		ev.Status = string(out.batch.Status)
	}
	w.send(ctx, ev)

	slog.Info("watch file archived",
		"file", name,
		"archived_as", filepath.Base(archived),
		"rows", ev.Rows,
		"duration_ms", elapsed.Milliseconds(),
	)
}

func (w *Watcher) failFile(ctx context.Context, name, wipPath string, out outcome, start time.Time) {
	failedPath, err := move(wipPath, w.folders.errorDir(), TimestampedName(name, w.now()))
	if err != nil {
		slog.Error("move to error failed", "file", name, "error", err)
		return
	}

	report := ErrorReport{
		File:              filepath.Base(failedPath),
		OriginalFilename:  name,
		ErrorType:         domain.ErrorType(out.err),
		ErrorMessage:      out.err.Error(),
		StackTrace:        core.StackTrace(core.MaxDetailLength),
		FailedAt:          w.now().UTC(),
		RetryRecommended:  true,
		RetryInstructions: retryInstructions,
	}
	if id := out.batchID(); id != nil {
		report.BatchID = id.String()
	}
	if out.manifest != nil && out.manifest.ErrorDetail != "" {
		report.ErrorDetails = out.manifest.ErrorDetail
	} else {
		report.ErrorDetails = core.FailureDetail(out.err)
	}
	if info, err := os.Stat(failedPath); err == nil {
		report.FileSizeBytes = info.Size()
	}
	if err := writeErrorReport(failedPath, report); err != nil {
		slog.Warn("write error report", "file", name, "error", err)
	}

	w.send(ctx, notify.Event{
		Outcome:    notify.OutcomeFailure,
		FileName:   name,
		ArchivedAs: report.File,
		BatchID:    out.batchID(),
		Error:      report.ErrorMessage,
		ErrorType:  report.ErrorType,
		At:         report.FailedAt,
	})

	slog.Error("watch file failed",
		"file", name,
		"moved_to", report.File,
		"error_type", report.ErrorType,
		"error", out.err,
		"duration_ms", w.now().Sub(start).Milliseconds(),
	)
}

func (w *Watcher) send(ctx context.Context, ev notify.Event) {
	if err := w.notifier.Notify(context.WithoutCancel(ctx), ev); err != nil {
		slog.Warn("notify watch outcome", "file", ev.FileName, "error", err)
	}
}

// deleteMarkerQuietly removes name's marker if one exists.
func (w *Watcher) deleteMarkerQuietly(name string) {
	err := os.Remove(filepath.Join(w.folders.uploadDir(), name+MarkerExt))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("delete marker", "file", name, "error", err)
	}
}

// summary renders the text written next to an archived file.
func summary(path string, out outcome, elapsed time.Duration) string {
	var b strings.Builder
	rule := strings.Repeat("=", 48) + "\n"
	sep := strings.Repeat("-", 48) + "\n"

	b.WriteString(rule)
	b.WriteString("FILE PROCESSING SUMMARY\n")
	b.WriteString(rule)
	fmt.Fprintf(&b, "File Name: %s\n", filepath.Base(path))
	if id := out.batchID(); id != nil {
		fmt.Fprintf(&b, "Batch ID: %s\n", id)
	}
	fmt.Fprintf(&b, "Processing Time (ms): %d\n", elapsed.Milliseconds())

	if m := out.manifest; m != nil {
		b.WriteString(sep)
		fmt.Fprintf(&b, "Status: %s\n", m.Status)
		fmt.Fprintf(&b, "Total Records: %d\n", m.TotalRecords)
		fmt.Fprintf(&b, "File Size (bytes): %d\n", m.FileSizeBytes)
		if m.TableName != "" {
			fmt.Fprintf(&b, "Staging Table: %s\n", m.TableName)
		}
		if m.DataQuality != "" {
			fmt.Fprintf(&b, "Data Quality: %s\n", m.DataQuality)
		}
		if m.AlreadyProcessed {
			b.WriteString("Duplicate: content was already ingested\n")
		}
	}

	if r := out.batch; r != nil {
		b.WriteString(sep)
		fmt.Fprintf(&b, "Archive Status: %s\n", r.Status)
		fmt.Fprintf(&b, "Files: %d total, %d succeeded, %d failed, %d duplicate\n",
			r.TotalFiles, r.Succeeded, r.Failed, r.Duplicates)
		fmt.Fprintf(&b, "Total Rows: %d\n", r.TotalRows)
		for _, f := range r.Files {
			fmt.Fprintf(&b, "  %s: %s (%d rows)", f.FileName, f.Status, f.Rows)
			if f.Error != "" {
				fmt.Fprintf(&b, " %s", f.Error)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString(rule)
	return b.String()
}
