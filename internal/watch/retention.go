package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// RetentionPolicy bounds how long processed files are kept.
type RetentionPolicy struct {
	ArchiveDays   int
	ErrorDays     int
	CheckInterval time.Duration
}

// CleanupResult counts files removed by one retention pass.
type CleanupResult struct {
	Archive int `json:"archive_removed"`
	Error   int `json:"error_removed"`
}

// RunRetention purges aged files immediately and then every CheckInterval
// until ctx is cancelled.
func (w *Watcher) RunRetention(ctx context.Context, p RetentionPolicy) {
	slog.Info("retention scheduler started",
		"archive_days", p.ArchiveDays,
		"error_days", p.ErrorDays,
		"interval", p.CheckInterval,
	)

	w.runCleanup(p)

	ticker := time.NewTicker(p.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("retention scheduler stopped")
			return
		case <-ticker.C:
			w.runCleanup(p)
		}
	}
}

func (w *Watcher) runCleanup(p RetentionPolicy) {
	start := time.Now()
	res, err := w.Cleanup(p)
	if err != nil {
		slog.Error("retention cleanup failed", "error", err)
	}
	slog.Info("retention cleanup completed",
		"archive_removed", res.Archive,
		"error_removed", res.Error,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Cleanup removes archive and error files, sidecars included, whose
// modification time is older than the policy allows.
func (w *Watcher) Cleanup(p RetentionPolicy) (CleanupResult, error) {
	now := w.now()
	var res CleanupResult

	archived, err1 := purgeOlderThan(w.folders.archiveDir(), now.AddDate(0, 0, -p.ArchiveDays))
	res.Archive = archived
	failed, err2 := purgeOlderThan(w.folders.errorDir(), now.AddDate(0, 0, -p.ErrorDays))
	res.Error = failed

	return res, errors.Join(err1, err2)
}

func purgeOlderThan(dir string, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read %s: %w", dir, err)
	}

	removed := 0
	var errs []error
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
