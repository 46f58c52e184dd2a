// Package watch ingests files dropped into a folder tree. Files arrive in
// upload, are processed from wip, and end in archive or error with a
// timestamped name and a sidecar describing the outcome.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/stageload/internal/core"
	"github.com/JonMunkholm/stageload/internal/domain"
	"github.com/JonMunkholm/stageload/internal/notify"
	"github.com/JonMunkholm/stageload/internal/storage"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Ingester is the pipeline surface the watcher drives.
type Ingester interface {
	Ingest(ctx context.Context, sub core.Submission) (*domain.Manifest, error)
	IngestArchive(ctx context.Context, data []byte, filename string) (*domain.BatchResult, error)
	GetStatus(ctx context.Context, batchID uuid.UUID) (*domain.Manifest, error)
	CanRoute(filename string) bool
}

// Config holds watch folder settings.
type Config struct {
	Enabled        bool
	Root           string
	PollInterval   time.Duration
	UseMarkers     bool
	StabilityDelay time.Duration
	Workers        int
}

var supportedExts = map[string]bool{
	".csv":  true,
	".tsv":  true,
	".txt":  true,
	".zip":  true,
	".xlsx": true,
}

// SupportedExtension reports whether the watcher can ingest name.
func SupportedExtension(name string) bool {
	return supportedExts[strings.ToLower(filepath.Ext(name))]
}

// markerRetryDelays are the waits between marker delete attempts.
var markerRetryDelays = []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond}

type fileState struct {
	size    int64
	modTime time.Time
	since   time.Time
}

// Watcher detects ready files and hands them to a bounded worker pool.
type Watcher struct {
	cfg      Config
	folders  Folders
	ingester Ingester
	mirror   storage.Mirror
	notifier notify.Notifier
	now      func() time.Time

	mu        sync.Mutex
	inFlight  map[string]struct{}
	observed  map[string]fileState
	reported  map[string]bool
	running   bool
	lastPoll  time.Time
	day       string
	processed int
}

// New returns a Watcher. A nil mirror or notifier disables that hook.
func New(cfg Config, ing Ingester, mirror storage.Mirror, notifier notify.Notifier) *Watcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if mirror == nil {
		mirror = storage.Nop{}
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Watcher{
		cfg:      cfg,
		folders:  Folders{Root: cfg.Root},
		ingester: ing,
		mirror:   mirror,
		notifier: notifier,
		now:      time.Now,
		inFlight: make(map[string]struct{}),
		observed: make(map[string]fileState),
		reported: make(map[string]bool),
	}
}

// Folders returns the managed directory layout.
func (w *Watcher) Folders() Folders {
	return w.folders
}

// Run watches the upload folder until ctx is cancelled, then waits for
// every dispatched file to finish.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.folders.Ensure(); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.folders.uploadDir()); err != nil {
		return fmt.Errorf("watch %s: %w", w.folders.uploadDir(), err)
	}

	var workers errgroup.Group
	workers.SetLimit(w.cfg.Workers)

	w.setRunning(true)
	defer w.setRunning(false)

	slog.Info("watch folder started",
		"root", w.cfg.Root,
		"markers", w.cfg.UseMarkers,
		"workers", w.cfg.Workers,
		"poll_interval", w.cfg.PollInterval,
	)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.scan(ctx, &workers)

	events, errs := fsw.Events, fsw.Errors
	for {
		select {
		case <-ctx.Done():
			slog.Info("watch folder stopping, waiting for workers")
			err := workers.Wait()
			slog.Info("watch folder stopped")
			return err

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename) {
				w.scan(ctx, &workers)
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("file watcher error, relying on polling", "error", err)

		case <-ticker.C:
			w.scan(ctx, &workers)
		}
	}
}

// scan finds ready files and dispatches them. Files that do not fit in the
// pool stay in upload for the next scan. Dispatched files run to completion
// even after ctx is cancelled.
func (w *Watcher) scan(ctx context.Context, workers *errgroup.Group) {
	fileCtx := context.WithoutCancel(ctx)

	w.mu.Lock()
	w.lastPoll = w.now()
	w.mu.Unlock()

	entries, err := os.ReadDir(w.folders.uploadDir())
	if err != nil {
		slog.Error("read upload folder", "error", err)
		return
	}

	var ready []string
	if w.cfg.UseMarkers {
		ready = w.readyByMarker(entries)
	} else {
		ready = w.readyByStability(entries)
	}

	for _, name := range ready {
		if !w.claim(name) {
			continue
		}
		if !workers.TryGo(func() error {
			defer w.release(name)
			w.process(fileCtx, name)
			return nil
		}) {
			w.release(name)
			slog.Debug("worker pool full, deferring", "file", name)
			return
		}
	}
}

// readyByMarker returns data files whose marker exists, cleaning up markers
// that point at nothing usable.
func (w *Watcher) readyByMarker(entries []os.DirEntry) []string {
	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		present[e.Name()] = e.Type().IsRegular()
	}

	var ready []string
	for _, e := range entries {
		marker := e.Name()
		if !e.Type().IsRegular() || !strings.HasSuffix(marker, MarkerExt) {
			continue
		}
		data := strings.TrimSuffix(marker, MarkerExt)

		switch {
		case data == "" || filepath.Ext(data) == "":
			w.reportOnce(marker, "invalid marker name, expected <file>.<ext>"+MarkerExt)
		case w.isInFlight(data):
			// already dispatched
		case !present[data]:
			slog.Warn("marker found but data file missing", "marker", marker, "file", data)
			w.deleteMarker(marker)
		case !SupportedExtension(data):
			slog.Warn("unsupported file type", "file", data, "ext", filepath.Ext(data))
			w.deleteMarker(marker)
		default:
			ready = append(ready, data)
		}
	}
	return ready
}

// readyByStability returns supported files whose size and mtime have not
// changed for the stability delay.
func (w *Watcher) readyByStability(entries []os.DirEntry) []string {
	now := w.now()
	seen := make(map[string]bool, len(entries))

	var ready []string
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") || isSidecar(name) {
			continue
		}
		if !SupportedExtension(name) {
			if !w.reported[name] {
				w.reported[name] = true
				slog.Warn("ignoring unsupported file", "file", name)
			}
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		seen[name] = true

		prev, ok := w.observed[name]
		if !ok || prev.size != info.Size() || !prev.modTime.Equal(info.ModTime()) {
			w.observed[name] = fileState{size: info.Size(), modTime: info.ModTime(), since: now}
			continue
		}
		if now.Sub(prev.since) >= w.cfg.StabilityDelay {
			ready = append(ready, name)
		}
	}

	for name := range w.observed {
		if !seen[name] {
			delete(w.observed, name)
		}
	}
	return ready
}

func (w *Watcher) reportOnce(name, msg string) {
	w.mu.Lock()
	first := !w.reported[name]
	w.reported[name] = true
	w.mu.Unlock()
	if first {
		slog.Error(msg, "marker", name)
	}
}

// deleteMarker removes a marker from upload. A failed first attempt is
// retried with growing delays off the scan loop.
func (w *Watcher) deleteMarker(marker string) {
	path := filepath.Join(w.folders.uploadDir(), marker)
	if removeMarker(path) == nil {
		return
	}
	go func() {
		var err error
		for _, delay := range markerRetryDelays {
			time.Sleep(delay)
			if err = removeMarker(path); err == nil {
				return
			}
		}
		slog.Warn("could not delete marker", "marker", marker, "attempts", len(markerRetryDelays)+1, "error", err)
	}()
}

func removeMarker(path string) error {
	err := os.Remove(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (w *Watcher) claim(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.inFlight[name]; busy {
		return false
	}
	w.inFlight[name] = struct{}{}
	return true
}

func (w *Watcher) release(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inFlight, name)
	delete(w.observed, name)
}

func (w *Watcher) isInFlight(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.inFlight[name]
	return ok
}

func (w *Watcher) setRunning(v bool) {
	w.mu.Lock()
	w.running = v
	w.mu.Unlock()
}

func (w *Watcher) countProcessed() {
	w.mu.Lock()
	defer w.mu.Unlock()
	today := w.now().Format("2006-01-02")
	if w.day != today {
		w.day, w.processed = today, 0
	}
	w.processed++
}

// Status is a snapshot of the watch folder.
type Status struct {
	Enabled        bool           `json:"enabled"`
	Running        bool           `json:"running"`
	Root           string         `json:"root"`
	UseMarkers     bool           `json:"use_markers"`
	Workers        int            `json:"workers"`
	Counts         map[string]int `json:"counts"`
	LastPoll       *time.Time     `json:"last_poll,omitempty"`
	ProcessedToday int            `json:"processed_today"`
	InFlight       []string       `json:"in_flight"`
}

// Status reports folder counts and worker state.
func (w *Watcher) Status() Status {
	st := Status{
		Enabled:    w.cfg.Enabled,
		Root:       w.cfg.Root,
		UseMarkers: w.cfg.UseMarkers,
		Workers:    w.cfg.Workers,
		Counts: map[string]int{
			FolderUpload:  countData(w.folders.uploadDir()),
			FolderWIP:     countData(w.folders.wipDir()),
			FolderArchive: countData(w.folders.archiveDir()),
			FolderError:   countData(w.folders.errorDir()),
		},
		InFlight: []string{},
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	st.Running = w.running
	if !w.lastPoll.IsZero() {
		t := w.lastPoll
		st.LastPoll = &t
	}
	if w.day == w.now().Format("2006-01-02") {
		st.ProcessedToday = w.processed
	}
	for name := range w.inFlight {
		st.InFlight = append(st.InFlight, name)
	}
	sort.Strings(st.InFlight)
	return st
}

// ListFiles lists one watch folder.
func (w *Watcher) ListFiles(folder string) ([]FileInfo, error) {
	return w.folders.List(folder)
}

// Retry moves a file from error back to upload under its original name,
// removes its error report and, in marker mode, writes a marker.
func (w *Watcher) Retry(name string) (string, error) {
	if !validBaseName(name) || isSidecar(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFileName, name)
	}

	src := filepath.Join(w.folders.errorDir(), name)
	if _, err := os.Stat(src); err != nil {
		return "", fmt.Errorf("retry %s: %w", name, err)
	}

	original := OriginalName(name)
	dst := filepath.Join(w.folders.uploadDir(), original)
	if _, err := os.Stat(dst); err == nil {
		return "", fmt.Errorf("retry %s: %s %w", name, original, ErrRetryConflict)
	}

	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("retry %s: %w", name, err)
	}
	if err := os.Remove(src + errorReportExt); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("remove error report", "file", name, "error", err)
	}

	if w.cfg.UseMarkers {
		if err := os.WriteFile(dst+MarkerExt, nil, 0o644); err != nil {
			return original, fmt.Errorf("create marker for %s: %w", original, err)
		}
	}

	slog.Info("watch file queued for retry", "file", name, "as", original)
	return original, nil
}
