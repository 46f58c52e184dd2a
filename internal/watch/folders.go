package watch

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Folder names under the watch root.
const (
	FolderUpload  = "upload"
	FolderWIP     = "wip"
	FolderArchive = "archive"
	FolderError   = "error"
)

// MarkerExt marks a data file as complete and ready, e.g. orders.csv.done.
const MarkerExt = ".done"

const errorReportExt = ".error.json"

const timestampLayout = "2006-01-02_15-04-05"

var (
	// ErrUnknownFolder is returned for folder names other than the four
	// managed ones.
	ErrUnknownFolder = errors.New("unknown watch folder")

	// ErrInvalidFileName rejects names that are not a plain base name.
	ErrInvalidFileName = errors.New("invalid file name")

	// ErrRetryConflict means the upload folder already holds a file with
	// the retried file's original name.
	ErrRetryConflict = errors.New("already exists in upload")
)

var timestampSuffix = regexp.MustCompile(`_\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2}$`)

// Folders resolves the managed directories under a root.
type Folders struct {
	Root string
}

// Path returns the directory for a folder name.
func (f Folders) Path(folder string) (string, error) {
	switch folder {
	case FolderUpload, FolderWIP, FolderArchive, FolderError:
		return filepath.Join(f.Root, folder), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFolder, folder)
}

func (f Folders) uploadDir() string  { return filepath.Join(f.Root, FolderUpload) }
func (f Folders) wipDir() string     { return filepath.Join(f.Root, FolderWIP) }
func (f Folders) archiveDir() string { return filepath.Join(f.Root, FolderArchive) }
func (f Folders) errorDir() string   { return filepath.Join(f.Root, FolderError) }

// Ensure creates any missing folder.
func (f Folders) Ensure() error {
	for _, dir := range []string{f.uploadDir(), f.wipDir(), f.archiveDir(), f.errorDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create watch folder %s: %w", dir, err)
		}
	}
	return nil
}

// TimestampedName inserts _<yyyy-MM-dd_HH-mm-ss> before the extension.
func TimestampedName(name string, at time.Time) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if base == "" {
		base, ext = name, ""
	}
	return base + "_" + at.Format(timestampLayout) + ext
}

// OriginalName strips a timestamp added by TimestampedName.
func OriginalName(name string) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if !timestampSuffix.MatchString(base) {
		return name
	}
	return timestampSuffix.ReplaceAllString(base, "") + ext
}

// move renames src into dir under name, replacing any file there.
func move(src, dir, name string) (string, error) {
	dst := filepath.Join(dir, name)
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("move %s to %s: %w", filepath.Base(src), dir, err)
	}
	return dst, nil
}

// FileInfo describes one file in a watch folder.
type FileInfo struct {
	Name       string    `json:"name"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
}

// List returns the regular files in a folder sorted by name.
func (f Folders) List(folder string) ([]FileInfo, error) {
	dir, err := f.Path(folder)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s folder: %w", folder, err)
	}

	out := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		out = append(out, FileInfo{Name: e.Name(), SizeBytes: info.Size(), ModifiedAt: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// countData counts files in dir that are not markers or reports.
func countData(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if e.Type().IsRegular() && !isSidecar(e.Name()) {
			n++
		}
	}
	return n
}

func isSidecar(name string) bool {
	return strings.HasSuffix(name, MarkerExt) || strings.HasSuffix(name, errorReportExt)
}

func validBaseName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}

// ErrorReport is written next to a file moved to the error folder.
type ErrorReport struct {
	File              string    `json:"file"`
	OriginalFilename  string    `json:"original_filename"`
	BatchID           string    `json:"batch_id,omitempty"`
	ErrorType         string    `json:"error_type"`
	ErrorMessage      string    `json:"error_message"`
	ErrorDetails      string    `json:"error_details,omitempty"`
	StackTrace        string    `json:"stack_trace,omitempty"`
	FileSizeBytes     int64     `json:"file_size_bytes"`
	FailedAt          time.Time `json:"failed_at"`
	RetryRecommended  bool      `json:"retry_recommended"`
	RetryInstructions string    `json:"retry_instructions"`
}

func writeErrorReport(path string, r ErrorReport) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode error report: %w", err)
	}
	if err := os.WriteFile(path+errorReportExt, data, 0o644); err != nil {
		return fmt.Errorf("write error report: %w", err)
	}
	return nil
}

// ReadErrorReport loads the report written for a file in the error folder.
func (f Folders) ReadErrorReport(name string) (*ErrorReport, error) {
	if !validBaseName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFileName, name)
	}
	data, err := os.ReadFile(filepath.Join(f.errorDir(), name+errorReportExt))
	if err != nil {
		return nil, err
	}
	var r ErrorReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode error report: %w", err)
	}
	return &r, nil
}
