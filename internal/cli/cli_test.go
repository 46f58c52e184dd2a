package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/JonMunkholm/stageload/internal/core"
	"github.com/JonMunkholm/stageload/internal/domain"
	"github.com/JonMunkholm/stageload/internal/validation"
	"github.com/fatih/color"
	"github.com/google/uuid"
)

func boolPtr(b bool) *bool { return &b }

func TestFileSubmission(t *testing.T) {
	data := []byte("a\tb\n1\t2\n")

	tests := []struct {
		name       string
		path       string
		opts       ingestOptions
		routable   bool
		wantRoute  bool
		wantHeader bool
		wantFormat domain.Format
	}{
		{"routed txt", "/in/PM162.txt", ingestOptions{}, true, true, false, domain.FormatTSV},
		{"plain csv", "/in/orders.csv", ingestOptions{}, false, false, true, domain.FormatCSV},
		{"plain tsv", "orders.tsv", ingestOptions{}, false, false, true, domain.FormatTSV},
		{"route forced off", "PM162.txt", ingestOptions{route: boolPtr(false)}, true, false, true, domain.FormatTSV},
		{"headers override", "PM162.txt", ingestOptions{headers: boolPtr(true)}, true, true, true, domain.FormatTSV},
		{"format override", "orders.txt", ingestOptions{format: "csv"}, false, false, true, domain.FormatCSV},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := fileSubmission(tt.path, data, tt.opts, tt.routable)
			if err != nil {
				t.Fatalf("fileSubmission: %v", err)
			}
			if sub.RouteByFilename != tt.wantRoute {
				t.Errorf("RouteByFilename = %v, want %v", sub.RouteByFilename, tt.wantRoute)
			}
			if sub.HasHeaders != tt.wantHeader {
				t.Errorf("HasHeaders = %v, want %v", sub.HasHeaders, tt.wantHeader)
			}
			if sub.Format != tt.wantFormat {
				t.Errorf("Format = %q, want %q", sub.Format, tt.wantFormat)
			}
			if sub.FilePath != tt.path {
				t.Errorf("FilePath = %q, want %q", sub.FilePath, tt.path)
			}
			if strings.Contains(sub.FileName, "/") {
				t.Errorf("FileName %q should be a base name", sub.FileName)
			}
		})
	}
}

func TestFileSubmission_Errors(t *testing.T) {
	if _, err := fileSubmission("report.pdf", []byte("x"), ingestOptions{}, false); !errors.Is(err, core.ErrUnsupportedFileType) {
		t.Errorf("pdf: err = %v, want ErrUnsupportedFileType", err)
	}
	if _, err := fileSubmission("orders.csv", []byte("x"), ingestOptions{format: "xml"}, false); err == nil {
		t.Error("unknown format: expected error")
	}
}

func TestRootCmd_Commands(t *testing.T) {
	root := RootCmd()
	for _, name := range []string{"ingest", "archive", "status", "report", "retry", "rules", "migrate", "watch"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd == root {
			t.Errorf("command %q not registered", name)
		}
	}

	for _, path := range [][]string{{"rules", "list"}, {"rules", "seed"}} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd.Name() != path[1] {
			t.Errorf("command %v not registered", path)
		}
	}
}

func TestMigrateCmd_Args(t *testing.T) {
	cmd := MigrateCmd()
	for _, ok := range []string{"up", "down"} {
		if err := cmd.ValidateArgs([]string{ok}); err != nil {
			t.Errorf("%s: unexpected error %v", ok, err)
		}
	}
	if err := cmd.ValidateArgs([]string{"sideways"}); err == nil {
		t.Error("sideways: expected error")
	}
	if err := cmd.ValidateArgs(nil); err == nil {
		t.Error("no args: expected error")
	}
}

func TestStatusCmd_InvalidBatchID(t *testing.T) {
	cmd := StatusCmd()
	cmd.SetArgs([]string{"not-a-uuid"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "invalid batch id") {
		t.Errorf("err = %v, want invalid batch id", err)
	}
}

func TestOutput(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	t.Run("manifest", func(t *testing.T) {
		var buf bytes.Buffer
		printManifest(&buf, &domain.Manifest{
			BatchID:          uuid.New(),
			FileName:         "PM162.txt",
			Status:           domain.StatusFailed,
			TableName:        "staging_pm1",
			TotalRecords:     10,
			ProcessedRecords: 0,
			FailedRecords:    10,
			ErrorMessage:     "rejected",
		})
		out := buf.String()
		for _, want := range []string{"PM162.txt", "FAILED", "staging_pm1", "0 loaded, 10 failed", "rejected"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("batch", func(t *testing.T) {
		var buf bytes.Buffer
		printBatch(&buf, &domain.BatchResult{
			FileName:   "drop.zip",
			Status:     domain.BatchPartialSuccess,
			TotalFiles: 2,
			Succeeded:  1,
			Failed:     1,
			Files: []domain.FileResult{
				{FileName: "a.csv", Status: domain.MemberSuccess, TableName: "staging_a"},
				{FileName: "b.csv", Status: domain.MemberFailed, Error: "boom"},
			},
		})
		out := buf.String()
		for _, want := range []string{"PARTIAL_SUCCESS", "2 total, 1 loaded, 1 failed", "a.csv -> staging_a", "boom"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("report limit", func(t *testing.T) {
		issues := make([]domain.Issue, 5)
		for i := range issues {
			issues[i] = domain.Issue{LineNumber: i + 1, Severity: domain.SeverityWarning, Description: "bad"}
		}
		var buf bytes.Buffer
		printReport(&buf, &validation.Report{
			TotalIssues:    5,
			SeverityCounts: map[domain.Severity]int{domain.SeverityWarning: 5},
			Issues:         issues,
		}, 2)
		out := buf.String()
		if !strings.Contains(out, "WARNING=5") {
			t.Errorf("missing severity counts:\n%s", out)
		}
		if !strings.Contains(out, "... 3 more") {
			t.Errorf("missing truncation:\n%s", out)
		}
	})

	t.Run("rules", func(t *testing.T) {
		var buf bytes.Buffer
		printRules(&buf, []domain.Rule{{
			FilePattern:        "PM1",
			ExpectedDelimiters: 12,
			ValidationEnabled:  true,
			AutoFixEnabled:     true,
			TransformEnabled:   true,
			Transformer:        "IM2",
		}})
		out := buf.String()
		if !strings.Contains(out, "PM1") || !strings.Contains(out, "[autofix,transform:IM2]") {
			t.Errorf("unexpected rules output:\n%s", out)
		}
	})

	t.Run("error", func(t *testing.T) {
		var buf bytes.Buffer
		printError(&buf, core.ErrUnsupportedFileType)
		if !strings.HasPrefix(buf.String(), "Error:") || !strings.Contains(buf.String(), "Code:") {
			t.Errorf("unexpected error output: %q", buf.String())
		}
	})
}
