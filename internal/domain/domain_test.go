package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestQualityFor(t *testing.T) {
	tests := []struct {
		name      string
		corrected int64
		warnings  int
		errs      int
		want      string
	}{
		{"clean", 0, 0, 0, QualityClean},
		{"corrected", 3, 3, 0, QualityCorrected},
		{"warnings only", 0, 2, 0, QualityWithWarnings},
		{"errors and warnings", 1, 2, 1, QualityWithErrors},
		{"errors only", 0, 0, 4, QualityWithErrors},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := QualityFor(tt.corrected, tt.warnings, tt.errs); got != tt.want {
				t.Errorf("QualityFor(%d, %d, %d) = %q, want %q", tt.corrected, tt.warnings, tt.errs, got, tt.want)
			}
		})
	}
}

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		succeeded, failed, duplicates int
		want                          BatchStatus
	}{
		{3, 0, 0, BatchSuccess},
		{2, 0, 1, BatchSuccess},
		{2, 1, 0, BatchPartialSuccess},
		{0, 0, 2, BatchAllDuplicates},
		{0, 2, 1, BatchFailed},
		{0, 0, 0, BatchFailed},
	}

	for _, tt := range tests {
		got := OverallStatus(tt.succeeded, tt.failed, tt.duplicates)
		if got != tt.want {
			t.Errorf("OverallStatus(%d, %d, %d) = %s, want %s", tt.succeeded, tt.failed, tt.duplicates, got, tt.want)
		}
	}
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&RoutingError{FileName: "XY1.csv", Reason: "no match"}, "ROUTING_ERROR"},
		{fmt.Errorf("ingest: %w", &ValidationRejection{FileName: "a"}), "VALIDATION_REJECTION"},
		{&SchemaMismatch{Table: "t", FieldCount: 7, ColumnCount: 6}, "SCHEMA_MISMATCH"},
		{&LoadFailure{Table: "t", Phase: "copy", Err: errors.New("boom")}, "LOAD_FAILURE"},
		{errors.New("disk full"), "PROCESSING_ERROR"},
	}

	for _, tt := range tests {
		if got := ErrorType(tt.err); got != tt.want {
			t.Errorf("ErrorType(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestSchemaMismatch_Message(t *testing.T) {
	err := &SchemaMismatch{Table: "staging_pm1", FieldCount: 7, ColumnCount: 6}
	want := "schema mismatch: file has 7 fields but table staging_pm1 only has 6 data columns"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"csv", FormatCSV, false},
		{"TSV", FormatTSV, false},
		{"tab", FormatTSV, false},
		{"", FormatCSV, false},
		{"pipe", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if d := FormatTSV.Delimiter(); d != '\t' {
		t.Errorf("FormatTSV.Delimiter() = %q, want tab", d)
	}
	if f := FormatForFile("orders.csv"); f != FormatCSV {
		t.Errorf("FormatForFile(orders.csv) = %q, want csv", f)
	}
	if f := FormatForFile("PM162"); f != FormatTSV {
		t.Errorf("FormatForFile(PM162) = %q, want tsv", f)
	}
}

func TestIssueText(t *testing.T) {
	if got := IssueText("a\x00b"); got != "a*b" {
		t.Errorf("IssueText NUL = %q, want a*b", got)
	}

	long := strings.Repeat("é", MaxIssueLineLength+10)
	got := IssueText(long)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated text missing ellipsis")
	}
	if n := len([]rune(strings.TrimSuffix(got, "..."))); n != MaxIssueLineLength {
		t.Errorf("truncated length = %d runes, want %d", n, MaxIssueLineLength)
	}

	exact := strings.Repeat("x", MaxIssueLineLength)
	if IssueText(exact) != exact {
		t.Error("text at the limit was truncated")
	}
}
