package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Severity ranks a validation issue.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// IssueKind classifies a line-level problem.
type IssueKind string

const (
	IssueExcessDelimiters       IssueKind = "EXCESS_DELIMITERS"
	IssueInsufficientDelimiters IssueKind = "INSUFFICIENT_DELIMITERS"
	IssueControlCharacters      IssueKind = "CONTROL_CHARACTERS"
	IssueNonASCIICharacters     IssueKind = "NON_ASCII_CHARACTERS"
	IssueCollapsedReplacements  IssueKind = "COLLAPSED_REPLACEMENTS"
	IssueDataTransformation     IssueKind = "DATA_TRANSFORMATION"
	IssueCustom                 IssueKind = "CUSTOM"
)

// MaxIssueLineLength bounds the original and corrected text kept on an issue.
const MaxIssueLineLength = 500

// Issue is one detected line-level problem.
type Issue struct {
	ID            int64     `json:"id,omitempty"`
	BatchID       uuid.UUID `json:"batch_id"`
	FileName      string    `json:"file_name"`
	LineNumber    int       `json:"line_number"`
	Kind          IssueKind `json:"issue_type"`
	Severity      Severity  `json:"severity"`
	Expected      string    `json:"expected_value,omitempty"`
	Actual        string    `json:"actual_value,omitempty"`
	AutoFixed     bool      `json:"auto_fixed"`
	OriginalLine  string    `json:"original_line,omitempty"`
	CorrectedLine string    `json:"corrected_line,omitempty"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"created_at"`
}

// IssueSummary counts issues of one kind and severity.
type IssueSummary struct {
	Kind     IssueKind `json:"issue_type"`
	Severity Severity  `json:"severity"`
	Count    int64     `json:"count"`
}

// Rule configures validation for one file pattern.
type Rule struct {
	ID                          int64     `json:"id,omitempty" mapstructure:"-"`
	FilePattern                 string    `json:"file_pattern" mapstructure:"file_pattern"`
	TableName                   string    `json:"table_name,omitempty" mapstructure:"table_name"`
	ExpectedDelimiters          int       `json:"expected_tab_count" mapstructure:"expected_delimiters"`
	ValidationEnabled           bool      `json:"validation_enabled" mapstructure:"validation_enabled"`
	AutoFixEnabled              bool      `json:"auto_fix_enabled" mapstructure:"auto_fix"`
	RejectOnViolation           bool      `json:"reject_on_violation" mapstructure:"reject_on_violation"`
	ReplaceControlChars         bool      `json:"replace_control_chars" mapstructure:"replace_control_chars"`
	ReplaceNonASCII             bool      `json:"replace_non_latin_chars" mapstructure:"replace_non_ascii"`
	CollapseConsecutiveReplaced bool      `json:"collapse_consecutive_replaced" mapstructure:"collapse_replaced"`
	TransformEnabled            bool      `json:"enable_data_transformation" mapstructure:"transform_enabled"`
	Transformer                 string    `json:"data_transformer_class_name,omitempty" mapstructure:"transformer"`
	Description                 string    `json:"description,omitempty" mapstructure:"description"`
	CreatedAt                   time.Time `json:"created_at" mapstructure:"-"`
	UpdatedAt                   time.Time `json:"updated_at" mapstructure:"-"`
}

// IssueText prepares line text for storage on an issue: NUL bytes become
// '*' and the result is cut to MaxIssueLineLength characters plus "...".
func IssueText(s string) string {
	s = strings.ReplaceAll(s, "\x00", "*")
	if utf8.RuneCountInString(s) <= MaxIssueLineLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:MaxIssueLineLength]) + "..."
}
