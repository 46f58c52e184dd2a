// Package validation checks delimited files line by line against the rule
// configured for their file pattern, repairing what policy allows and
// recording every problem as an issue.
//
// Each line is first cleaned (control characters, non-ASCII characters,
// collapsing of consecutive replacement markers; every step independently
// toggled), then its delimiter count is compared with the rule. Excess
// delimiters may be auto-fixed into spaces; anything else is an ERROR, or
// CRITICAL when the rule rejects on violation. A file with a CRITICAL issue
// under such a rule is rejected as a whole.
package validation

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/JonMunkholm/stageload/internal/domain"
	"github.com/JonMunkholm/stageload/internal/logging"
	"github.com/google/uuid"
)

// Request identifies the file being validated.
type Request struct {
	FileName  string
	Pattern   string
	BatchID   uuid.UUID
	Delimiter byte
}

// Result is the outcome of ValidateAndFix.
type Result struct {
	// Data is the repaired content. It is nil when the file was rejected.
	Data []byte

	Issues   []domain.Issue
	Rejected bool

	// Rule is the rule that was applied, nil on pass-through.
	Rule *domain.Rule

	LinesRead      int
	CorrectedLines int
	WarningCount   int
	ErrorCount     int
	CriticalCount  int
}

// Validated reports whether a rule was applied.
func (r *Result) Validated() bool {
	return r.Rule != nil
}

// Engine validates files using rules from a RuleStore and records issues in
// an IssueStore. It holds no per-file state and is safe for concurrent use.
type Engine struct {
	rules  domain.RuleStore
	issues domain.IssueStore
	now    func() time.Time
}

// NewEngine returns an Engine backed by the given stores.
func NewEngine(rules domain.RuleStore, issues domain.IssueStore) *Engine {
	return &Engine{rules: rules, issues: issues, now: time.Now}
}

// Rule returns the enabled rule for pattern, or nil when there is none.
func (e *Engine) Rule(ctx context.Context, pattern string) (*domain.Rule, error) {
	rule, ok, err := e.rules.FindByPattern(ctx, pattern)
	if err != nil {
		return nil, fmt.Errorf("find validation rule %s: %w", pattern, err)
	}
	if !ok || !rule.ValidationEnabled {
		return nil, nil
	}
	return rule, nil
}

// ValidateAndFix reads r line by line and applies the rule for req.Pattern.
// Without an enabled rule the content passes through unchanged. All issues
// are saved in one write once the stream is exhausted, including for
// rejected files.
func (e *Engine) ValidateAndFix(ctx context.Context, r io.Reader, req Request) (*Result, error) {
	logger := logging.WithFields(logging.WithFile(ctx, req.FileName), "pattern", req.Pattern)

	rule, err := e.Rule(ctx, req.Pattern)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", req.FileName, err)
		}
		logger.Debug("no enabled validation rule, passing through")
		return &Result{Data: data}, nil
	}

	delim := req.Delimiter
	if delim == 0 {
		delim = '\t'
	}

	logger.Info("validation started", "expected_delimiters", rule.ExpectedDelimiters)

	res := &Result{Rule: rule}
	var out bytes.Buffer
	br := bufio.NewReaderSize(r, 64*1024)

	for lineNo := 1; ; lineNo++ {
		raw, readErr := br.ReadString('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return nil, fmt.Errorf("read %s line %d: %w", req.FileName, lineNo, readErr)
		}
		if raw == "" && readErr != nil {
			break
		}

		line, term := splitTerminator(raw)
		fixed, lineIssues := e.checkLine(line, lineNo, rule, delim, req)

		out.WriteString(fixed)
		out.WriteString(term)
		res.LinesRead++

		lineFixed := false
		for _, is := range lineIssues {
			if is.AutoFixed {
				lineFixed = true
			}
			switch is.Severity {
			case domain.SeverityWarning:
				res.WarningCount++
			case domain.SeverityError:
				res.ErrorCount++
			case domain.SeverityCritical:
				res.ErrorCount++
				res.CriticalCount++
			}
		}
		if lineFixed {
			res.CorrectedLines++
		}
		res.Issues = append(res.Issues, lineIssues...)

		if readErr != nil {
			break
		}
	}

	if len(res.Issues) > 0 {
		if err := e.issues.SaveAll(ctx, res.Issues); err != nil {
			return nil, fmt.Errorf("save validation issues: %w", err)
		}
		logger.Info("validation issues recorded", "issues", len(res.Issues))
	}

	if res.CriticalCount > 0 && rule.RejectOnViolation {
		res.Rejected = true
		logger.Error("file rejected by validation",
			"critical", res.CriticalCount,
			"issues", len(res.Issues),
		)
		return res, nil
	}

	res.Data = out.Bytes()
	logger.Info("validation completed",
		"lines", res.LinesRead,
		"issues", len(res.Issues),
		"corrected_lines", res.CorrectedLines,
	)
	return res, nil
}

// checkLine cleans and structurally checks one line, returning the text to
// write and the issues found.
func (e *Engine) checkLine(line string, lineNo int, rule *domain.Rule, delim byte, req Request) (string, []domain.Issue) {
	var issues []domain.Issue
	now := e.now()

	c := cleanLine(line, rule)
	for _, step := range []struct {
		kind  domain.IssueKind
		count int
		what  string
	}{
		{domain.IssueControlCharacters, c.control, "control character(s)"},
		{domain.IssueNonASCIICharacters, c.nonASCII, "non-ASCII character(s)"},
		{domain.IssueCollapsedReplacements, c.collapsed, "consecutive replaced character(s) collapsed"},
	} {
		if step.count == 0 {
			continue
		}
		issues = append(issues, domain.Issue{
			BatchID:       req.BatchID,
			FileName:      req.FileName,
			LineNumber:    lineNo,
			Kind:          step.kind,
			Severity:      domain.SeverityWarning,
			Actual:        fmt.Sprintf("%d %s", step.count, step.what),
			AutoFixed:     true,
			OriginalLine:  domain.IssueText(line),
			CorrectedLine: domain.IssueText(c.line),
			Description:   fmt.Sprintf("Line %d: Found %d %s, replaced with asterisk", lineNo, step.count, step.what),
			CreatedAt:     now,
		})
	}

	processed := c.line
	expected := rule.ExpectedDelimiters
	actual := countDelimiters(processed, delim)
	if actual == expected {
		return processed, issues
	}

	issue := domain.Issue{
		BatchID:      req.BatchID,
		FileName:     req.FileName,
		LineNumber:   lineNo,
		Kind:         domain.IssueInsufficientDelimiters,
		Expected:     fmt.Sprintf("%d delimiters", expected),
		Actual:       fmt.Sprintf("%d delimiters", actual),
		OriginalLine: domain.IssueText(processed),
		Description:  fmt.Sprintf("Line %d: Expected %d delimiters but found %d", lineNo, expected, actual),
		CreatedAt:    now,
	}
	if actual > expected {
		issue.Kind = domain.IssueExcessDelimiters
	}

	if actual > expected && rule.AutoFixEnabled {
		processed = fixExcessDelimiters(processed, delim, expected)
		issue.Severity = domain.SeverityWarning
		issue.AutoFixed = true
		issue.CorrectedLine = domain.IssueText(processed)
		issue.Description += fmt.Sprintf("; converted %d excess delimiters to spaces", actual-expected)
	} else if rule.RejectOnViolation {
		issue.Severity = domain.SeverityCritical
	} else {
		issue.Severity = domain.SeverityError
	}

	return processed, append(issues, issue)
}

// splitTerminator separates a trailing "\n" or "\r\n" from raw.
func splitTerminator(raw string) (line, term string) {
	if strings.HasSuffix(raw, "\r\n") {
		return raw[:len(raw)-2], "\r\n"
	}
	if strings.HasSuffix(raw, "\n") {
		return raw[:len(raw)-1], "\n"
	}
	return raw, ""
}
