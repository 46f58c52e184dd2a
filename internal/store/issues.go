package store

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/stageload/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const issueColumns = `id, batch_id, file_name, line_number, issue_type, severity,
	expected_value, actual_value, auto_fixed, original_line, corrected_line,
	description, created_at`

// issueCopyColumns are written by SaveAll; id is assigned by the database.
var issueCopyColumns = []string{
	"batch_id", "file_name", "line_number", "issue_type", "severity",
	"expected_value", "actual_value", "auto_fixed", "original_line", "corrected_line",
	"description", "created_at",
}

// DefaultCriticalLimit caps FindCritical without an explicit limit.
const DefaultCriticalLimit = 100

// IssueStore implements domain.IssueStore.
type IssueStore struct {
	db DB
}

// NewIssueStore returns an IssueStore using db.
func NewIssueStore(db DB) *IssueStore {
	return &IssueStore{db: db}
}

var _ domain.IssueStore = (*IssueStore)(nil)

// SaveAll writes issues with the COPY protocol in a single round trip.
func (s *IssueStore) SaveAll(ctx context.Context, issues []domain.Issue) error {
	if len(issues) == 0 {
		return nil
	}

	n, err := s.db.CopyFrom(ctx,
		pgx.Identifier{"file_validation_issues"},
		issueCopyColumns,
		pgx.CopyFromSlice(len(issues), func(i int) ([]any, error) {
			return issueRow(issues[i]), nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy %d validation issues: %w", len(issues), err)
	}
	if n != int64(len(issues)) {
		return fmt.Errorf("copy validation issues: wrote %d of %d", n, len(issues))
	}
	return nil
}

func issueRow(is domain.Issue) []any {
	if is.CreatedAt.IsZero() {
		is.CreatedAt = time.Now()
	}
	return []any{
		is.BatchID, is.FileName, is.LineNumber, string(is.Kind), string(is.Severity),
		nullString(is.Expected), nullString(is.Actual), is.AutoFixed,
		nullString(is.OriginalLine), nullString(is.CorrectedLine),
		is.Description, is.CreatedAt,
	}
}

func (s *IssueStore) FindByBatch(ctx context.Context, batchID uuid.UUID) ([]domain.Issue, error) {
	return s.query(ctx, "issues for batch "+batchID.String(),
		`SELECT `+issueColumns+` FROM file_validation_issues
		 WHERE batch_id = $1
		 ORDER BY line_number, id`, batchID)
}

func (s *IssueStore) FindByBatchAndSeverity(ctx context.Context, batchID uuid.UUID, severity domain.Severity) ([]domain.Issue, error) {
	return s.query(ctx, "issues for batch "+batchID.String(),
		`SELECT `+issueColumns+` FROM file_validation_issues
		 WHERE batch_id = $1 AND severity = $2
		 ORDER BY line_number, id`, batchID, string(severity))
}

func (s *IssueStore) FindCritical(ctx context.Context, limit int) ([]domain.Issue, error) {
	if limit <= 0 {
		limit = DefaultCriticalLimit
	}
	return s.query(ctx, "critical issues",
		`SELECT `+issueColumns+` FROM file_validation_issues
		 WHERE severity = 'CRITICAL'
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1`, limit)
}

func (s *IssueStore) Summary(ctx context.Context, batchID uuid.UUID) ([]domain.IssueSummary, error) {
	rows, err := s.db.Query(ctx,
		`SELECT issue_type, severity, count(*)
		 FROM file_validation_issues
		 WHERE batch_id = $1
		 GROUP BY issue_type, severity
		 ORDER BY issue_type, severity`, batchID)
	if err != nil {
		return nil, fmt.Errorf("summarize issues for batch %s: %w", batchID, err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.IssueSummary, error) {
		var (
			sum            domain.IssueSummary
			kind, severity string
		)
		err := row.Scan(&kind, &severity, &sum.Count)
		sum.Kind = domain.IssueKind(kind)
		sum.Severity = domain.Severity(severity)
		return sum, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan issue summary: %w", err)
	}
	return out, nil
}

func (s *IssueStore) query(ctx context.Context, what, sql string, args ...any) ([]domain.Issue, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", what, err)
	}

	out, err := pgx.CollectRows(rows, scanIssue)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", what, err)
	}
	return out, nil
}

func scanIssue(row pgx.CollectableRow) (domain.Issue, error) {
	var (
		is                        domain.Issue
		kind, severity            string
		expected, actual          pgtype.Text
		original, corrected, desc pgtype.Text
	)
	err := row.Scan(
		&is.ID, &is.BatchID, &is.FileName, &is.LineNumber, &kind, &severity,
		&expected, &actual, &is.AutoFixed, &original, &corrected,
		&desc, &is.CreatedAt,
	)
	is.Kind = domain.IssueKind(kind)
	is.Severity = domain.Severity(severity)
	is.Expected = expected.String
	is.Actual = actual.String
	is.OriginalLine = original.String
	is.CorrectedLine = corrected.String
	is.Description = desc.String
	return is, err
}
