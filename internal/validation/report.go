package validation

import (
	"context"
	"fmt"
	"sort"

	"github.com/JonMunkholm/stageload/internal/domain"
	"github.com/google/uuid"
)

// Report summarizes the issues recorded for one batch.
type Report struct {
	BatchID        uuid.UUID                `json:"batch_id"`
	TotalIssues    int                      `json:"total_issues"`
	AutoFixedCount int                      `json:"auto_fixed_count"`
	SeverityCounts map[domain.Severity]int  `json:"severity_counts"`
	KindCounts     map[domain.IssueKind]int `json:"issue_type_counts"`
	Issues         []domain.Issue           `json:"issues"`
}

// GenerateReport reads back the issues of a batch ordered by line number.
func (e *Engine) GenerateReport(ctx context.Context, batchID uuid.UUID) (*Report, error) {
	issues, err := e.issues.FindByBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("load issues for batch %s: %w", batchID, err)
	}
	return buildReport(batchID, issues), nil
}

func buildReport(batchID uuid.UUID, issues []domain.Issue) *Report {
	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].LineNumber < issues[j].LineNumber
	})

	rep := &Report{
		BatchID:        batchID,
		TotalIssues:    len(issues),
		SeverityCounts: make(map[domain.Severity]int),
		KindCounts:     make(map[domain.IssueKind]int),
		Issues:         issues,
	}
	if rep.Issues == nil {
		rep.Issues = []domain.Issue{}
	}

	for _, is := range issues {
		if is.AutoFixed {
			rep.AutoFixedCount++
		}
		rep.SeverityCounts[is.Severity]++
		rep.KindCounts[is.Kind]++
	}
	return rep
}
