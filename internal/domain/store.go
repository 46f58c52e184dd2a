package domain

import (
	"context"

	"github.com/google/uuid"
)

// ManifestStore persists manifests.
type ManifestStore interface {
	Save(ctx context.Context, m *Manifest) error
	Update(ctx context.Context, m *Manifest) error
	FindByBatchID(ctx context.Context, batchID uuid.UUID) (*Manifest, error)
	// FindByChecksumAndStatus returns the newest manifest with the given
	// checksum and status. The bool is false when none exists.
	FindByChecksumAndStatus(ctx context.Context, checksum string, status Status) (*Manifest, bool, error)
	FindByParent(ctx context.Context, parentID uuid.UUID) ([]Manifest, error)
	List(ctx context.Context, filter ManifestFilter) ([]Manifest, error)
	Stats(ctx context.Context) (ManifestStats, error)
}

// RuleStore persists validation rules.
type RuleStore interface {
	// FindByPattern returns the rule for a file pattern. The bool is false
	// when no rule exists.
	FindByPattern(ctx context.Context, pattern string) (*Rule, bool, error)
	List(ctx context.Context) ([]Rule, error)
	Upsert(ctx context.Context, r *Rule) error
	SetEnabled(ctx context.Context, pattern string, enabled bool) (*Rule, error)
	Delete(ctx context.Context, pattern string) error
}

// IssueStore persists validation issues.
type IssueStore interface {
	SaveAll(ctx context.Context, issues []Issue) error
	FindByBatch(ctx context.Context, batchID uuid.UUID) ([]Issue, error)
	FindByBatchAndSeverity(ctx context.Context, batchID uuid.UUID, severity Severity) ([]Issue, error)
	Summary(ctx context.Context, batchID uuid.UUID) ([]IssueSummary, error)
	FindCritical(ctx context.Context, limit int) ([]Issue, error)
}
