// Package domain holds the plain data types shared by the ingestion pipeline:
// manifests, validation rules and issues, archive results, and the store
// interfaces that persist them.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a manifest.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Quality labels derived when a manifest reaches a terminal state.
const (
	QualityClean        = "CLEAN"
	QualityCorrected    = "CORRECTED"
	QualityWithErrors   = "WITH_ERRORS"
	QualityWithWarnings = "WITH_WARNINGS"
	QualityRejected     = "REJECTED"
)

// Manifest is the audit record of one ingestion attempt.
type Manifest struct {
	BatchID       uuid.UUID  `json:"batch_id"`
	ParentBatchID *uuid.UUID `json:"parent_batch_id,omitempty"`

	FileName      string `json:"file_name"`
	FilePath      string `json:"file_path,omitempty"`
	FileSizeBytes int64  `json:"file_size_bytes"`
	Checksum      string `json:"file_checksum"`
	ContentType   string `json:"content_type,omitempty"`
	TableName     string `json:"table_name,omitempty"`

	Status Status `json:"status"`

	TotalRecords     int64  `json:"total_records"`
	ProcessedRecords int64  `json:"processed_records"`
	FailedRecords    int64  `json:"failed_records"`
	CorrectedRecords int64  `json:"corrected_records"`
	WarningCount     int    `json:"warning_count"`
	ErrorCount       int    `json:"error_count"`
	DataQuality      string `json:"data_quality_status,omitempty"`

	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	DurationMs   int64      `json:"processing_duration_ms"`
	ErrorMessage string     `json:"error_message,omitempty"`
	ErrorDetail  string     `json:"error_details,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by,omitempty"`

	// AlreadyProcessed is set on a manifest returned by the checksum
	// short-circuit. It is never persisted.
	AlreadyProcessed bool `json:"already_processed,omitempty"`
}

// Terminal reports whether the manifest reached COMPLETED or FAILED.
func (m *Manifest) Terminal() bool {
	return m.Status == StatusCompleted || m.Status == StatusFailed
}

// QualityFor derives the data quality label from record and issue counts.
func QualityFor(corrected int64, warnings, errs int) string {
	switch {
	case errs > 0:
		return QualityWithErrors
	case corrected > 0:
		return QualityCorrected
	case warnings > 0:
		return QualityWithWarnings
	default:
		return QualityClean
	}
}

// ManifestFilter narrows a manifest listing.
type ManifestFilter struct {
	Status Status
	Limit  int
}

// ManifestStats aggregates manifests by status.
type ManifestStats struct {
	ByStatus     map[Status]int64 `json:"by_status"`
	TotalRows    int64            `json:"total_rows"`
	TotalBatches int64            `json:"total_batches"`
}
