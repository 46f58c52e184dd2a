package domain

import "github.com/google/uuid"

// BatchStatus is the overall outcome of an archive ingestion.
type BatchStatus string

const (
	BatchSuccess          BatchStatus = "SUCCESS"
	BatchPartialSuccess   BatchStatus = "PARTIAL_SUCCESS"
	BatchAllDuplicates    BatchStatus = "ALL_DUPLICATES"
	BatchFailed           BatchStatus = "FAILED"
	BatchAlreadyProcessed BatchStatus = "ALREADY_PROCESSED"
)

// MemberStatus is the outcome of one archive member.
type MemberStatus string

const (
	MemberSuccess   MemberStatus = "SUCCESS"
	MemberDuplicate MemberStatus = "DUPLICATE"
	MemberFailed    MemberStatus = "FAILED"
)

// FileResult records what happened to one archive member.
type FileResult struct {
	FileName  string       `json:"file_name"`
	BatchID   *uuid.UUID   `json:"batch_id,omitempty"`
	TableName string       `json:"table_name,omitempty"`
	Status    MemberStatus `json:"status"`
	Rows      int64        `json:"rows"`
	Error     string       `json:"error,omitempty"`
}

// ValidationSummary splits archive members into ready and needing review.
type ValidationSummary struct {
	FilesReady      int      `json:"files_ready"`
	FilesNeedReview int      `json:"files_requiring_review"`
	QualityMessages []string `json:"data_quality_messages,omitempty"`
}

// BatchResult is the outcome of an archive ingestion.
type BatchResult struct {
	ParentBatchID uuid.UUID         `json:"parent_batch_id"`
	FileName      string            `json:"file_name"`
	Status        BatchStatus       `json:"status"`
	TotalFiles    int               `json:"total_files"`
	Succeeded     int               `json:"successful_files"`
	Failed        int               `json:"failed_files"`
	Duplicates    int               `json:"duplicate_files"`
	TotalRows     int64             `json:"total_rows"`
	Files         []FileResult      `json:"files"`
	Summary       ValidationSummary `json:"validation_summary"`
	DurationMs    int64             `json:"processing_duration_ms"`
	Message       string            `json:"message,omitempty"`
}

// OverallStatus folds member counts into a batch status.
func OverallStatus(succeeded, failed, duplicates int) BatchStatus {
	switch {
	case duplicates > 0 && succeeded == 0 && failed == 0:
		return BatchAllDuplicates
	case succeeded > 0 && failed > 0:
		return BatchPartialSuccess
	case succeeded > 0:
		return BatchSuccess
	default:
		return BatchFailed
	}
}

// ArchiveEntry describes one member found by an archive analysis.
type ArchiveEntry struct {
	FileName       string   `json:"filename"`
	SizeBytes      int64    `json:"file_size"`
	FileType       string   `json:"file_type"`
	EstimatedRows  int64    `json:"estimated_rows"`
	Headers        []string `json:"headers_detected,omitempty"`
	SuggestedTable string   `json:"suggested_table_name,omitempty"`
	TableExists    bool     `json:"staging_table_exists"`
	Eligible       bool     `json:"eligible"`
}

// ArchiveAnalysis is the dry-run view of an archive.
type ArchiveAnalysis struct {
	FileName        string         `json:"zip_filename"`
	TotalEntries    int            `json:"total_files_extracted"`
	EligibleEntries int            `json:"csv_files_found"`
	Entries         []ArchiveEntry `json:"extracted_files"`
	Recommendations []string       `json:"processing_recommendations,omitempty"`
}
