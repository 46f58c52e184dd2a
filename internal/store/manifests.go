package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/stageload/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const manifestColumns = `batch_id, parent_batch_id, file_name, file_path, file_size_bytes,
	file_checksum, content_type, table_name, status,
	total_records, processed_records, failed_records, corrected_records,
	warning_count, error_count, data_quality,
	started_at, completed_at, duration_ms, error_message, error_detail,
	created_at, updated_at, created_by`

// DefaultListLimit caps manifest listings without an explicit limit.
const DefaultListLimit = 100

// ManifestStore implements domain.ManifestStore.
type ManifestStore struct {
	db DB
}

// NewManifestStore returns a ManifestStore using db.
func NewManifestStore(db DB) *ManifestStore {
	return &ManifestStore{db: db}
}

var _ domain.ManifestStore = (*ManifestStore)(nil)

func (s *ManifestStore) Save(ctx context.Context, m *domain.Manifest) error {
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	_, err := s.db.Exec(ctx,
		`INSERT INTO ingestion_manifest (`+manifestColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		         $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`,
		m.BatchID, m.ParentBatchID, m.FileName, nullString(m.FilePath), m.FileSizeBytes,
		m.Checksum, nullString(m.ContentType), nullString(m.TableName), string(m.Status),
		m.TotalRecords, m.ProcessedRecords, m.FailedRecords, m.CorrectedRecords,
		m.WarningCount, m.ErrorCount, nullString(m.DataQuality),
		m.StartedAt, m.CompletedAt, m.DurationMs, nullString(m.ErrorMessage), nullString(m.ErrorDetail),
		m.CreatedAt, m.UpdatedAt, nullString(m.CreatedBy),
	)
	if err != nil {
		return fmt.Errorf("insert manifest %s: %w", m.BatchID, err)
	}
	return nil
}

func (s *ManifestStore) Update(ctx context.Context, m *domain.Manifest) error {
	m.UpdatedAt = time.Now()

	tag, err := s.db.Exec(ctx,
		`UPDATE ingestion_manifest SET
		   table_name = $2, status = $3,
		   total_records = $4, processed_records = $5, failed_records = $6, corrected_records = $7,
		   warning_count = $8, error_count = $9, data_quality = $10,
		   started_at = $11, completed_at = $12, duration_ms = $13,
		   error_message = $14, error_detail = $15, updated_at = $16
		 WHERE batch_id = $1`,
		m.BatchID, nullString(m.TableName), string(m.Status),
		m.TotalRecords, m.ProcessedRecords, m.FailedRecords, m.CorrectedRecords,
		m.WarningCount, m.ErrorCount, nullString(m.DataQuality),
		m.StartedAt, m.CompletedAt, m.DurationMs,
		nullString(m.ErrorMessage), nullString(m.ErrorDetail), m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update manifest %s: %w", m.BatchID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update manifest %s: %w", m.BatchID, domain.ErrNotFound)
	}
	return nil
}

func (s *ManifestStore) FindByBatchID(ctx context.Context, batchID uuid.UUID) (*domain.Manifest, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+manifestColumns+` FROM ingestion_manifest WHERE batch_id = $1`, batchID)
	if err != nil {
		return nil, fmt.Errorf("query manifest %s: %w", batchID, err)
	}

	m, err := pgx.CollectOneRow(rows, scanManifest)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("manifest %s: %w", batchID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan manifest %s: %w", batchID, err)
	}
	return &m, nil
}

func (s *ManifestStore) FindByChecksumAndStatus(ctx context.Context, checksum string, status domain.Status) (*domain.Manifest, bool, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+manifestColumns+` FROM ingestion_manifest
		 WHERE file_checksum = $1 AND status = $2
		 ORDER BY created_at DESC
		 LIMIT 1`, checksum, string(status))
	if err != nil {
		return nil, false, fmt.Errorf("query manifest by checksum: %w", err)
	}

	m, err := pgx.CollectOneRow(rows, scanManifest)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("scan manifest by checksum: %w", err)
	}
	return &m, true, nil
}

func (s *ManifestStore) FindByParent(ctx context.Context, parentID uuid.UUID) ([]domain.Manifest, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+manifestColumns+` FROM ingestion_manifest
		 WHERE parent_batch_id = $1
		 ORDER BY created_at`, parentID)
	if err != nil {
		return nil, fmt.Errorf("query child manifests of %s: %w", parentID, err)
	}

	out, err := pgx.CollectRows(rows, scanManifest)
	if err != nil {
		return nil, fmt.Errorf("scan child manifests of %s: %w", parentID, err)
	}
	return out, nil
}

func (s *ManifestStore) List(ctx context.Context, filter domain.ManifestFilter) ([]domain.Manifest, error) {
	query, args := listManifestsQuery(filter)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list manifests: %w", err)
	}

	out, err := pgx.CollectRows(rows, scanManifest)
	if err != nil {
		return nil, fmt.Errorf("scan manifests: %w", err)
	}
	return out, nil
}

func listManifestsQuery(filter domain.ManifestFilter) (string, []any) {
	var (
		b    strings.Builder
		args []any
	)
	b.WriteString(`SELECT ` + manifestColumns + ` FROM ingestion_manifest`)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		fmt.Fprintf(&b, " WHERE status = $%d", len(args))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	args = append(args, limit)
	fmt.Fprintf(&b, " ORDER BY created_at DESC LIMIT $%d", len(args))
	return b.String(), args
}

func (s *ManifestStore) Stats(ctx context.Context) (domain.ManifestStats, error) {
	stats := domain.ManifestStats{ByStatus: make(map[domain.Status]int64)}

	rows, err := s.db.Query(ctx,
		`SELECT status, count(*), COALESCE(sum(processed_records), 0)
		 FROM ingestion_manifest
		 GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("query manifest stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			count  int64
			recs   int64
		)
		if err := rows.Scan(&status, &count, &recs); err != nil {
			return stats, fmt.Errorf("scan manifest stats: %w", err)
		}
		stats.ByStatus[domain.Status(status)] = count
		stats.TotalBatches += count
		if domain.Status(status) == domain.StatusCompleted {
			stats.TotalRows += recs
		}
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("iterate manifest stats: %w", err)
	}
	return stats, nil
}

func scanManifest(row pgx.CollectableRow) (domain.Manifest, error) {
	var (
		m                                 domain.Manifest
		parent                            pgtype.UUID
		path, contentType, table, quality pgtype.Text
		errMsg, errDetail, createdBy      pgtype.Text
		status                            string
		startedAt, completedAt            pgtype.Timestamptz
	)
	err := row.Scan(
		&m.BatchID, &parent, &m.FileName, &path, &m.FileSizeBytes,
		&m.Checksum, &contentType, &table, &status,
		&m.TotalRecords, &m.ProcessedRecords, &m.FailedRecords, &m.CorrectedRecords,
		&m.WarningCount, &m.ErrorCount, &quality,
		&startedAt, &completedAt, &m.DurationMs, &errMsg, &errDetail,
		&m.CreatedAt, &m.UpdatedAt, &createdBy,
	)
	if err != nil {
		return m, err
	}

	if parent.Valid {
		id := uuid.UUID(parent.Bytes)
		m.ParentBatchID = &id
	}
	m.Status = domain.Status(status)
	m.FilePath = path.String
	m.ContentType = contentType.String
	m.TableName = table.String
	m.DataQuality = quality.String
	m.ErrorMessage = errMsg.String
	m.ErrorDetail = errDetail.String
	m.CreatedBy = createdBy.String
	if startedAt.Valid {
		t := startedAt.Time
		m.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		m.CompletedAt = &t
	}
	return m, nil
}
