package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/stageload/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const ruleColumns = `id, file_pattern, table_name, expected_delimiters,
	validation_enabled, auto_fix_enabled, reject_on_violation,
	replace_control_chars, replace_non_ascii, collapse_consecutive_replaced,
	transform_enabled, transformer, description, created_at, updated_at`

// RuleStore implements domain.RuleStore.
type RuleStore struct {
	db DB
}

// NewRuleStore returns a RuleStore using db.
func NewRuleStore(db DB) *RuleStore {
	return &RuleStore{db: db}
}

var _ domain.RuleStore = (*RuleStore)(nil)

func (s *RuleStore) FindByPattern(ctx context.Context, pattern string) (*domain.Rule, bool, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+ruleColumns+` FROM file_validation_rules WHERE file_pattern = $1`, pattern)
	if err != nil {
		return nil, false, fmt.Errorf("query rule %s: %w", pattern, err)
	}

	r, err := pgx.CollectOneRow(rows, scanRule)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("scan rule %s: %w", pattern, err)
	}
	return &r, true, nil
}

func (s *RuleStore) List(ctx context.Context) ([]domain.Rule, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+ruleColumns+` FROM file_validation_rules ORDER BY file_pattern`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}

	out, err := pgx.CollectRows(rows, scanRule)
	if err != nil {
		return nil, fmt.Errorf("scan rules: %w", err)
	}
	return out, nil
}

// Upsert inserts r or replaces the rule with the same file pattern. ID and
// timestamps are filled from the stored row.
func (s *RuleStore) Upsert(ctx context.Context, r *domain.Rule) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO file_validation_rules (
		   file_pattern, table_name, expected_delimiters,
		   validation_enabled, auto_fix_enabled, reject_on_violation,
		   replace_control_chars, replace_non_ascii, collapse_consecutive_replaced,
		   transform_enabled, transformer, description)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (file_pattern) DO UPDATE SET
		   table_name = EXCLUDED.table_name,
		   expected_delimiters = EXCLUDED.expected_delimiters,
		   validation_enabled = EXCLUDED.validation_enabled,
		   auto_fix_enabled = EXCLUDED.auto_fix_enabled,
		   reject_on_violation = EXCLUDED.reject_on_violation,
		   replace_control_chars = EXCLUDED.replace_control_chars,
		   replace_non_ascii = EXCLUDED.replace_non_ascii,
		   collapse_consecutive_replaced = EXCLUDED.collapse_consecutive_replaced,
		   transform_enabled = EXCLUDED.transform_enabled,
		   transformer = EXCLUDED.transformer,
		   description = EXCLUDED.description,
		   updated_at = now()
		 RETURNING id, created_at, updated_at`,
		r.FilePattern, nullString(r.TableName), r.ExpectedDelimiters,
		r.ValidationEnabled, r.AutoFixEnabled, r.RejectOnViolation,
		r.ReplaceControlChars, r.ReplaceNonASCII, r.CollapseConsecutiveReplaced,
		r.TransformEnabled, nullString(r.Transformer), nullString(r.Description),
	).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert rule %s: %w", r.FilePattern, err)
	}
	return nil
}

func (s *RuleStore) SetEnabled(ctx context.Context, pattern string, enabled bool) (*domain.Rule, error) {
	rows, err := s.db.Query(ctx,
		`UPDATE file_validation_rules SET validation_enabled = $2, updated_at = now()
		 WHERE file_pattern = $1
		 RETURNING `+ruleColumns, pattern, enabled)
	if err != nil {
		return nil, fmt.Errorf("update rule %s: %w", pattern, err)
	}

	r, err := pgx.CollectOneRow(rows, scanRule)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("rule %s: %w", pattern, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan rule %s: %w", pattern, err)
	}
	return &r, nil
}

func (s *RuleStore) Delete(ctx context.Context, pattern string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM file_validation_rules WHERE file_pattern = $1`, pattern)
	if err != nil {
		return fmt.Errorf("delete rule %s: %w", pattern, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rule %s: %w", pattern, domain.ErrNotFound)
	}
	return nil
}

func scanRule(row pgx.CollectableRow) (domain.Rule, error) {
	var (
		r                               domain.Rule
		table, transformer, description pgtype.Text
	)
	err := row.Scan(
		&r.ID, &r.FilePattern, &table, &r.ExpectedDelimiters,
		&r.ValidationEnabled, &r.AutoFixEnabled, &r.RejectOnViolation,
		&r.ReplaceControlChars, &r.ReplaceNonASCII, &r.CollapseConsecutiveReplaced,
		&r.TransformEnabled, &transformer, &description, &r.CreatedAt, &r.UpdatedAt,
	)
	r.TableName = table.String
	r.Transformer = transformer.String
	r.Description = description.String
	return r, err
}
