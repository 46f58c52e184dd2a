// Package schema creates and evolves staging tables and resolves their
// column order for headerless loads.
//
// Staging tables are UNLOGGED with one TEXT column per data column plus three
// bookkeeping columns (batch_id, row_number, loaded_at). Evolution is
// additive only: missing columns are added, existing ones are never dropped
// or retyped.
package schema

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/stageload/internal/domain"
	"github.com/jackc/pgx/v5"
)

// DB is the subset of pgxpool.Pool used by the resolver.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	tableExistsSQL = `SELECT EXISTS (
		SELECT 1 FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = $1)`

	columnsSQL = `SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`

	stagingTablesSQL = `SELECT c.relname, COALESCE(s.n_live_tup, 0)
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		LEFT JOIN pg_stat_user_tables s ON s.relid = c.oid
		WHERE n.nspname = current_schema() AND c.relkind = 'r' AND c.relname LIKE $1
		ORDER BY c.relname`
)

// Resolver ensures staging tables exist and reports their column order.
type Resolver struct {
	db    DB
	cache *ColumnCache
}

// NewResolver returns a Resolver with its own column cache.
func NewResolver(db DB) *Resolver {
	return &Resolver{db: db, cache: NewColumnCache()}
}

// Cache exposes the resolver's column cache.
func (r *Resolver) Cache() *ColumnCache {
	return r.cache
}

// TableExists reports whether table exists in the current schema.
func (r *Resolver) TableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, tableExistsSQL, strings.ToLower(table)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	return exists, nil
}

// EnsureTable creates table with the given data columns if it is absent, or
// adds whichever columns are missing if it exists. Bookkeeping columns and
// indexes are always ensured. Concurrent callers for the same table are
// serialized by a transaction-scoped advisory lock.
func (r *Resolver) EnsureTable(ctx context.Context, table string, columns []string) error {
	table = strings.ToLower(table)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ensure table: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, table); err != nil {
		return fmt.Errorf("lock table %s: %w", table, err)
	}

	existing, err := queryColumns(ctx, tx, table)
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		if len(columns) == 0 {
			return fmt.Errorf("cannot create table %s without columns", table)
		}
		if _, err := tx.Exec(ctx, createTableSQL(table, columns)); err != nil {
			return fmt.Errorf("create table %s: %w", table, err)
		}
		slog.Info("staging table created", "table", table, "columns", len(columns))
	} else {
		missing := missingColumns(existing, columns)
		for _, col := range missing {
			if _, err := tx.Exec(ctx, addColumnSQL(table, col, "TEXT")); err != nil {
				return fmt.Errorf("add column %s.%s: %w", table, col, err)
			}
		}
		for _, stmt := range trackingColumnsSQL(table) {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("ensure tracking columns on %s: %w", table, err)
			}
		}
		if len(missing) > 0 {
			slog.Info("staging table evolved", "table", table, "added_columns", missing)
		}
	}

	for _, stmt := range indexSQL(table) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create index on %s: %w", table, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ensure table %s: %w", table, err)
	}

	r.cache.Invalidate(table)
	return nil
}

// ResolveColumnOrder returns the data columns of table in catalog order,
// excluding bookkeeping columns. Results are cached until the table is
// changed through EnsureTable.
func (r *Resolver) ResolveColumnOrder(ctx context.Context, table string) ([]string, error) {
	table = strings.ToLower(table)
	if cols, ok := r.cache.Get(table); ok {
		return cols, nil
	}

	all, err := queryColumns(ctx, r.db, table)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("table %s does not exist or has no columns", table)
	}

	data := make([]string, 0, len(all))
	for _, col := range all {
		if !IsBookkeeping(col) {
			data = append(data, col)
		}
	}

	r.cache.Put(table, data)
	slog.Debug("resolved column order", "table", table, "columns", len(data))
	return data, nil
}

// StagingTable is one entry of a staging table listing.
type StagingTable struct {
	Name          string `json:"table_name"`
	EstimatedRows int64  `json:"estimated_rows"`
}

// ListStagingTables returns tables whose name starts with prefix.
func (r *Resolver) ListStagingTables(ctx context.Context, prefix string) ([]StagingTable, error) {
	like := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.ToLower(prefix)) + `\_%`
	rows, err := r.db.Query(ctx, stagingTablesSQL, like)
	if err != nil {
		return nil, fmt.Errorf("list staging tables: %w", err)
	}
	defer rows.Close()

	var tables []StagingTable
	for rows.Next() {
		var t StagingTable
		if err := rows.Scan(&t.Name, &t.EstimatedRows); err != nil {
			return nil, fmt.Errorf("scan staging table: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// FitColumns picks the columns a headerless file with fieldCount fields
// loads into: the first fieldCount data columns. A file wider than the
// table is a *domain.SchemaMismatch.
func FitColumns(table string, dataColumns []string, fieldCount int) ([]string, error) {
	if fieldCount > len(dataColumns) {
		return nil, &domain.SchemaMismatch{
			Table:       table,
			FieldCount:  fieldCount,
			ColumnCount: len(dataColumns),
		}
	}
	if fieldCount <= 0 {
		return nil, fmt.Errorf("file for table %s has no fields", table)
	}
	return dataColumns[:fieldCount], nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryColumns(ctx context.Context, q querier, table string) ([]string, error) {
	rows, err := q.Query(ctx, columnsSQL, table)
	if err != nil {
		return nil, fmt.Errorf("query columns of %s: %w", table, err)
	}
	cols, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan columns of %s: %w", table, err)
	}
	return cols, nil
}

func missingColumns(existing, wanted []string) []string {
	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[strings.ToLower(c)] = true
	}
	var missing []string
	for _, c := range wanted {
		lc := strings.ToLower(c)
		if !have[lc] {
			missing = append(missing, lc)
			have[lc] = true
		}
	}
	return missing
}

func createTableSQL(table string, columns []string) string {
	var b strings.Builder
	b.WriteString("CREATE UNLOGGED TABLE IF NOT EXISTS ")
	b.WriteString(QuoteIdent(table))
	b.WriteString(" (")
	for _, col := range columns {
		b.WriteString(QuoteIdent(col))
		b.WriteString(" TEXT, ")
	}
	b.WriteString(QuoteIdent(ColBatchID) + " UUID, ")
	b.WriteString(QuoteIdent(ColRowNumber) + " BIGSERIAL, ")
	b.WriteString(QuoteIdent(ColLoadedAt) + " TIMESTAMPTZ NOT NULL DEFAULT now())")
	return b.String()
}

func addColumnSQL(table, column, typ string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s", QuoteIdent(table), QuoteIdent(column), typ)
}

func trackingColumnsSQL(table string) []string {
	return []string{
		addColumnSQL(table, ColBatchID, "UUID"),
		addColumnSQL(table, ColRowNumber, "BIGSERIAL"),
		addColumnSQL(table, ColLoadedAt, "TIMESTAMPTZ NOT NULL DEFAULT now()"),
	}
}

// indexSQL returns the batch lookup index and the partial index the loader's
// tag step scans.
func indexSQL(table string) []string {
	return []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			QuoteIdent(indexName(table, "batch_idx")), QuoteIdent(table), QuoteIdent(ColBatchID)),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s) WHERE %s IS NULL",
			QuoteIdent(indexName(table, "untagged_idx")), QuoteIdent(table), QuoteIdent(ColRowNumber), QuoteIdent(ColBatchID)),
	}
}
