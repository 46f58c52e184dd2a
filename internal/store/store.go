// Package store persists manifests, validation rules and validation issues
// in PostgreSQL using pgx.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of pgxpool.Pool used by the stores.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

// Stores groups the pgx-backed stores sharing one pool.
type Stores struct {
	Manifests *ManifestStore
	Rules     *RuleStore
	Issues    *IssueStore
	Locks     *ChecksumLocker
}

// New returns all stores backed by pool.
func New(pool *pgxpool.Pool) *Stores {
	return &Stores{
		Manifests: NewManifestStore(pool),
		Rules:     NewRuleStore(pool),
		Issues:    NewIssueStore(pool),
		Locks:     NewChecksumLocker(pool),
	}
}

// nullString maps "" to SQL NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
