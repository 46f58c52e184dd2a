package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ChecksumLocker serializes ingestion of identical content across processes
// with session-level advisory locks keyed by checksum.
type ChecksumLocker struct {
	pool *pgxpool.Pool
}

// NewChecksumLocker returns a locker using pool.
func NewChecksumLocker(pool *pgxpool.Pool) *ChecksumLocker {
	return &ChecksumLocker{pool: pool}
}

// Lock blocks until the lock for checksum is held. The returned function
// releases it and must be called exactly once.
func (l *ChecksumLocker) Lock(ctx context.Context, checksum string) (func(), error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection for checksum lock: %w", err)
	}

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtext($1))`, checksum); err != nil {
		conn.Release()
		return nil, fmt.Errorf("lock checksum %s: %w", checksum, err)
	}

	return func() {
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, checksum); err != nil {
			slog.Warn("release checksum lock", "checksum", checksum, "error", err)
			// A session still holding the lock must not go back to the pool.
			conn.Conn().Close(context.Background())
		}
		conn.Release()
	}, nil
}
