// Package loader bulk-loads delimited data into staging tables using the
// PostgreSQL COPY protocol and tags the new rows with their batch ID.
//
// The copy and the tagging update run in one transaction: either every row
// of a file lands tagged, or nothing does.
package loader

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/JonMunkholm/stageload/internal/domain"
	"github.com/JonMunkholm/stageload/internal/logging"
	"github.com/JonMunkholm/stageload/internal/schema"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Load phases reported by LoadFailure.
const (
	PhaseBegin  = "begin"
	PhaseCopy   = "copy"
	PhaseTag    = "tag"
	PhaseCommit = "commit"
)

// DB is the subset of pgxpool.Pool used by the loader.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// LoadRequest describes one COPY.
type LoadRequest struct {
	Table      string
	Columns    []string
	Format     domain.Format
	HasHeaders bool
	BatchID    uuid.UUID
}

// Loader runs transactional COPY loads.
type Loader struct {
	db DB

	// afterCopy runs between the copy and the tagging update.
	afterCopy func(ctx context.Context, tx pgx.Tx) error
}

// New returns a Loader using db.
func New(db DB) *Loader {
	return &Loader{db: db}
}

// Load copies r into req.Table and tags every untagged row with
// req.BatchID. It returns the number of rows copied. Any error rolls the
// transaction back and is returned as a *domain.LoadFailure.
func (l *Loader) Load(ctx context.Context, r io.Reader, req LoadRequest) (int64, error) {
	if len(req.Columns) == 0 {
		return 0, &domain.LoadFailure{Table: req.Table, Phase: PhaseCopy, Err: fmt.Errorf("no columns")}
	}

	logger := logging.WithFields(ctx, "table", req.Table)
	start := time.Now()
	fail := func(phase string, err error) (int64, error) {
		logger.Error("load failed", "phase", phase, "error", err)
		return 0, &domain.LoadFailure{Table: req.Table, Phase: phase, Err: err}
	}

	tx, err := l.db.Begin(ctx)
	if err != nil {
		return fail(PhaseBegin, err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Conn().PgConn().CopyFrom(ctx, r, BuildCopyCommand(req))
	if err != nil {
		return fail(PhaseCopy, err)
	}
	copied := tag.RowsAffected()

	if l.afterCopy != nil {
		if err := l.afterCopy(ctx, tx); err != nil {
			return fail(PhaseCopy, err)
		}
	}

	res, err := tx.Exec(ctx, tagSQL(req.Table), req.BatchID)
	if err != nil {
		return fail(PhaseTag, err)
	}
	if tagged := res.RowsAffected(); tagged != copied {
		logger.Warn("tagged row count differs from copied rows",
			"copied", copied,
			"tagged", tagged,
		)
	}

	if err := tx.Commit(ctx); err != nil {
		return fail(PhaseCommit, err)
	}

	logger.Info("load completed",
		"rows", copied,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return copied, nil
}

// BuildCopyCommand renders the COPY statement for req. TSV input is loaded
// in CSV mode with a quote byte that never occurs in text, so quotes in the
// data are kept literally.
func BuildCopyCommand(req LoadRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "COPY %s (%s) FROM STDIN WITH (FORMAT csv, ",
		schema.QuoteIdent(req.Table), schema.QuoteIdents(req.Columns))

	if req.Format == domain.FormatTSV {
		b.WriteString(`DELIMITER E'\t', QUOTE E'\x01', `)
	} else {
		b.WriteString("DELIMITER ',', ")
	}

	fmt.Fprintf(&b, "HEADER %t, NULL '')", req.HasHeaders)
	return b.String()
}

func tagSQL(table string) string {
	return fmt.Sprintf("UPDATE %s SET %s = $1 WHERE %s IS NULL",
		schema.QuoteIdent(table), schema.QuoteIdent(schema.ColBatchID), schema.QuoteIdent(schema.ColBatchID))
}
