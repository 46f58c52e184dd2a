package schema

import (
	"strconv"
	"strings"

	"github.com/JonMunkholm/stageload/internal/routing"
)

// Bookkeeping columns added to every staging table. They are never part of
// a file's data columns.
const (
	ColBatchID   = "batch_id"
	ColRowNumber = "row_number"
	ColLoadedAt  = "loaded_at"
)

// IsBookkeeping reports whether col is a pipeline-owned column.
func IsBookkeeping(col string) bool {
	switch strings.ToLower(col) {
	case ColBatchID, ColRowNumber, ColLoadedAt:
		return true
	}
	return false
}

// QuoteIdent quotes a PostgreSQL identifier, doubling embedded quotes.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteIdents quotes each name and joins them with ", ".
func QuoteIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

// SanitizeColumns turns raw header cells into usable column names. Blank
// cells become column_N, duplicates get _2, _3 suffixes, and names that
// collide with bookkeeping columns are prefixed with src_.
func SanitizeColumns(headers []string) []string {
	out := make([]string, 0, len(headers))
	seen := make(map[string]int, len(headers))

	for i, h := range headers {
		name := routing.Sanitize(strings.TrimSpace(h))
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		if IsBookkeeping(name) {
			name = "src_" + name
		}
		name = routing.TruncateIdentifier(name)

		if n, dup := seen[name]; dup {
			base := name
			for n++; ; n++ {
				candidate := withSuffix(base, n)
				if _, taken := seen[candidate]; !taken {
					seen[base] = n
					name = candidate
					break
				}
			}
		}
		if _, ok := seen[name]; !ok {
			seen[name] = 1
		}
		out = append(out, name)
	}
	return out
}

// withSuffix appends _n to name, shortening name to stay within the
// identifier limit.
func withSuffix(name string, n int) string {
	suffix := "_" + strconv.Itoa(n)
	if len(name)+len(suffix) > routing.MaxIdentifierLength {
		name = name[:routing.MaxIdentifierLength-len(suffix)]
	}
	return name + suffix
}

// indexName derives a length-safe index name for table.
func indexName(table, suffix string) string {
	limit := routing.MaxIdentifierLength - len(suffix) - 1
	if len(table) > limit {
		table = table[:limit]
	}
	return table + "_" + suffix
}
