package routing

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// MaxIdentifierLength is PostgreSQL's identifier limit (NAMEDATALEN - 1).
const MaxIdentifierLength = 63

// batchSuffixLength is how many leading characters of the batch id are used
// to keep generated table names unique.
const batchSuffixLength = 8

var (
	nonIdentChars = regexp.MustCompile(`[^a-z0-9_]`)
	underscoreRun = regexp.MustCompile(`_{2,}`)
	knownExts     = regexp.MustCompile(`(?i)\.(csv|tsv|txt|gz|zip|xlsx)$`)
)

// Namer generates staging table names for files that are not routed by
// pattern: {prefix}_{sanitized name}_{first 8 chars of batch id}.
type Namer struct {
	prefix string
}

// NewNamer returns a Namer using prefix (DefaultPrefix when empty).
func NewNamer(prefix string) *Namer {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Namer{prefix: prefix}
}

// TableName builds a table name for filename that fits in 63 bytes.
func (n *Namer) TableName(filename string, batchID uuid.UUID) string {
	suffix := batchID.String()[:batchSuffixLength]

	base := Sanitize(stripKnownExtensions(filename))
	if base == "" {
		base = "csv_data"
	}

	// prefix + "_" + base + "_" + suffix
	maxBase := MaxIdentifierLength - len(n.prefix) - 2 - batchSuffixLength
	if maxBase < 1 {
		maxBase = 1
	}
	if len(base) > maxBase {
		base = strings.TrimRight(base[:maxBase], "_")
		if base == "" {
			base = "t"
		}
	}

	return n.prefix + "_" + base + "_" + suffix
}

// Sanitize lowercases name and reduces it to [a-z0-9_], collapsing and
// trimming underscores.
func Sanitize(name string) string {
	s := strings.ToLower(name)
	s = nonIdentChars.ReplaceAllString(s, "_")
	s = underscoreRun.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// TruncateIdentifier cuts s to the identifier limit.
func TruncateIdentifier(s string) string {
	if len(s) <= MaxIdentifierLength {
		return s
	}
	return s[:MaxIdentifierLength]
}

func stripKnownExtensions(name string) string {
	for {
		stripped := knownExts.ReplaceAllString(name, "")
		if stripped == name {
			return name
		}
		name = stripped
	}
}
