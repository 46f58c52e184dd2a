// Package routing maps incoming filenames to staging table names.
//
// Two strategies exist. Router applies a configured regex and template to
// files that follow a naming convention (PM162 -> staging_pm1). Namer builds
// a unique, length-capped table name for files that do not.
package routing

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/JonMunkholm/stageload/internal/domain"
)

// Default routing configuration.
const (
	DefaultPattern  = `^([A-Z]{2})(\d)(?:\d+)$`
	DefaultTemplate = "${g1}${g2}"
	DefaultPrefix   = "staging"
)

// Rule is the routing configuration.
type Rule struct {
	Enabled  bool
	Pattern  string
	Template string
	Prefix   string
}

// Router resolves filenames to table names using a single regex and template.
// It is immutable after construction and safe for concurrent use.
type Router struct {
	enabled  bool
	re       *regexp.Regexp
	template string
	prefix   string
}

// NewRouter compiles the routing pattern. The pattern must match the whole
// extension-stripped filename.
func NewRouter(rule Rule) (*Router, error) {
	pattern := rule.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return nil, fmt.Errorf("compile routing pattern %q: %w", pattern, err)
	}

	template := rule.Template
	if template == "" {
		template = DefaultTemplate
	}

	slog.Debug("filename router initialized",
		"pattern", pattern,
		"template", template,
		"prefix", rule.Prefix,
		"enabled", rule.Enabled,
	)

	return &Router{
		enabled:  rule.Enabled,
		re:       re,
		template: template,
		prefix:   rule.Prefix,
	}, nil
}

// Enabled reports whether filename routing is switched on.
func (r *Router) Enabled() bool {
	return r.enabled
}

// ResolveTable maps a filename to its staging table. It returns a
// *domain.RoutingError when routing is disabled or the name does not match.
func (r *Router) ResolveTable(filename string) (string, error) {
	if !r.enabled {
		return "", &domain.RoutingError{FileName: filename, Reason: "filename routing is disabled"}
	}

	base := StripExtension(filepath.Base(filename))
	groups := r.re.FindStringSubmatch(base)
	if groups == nil {
		return "", &domain.RoutingError{
			FileName: filename,
			Reason:   fmt.Sprintf("%q does not match routing pattern %q", base, r.re.String()),
		}
	}

	table := r.template
	// Highest group first so ${g1} never clobbers ${g10}.
	for i := len(groups) - 1; i >= 1; i-- {
		table = strings.ReplaceAll(table, "${g"+strconv.Itoa(i)+"}", groups[i])
	}
	table = strings.ToLower(table)

	if r.prefix != "" {
		table = r.prefix + "_" + table
	}
	return TruncateIdentifier(table), nil
}

// CanRoute reports whether ResolveTable would succeed for filename.
func (r *Router) CanRoute(filename string) bool {
	if !r.enabled {
		return false
	}
	return r.re.MatchString(StripExtension(filepath.Base(filename)))
}

// MatchesPattern reports whether the extension-stripped name matches the
// routing regex, regardless of the enable flag. Archive member selection
// uses it.
func (r *Router) MatchesPattern(filename string) bool {
	return r.re.MatchString(StripExtension(filepath.Base(filename)))
}

// StripExtension removes the text after the last dot. A leading dot (hidden
// file) is not treated as an extension separator.
func StripExtension(name string) string {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		return name[:i]
	}
	return name
}

// FilePattern derives the validation rule key from a filename: the leading
// letters plus the first digit that follows them. PM162.txt yields PM1.
// Names without that shape yield the extension-stripped name uppercased.
func FilePattern(filename string) string {
	base := StripExtension(filepath.Base(filename))
	i := 0
	for i < len(base) && isLetter(base[i]) {
		i++
	}
	if i > 0 && i < len(base) && base[i] >= '0' && base[i] <= '9' {
		return strings.ToUpper(base[:i+1])
	}
	return strings.ToUpper(base)
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
