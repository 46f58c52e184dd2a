package validation

import (
	"strings"

	"github.com/JonMunkholm/stageload/internal/domain"
)

// marker replaces every character removed by cleaning.
const marker = '*'

// cleaning is the outcome of cleanLine.
type cleaning struct {
	line      string
	control   int
	nonASCII  int
	collapsed int
}

// isControl reports bytes treated as control characters: C0 controls other
// than tab, LF and CR, plus DEL.
func isControl(r rune) bool {
	switch {
	case r == '\t' || r == '\n' || r == '\r':
		return false
	case r < 0x20:
		return true
	case r == 0x7F:
		return true
	}
	return false
}

// cleanLine applies the enabled cleaning steps of rule in order: control
// characters, non-ASCII characters, then collapsing runs of markers.
func cleanLine(line string, rule *domain.Rule) cleaning {
	out := cleaning{line: line}
	if line == "" {
		return out
	}

	if rule.ReplaceControlChars {
		out.line, out.control = replaceRunes(out.line, isControl)
	}

	if rule.ReplaceNonASCII {
		out.line, out.nonASCII = replaceRunes(out.line, func(r rune) bool {
			return r > 0x7F
		})
	}

	if rule.CollapseConsecutiveReplaced {
		out.line, out.collapsed = collapseMarkers(out.line)
	}

	return out
}

// replaceRunes swaps every rune matching match for the marker and returns
// the number of replacements.
func replaceRunes(s string, match func(rune) bool) (string, int) {
	var (
		b     strings.Builder
		count int
	)
	for i, r := range s {
		if !match(r) {
			if count > 0 {
				b.WriteRune(r)
			}
			continue
		}
		if count == 0 {
			b.Grow(len(s))
			b.WriteString(s[:i])
		}
		count++
		b.WriteRune(marker)
	}
	if count == 0 {
		return s, 0
	}
	return b.String(), count
}

// collapseMarkers reduces each run of two or more markers to one and returns
// the number of markers removed.
func collapseMarkers(s string) (string, int) {
	if !strings.Contains(s, "**") {
		return s, 0
	}

	var b strings.Builder
	b.Grow(len(s))
	removed := 0
	prevMarker := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == marker {
			if prevMarker {
				removed++
				continue
			}
			prevMarker = true
		} else {
			prevMarker = false
		}
		b.WriteByte(c)
	}
	return b.String(), removed
}

// countDelimiters counts occurrences of delim in line.
func countDelimiters(line string, delim byte) int {
	return strings.Count(line, string(delim))
}

// fixExcessDelimiters keeps the first expected delimiters and turns the
// rest into spaces.
func fixExcessDelimiters(line string, delim byte, expected int) string {
	b := []byte(line)
	seen := 0
	for i, c := range b {
		if c != delim {
			continue
		}
		seen++
		if seen > expected {
			b[i] = ' '
		}
	}
	return string(b)
}
