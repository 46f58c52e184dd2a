package domain

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format is the framing of a delimited file.
type Format string

const (
	FormatCSV Format = "csv"
	FormatTSV Format = "tsv"
)

// ParseFormat accepts "csv", "tsv" or "tab" in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv", "":
		return FormatCSV, nil
	case "tsv", "tab":
		return FormatTSV, nil
	default:
		return "", fmt.Errorf("unsupported format %q (want csv or tsv)", s)
	}
}

// Delimiter returns the field separator for the format.
func (f Format) Delimiter() byte {
	if f == FormatTSV {
		return '\t'
	}
	return ','
}

// FormatForFile guesses a format from a file extension. Extensionless names
// and .tsv/.txt files are treated as tab separated.
func FormatForFile(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV
	default:
		return FormatTSV
	}
}
