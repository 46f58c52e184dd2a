package core

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFileType is returned for extensions the pipeline cannot read.
var ErrUnsupportedFileType = errors.New("unsupported file type")

// IsWorkbook reports whether name has an .xlsx extension.
func IsWorkbook(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".xlsx")
}

// WorkbookCSVName is the name a converted workbook is ingested under.
func WorkbookCSVName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ".csv"
}

// ConvertWorkbook renders the first sheet of an .xlsx file as CSV. The first
// non-empty row is the header; every row is padded or cut to its width and
// blank rows are dropped.
func ConvertWorkbook(data []byte) ([]byte, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read workbook sheet %s: %w", sheets[0], err)
	}
	defer func() { _ = rows.Close() }()

	var (
		buf   bytes.Buffer
		w     = csv.NewWriter(&buf)
		width int
	)
	for rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("read workbook row: %w", err)
		}
		record := cleanRecord(cols)
		if len(record) == 0 {
			continue
		}
		if width == 0 {
			width = len(record)
		}
		if err := w.Write(fitWidth(record, width)); err != nil {
			return nil, fmt.Errorf("write converted row: %w", err)
		}
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("iterate workbook rows: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush converted workbook: %w", err)
	}
	if width == 0 {
		return nil, fmt.Errorf("workbook sheet %s: %w", sheets[0], ErrEmptyFile)
	}
	return buf.Bytes(), nil
}

// cleanRecord cleans every cell and drops trailing empty cells. A blank row
// yields nil.
func cleanRecord(cols []string) []string {
	out := make([]string, len(cols))
	last := -1
	for i, c := range cols {
		out[i] = CleanCell(c)
		if out[i] != "" {
			last = i
		}
	}
	return out[:last+1]
}

func fitWidth(record []string, width int) []string {
	if len(record) >= width {
		return record[:width]
	}
	padded := make([]string, width)
	copy(padded, record)
	return padded
}

// CleanCell trims a spreadsheet cell and unwraps the ="value" form used to
// keep leading zeros.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) && len(s) >= 3 {
		return s[2 : len(s)-1]
	}
	return s
}
