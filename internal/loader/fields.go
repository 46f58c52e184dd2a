package loader

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/stageload/internal/domain"
)

const utf8BOM = "\ufeff"

// ErrEmptyInput is returned when there is no first line to inspect.
var ErrEmptyInput = errors.New("input is empty")

// FirstRecord returns the fields of the first line of data as the COPY
// command for format will split them. CSV honors quoting; TSV does not.
func FirstRecord(data []byte, format domain.Format) ([]string, error) {
	line, err := firstLine(data)
	if err != nil {
		return nil, err
	}

	if format == domain.FormatTSV {
		return strings.Split(line, "\t"), nil
	}

	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rec, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("parse first line: %w", err)
	}
	return rec, nil
}

// FieldCount returns the number of fields on the first line of data.
func FieldCount(data []byte, format domain.Format) (int, error) {
	rec, err := FirstRecord(data, format)
	if err != nil {
		return 0, err
	}
	return len(rec), nil
}

// CountLines counts data lines, skipping a header when hasHeaders is set. A
// final line without a terminator counts.
func CountLines(data []byte, hasHeaders bool) int64 {
	n := int64(bytes.Count(data, []byte{'\n'}))
	if len(data) > 0 && data[len(data)-1] != '\n' {
		n++
	}
	if hasHeaders && n > 0 {
		n--
	}
	return n
}

func firstLine(data []byte) (string, error) {
	br := bufio.NewReader(bytes.NewReader(data))
	line, err := br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimPrefix(line, utf8BOM)
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", ErrEmptyInput
	}
	return line, nil
}
