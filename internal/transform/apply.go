package transform

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/JonMunkholm/stageload/internal/domain"
	"github.com/JonMunkholm/stageload/internal/logging"
	"github.com/google/uuid"
)

// Output is the result of Apply.
type Output struct {
	Data    []byte
	Issues  []domain.Issue
	Changed int
	Dropped int
	Panics  int
}

// Apply streams data through t line by line. Every changed line records a
// DATA_TRANSFORMATION warning; a line whose transformation panics is kept
// unchanged. Line terminators are preserved. When t does not require
// transformation, data is returned as is.
func Apply(ctx context.Context, t Transformer, data []byte, batchID uuid.UUID, fileName string) (*Output, error) {
	if t == nil || !t.RequiresTransformation() {
		return &Output{Data: data}, nil
	}

	logger := logging.FromContext(logging.WithFile(ctx, fileName))
	start := time.Now()

	out := &Output{}
	var buf bytes.Buffer
	buf.Grow(len(data))
	br := bufio.NewReader(bytes.NewReader(data))

	for lineNo := 1; ; lineNo++ {
		raw, readErr := br.ReadString('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return nil, fmt.Errorf("read %s line %d: %w", fileName, lineNo, readErr)
		}
		if raw == "" && readErr != nil {
			break
		}

		line, term := cutTerminator(raw)
		result, keep, err := transformLine(t, line, lineNo)
		if err != nil {
			out.Panics++
			logger.Error("transformer failed, keeping line", "error", err)
		}

		switch {
		case !keep:
			out.Dropped++
		case result != line:
			out.Changed++
			out.Issues = append(out.Issues, domain.Issue{
				BatchID:       batchID,
				FileName:      fileName,
				LineNumber:    lineNo,
				Kind:          domain.IssueDataTransformation,
				Severity:      domain.SeverityWarning,
				AutoFixed:     true,
				OriginalLine:  domain.IssueText(line),
				CorrectedLine: domain.IssueText(result),
				Description:   fmt.Sprintf("Line %d: Data transformation applied", lineNo),
				CreatedAt:     time.Now(),
			})
			fallthrough
		default:
			buf.WriteString(result)
			buf.WriteString(term)
		}

		if readErr != nil {
			break
		}
	}

	out.Data = buf.Bytes()
	logger.Info("transformation completed",
		"changed", out.Changed,
		"dropped", out.Dropped,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func transformLine(t Transformer, line string, lineNo int) (result string, keep bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result, keep = line, true
			err = &domain.TransformFailure{
				Transformer: fmt.Sprintf("%T", t),
				Line:        lineNo,
				Err:         fmt.Errorf("panic: %v", rec),
			}
		}
	}()
	result, keep = t.TransformLine(line, lineNo)
	return result, keep, nil
}

func cutTerminator(raw string) (line, term string) {
	if strings.HasSuffix(raw, "\r\n") {
		return raw[:len(raw)-2], "\r\n"
	}
	if strings.HasSuffix(raw, "\n") {
		return raw[:len(raw)-1], "\n"
	}
	return raw, ""
}
