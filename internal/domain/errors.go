package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// RoutingError reports a filename that the router cannot map to a table.
type RoutingError struct {
	FileName string
	Reason   string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("routing failed for %q: %s", e.FileName, e.Reason)
}

// ValidationRejection reports a file refused because it carried a CRITICAL
// issue under a reject-on-violation rule. No rows are loaded.
type ValidationRejection struct {
	FileName      string
	Pattern       string
	CriticalCount int
	IssueCount    int
}

func (e *ValidationRejection) Error() string {
	return fmt.Sprintf("validation rejected %s (pattern %s): %d critical of %d issues",
		e.FileName, e.Pattern, e.CriticalCount, e.IssueCount)
}

// SchemaMismatch reports a headerless file wider than its target table.
type SchemaMismatch struct {
	Table       string
	FieldCount  int
	ColumnCount int
}

func (e *SchemaMismatch) Error() string {
	return fmt.Sprintf("schema mismatch: file has %d fields but table %s only has %d data columns",
		e.FieldCount, e.Table, e.ColumnCount)
}

// LoadFailure wraps any error raised while copying or tagging rows. The
// enclosing transaction has been rolled back when it is returned.
type LoadFailure struct {
	Table string
	Phase string
	Err   error
}

func (e *LoadFailure) Error() string {
	return fmt.Sprintf("load into %s failed during %s: %v", e.Table, e.Phase, e.Err)
}

func (e *LoadFailure) Unwrap() error { return e.Err }

// TransformFailure describes a transformer that could not be resolved or
// that failed on a line. It is logged, never propagated to callers.
type TransformFailure struct {
	Transformer string
	Line        int
	Err         error
}

func (e *TransformFailure) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("transformer %s failed on line %d: %v", e.Transformer, e.Line, e.Err)
	}
	return fmt.Sprintf("transformer %s unavailable: %v", e.Transformer, e.Err)
}

func (e *TransformFailure) Unwrap() error { return e.Err }

// ErrorType names the taxonomy member of err for audit records.
func ErrorType(err error) string {
	var (
		routing   *RoutingError
		rejection *ValidationRejection
		mismatch  *SchemaMismatch
		load      *LoadFailure
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &routing):
		return "ROUTING_ERROR"
	case errors.As(err, &rejection):
		return "VALIDATION_REJECTION"
	case errors.As(err, &mismatch):
		return "SCHEMA_MISMATCH"
	case errors.As(err, &load):
		return "LOAD_FAILURE"
	default:
		return "PROCESSING_ERROR"
	}
}
