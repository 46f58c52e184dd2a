package core

// # Error Codes Reference
//
// Errors returned by the pipeline are mapped to short user-facing messages
// with a code that operators can quote when asking for help.
//
// # Ingestion Errors (ROUTE, VAL, SCH, LOAD)
//
// These come from the typed errors in internal/domain and are matched with
// errors.As before any text matching:
//
//	ROUTE001 - Filename does not match the routing convention
//	           Action: Rename the file (e.g. PM162.txt) or upload it with headers
//	VAL001   - File rejected by its validation rule
//	           Action: Review the CRITICAL issues in the validation report
//	SCH001   - File has more fields than its staging table
//	           Action: Check the delimiter or widen the staging table
//	LOAD001  - Bulk load failed and was rolled back
//	           Action: Check the file encoding and try again
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Connection refused
//	DB002 - Connection reset
//	DB003 - Timeout
//	DB004 - Deadlock
//	DB005 - Malformed CSV rejected by COPY
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - Empty file
//	FILE002 - File too large
//	FILE003 - Unsupported file type
//	FILE004 - Invalid archive
//	FILE005 - Workbook could not be read
//
// # Ingestion Limits (RATE001)
//
//	RATE001 - Too many concurrent ingests
//
// # Lookups and Watch Folder (NF001, WATCH001-WATCH099)
//
//	NF001    - Batch, rule or file not found
//	WATCH001 - Retried file already waiting in upload
//	WATCH002 - Watch folder not enabled
//	WATCH003 - Invalid watch folder or file name
//
// # Generic (ERR000)
//
//	ERR000 - Anything not matched above

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/stageload/internal/domain"
)

// UserMessage is a user-facing rendering of an error.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

var (
	routingMessage = UserMessage{
		Message: "Filename does not match the routing convention",
		Action:  "Rename the file to the expected pattern or upload it with a header row",
		Code:    "ROUTE001",
	}
	rejectionMessage = UserMessage{
		Message: "File rejected by its validation rule",
		Action:  "Review the critical issues in the validation report for this batch",
		Code:    "VAL001",
	}
	mismatchMessage = UserMessage{
		Message: "File has more fields than its staging table",
		Action:  "Check the delimiter, or add columns to the staging table",
		Code:    "SCH001",
	}
	loadMessage = UserMessage{
		Message: "Bulk load failed and was rolled back",
		Action:  "Check the file encoding and quoting, then try again",
		Code:    "LOAD001",
	}
)

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns are matched in order against the lowercased error text.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Database
	// =========================================================================
	{
		pattern: "connection refused",
		msg:     UserMessage{Message: "Unable to connect to database", Action: "Please try again in a few moments", Code: "DB001"},
	},
	{
		pattern: "connection reset",
		msg:     UserMessage{Message: "Database connection was interrupted", Action: "Please try again", Code: "DB002"},
	},
	{
		pattern: "timeout",
		msg:     UserMessage{Message: "Operation timed out", Action: "Try a smaller file or try again later", Code: "DB003"},
	},
	{
		pattern: "deadline exceeded",
		msg:     UserMessage{Message: "Operation timed out", Action: "Try a smaller file or try again later", Code: "DB003"},
	},
	{
		pattern: "deadlock",
		msg:     UserMessage{Message: "Database was busy with conflicting operations", Action: "Please try again", Code: "DB004"},
	},
	{
		pattern: "extra data after last expected column",
		msg:     UserMessage{Message: "A row has more fields than the header", Action: "Check for unquoted delimiters in the data", Code: "DB005"},
	},
	{
		pattern: "unterminated csv quoted field",
		msg:     UserMessage{Message: "A quoted field is never closed", Action: "Check for stray quote characters in the data", Code: "DB005"},
	},

	// =========================================================================
	// Files
	// =========================================================================
	{
		pattern: "empty file",
		msg:     UserMessage{Message: "The file is empty", Action: "Check that the export produced data", Code: "FILE001"},
	},
	{
		pattern: "file too large",
		msg:     UserMessage{Message: "The file exceeds the size limit", Action: "Split the file or raise INGEST_MAX_FILE_SIZE", Code: "FILE002"},
	},
	{
		pattern: "unsupported file type",
		msg:     UserMessage{Message: "This file type is not supported", Action: "Use .csv, .tsv, .txt, .xlsx or .zip", Code: "FILE003"},
	},
	{
		pattern: "zip: not a valid zip file",
		msg:     UserMessage{Message: "The archive could not be opened", Action: "Re-create the zip file and upload it again", Code: "FILE004"},
	},
	{
		pattern: "unsafe archive entry",
		msg:     UserMessage{Message: "The archive contains an unsafe path", Action: "Remove entries with absolute or parent paths", Code: "FILE004"},
	},
	{
		pattern: "workbook",
		msg:     UserMessage{Message: "The workbook could not be read", Action: "Save it as .xlsx or export the first sheet to CSV", Code: "FILE005"},
	},

	// =========================================================================
	// Limits
	// =========================================================================
	{
		pattern: "too many concurrent ingests",
		msg:     UserMessage{Message: "The server is busy with other files", Action: "Please try again shortly", Code: "RATE001"},
	},

	// =========================================================================
	// Lookups and watch folder
	// =========================================================================
	{
		pattern: "already exists in upload",
		msg:     UserMessage{Message: "A file with that name is already waiting in the upload folder", Action: "Wait for it to be processed, then retry", Code: "WATCH001"},
	},
	{
		pattern: "watch folder is not enabled",
		msg:     UserMessage{Message: "The watch folder is not enabled", Action: "Set WATCH_ENABLED=true and restart", Code: "WATCH002"},
	},
	{
		pattern: "unknown watch folder",
		msg:     UserMessage{Message: "Unknown watch folder", Action: "Use upload, wip, archive or error", Code: "WATCH003"},
	},
	{
		pattern: "invalid file name",
		msg:     UserMessage{Message: "Invalid file name", Action: "Use the plain file name shown in the folder listing", Code: "WATCH003"},
	},
	{
		pattern: "not found",
		msg:     UserMessage{Message: "The requested item was not found", Action: "Check the batch id, rule pattern or file name", Code: "NF001"},
	},
	{
		pattern: "no such file or directory",
		msg:     UserMessage{Message: "The requested item was not found", Action: "Check the batch id, rule pattern or file name", Code: "NF001"},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support with the batch id",
	Code:    "ERR000",
}

// MapError converts err into a UserMessage. Typed ingestion errors win over
// text patterns. It returns the zero UserMessage for a nil error.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var (
		routing   *domain.RoutingError
		rejection *domain.ValidationRejection
		mismatch  *domain.SchemaMismatch
		load      *domain.LoadFailure
	)
	switch {
	case errors.As(err, &routing):
		return routingMessage
	case errors.As(err, &rejection):
		return rejectionMessage
	case errors.As(err, &mismatch):
		return mismatchMessage
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	if errors.As(err, &load) {
		return loadMessage
	}
	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than
// ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err. It returns nil for a nil error.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{Technical: err, User: MapError(err)}
}
