package web

// errors.go provides unified error response handling for the web layer.
//
// Errors are logged with their full text and the request ID, and returned
// to clients as the short message, action and code from core.MapError.
// The HTTP status follows the error taxonomy in internal/domain.

import (
	"errors"
	"io/fs"
	"net/http"
	"strings"

	"github.com/JonMunkholm/stageload/internal/core"
	"github.com/JonMunkholm/stageload/internal/domain"
	"github.com/JonMunkholm/stageload/internal/logging"
	"github.com/JonMunkholm/stageload/internal/watch"
	"github.com/JonMunkholm/stageload/internal/web/views"
	"github.com/google/uuid"
)

var (
	errWatchDisabled = errors.New("watch folder is not enabled")
	errBadRequest    = errors.New("bad request")
)

// ErrorResponse represents the JSON structure for API error responses.
type ErrorResponse struct {
	Error   string     `json:"error"`
	Message string     `json:"message"`
	Action  string     `json:"action,omitempty"`
	Code    string     `json:"code"`
	BatchID *uuid.UUID `json:"batch_id,omitempty"`
}

// badRequest wraps a client input problem so statusFor maps it to 400.
func badRequest(msg string) error {
	return &requestError{msg: msg}
}

type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }
func (e *requestError) Unwrap() error { return errBadRequest }

// statusFor maps an error to an HTTP status.
func statusFor(err error) int {
	var (
		routing   *domain.RoutingError
		rejection *domain.ValidationRejection
		mismatch  *domain.SchemaMismatch
	)
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.As(err, &routing), errors.As(err, &rejection), errors.As(err, &mismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest),
		errors.Is(err, core.ErrEmptyFile),
		errors.Is(err, core.ErrUnsupportedFileType),
		errors.Is(err, core.ErrUnsafeArchiveEntry),
		errors.Is(err, watch.ErrInvalidFileName),
		errors.Is(err, watch.ErrUnknownFolder):
		return http.StatusBadRequest
	case errors.Is(err, watch.ErrRetryConflict), errors.Is(err, errWatchDisabled):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyIngests):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes a user-facing response with the status
// derived from the error. batchID, when known, is echoed to the client.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, batchID *uuid.UUID) {
	status := statusFor(err)
	userMsg := core.MapError(err)

	var reqErr *requestError
	if errors.As(err, &reqErr) {
		userMsg = core.UserMessage{Message: reqErr.msg, Code: "REQ001"}
	}

	logger := logging.FromContext(r.Context())
	args := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", args...)
	} else {
		logger.Warn("request error", args...)
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}

	if wantsJSON(r) {
		writeJSONStatus(w, status, ErrorResponse{
			Error:   userMsg.Message,
			Message: userMsg.Message,
			Action:  userMsg.Action,
			Code:    userMsg.Code,
			BatchID: batchID,
		})
		return
	}
	s.renderErrorPartial(w, r, userMsg, status)
}

// renderErrorPartial renders the dashboard error fragment.
func (s *Server) renderErrorPartial(w http.ResponseWriter, r *http.Request, msg core.UserMessage, status int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := views.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render error alert", "error", err)
	}
}

// wantsJSON checks if the client prefers a JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	// API routes default to JSON
	return strings.HasPrefix(r.URL.Path, "/api/")
}
