// Package logging provides structured logging configuration using log/slog.
//
// Loggers obtained through FromContext carry the chi request ID of the HTTP
// request that started the work and, once the pipeline has assigned one,
// the batch ID of the ingestion attempt. Every log line for one file can be
// correlated by either.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type ctxKey int

const (
	batchKey ctxKey = iota
	fileKey
)

// Setup configures the global slog logger based on level and format.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
func Setup(level, format string) {
	SetupWriter(os.Stdout, level, format)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// ParseLevel converts a string log level to slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithBatch returns a context whose loggers include batch_id.
func WithBatch(ctx context.Context, batchID uuid.UUID) context.Context {
	return context.WithValue(ctx, batchKey, batchID)
}

// WithFile returns a context whose loggers include file.
func WithFile(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, fileKey, name)
}

// BatchID returns the batch ID stored by WithBatch.
func BatchID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(batchKey).(uuid.UUID)
	return id, ok
}

// FromContext returns the default logger enriched with the request ID,
// batch ID and file name found in ctx.
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	if id, ok := BatchID(ctx); ok {
		logger = logger.With("batch_id", id.String())
	}
	if name, ok := ctx.Value(fileKey).(string); ok && name != "" {
		logger = logger.With("file", name)
	}

	return logger
}

// WithFields returns a context logger with additional structured fields.
//
//	log := logging.WithFields(ctx, "table", table)
//	log.Info("load started")
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
