package core

import "context"

type contextKey string

const (
	ctxKeySubmitter contextKey = "submitter"
	ctxKeyClientIP  contextKey = "client_ip"
)

// WithSubmitter records who submitted the file; it becomes the manifest's
// created_by.
func WithSubmitter(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ctxKeySubmitter, name)
}

// Submitter returns the name set by WithSubmitter, or "".
func Submitter(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeySubmitter).(string); ok {
		return v
	}
	return ""
}

// WithClientIP records the remote address of an HTTP submission.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyClientIP, ip)
}

// ClientIP returns the address set by WithClientIP, or "".
func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyClientIP).(string); ok {
		return v
	}
	return ""
}
