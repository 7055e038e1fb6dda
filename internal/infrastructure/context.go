package infrastructure

import (
	"context"

	"github.com/google/uuid"
)

// contextKey is a private type for context keys defined in this package
type contextKey string

const traceIDContextKey contextKey = "trace_id"

// WithTraceID returns a context carrying the given trace id
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDContextKey, traceID)
}

// NewTraceID generates a fresh trace id
func NewTraceID() string {
	return uuid.NewString()
}

// TraceIDFromContext retrieves the trace id from context, or ""
func TraceIDFromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(traceIDContextKey).(string); ok {
		return traceID
	}
	return ""
}
