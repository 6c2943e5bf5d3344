package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// requestIDContextKey is the context key for the request ID of an API call.
type requestIDContextKey struct{}

// ContextWithRequestID returns a copy of ctx carrying id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

// RequestIDFromContext returns the request ID stored in ctx, if any.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDContextKey{}).(string)
	return id, ok && id != ""
}

// traceContextHandler enriches log records with the request ID of the API call
// and OpenTelemetry trace correlation attributes (trace_id and span_id), so a
// request, its token refresh and its replay can be followed in the logs.
type traceContextHandler struct {
	handler slog.Handler
}

// newTraceContextHandler creates a handler that adds correlation attributes to log records.
func newTraceContextHandler(handler slog.Handler) *traceContextHandler {
	return &traceContextHandler{handler: handler}
}

// Enabled reports whether the handler handles records at the given level.
func (h *traceContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle adds request_id, trace_id and span_id when ctx carries them.
func (h *traceContextHandler) Handle(ctx context.Context, record slog.Record) error {
	if id, ok := RequestIDFromContext(ctx); ok {
		record.AddAttrs(slog.String("request_id", id))
	}

	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		record.AddAttrs(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		)
	}

	return h.handler.Handle(ctx, record)
}

// WithAttrs returns a new handler with additional attributes.
func (h *traceContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceContextHandler{handler: h.handler.WithAttrs(attrs)}
}

// WithGroup returns a new handler with the given group name.
func (h *traceContextHandler) WithGroup(name string) slog.Handler {
	return &traceContextHandler{handler: h.handler.WithGroup(name)}
}
