// Package observability wires logging, tracing, and metrics for the agent
// services.
//
// Key concepts:
//   - slog is the only logging API used across the repository. ConfigureLogging
//     installs the process-wide default logger once, in main.
//   - When tracing is enabled, log records emitted inside an active span carry
//     trace_id and span_id attributes so runs can be correlated across the
//     Relay activity log, local logs, and exported spans.
//   - Metrics follow the pipeline's unit of work (a run) rather than HTTP
//     requests; see PipelineMetrics.
package observability

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// TraceContextHandler is a slog.Handler that stamps records with the active
// span's trace context.
type TraceContextHandler struct {
	handler slog.Handler
}

// NewTraceContextHandler wraps handler with trace context stamping.
func NewTraceContextHandler(handler slog.Handler) *TraceContextHandler {
	return &TraceContextHandler{handler: handler}
}

// Enabled reports whether the handler handles records at the given level.
func (h *TraceContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle adds trace_id/span_id when a valid span is in ctx.
func (h *TraceContextHandler) Handle(ctx context.Context, record slog.Record) error {
	spanContext := trace.SpanFromContext(ctx).SpanContext()
	if spanContext.IsValid() {
		record.AddAttrs(
			slog.String("trace_id", spanContext.TraceID().String()),
			slog.String("span_id", spanContext.SpanID().String()),
		)
	}
	return h.handler.Handle(ctx, record)
}

// WithAttrs returns a new handler with additional attributes.
func (h *TraceContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceContextHandler{handler: h.handler.WithAttrs(attrs)}
}

// WithGroup returns a new handler with the given group.
func (h *TraceContextHandler) WithGroup(name string) slog.Handler {
	return &TraceContextHandler{handler: h.handler.WithGroup(name)}
}

// ParseLevel maps a configuration string to a slog.Level. Unrecognized values
// fall back to Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// ConfigureLogging installs the process-wide default logger.
//
// Parameters:
//   - level: minimum level to emit
//   - structured: JSON output when true, text otherwise
//   - includeTraceContext: stamp records with the active span's IDs
func ConfigureLogging(level slog.Level, structured bool, includeTraceContext bool) {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if structured {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	if includeTraceContext {
		handler = NewTraceContextHandler(handler)
	}

	slog.SetDefault(slog.New(handler))
}

// Logger returns a child of the default logger tagged with a component name.
func Logger(component string) *slog.Logger {
	return slog.Default().With(slog.String("component", component))
}
