// Package telemetry integrates the conversation execution engine with
// structured logging, metrics, and tracing. The interfaces are intentionally
// small so tests can provide lightweight stubs; production wiring delegates
// to goa.design/clue and OpenTelemetry (see clue.go).
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger captures structured logging used throughout the engine.
// Implementations typically delegate to Clue but the interface is
// intentionally small so tests can provide lightweight stubs.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter and histogram helpers for runtime instrumentation.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer abstracts span creation so engine code stays agnostic of the
// underlying OpenTelemetry provider.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	Span(ctx context.Context) Span
}

// Span represents an in-flight tracing span.
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}

// ToolTelemetry carries best-effort instrumentation data about a single tool
// invocation. It is attached to ToolEnd stream envelopes when the underlying
// GraphRuntime implementation reports it; absent entirely when unavailable.
type ToolTelemetry struct {
	// DurationMs is the wall-clock duration of the tool call in milliseconds.
	DurationMs int64 `json:"duration_ms"`
	// TokensUsed is the number of tokens consumed producing the tool call
	// arguments, when the invoking model call is attributable to this tool.
	TokensUsed int `json:"tokens_used,omitempty"`
	// Model is the model identifier that produced the tool call, if known.
	Model string `json:"model,omitempty"`
	// Extra carries implementation-specific fields not otherwise modeled.
	Extra map[string]any `json:"extra,omitempty"`
}
