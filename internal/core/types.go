package core

import (
	"context"
	"time"

	"mofgen/internal/analysis"
)

// Logger is the structured logging surface the service writes to. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MetricsRecorder observes the outcome and duration of service operations
// and tool runs.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

// Tracer starts a span per operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended exactly once with the operation's error, if any.
type TraceSpan interface {
	End(err error)
}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// Tools groups the external analysis tools. A nil tool counts as a tool
// failure on every call.
type Tools struct {
	Symmetry     analysis.SymmetryAnalyzer
	Identifier   analysis.IdentifierTool
	PoreGeometry analysis.PoreGeometryTool
}

// CommandTools builds Tools backed by configured executables.
func CommandTools(symmetry, identifier, poreGeometry analysis.Command) Tools {
	return Tools{
		Symmetry:     analysis.CommandSymmetry{Command: symmetry},
		Identifier:   analysis.CommandIdentifier{Command: identifier},
		PoreGeometry: analysis.CommandPoreGeometry{Command: poreGeometry},
	}
}

// Operation names reported to metrics and tracing besides the tool names.
const (
	OpMaterial = "material"
	OpIngest   = "ingest"
	OpGet      = "get"
	OpList     = "list"
	OpDelete   = "delete"
)
