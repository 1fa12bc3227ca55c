// Package telemetry configures the process-wide zerolog logger and a
// minimal request trace-id helper. Modeled directly on the logging
// setup block in the teacher's internal/cmd/run.go.
package telemetry

import (
	"context"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Configure sets the global zerolog level and writer according to the
// given level/format strings, exactly like runMarmot's setup block.
func Configure(level, format string) error {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(parsed)

	if format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	return nil
}

type traceIDKey struct{}

// WithTraceID attaches a fresh trace id to ctx, or reuses one already
// present.
func WithTraceID(ctx context.Context) (context.Context, string) {
	if id, ok := ctx.Value(traceIDKey{}).(string); ok {
		return ctx, id
	}
	id := uuid.NewString()
	return context.WithValue(ctx, traceIDKey{}, id), id
}

// TraceID extracts the trace id from ctx, if any.
func TraceID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(traceIDKey{}).(string)
	return id, ok
}

// LoggerFromContext returns the global logger enriched with the trace id
// found in ctx, if any.
func LoggerFromContext(ctx context.Context) zerolog.Logger {
	if id, ok := TraceID(ctx); ok {
		return log.Logger.With().Str("trace_id", id).Logger()
	}
	return log.Logger
}
