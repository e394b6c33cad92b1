package logging

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	loggerKey contextKey = "logger"
	runIDKey  contextKey = "run_id"
)

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// WithRunID tags the context with the id of one orchestrator call.
// An empty id generates a new one.
func WithRunID(ctx context.Context, runID string) context.Context {
	if runID == "" {
		runID = uuid.NewString()
	}
	return context.WithValue(ctx, runIDKey, runID)
}

// RunID returns the run id stored in ctx, or ""
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey).(string)
	return id
}

// FromContext returns the context logger (falling back to the global one)
// with the run id attached when present
func FromContext(ctx context.Context) *Logger {
	logger, ok := ctx.Value(loggerKey).(*Logger)
	if !ok || logger == nil {
		logger = global
	}
	if id := RunID(ctx); id != "" {
		return logger.With("run_id", id)
	}
	return logger
}
