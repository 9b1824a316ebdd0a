package logging

import (
	"context"
)

type contextKey string

const (
	loggerKey contextKey = "logger"
)

// WithLogger stores a request-scoped logger on the context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger stored by WithLogger, or fallback when
// the context carries none.
func FromContext(ctx context.Context, fallback *Logger) *Logger {
	if logger, ok := ctx.Value(loggerKey).(*Logger); ok {
		return logger
	}

	return fallback
}
