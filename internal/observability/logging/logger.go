// Package logging provides structured logging helpers built on log/slog.
// Loggers are JSON by default, level-controlled via LOG_LEVEL, and can travel
// through a context so the resilience layer and its collaborators share one
// configured instance.
package logging

import (
	"context"
	"log/slog"
	"os"
)

type contextKey struct{}

var loggerContextKey = contextKey{}

// NewLogger creates a JSON logger. LOG_LEVEL=debug lowers the level; warn and
// error records carry source locations.
func NewLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelWarn,
	})
	return slog.New(handler)
}

// NewTextLogger creates a human-readable logger for local development.
func NewTextLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelWarn,
	})
	return slog.New(handler)
}

// WithFields returns a logger with additional structured fields.
func WithFields(logger *slog.Logger, fields map[string]any) *slog.Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return logger.With(args...)
}

// FromContext retrieves the logger carried by ctx, falling back to the
// process default.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerContextKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithLogger attaches a logger to the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}
