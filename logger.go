package meshgo

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with meshgo-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithFragment adds a fragment id field to the logger.
func (l *Logger) WithFragment(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("fragment", id),
	}
}

// WithCount adds a count field to the logger.
func (l *Logger) WithCount(count int) *Logger {
	return &Logger{
		Logger: l.Logger.With("count", count),
	}
}

// LogUpsert logs a fragment upsert and its admission outcome.
func (l *Logger) LogUpsert(ctx context.Context, id string, admission string) {
	l.DebugContext(ctx, "fragment upsert",
		"fragment", id,
		"admission", admission,
	)
}

// LogRemove logs a fragment removal.
func (l *Logger) LogRemove(ctx context.Context, id string) {
	l.DebugContext(ctx, "fragment removed",
		"fragment", id,
	)
}

// LogExport logs an export operation.
func (l *Logger) LogExport(ctx context.Context, path string, vertices, faces int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "export failed",
			"path", path,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "export written",
			"path", path,
			"vertices", vertices,
			"faces", faces,
		)
	}
}

// LogPreview logs an in-memory preview load.
func (l *Logger) LogPreview(ctx context.Context, vertices, faces int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "preview failed",
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "preview loaded",
			"vertices", vertices,
			"faces", faces,
		)
	}
}

// LogFlush logs the stop-capture flush of pending revisions.
func (l *Logger) LogFlush(ctx context.Context, queued int, drained bool) {
	l.InfoContext(ctx, "pending revisions flushed",
		"queued", queued,
		"drained", drained,
	)
}

// LogClear logs a store clear.
func (l *Logger) LogClear(ctx context.Context) {
	l.InfoContext(ctx, "scan cleared")
}
