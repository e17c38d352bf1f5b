// Package logging wraps log/slog with facevault-specific context.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with consistent field names for index operations.
type Logger struct {
	*slog.Logger
}

// New creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func New(handler slog.Handler) *Logger {
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
func NewJSONLogger(w io.Writer, level slog.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{
		Logger: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(w io.Writer, level slog.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})),
	}
}

// Noop creates a Logger that discards all log output.
func Noop() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
			Level: slog.Level(1000),
		})),
	}
}

// OrNoop returns l, or a no-op logger when l is nil.
func OrNoop(l *Logger) *Logger {
	if l == nil {
		return Noop()
	}
	return l
}

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level.
// Unknown values fall back to info.
func ParseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// WithComponent tags the logger with a component name.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", name),
	}
}

// WithJob adds a batch job id field.
func (l *Logger) WithJob(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("job", id),
	}
}

// WithDimension adds a dimension field to the logger.
func (l *Logger) WithDimension(dim int) *Logger {
	return &Logger{
		Logger: l.Logger.With("dimension", dim),
	}
}

// LogIngest logs the outcome of a single artifact ingestion.
func (l *Logger) LogIngest(ctx context.Context, name string, slot uint32, accepted bool, reason string) {
	if accepted {
		l.DebugContext(ctx, "artifact accepted",
			"artifact", name,
			"slot", slot,
		)
	} else {
		l.InfoContext(ctx, "artifact rejected",
			"artifact", name,
			"reason", reason,
		)
	}
}

// LogBatch logs a completed batch run.
func (l *Logger) LogBatch(ctx context.Context, submitted, accepted, rejected int, elapsed time.Duration, err error) {
	switch {
	case err != nil:
		l.ErrorContext(ctx, "batch aborted",
			"submitted", submitted,
			"accepted", accepted,
			"rejected", rejected,
			"elapsed", elapsed,
			"error", err,
		)
	case rejected > 0:
		l.WarnContext(ctx, "batch completed with rejections",
			"submitted", submitted,
			"accepted", accepted,
			"rejected", rejected,
			"elapsed", elapsed,
		)
	default:
		l.InfoContext(ctx, "batch completed",
			"submitted", submitted,
			"accepted", accepted,
			"elapsed", elapsed,
		)
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, k, resultsFound int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"k", k,
			"results", resultsFound,
		)
	}
}

// LogSnapshot logs a snapshot save or load.
func (l *Logger) LogSnapshot(ctx context.Context, op, dir string, size int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot "+op+" failed",
			"dir", dir,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot "+op,
			"dir", dir,
			"size", size,
		)
	}
}

// LogRebuild logs a completed rebuild.
func (l *Logger) LogRebuild(ctx context.Context, succeeded, failed, skipped int, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "rebuild failed",
			"succeeded", succeeded,
			"failed", failed,
			"skipped", skipped,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "rebuild completed",
			"succeeded", succeeded,
			"failed", failed,
			"skipped", skipped,
			"elapsed", elapsed,
		)
	}
}
