// Package logging wraps log/slog the way the teacher's
// internal/infrastructure/logger package does: New(cfg) picks a JSON or
// text handler off a level string, With/WithTask/WithNode attach structured
// fields, and a package-level default logger is available for code that
// has no logger threaded through it.
package logging

import (
	"context"
	"log/slog"
	"os"

	"github.com/hybscloud/spiral/pkg/config"
)

// Logger wraps slog.Logger with the field set SPIRAL's evaluator,
// scheduler, and orchestrator attach to every event: task id, node id.
type Logger struct {
	logger *slog.Logger
}

// New creates a Logger from cfg.
func New(cfg config.LoggingConfig) *Logger {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.Level == "debug",
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{logger: slog.New(handler)}
}

// With returns a Logger that attaches args to every subsequent record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...)}
}

// WithTask returns a Logger tagged with an evaluation task id, the way
// every task/node event the evaluator, scheduler, and orchestrator log
// needs to be attributable to a run.
func (l *Logger) WithTask(taskID string) *Logger {
	return l.With("task_id", taskID)
}

// WithNode returns a Logger tagged with a document node id.
func (l *Logger) WithNode(nodeID string) *Logger {
	return l.With("node_id", nodeID)
}

func (l *Logger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.logger.DebugContext(ctx, msg, args...)
}
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.logger.InfoContext(ctx, msg, args...)
}
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.logger.WarnContext(ctx, msg, args...)
}
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.logger.ErrorContext(ctx, msg, args...)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var defaultLogger = New(config.LoggingConfig{Level: "info", Format: "json"})

// Default returns the package-level logger used by code with no logger
// threaded through it (e.g. pkg/registry effect handlers invoked
// outside an Evaluator).
func Default() *Logger { return defaultLogger }

// SetDefault replaces the package-level logger, normally called once at
// process startup after config.Load succeeds.
func SetDefault(l *Logger) { defaultLogger = l }
