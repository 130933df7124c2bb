package log

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"os"

	"github.com/felixgeelhaar/pipescope/internal/errors"
)

// Logger provides structured logging with slog
type Logger struct {
	slog   *slog.Logger
	config Config
}

// New creates a new Logger with the given configuration
func New(config Config) *Logger {
	if config.Output == nil {
		config.Output = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     config.Level.ToSlogLevel(),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if config.Format == FormatJSON {
		handler = slog.NewJSONHandler(config.Output, opts)
	} else {
		handler = slog.NewTextHandler(config.Output, opts)
	}

	return &Logger{
		slog:   slog.New(traceHandler{handler}),
		config: config,
	}
}

// Default creates a logger with default configuration
func Default() *Logger {
	return New(DefaultConfig())
}

// Discard returns a logger that drops everything. Used by tests and library callers.
func Discard() *Logger {
	return New(Config{Level: LevelError, Output: io.Discard})
}

// With returns a new Logger with the given attributes added to all log entries
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slog:   l.slog.With(args...),
		config: l.config,
	}
}

// WithComponent tags entries with the emitting component (parser, analysis, cli...)
func (l *Logger) WithComponent(name string) *Logger {
	return l.With("component", name)
}

// WithError adds error details to the logger.
// Coded errors contribute error_code and suggestions.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}

	var pe *errors.PipescopeError
	if stderrors.As(err, &pe) {
		args := []any{
			"error", pe.Message,
			"error_code", string(pe.Code),
		}
		if len(pe.Suggestions) > 0 {
			args = append(args, "suggestions", pe.Suggestions)
		}
		if pe.Cause != nil {
			args = append(args, "cause", pe.Cause.Error())
		}
		return l.With(args...)
	}

	return l.With("error", err.Error())
}

func (l *Logger) Debug(msg string, args ...any) {
	l.slog.Debug(msg, args...)
}

// DebugContext logs at debug level; entries inside a span carry its trace_id
func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.slog.DebugContext(ctx, msg, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.slog.Info(msg, args...)
}

func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.slog.InfoContext(ctx, msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.slog.Warn(msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.slog.Error(msg, args...)
}

// LogError logs err with whatever detail its type carries
func (l *Logger) LogError(err error) {
	if err == nil {
		return
	}
	l.WithError(err).Error("operation failed")
}

// Enabled returns whether the logger is enabled for the given level
func (l *Logger) Enabled(ctx context.Context, level Level) bool {
	return l.slog.Enabled(ctx, level.ToSlogLevel())
}

// Config returns the logger configuration
func (l *Logger) Config() Config {
	return l.config
}
