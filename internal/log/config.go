package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Level represents the severity of a log message
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the level
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// ToSlogLevel converts our Level to slog.Level
func (l Level) ToSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel parses a string into a Level; unknown values fall back to info
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Format represents the output format for logs
type Format int

const (
	// FormatText outputs logs in human-readable key=value form
	FormatText Format = iota
	// FormatJSON outputs one JSON object per line
	FormatJSON
)

// String returns the string representation of the format
func (f Format) String() string {
	if f == FormatJSON {
		return "json"
	}
	return "text"
}

// ParseFormat parses a string into a Format
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON
	default:
		return FormatText
	}
}

// Config holds configuration for the logger
type Config struct {
	// Level is the minimum log level to output
	Level Level

	// Format is the output format (JSON or Text)
	Format Format

	// Output is where logs are written. Reports go to stdout, so this defaults to stderr.
	Output io.Writer

	// AddSource includes source file and line number in logs
	AddSource bool
}

// DefaultConfig logs warnings and above as text to stderr
func DefaultConfig() Config {
	return Config{
		Level:  LevelWarn,
		Format: FormatText,
		Output: os.Stderr,
	}
}

// DevelopmentConfig logs everything with source locations
func DevelopmentConfig() Config {
	return Config{
		Level:     LevelDebug,
		Format:    FormatText,
		Output:    os.Stderr,
		AddSource: true,
	}
}

// ConfigFrom builds a Config from the string values used by flags and the config file
func ConfigFrom(level, format string, w io.Writer) Config {
	cfg := DefaultConfig()
	if level != "" {
		cfg.Level = ParseLevel(level)
	}
	if format != "" {
		cfg.Format = ParseFormat(format)
	}
	if w != nil {
		cfg.Output = w
	}
	return cfg
}
