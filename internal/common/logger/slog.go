// Package logger provides the operational slog logger and the append-only
// audit files (CSV or JSON lines) written for every reactivatetool run.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// SetupLogger returns a text slog.Logger writing to stderr.
// Valid levels are: DEBUG, INFO, WARN, ERROR
// If verboseMode is true, it overrides logLevel to DEBUG.
func SetupLogger(verboseMode bool, logLevel string) *slog.Logger {
	return NewLogger(os.Stderr, verboseMode, logLevel)
}

// NewLogger is SetupLogger with an explicit destination.
func NewLogger(w io.Writer, verboseMode bool, logLevel string) *slog.Logger {
	level := ParseLogLevel(logLevel)
	if verboseMode {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// ParseLogLevel converts a string log level to slog.Level.
// Defaults to INFO if an invalid level is provided.
func ParseLogLevel(levelStr string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsValidLogLevel reports whether levelStr is one of the accepted names.
func IsValidLogLevel(levelStr string) bool {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
		return true
	}
	return false
}

// Discard returns a logger that drops everything. Used by tests and by
// packages that receive a nil logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

// LogVerbose writes a [VERBOSE] line to stderr when verbose is set.
// It bypasses the structured logger for human-oriented diagnostics.
func LogVerbose(verbose bool, format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[VERBOSE] "+format+"\n", args...)
	}
}
