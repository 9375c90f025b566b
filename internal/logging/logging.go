// Package logging installs the process-wide slog default logger, matching
// the teacher's cmd/hector/logger.go: a CLI flag selects level and format,
// an optional file redirects output, and every component logs through
// log/slog with structured attributes rather than fmt.Print*.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel converts a CLI-supplied level name to a slog.Level.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("logging: unknown level %q", levelStr)
	}
}

// Init installs the default slog logger for the process. format is either
// "simple" (human-readable text) or "json" (structured, for log
// aggregation); any other value is rejected so misconfiguration is caught
// at startup rather than silently falling back.
func Init(level slog.Level, output *os.File, format string) error {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "simple", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		return fmt.Errorf("logging: unknown format %q (want simple or json)", format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

// OpenLogFile opens (creating if absent) a log file for append, per the
// teacher's --log-file convention.
func OpenLogFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}
