// Package logging builds the process-wide structured logger from
// environment configuration.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// New returns a logger configured by FIELDLOG_LOG_LEVEL
// (debug|info|warn|error, default info) and FIELDLOG_LOG_FORMAT
// (text|json, default text).
func New() *slog.Logger {
	level := parseLevel(os.Getenv("FIELDLOG_LOG_LEVEL"))
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(os.Getenv("FIELDLOG_LOG_FORMAT")), "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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
