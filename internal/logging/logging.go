// Package logging installs the process-wide slog logger.
//
// Environment variables:
//
//	LOG_LEVEL:    debug, info, warn, error (default: info)
//	LOG_NO_COLOR: disable ANSI colors, e.g. when logs are shipped as files
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Setup installs a tint handler on stderr tagged with the service name and
// returns the new default logger.
func Setup(service string) *slog.Logger {
	return SetupWithWriter(os.Stderr, service, ParseLevel(os.Getenv("LOG_LEVEL")))
}

// SetupWithWriter is Setup with an explicit destination and level.
func SetupWithWriter(w io.Writer, service string, level slog.Level) *slog.Logger {
	_, noColor := os.LookupEnv("LOG_NO_COLOR")
	logger := slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
		NoColor:    noColor,
	}))
	if service != "" {
		logger = logger.With("service", service)
	}
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
