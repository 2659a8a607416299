// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package logger constructs the process-wide structured logger. Components
// receive a *slog.Logger; nothing in the engine logs through a global.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// New builds a JSON logger writing to stderr, leveled by the LOG_LEVEL
// environment variable (default info). Stderr keeps log lines out of the
// CLI's table and JSON output on stdout.
func New(service string) *slog.Logger {
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(os.Getenv("LOG_LEVEL")),
	})
	return slog.New(h).With("service", service)
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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
