package logger

import (
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw  string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"garbage", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := parseLevel(tt.raw); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNewReturnsLogger(t *testing.T) {
	log := New("test-service")
	if log == nil {
		t.Fatal("New returned nil")
	}
	// Must not panic when used.
	log.Debug("debug line", "k", "v")
}
