package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process-wide logger. JSON output is meant for the
// deployed service; the text handler keeps local runs readable.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	if cfg != nil && cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
