package utils

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the engine's slog.Logger. Unknown levels fall back to
// info; json selects machine-readable output for log shippers.
func NewLogger(level string, json bool) *slog.Logger {
	var handlerLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		handlerLevel = slog.LevelDebug
	case "warn":
		handlerLevel = slog.LevelWarn
	case "error":
		handlerLevel = slog.LevelError
	default:
		handlerLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: handlerLevel}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler).With(slog.String("service", "veritas"))
}
