package observability

import (
	"log/slog"
	"os"

	"github.com/couchcryptid/crash-injury-etl/internal/config"
)

// NewLogger builds the process logger from LOG_LEVEL/LOG_FORMAT. The format
// defaults to JSON so the scheduler's log collector can parse output.
func NewLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
