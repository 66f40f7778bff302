// Package logger provides structured logging for msgbus components.
//
// This package wraps the standard library's slog with a global accessor so
// every package (dispatcher, transport, dlq, ddq) logs through one
// configured sink without threading a logger through every constructor.
//
// Usage:
//
//	logger.Init(logger.Config{Level: "INFO", Format: "JSON"})
//	logger.L().Warn("dlq line skipped", "reason", "malformed json")
package logger

import (
	"log/slog"
	"os"
	"sync"
	"time"
)

var (
	defaultLogger *slog.Logger
	once          sync.Once
)

// Config holds configuration for the logger.
type Config struct {
	// Level sets the minimum log level: DEBUG, INFO, WARN, ERROR.
	Level string `env:"MSGBUS_LOG_LEVEL" env-default:"INFO"`

	// Format sets the output format: JSON or TEXT.
	Format string `env:"MSGBUS_LOG_FORMAT" env-default:"JSON"`
}

// Init initializes the global logger. It may be called more than once;
// the last call wins.
func Init(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Format == "TEXT" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	defaultLogger = slog.New(handler)
	return defaultLogger
}

// L returns the global logger, initializing it with defaults on first use.
func L() *slog.Logger {
	once.Do(func() {
		if defaultLogger == nil {
			Init(Config{Level: "INFO", Format: "JSON"})
		}
	})
	if defaultLogger == nil {
		return slog.Default()
	}
	return defaultLogger
}

func parseLevel(level string) slog.Level {
	switch level {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
