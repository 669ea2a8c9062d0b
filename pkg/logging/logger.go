package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger with the handful of helpers the platform needs.
type Logger struct {
	*slog.Logger
}

// New builds a logger at the given level. Development environments get the
// human-readable text handler; everything else logs JSON for ingestion.
func New(level, env string) *Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	switch strings.ToLower(env) {
	case "development", "dev", "local":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// Default returns an info-level JSON logger. Constructors fall back to it
// when handed a nil logger.
func Default() *Logger {
	return New("info", "")
}

// WithPractice returns a child logger tagged with the practice id, so every
// line on a request path carries the tenant.
func (l *Logger) WithPractice(practiceID string) *Logger {
	return &Logger{Logger: l.Logger.With("practice_id", practiceID)}
}
