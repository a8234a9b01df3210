package logging

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger creates a structured logger on stderr appropriate for the
// environment. Stdout is left free for command output.
func NewLogger(env string) *slog.Logger {
	return NewLoggerTo(os.Stderr, env)
}

// NewLoggerTo creates a structured logger writing to w. Production uses
// JSON at Info, everything else uses human-readable text at Debug.
func NewLoggerTo(w io.Writer, env string) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if env == "production" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
