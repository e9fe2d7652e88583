// Package logging builds slog loggers from server configuration.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options controls how the process logger is constructed.
type Options struct {
	// Level is the minimum level to emit: debug, info, warn or error.
	Level string

	// Format selects the handler: "text" or "json". The console alias
	// maps to text.
	Format string

	// Output is the destination writer. Defaults to os.Stderr.
	Output io.Writer

	// AddSource includes the file:line of the log call site.
	AddSource bool
}

// New builds a *slog.Logger from the options. Unknown levels fall back
// to info and unknown formats fall back to text, so a misconfigured
// server still logs rather than panicking during startup.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	level, err := ParseLevel(opts.Level)
	if err != nil {
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: opts.AddSource,
	}

	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "json":
		handler = slog.NewJSONHandler(out, handlerOpts)
	default:
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	return slog.New(handler)
}

// ParseLevel converts a level name into a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

// Default returns a text logger at info level writing to stderr.
func Default() *slog.Logger {
	return New(Options{})
}
