// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// EnvVar selects the log level when no flag overrides it.
const EnvVar = "PAIRAGENT_LOG"

// DefaultLevel is used when neither the flag nor EnvVar is set.
const DefaultLevel = slog.LevelDebug

// ParseLevel normalizes a textual log level to slog.Level.
func ParseLevel(input string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "debug", "trace":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error", "err":
		return slog.LevelError, nil
	default:
		return DefaultLevel, fmt.Errorf("unsupported log level %q", input)
	}
}

// ResolveLevel picks the level from flagValue, then the environment, then
// DefaultLevel. An unparsable environment value falls back to the default;
// an unparsable flag is an error.
func ResolveLevel(flagValue string, getenv func(string) string) (slog.Level, error) {
	if strings.TrimSpace(flagValue) != "" {
		return ParseLevel(flagValue)
	}
	if env := getenv(EnvVar); env != "" {
		if level, err := ParseLevel(env); err == nil {
			return level, nil
		}
	}
	return DefaultLevel, nil
}

// New returns a logger writing to w. Terminals get the text handler, anything
// else (journald, pipes) gets JSON.
func New(w io.Writer, level slog.Level) *slog.Logger {
	options := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		handler = slog.NewTextHandler(w, options)
	} else {
		handler = slog.NewJSONHandler(w, options)
	}
	return slog.New(handler)
}
