package internal

import (
	"io"
	"log/slog"
	"strings"
)

// redactedKeys never reach log output, whatever logs them.
var redactedKeys = map[string]bool{
	"password":       true,
	"token":          true,
	"signature":      true,
	"secret":         true,
	"key_secret":     true,
	"webhook_secret": true,
	"authorization":  true,
}

// NewLogger builds the process logger. Development gets human-readable text
// output; every other environment gets JSON for log shipping.
func NewLogger(w io.Writer, env string, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(level),
		AddSource:   strings.EqualFold(level, "debug"),
		ReplaceAttr: redact,
	}

	var handler slog.Handler
	if env == "development" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With("app", "ngolink", "env", env)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if redactedKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, "[REDACTED]")
	}
	return a
}
