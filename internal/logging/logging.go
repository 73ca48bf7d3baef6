// Package logging builds the process logger.
package logging

import (
	"io"
	"log/slog"
	"strings"

	"github.com/m-mizutani/clog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/masq"
)

// Output formats
const (
	FormatText    = "text"
	FormatJSON    = "json"
	FormatConsole = "console"
)

// ParseLevel converts debug, info, warn or error (any case) to a slog level
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, goerr.New("invalid log level", goerr.V("level", s))
	}
}

// New creates a structured logger writing to w. Struct fields tagged
// `masq:"secret"` are redacted in every format.
func New(w io.Writer, level slog.Level, format string) (*slog.Logger, error) {
	redact := masq.New(masq.WithTag("secret"))

	var handler slog.Handler
	switch strings.ToLower(format) {
	case FormatText, "":
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level, ReplaceAttr: redact})
	case FormatJSON:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level, ReplaceAttr: redact})
	case FormatConsole:
		handler = clog.New(
			clog.WithWriter(w),
			clog.WithLevel(level),
			clog.WithReplaceAttr(redact),
		)
	default:
		return nil, goerr.New("invalid log format", goerr.V("format", format))
	}

	return slog.New(handler), nil
}
