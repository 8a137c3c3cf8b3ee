// Package logging builds the process logger and logs oops errors with their
// code and context attributes.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/samber/oops"
)

// New creates a slog.Logger. format is "json" or "text", level one of
// debug, info, warn, error. A nil writer means stderr.
func New(format, level string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var h slog.Handler
	if strings.EqualFold(format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h).With("service", "pwanotify")
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Discard is a logger for tests and optional collaborators.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// LogError logs err at error level. For oops errors the code and context
// are logged as separate attributes.
func LogError(logger *slog.Logger, msg string, err error, args ...any) {
	LogAt(logger, slog.LevelError, msg, err, args...)
}

// LogWarn is LogError at warn level, used for best-effort failures.
func LogWarn(logger *slog.Logger, msg string, err error, args ...any) {
	LogAt(logger, slog.LevelWarn, msg, err, args...)
}

func LogAt(logger *slog.Logger, level slog.Level, msg string, err error, args ...any) {
	if logger == nil {
		return
	}
	attrs := append([]any{}, args...)
	if oopsErr, ok := oops.AsOops(err); ok {
		attrs = append(attrs, "error", oopsErr.Error())
		if code := oopsErr.Code(); code != "" {
			attrs = append(attrs, "code", code)
		}
		if ctx := oopsErr.Context(); len(ctx) > 0 {
			attrs = append(attrs, "context", ctx)
		}
	} else {
		attrs = append(attrs, "error", err)
	}
	logger.Log(context.Background(), level, msg, attrs...)
}
