package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"ecosystem/analytics/models"
)

// New builds the process logger. Production gets JSON lines, everything
// else a text handler that is easier to read in a terminal.
func New(service, env, level string) *slog.Logger {
	return newWithWriter(os.Stdout, service, env, level)
}

func newWithWriter(w io.Writer, service, env, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var h slog.Handler
	if env == "production" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With("service", service, "env", env)
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithCorrelation returns a child logger carrying the request's correlation
// identifiers. Empty values are omitted.
func WithCorrelation(logger *slog.Logger, c models.Correlation) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	var args []any
	add := func(k, v string) {
		if v != "" {
			args = append(args, k, v)
		}
	}
	add("journeyId", c.JourneyID)
	add("userEcosystemId", c.UserEcosystemID)
	add("requestId", c.RequestID)
	add("traceId", c.TraceID)
	add("spanId", c.SpanID)
	if len(args) == 0 {
		return logger
	}
	return logger.With(args...)
}
