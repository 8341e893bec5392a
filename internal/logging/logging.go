package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// RequestIDField is the log field carrying the correlation identifier.
	RequestIDField = "request_id"
	// RequestIDHeader carries the correlation identifier over HTTP.
	RequestIDHeader = "X-Request-ID"
)

// Setup configures the global zerolog logger. format is "json" or "console".
func Setup(level, format string) {
	SetupWriter(os.Stdout, level, format)
}

// SetupWriter is Setup with an explicit destination, used by tests.
func SetupWriter(w io.Writer, level, format string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if strings.EqualFold(format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &log.Logger

	if err != nil && level != "" {
		log.Warn().Str("level", level).Msg("Unknown log level, falling back to info")
	}
}

// ForRequest returns a child of the global logger bound to one request.
func ForRequest(service, requestID, method, path string) zerolog.Logger {
	return log.Logger.With().
		Str("service", service).
		Str(RequestIDField, requestID).
		Str("method", method).
		Str("path", path).
		Logger()
}

// FromContext returns the request logger stored in ctx, or the global logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

// Truncate shortens s for log output.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

type requestIDKey struct{}

// WithRequestID stores the correlation identifier in ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the correlation identifier stored in ctx.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
