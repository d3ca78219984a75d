// Package logging configures structured logging for the redline commands and
// server. Core packages take a *slog.Logger; this package owns the process
// default.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	rlerrors "github.com/redlinekit/redline/core/errors"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

// RequestIDKey is the context key for request IDs.
const RequestIDKey ContextKey = "request_id"

// Level selects the minimum severity to emit.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// slogLevel maps a Level onto slog's scale. Empty means LevelInfo.
func (l Level) slogLevel() (slog.Level, error) {
	switch l {
	case LevelDebug:
		return slog.LevelDebug, nil
	case LevelInfo, "":
		return slog.LevelInfo, nil
	case LevelWarn:
		return slog.LevelWarn, nil
	case LevelError:
		return slog.LevelError, nil
	}
	return 0, rlerrors.NewValidation("log-level", string(l)+" is not a log level")
}

// Format selects the log output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config describes the logger to install.
type Config struct {
	Level  Level
	Format Format
	Output io.Writer // defaults to os.Stderr
}

// Setup builds a logger from config and installs it as the process default.
func Setup(cfg Config) (*slog.Logger, error) {
	level, err := cfg.Level.slogLevel()
	if err != nil {
		return nil, err
	}

	out := cfg.Output
	if out == nil {
		// Conversion output goes to stdout; logs must not mix with it.
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(out, opts)
	case FormatText, "":
		handler = slog.NewTextHandler(out, opts)
	default:
		return nil, rlerrors.NewValidation("log-format", string(cfg.Format)+" is not a log format")
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// LoggerFromContext returns the default logger with context values attached.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if requestID := GetRequestID(ctx); requestID != "" {
		logger = logger.With("request_id", requestID)
	}
	return logger
}

// Domain helpers. The CLI and the server share one message vocabulary so
// conversion logs stay greppable across entry points.

// ConversionStarted logs the start of a document conversion.
func ConversionStarted(logger *slog.Logger, source string, sizeBytes int64) {
	logger.Info("conversion started", "source", source, "size_bytes", sizeBytes)
}

// ConversionCompleted logs a finished conversion.
func ConversionCompleted(logger *slog.Logger, source string, duration time.Duration, markdownBytes int) {
	logger.Info("conversion completed",
		"source", source,
		"duration_ms", duration.Milliseconds(),
		"markdown_bytes", markdownBytes,
	)
}

// ConversionFailed logs a failed conversion.
func ConversionFailed(logger *slog.Logger, source string, err error) {
	logger.Error("conversion failed", "source", source, "error", err.Error())
}

// MissingComment warns about a comment range whose definition is absent
// from the comments part.
func MissingComment(logger *slog.Logger, source, commentID string) {
	logger.Warn("comment definition missing", "source", source, "comment_id", commentID)
}

// UnresolvedStyle warns about a paragraph style the styles part does not
// define.
func UnresolvedStyle(logger *slog.Logger, source, styleID string) {
	logger.Warn("paragraph style unresolved", "source", source, "style_id", styleID)
}

// ServerStarted logs server startup.
func ServerStarted(logger *slog.Logger, addr string) {
	logger.Info("server started", "addr", addr)
}

// ServerStopped logs server shutdown, as an error when one caused it.
func ServerStopped(logger *slog.Logger, err error) {
	if err != nil {
		logger.Error("server stopped", "error", err.Error())
		return
	}
	logger.Info("server stopped")
}
