package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	ServiceKey   contextKey = "service"
	ClientIDKey  contextKey = "client_id"
)

var defaultLogger atomic.Pointer[slog.Logger]

func init() {
	Configure(os.Getenv("LOG_LEVEL"), os.Stdout)
}

// Configure replaces the process logger. Level is one of debug, info, warn, error.
func Configure(level string, w io.Writer) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	defaultLogger.Store(slog.New(slog.NewJSONHandler(w, opts)))
}

func parseLevel(level string) slog.Level {
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

func Default() *slog.Logger {
	return defaultLogger.Load()
}

func WithContext(ctx context.Context) *slog.Logger {
	logger := Default()

	if requestID := ctx.Value(RequestIDKey); requestID != nil {
		logger = logger.With("request_id", requestID)
	}

	if service := ctx.Value(ServiceKey); service != nil {
		logger = logger.With("service", service)
	}

	if clientID := ctx.Value(ClientIDKey); clientID != nil {
		logger = logger.With("client_id", clientID)
	}

	return logger
}

func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}

func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

func InfoContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Info(msg, args...)
}

func ErrorContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Error(msg, args...)
}

func DebugContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Debug(msg, args...)
}

func WarnContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Warn(msg, args...)
}
