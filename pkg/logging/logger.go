package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	requestIDKey contextKey = "requestID"
	sessionIDKey contextKey = "sessionID"
)

// LevelTrace is below debug: per-rule and per-document chatter.
const LevelTrace = slog.LevelDebug - 4

var (
	mu     sync.RWMutex
	logger *slog.Logger
	output io.Writer = os.Stderr
)

func init() {
	// Logs go to stderr so CLI commands can print manifests on stdout.
	setLogger(slog.New(NewCompactHandler(output, &slog.HandlerOptions{Level: slog.LevelInfo})))
}

func setLogger(l *slog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Logger returns the underlying slog logger.
func Logger() *slog.Logger {
	return current()
}

// SetOutput redirects log output. It applies to the next SetLevel or
// SetJSONOutput call.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

func writer() io.Writer {
	mu.RLock()
	defer mu.RUnlock()
	return output
}

// SetLevel changes the logging level
func SetLevel(level slog.Level) {
	setLogger(slog.New(NewCompactHandler(writer(), &slog.HandlerOptions{Level: level})))
}

// SetJSONOutput switches to JSON format output
func SetJSONOutput(level slog.Level) {
	setLogger(slog.New(slog.NewJSONHandler(writer(), &slog.HandlerOptions{Level: level})))
}

// ParseLevel resolves the effective level from a --verbosity name and a
// count of -v flags. A non-empty name wins; otherwise each -v lowers the
// level one step below info.
func ParseLevel(verbosity string, verbose int) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(verbosity)) {
	case "":
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown verbosity %q (want trace, debug, info, warn or error)", verbosity)
	}

	switch {
	case verbose <= 0:
		return slog.LevelInfo, nil
	case verbose == 1:
		return slog.LevelDebug, nil
	default:
		return LevelTrace, nil
	}
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithSessionID tags the context with a playground session id.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// GetSessionID retrieves the session ID from context
func GetSessionID(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDKey).(string); ok {
		return id
	}
	return ""
}

// withRequestID prepends the request and session ids found in ctx.
func withRequestID(ctx context.Context, args []any) []any {
	if id := GetSessionID(ctx); id != "" {
		args = append([]any{"session", id}, args...)
	}
	if id := GetRequestID(ctx); id != "" {
		args = append([]any{"requestID", id}, args...)
	}
	return args
}

// Trace logs at TRACE level (very verbose, debug-time only)
func Trace(msg string, args ...any) {
	current().Log(context.Background(), LevelTrace, msg, args...)
}

// TraceContext logs at TRACE level with context
func TraceContext(ctx context.Context, msg string, args ...any) {
	current().Log(ctx, LevelTrace, msg, withRequestID(ctx, args)...)
}

// Debug logs at DEBUG level (internal component behavior)
func Debug(msg string, args ...any) {
	current().Debug(msg, args...)
}

// DebugContext logs at DEBUG level with context
func DebugContext(ctx context.Context, msg string, args ...any) {
	current().DebugContext(ctx, msg, withRequestID(ctx, args)...)
}

// Info logs at INFO level (user-facing operations)
func Info(msg string, args ...any) {
	current().Info(msg, args...)
}

// InfoContext logs at INFO level with context
func InfoContext(ctx context.Context, msg string, args ...any) {
	current().InfoContext(ctx, msg, withRequestID(ctx, args)...)
}

// Warn logs at WARN level (should be monitored)
func Warn(msg string, args ...any) {
	current().Warn(msg, args...)
}

// WarnContext logs at WARN level with context
func WarnContext(ctx context.Context, msg string, args ...any) {
	current().WarnContext(ctx, msg, withRequestID(ctx, args)...)
}

// Error logs at ERROR level (logical bugs that shouldn't happen)
func Error(msg string, args ...any) {
	current().Error(msg, args...)
}

// ErrorContext logs at ERROR level with context
func ErrorContext(ctx context.Context, msg string, args ...any) {
	current().ErrorContext(ctx, msg, withRequestID(ctx, args)...)
}

// Fatal logs at ERROR level and exits (unrecoverable bugs)
func Fatal(msg string, args ...any) {
	current().Error(msg, args...)
	os.Exit(1)
}
