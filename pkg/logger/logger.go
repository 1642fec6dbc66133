package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// LogLevel type alias for log level constants
type LogLevel string

// Log levels
const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config contains logger configuration options
type Config struct {
	// Level is the minimum level to log
	Level string
	// JSON enables JSON formatting instead of text
	JSON bool
	// Output is where logs will be written (defaults to os.Stderr)
	Output io.Writer
	// AddSource adds source code information to logs
	AddSource bool
}

// DefaultConfig returns a default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		JSON:      true, // Default to JSON for production
		Output:    os.Stderr,
		AddSource: false,
	}
}

// Logger wraps slog for structured logging
type Logger struct {
	*slog.Logger
	config Config
}

// global is the package-level logger instance
var global *Logger

// New creates a new logger with the given configuration
func New(config Config) *Logger {
	var handler slog.Handler

	// Set log level
	var level slog.Level
	switch LogLevel(config.Level) {
	case LevelDebug:
		level = slog.LevelDebug
	case LevelWarn:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Configure handler based on format
	if config.JSON {
		handler = slog.NewJSONHandler(config.Output, &slog.HandlerOptions{
			Level:     level,
			AddSource: config.AddSource,
		})
	} else {
		handler = slog.NewTextHandler(config.Output, &slog.HandlerOptions{
			Level:     level,
			AddSource: config.AddSource,
		})
	}

	logger := &Logger{
		Logger: slog.New(handler),
		config: config,
	}

	// Set this as global if no global logger exists yet
	if global == nil {
		global = logger
	}

	return logger
}

// SetGlobal sets the global logger instance
func SetGlobal(logger *Logger) {
	global = logger
}

// GetGlobal returns the global logger instance
func GetGlobal() *Logger {
	return global
}

// LogError logs an error with context information
func (l *Logger) LogError(err error, msg string, args ...any) {
	l.Error(msg, append([]any{"error", err.Error()}, args...)...)
}

// WithRequestID adds a request ID to the logger's context
func (l *Logger) WithRequestID(requestID string) *Logger {
	if requestID == "" {
		return l
	}
	return &Logger{Logger: l.With("request_id", requestID), config: l.config}
}

// WithUserID adds a user ID to the logger's context
func (l *Logger) WithUserID(userID string) *Logger {
	if userID == "" {
		return l
	}
	return &Logger{Logger: l.With("user_id", userID), config: l.config}
}

// WithConnID tags log lines with a websocket connection id
func (l *Logger) WithConnID(connID string) *Logger {
	if connID == "" {
		return l
	}
	return &Logger{Logger: l.With("conn_id", connID), config: l.config}
}

// WithIdentity adds a numeric user identity to the logger's context
func (l *Logger) WithIdentity(userID uint) *Logger {
	if userID == 0 {
		return l
	}
	return l.WithUserID(strconv.FormatUint(uint64(userID), 10))
}

// WithComponent names the subsystem emitting the log line
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{Logger: l.With("component", name), config: l.config}
}

type ctxKey struct{}

// IntoContext stores the logger in ctx
func IntoContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored in ctx, or fallback when none is set
func FromContext(ctx context.Context, fallback *Logger) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok && l != nil {
		return l
	}
	return fallback
}

// Discard returns a logger that drops everything
func Discard() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		config: Config{Output: io.Discard},
	}
}

// LogRequest writes the completion line of a request. Server errors log at
// error, client errors at warn, probe traffic at debug.
func (l *Logger) LogRequest(method, route string, status int, latency time.Duration) {
	args := []any{
		"method", method,
		"route", route,
		"status", status,
		"latency_ms", latency.Milliseconds(),
	}
	switch requestLevel(route, status) {
	case "error":
		l.Error("request failed", args...)
	case "warn":
		l.Warn("request rejected", args...)
	case "debug":
		l.Debug("request completed", args...)
	default:
		l.Info("request completed", args...)
	}
}
