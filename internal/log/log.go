// Package log provides structured logging for affectd.
// It wraps slog with sensible defaults for production use.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger *slog.Logger
	once   sync.Once
)

// Options controls where log output goes.
type Options struct {
	Level string // debug, info, warn, error
	JSON  bool   // JSON handler instead of text
	File  string // optional rotating file sink

	// Rotation limits for File. Zero values use lumberjack's defaults.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Init initializes the global logger with the specified level.
// Valid levels: "debug", "info", "warn", "error".
// GO_ENV=production selects JSON output and LOG_FILE adds a rotating file sink.
func Init(level string) {
	InitWith(Options{
		Level:      level,
		JSON:       os.Getenv("GO_ENV") == "production",
		File:       os.Getenv("LOG_FILE"),
		MaxSizeMB:  10,
		MaxBackups: 5,
		MaxAgeDays: 30,
	})
}

// InitWith initializes the global logger from explicit options.
// Only the first call takes effect.
func InitWith(o Options) {
	once.Do(func() {
		logger = New(os.Stdout, o)
		slog.SetDefault(logger)
	})
}

// New builds a logger writing to w and, when o.File is set, to a rotating file.
func New(w io.Writer, o Options) *slog.Logger {
	if o.File != "" {
		w = io.MultiWriter(w, &lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    o.MaxSizeMB,
			MaxBackups: o.MaxBackups,
			MaxAge:     o.MaxAgeDays,
			Compress:   true,
		})
	}

	opts := &slog.HandlerOptions{
		Level: ParseLevel(o.Level),
	}

	// Use JSON in production, text in development
	if o.JSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
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

// L returns the global logger instance.
func L() *slog.Logger {
	if logger == nil {
		Init("info")
	}
	return logger
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}

// Component returns a logger tagged with component=name.
func Component(name string) *slog.Logger {
	return L().With("component", name)
}
