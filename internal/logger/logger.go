package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ekisa-team/speakpaint/internal/env"
)

const (
	defaultLogFile    = "logs/speakpaint.log"
	defaultMaxSizeMB  = 50
	defaultMaxBackups = 5
	defaultMaxAgeDays = 28
)

type options struct {
	level      slog.Level
	console    io.Writer
	logToFile  bool
	logFile    string
	maxSizeMB  int
	maxBackups int
	maxAgeDays int
}

// Option configures the logger returned by New.
type Option func(*options)

// WithLevel sets the minimum level for every sink.
func WithLevel(level slog.Level) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithLogToFile enables the rotating file sink.
func WithLogToFile(enabled bool) Option {
	return func(o *options) {
		o.logToFile = enabled
	}
}

// WithLogFile sets the path of the rotating log file.
func WithLogFile(path string) Option {
	return func(o *options) {
		o.logFile = path
	}
}

// WithConsole replaces the console writer (stderr by default).
func WithConsole(w io.Writer) Option {
	return func(o *options) {
		o.console = w
	}
}

// WithRotation overrides the rotation limits of the file sink.
func WithRotation(maxSizeMB, maxBackups, maxAgeDays int) Option {
	return func(o *options) {
		o.maxSizeMB = maxSizeMB
		o.maxBackups = maxBackups
		o.maxAgeDays = maxAgeDays
	}
}

// New builds the process logger.
// Development gets a colourised tint handler, production gets JSON.
// When file logging is enabled records are also written, as JSON, to a
// lumberjack-rotated file.
func New(environment env.Environment, opts ...Option) *slog.Logger {
	o := &options{
		level:      slog.LevelInfo,
		console:    os.Stderr,
		logFile:    defaultLogFile,
		maxSizeMB:  defaultMaxSizeMB,
		maxBackups: defaultMaxBackups,
		maxAgeDays: defaultMaxAgeDays,
	}
	for _, opt := range opts {
		opt(o)
	}

	var console slog.Handler
	switch environment {
	case env.Production:
		console = slog.NewJSONHandler(o.console, &slog.HandlerOptions{Level: o.level})
	case env.Test:
		console = slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: o.level})
	default:
		console = tint.NewHandler(o.console, &tint.Options{
			Level:      o.level,
			TimeFormat: time.TimeOnly,
		})
	}

	if !o.logToFile {
		return slog.New(console)
	}

	if dir := filepath.Dir(o.logFile); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.New(console).Warn("Failed to create log directory, file logging disabled", "dir", dir, "error", err)
			return slog.New(console)
		}
	}

	file := slog.NewJSONHandler(&lumberjack.Logger{
		Filename:   o.logFile,
		MaxSize:    o.maxSizeMB,
		MaxBackups: o.maxBackups,
		MaxAge:     o.maxAgeDays,
		Compress:   true,
	}, &slog.HandlerOptions{Level: o.level})

	return slog.New(fanout{console, file})
}

// ParseLevel converts a textual level into a slog.Level, defaulting to info.
func ParseLevel(value string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo
	}
	return level
}
