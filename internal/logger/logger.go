// Package logger provides structured logging for Blastoise
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.SugaredLogger with key-value helpers used across Blastoise
type Logger struct {
	*zap.SugaredLogger
	base *zap.Logger
}

// ParseLevel maps a configured level name to a zap level
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level: %s", level)
}

// newEncoder builds a JSON encoder for "json" and a console encoder for "text"
func newEncoder(format string, color bool) (zapcore.Encoder, error) {
	switch strings.ToLower(format) {
	case "json":
		cfg := zap.NewProductionEncoderConfig()
		cfg.TimeKey = "timestamp"
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewJSONEncoder(cfg), nil
	case "text", "console", "":
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		if color {
			cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		return zapcore.NewConsoleEncoder(cfg), nil
	}
	return nil, fmt.Errorf("unknown log format: %s", format)
}

// New creates a Logger writing to stderr, stdout or the named file
func New(level, format, output string) (*Logger, error) {
	var (
		sink  zapcore.WriteSyncer
		color bool
	)
	switch strings.ToLower(output) {
	case "stderr", "":
		sink, color = zapcore.AddSync(os.Stderr), true
	case "stdout":
		sink, color = zapcore.AddSync(os.Stdout), true
	default:
		// Treat as file path
		file, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", output, err)
		}
		sink = zapcore.AddSync(file)
	}
	return build(level, format, sink, color)
}

// NewWithWriter creates a Logger writing uncolored entries to w
func NewWithWriter(level, format string, w io.Writer) (*Logger, error) {
	return build(level, format, zapcore.AddSync(w), false)
}

func build(level, format string, sink zapcore.WriteSyncer, color bool) (*Logger, error) {
	zapLevel, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	encoder, err := newEncoder(format, color)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(encoder, sink, zapLevel)
	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return &Logger{
		SugaredLogger: base.Sugar(),
		base:          base,
	}, nil
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() error {
	return l.base.Sync()
}

// With returns a new Logger with additional context fields
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{
		SugaredLogger: l.SugaredLogger.With(args...),
		base:          l.base,
	}
}

// Named returns a new Logger with the given name added to the logger's name
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		SugaredLogger: l.SugaredLogger.Named(name),
		base:          l.base.Named(name),
	}
}

// Info logs a message with key-value pairs at Info level
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Infow(msg, keysAndValues...)
}

// Debug logs a message with key-value pairs at Debug level
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Debugw(msg, keysAndValues...)
}

// Warn logs a message with key-value pairs at Warn level
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Warnw(msg, keysAndValues...)
}

// Error logs a message with key-value pairs at Error level
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, keysAndValues...)
}

// NewNop returns a no-op Logger for testing
func NewNop() *Logger {
	return &Logger{
		SugaredLogger: zap.NewNop().Sugar(),
		base:          zap.NewNop(),
	}
}
