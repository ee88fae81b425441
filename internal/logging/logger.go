// Package logging provides structured logging for the indexer.
package logging

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity of a log message
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
	LevelFatal LogLevel = "fatal"
)

// LogFormat represents the output format for logs
type LogFormat string

const (
	FormatJSON LogFormat = "json"
	FormatText LogFormat = "text"
)

// Logger provides structured logging capabilities
type Logger struct {
	level  zap.AtomicLevel
	format LogFormat
	base   *zap.Logger
	fields map[string]interface{}
}

// NewLogger creates a new logger instance writing to stdout
func NewLogger(level LogLevel, format LogFormat) *Logger {
	return newLogger(level, format, os.Stdout)
}

func newLogger(level LogLevel, format LogFormat, w io.Writer) *Logger {
	atom := zap.NewAtomicLevelAt(toZapLevel(level))
	return &Logger{
		level:  atom,
		format: format,
		base:   zap.New(newCore(format, w, atom), zap.AddCaller(), zap.AddCallerSkip(2)),
		fields: make(map[string]interface{}),
	}
}

func newCore(format LogFormat, w io.Writer, level zap.AtomicLevel) zapcore.Core {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.MessageKey = "message"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if format == FormatText {
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}
	return zapcore.NewCore(enc, zapcore.AddSync(w), level)
}

func toZapLevel(level LogLevel) zapcore.Level {
	switch level {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	case LevelFatal:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *Logger) clone(extra map[string]interface{}) *Logger {
	fields := make(map[string]interface{}, len(l.fields)+len(extra))
	for k, v := range l.fields {
		fields[k] = v
	}
	for k, v := range extra {
		fields[k] = v
	}
	return &Logger{level: l.level, format: l.format, base: l.base, fields: fields}
}

// WithField adds a field to the logger context
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.clone(map[string]interface{}{key: value})
}

// WithFields adds multiple fields to the logger context
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return l.clone(fields)
}

// WithError adds an error to the logger context
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

// Zap exposes the underlying zap logger with the current fields attached
func (l *Logger) Zap() *zap.Logger {
	return l.base.WithOptions(zap.AddCallerSkip(-2)).With(l.zapFields()...)
}

func (l *Logger) Debug(message string) { l.log(zapcore.DebugLevel, message) }

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(zapcore.DebugLevel, fmt.Sprintf(format, args...))
}

func (l *Logger) Info(message string) { l.log(zapcore.InfoLevel, message) }

func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(zapcore.InfoLevel, fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(message string) { l.log(zapcore.WarnLevel, message) }

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log(zapcore.WarnLevel, fmt.Sprintf(format, args...))
}

func (l *Logger) Error(message string) { l.log(zapcore.ErrorLevel, message) }

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(zapcore.ErrorLevel, fmt.Sprintf(format, args...))
}

// ErrorWithErr logs an error message with an error object
func (l *Logger) ErrorWithErr(message string, err error) {
	l.WithError(err).log(zapcore.ErrorLevel, message)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(message string) { l.log(zapcore.FatalLevel, message) }

// Fatalf logs a formatted fatal message and exits
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.log(zapcore.FatalLevel, fmt.Sprintf(format, args...))
}

func (l *Logger) log(level zapcore.Level, message string) {
	ce := l.base.Check(level, message)
	if ce == nil {
		return
	}
	ce.Write(l.zapFields()...)
}

func (l *Logger) zapFields() []zap.Field {
	if len(l.fields) == 0 {
		return nil
	}
	fields := make([]zap.Field, 0, len(l.fields))
	for k, v := range l.fields {
		fields = append(fields, zap.Any(k, v))
	}
	return fields
}

// SetOutput sets the output writer for the logger
func (l *Logger) SetOutput(w io.Writer) {
	l.base = zap.New(newCore(l.format, w, l.level), zap.AddCaller(), zap.AddCallerSkip(2))
}

// SetLevel sets the log level
func (l *Logger) SetLevel(level LogLevel) {
	l.level.SetLevel(toZapLevel(level))
}

// Sync flushes buffered entries
func (l *Logger) Sync() error {
	return l.base.Sync()
}

// Global logger instance
var globalLogger *Logger

// InitGlobalLogger initializes the global logger
func InitGlobalLogger(level LogLevel, format LogFormat) {
	globalLogger = NewLogger(level, format)
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		globalLogger = NewLogger(LevelInfo, FormatJSON)
	}
	return globalLogger
}

// NewNopLogger returns a logger that discards everything
func NewNopLogger() *Logger {
	return newLogger(LevelFatal, FormatJSON, io.Discard)
}

type loggerKey struct{}

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext retrieves a logger from the context
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*Logger); ok {
		return logger
	}
	return GetGlobalLogger()
}

// Convenience functions using global logger

func Debugf(format string, args ...interface{}) { GetGlobalLogger().Debugf(format, args...) }

func Infof(format string, args ...interface{}) { GetGlobalLogger().Infof(format, args...) }

func Warnf(format string, args ...interface{}) { GetGlobalLogger().Warnf(format, args...) }

func Errorf(format string, args ...interface{}) { GetGlobalLogger().Errorf(format, args...) }

// WithField adds a field to the global logger
func WithField(key string, value interface{}) *Logger {
	return GetGlobalLogger().WithField(key, value)
}

// WithFields adds multiple fields to the global logger
func WithFields(fields map[string]interface{}) *Logger {
	return GetGlobalLogger().WithFields(fields)
}

// WithError adds an error to the global logger
func WithError(err error) *Logger {
	return GetGlobalLogger().WithError(err)
}

// ParseLogLevel parses a string into a LogLevel
func ParseLogLevel(level string) LogLevel {
	switch level {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		log.Printf("Unknown log level '%s', defaulting to 'info'", level)
		return LevelInfo
	}
}

// ParseLogFormat parses a string into a LogFormat
func ParseLogFormat(format string) LogFormat {
	switch format {
	case "json":
		return FormatJSON
	case "text":
		return FormatText
	default:
		log.Printf("Unknown log format '%s', defaulting to 'json'", format)
		return FormatJSON
	}
}
