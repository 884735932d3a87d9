// Package logger provides structured logging for the storage engine: a
// thin layer over zap that fixes the conventions every subsystem
// shares -- leveled key-value messages, dotted subsystem names and a
// silent logger for tests.
package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger emits leveled key-value log messages.
type Logger struct {
	s *zap.SugaredLogger
}

// New builds a logger from the engine's log configuration: a level
// (debug, info, warn, error), a format (text or json) and an output
// (stderr, stdout or a file path).
func New(level, format, output string) (*Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	sink, err := openSink(output)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(newEncoder(format), sink, lvl)
	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return &Logger{s: base.Sugar()}, nil
}

func parseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("unknown log level: %s", level)
	}
}

func newEncoder(format string) zapcore.Encoder {
	if strings.ToLower(format) == "json" {
		cfg := zap.NewProductionEncoderConfig()
		cfg.TimeKey = "timestamp"
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewJSONEncoder(cfg)
	}
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	return zapcore.NewConsoleEncoder(cfg)
}

func openSink(output string) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(output) {
	case "stderr", "":
		return zapcore.AddSync(os.Stderr), nil
	case "stdout":
		return zapcore.AddSync(os.Stdout), nil
	default:
		f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", output, err)
		}
		return zapcore.AddSync(f), nil
	}
}

// NewNop returns a logger that discards everything; tests use it to
// satisfy constructors without producing output.
func NewNop() *Logger {
	return &Logger{s: zap.NewNop().Sugar()}
}

// Named returns a logger for one subsystem; names nest with dots
// ("wal.recovery").
func (l *Logger) Named(name string) *Logger {
	return &Logger{s: l.s.Named(name)}
}

// With returns a logger that attaches the given key-value pairs to
// every message it emits.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{s: l.s.With(keysAndValues...)}
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.s.Sync()
}

// Debug logs a message with key-value pairs at debug level.
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

// Info logs a message with key-value pairs at info level.
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Infow(msg, keysAndValues...)
}

// Warn logs a message with key-value pairs at warn level.
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.s.Warnw(msg, keysAndValues...)
}

// Error logs a message with key-value pairs at error level.
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, keysAndValues...)
}

// Fatal logs a message with key-value pairs, then exits.
func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.s.Fatalw(msg, keysAndValues...)
}
