package logger

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
	OffLevel   = "off"
)

// Options controls where and how much the process logs.
type Options struct {
	Level string `yaml:"level"`
	// File switches output from stdout console format to JSON lines appended to File.
	File string `yaml:"file"`
}

var current atomic.Pointer[zap.Logger]

func init() {
	// Library users get a quiet default; cmd/annie calls Init with the configured level.
	if err := Init(Options{Level: levelFromEnv()}); err != nil {
		current.Store(zap.NewNop())
	}
}

func levelFromEnv() string {
	if lvl := strings.TrimSpace(os.Getenv("ANNIE_LOG")); lvl != "" {
		return lvl
	}
	return WarnLevel
}

// ParseLevel maps a level name to a zap level. "off" disables logging.
func ParseLevel(level string) (zapcore.Level, bool, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case DebugLevel:
		return zapcore.DebugLevel, true, nil
	case InfoLevel, "":
		return zapcore.InfoLevel, true, nil
	case WarnLevel, "warning":
		return zapcore.WarnLevel, true, nil
	case ErrorLevel:
		return zapcore.ErrorLevel, true, nil
	case OffLevel, "0", "false":
		return zapcore.InfoLevel, false, nil
	default:
		return zapcore.InfoLevel, false, fmt.Errorf("unknown log level %q", level)
	}
}

// Init replaces the process logger according to opts.
func Init(opts Options) error {
	level, enabled, err := ParseLevel(opts.Level)
	if err != nil {
		return err
	}
	if !enabled {
		current.Store(zap.NewNop())
		return nil
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	var core zapcore.Core
	if opts.File != "" {
		file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		core = zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(file), level)
	} else {
		core = zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(os.Stdout), level)
	}

	current.Store(zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)))
	return nil
}

// SetLogger installs l and returns a function restoring the previous logger.
func SetLogger(l *zap.Logger) (restore func()) {
	prev := current.Swap(l)
	return func() { current.Store(prev) }
}

// L returns the process logger.
func L() *zap.Logger { return current.Load() }

func Debug(msg string, fields ...any) { current.Load().Sugar().Debugw(msg, fields...) }

func Info(msg string, fields ...any) { current.Load().Sugar().Infow(msg, fields...) }

func Warn(msg string, fields ...any) { current.Load().Sugar().Warnw(msg, fields...) }

func Error(msg string, fields ...any) { current.Load().Sugar().Errorw(msg, fields...) }

// Named returns a child logger scoped to a component, e.g. "manager" or "server".
func Named(name string, fields ...any) *zap.SugaredLogger {
	return current.Load().WithOptions(zap.AddCallerSkip(-1)).Named(name).Sugar().With(fields...)
}

// Sync flushes buffered entries.
func Sync() error { return current.Load().Sync() }
