// Package logging provides the structured logger used across scoopie.
//
// Components accept the Logger interface and default to a no-op logger, so
// library code never writes to the terminal unless a caller opts in.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger provides structured logging with key-value pairs.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Level names accepted by New.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
	LevelNone  = "none"
)

type noopLogger struct{}

func (noopLogger) Debug(msg string, keysAndValues ...interface{}) {}
func (noopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (noopLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (noopLogger) Error(msg string, keysAndValues ...interface{}) {}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return noopLogger{}
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop()
	}
	return l
}

type zapLogger struct {
	s *zap.SugaredLogger
}

func (z *zapLogger) Debug(msg string, kv ...interface{}) { z.s.Debugw(msg, kv...) }
func (z *zapLogger) Info(msg string, kv ...interface{})  { z.s.Infow(msg, kv...) }
func (z *zapLogger) Warn(msg string, kv ...interface{})  { z.s.Warnw(msg, kv...) }
func (z *zapLogger) Error(msg string, kv ...interface{}) { z.s.Errorw(msg, kv...) }

// Sync flushes buffered log entries. It is safe to call on any Logger.
func Sync(l Logger) {
	if z, ok := l.(*zapLogger); ok {
		_ = z.s.Sync()
	}
}

// New builds a zap-backed Logger writing to stderr. "debug" uses the
// development encoder; "none" discards output.
func New(level string) (Logger, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		level = LevelWarn
	}

	var (
		zlog *zap.Logger
		err  error
	)
	switch level {
	case LevelNone:
		zlog = zap.NewNop()
	case LevelDebug:
		zlog, err = zap.NewDevelopment()
	case LevelInfo, LevelWarn, LevelError:
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(lvl)
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.DisableStacktrace = true
		zlog, err = cfg.Build()
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	return &zapLogger{s: zlog.Sugar()}, nil
}
