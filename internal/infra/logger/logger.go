package logger

import (
	"go.uber.org/zap"
)

// Logger wraps a sugared zap logger with key/value style methods
type Logger struct {
	base *zap.SugaredLogger
}

// New builds a logger for the given mode ("production" or "development")
func New(mode string) (*Logger, error) {
	var cfg zap.Config
	if mode == "development" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.DisableStacktrace = true
	}
	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{base: z.Sugar()}, nil
}

// Nop returns a logger that discards everything, for tests
func Nop() *Logger {
	return &Logger{base: zap.NewNop().Sugar()}
}

// With returns a logger scoped with additional key/value context
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{base: l.base.With(args...)}
}

func (l *Logger) Debug(msg string, kv ...interface{}) { l.base.Debugw(msg, kv...) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.base.Infow(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.base.Warnw(msg, kv...) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.base.Errorw(msg, kv...) }
func (l *Logger) Fatal(msg string, kv ...interface{}) { l.base.Fatalw(msg, kv...) }

// Sync flushes buffered log entries
func (l *Logger) Sync() error { return l.base.Sync() }
