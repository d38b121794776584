// Package log provides the logging interface shared by every component of
// the payment core. It wraps github.com/ipfs/go-log/v2 (itself a
// go.uber.org/zap frontend), matching the logger shape the teacher clearnode
// service exposes so structured, leveled, contextual logs look the same
// across both codebases.
package log

import (
	"context"
	"os"

	golog "github.com/ipfs/go-log/v2"
	"go.uber.org/zap"
)

// Logger is the logging surface every component depends on.
type Logger interface {
	// Debug logs a message at debug level. keysAndValues are key-value pairs.
	Debug(msg string, keysAndValues ...interface{})
	// Info logs a message at info level.
	Info(msg string, keysAndValues ...interface{})
	// Warn logs a message at warn level.
	Warn(msg string, keysAndValues ...interface{})
	// Error logs a message at error level.
	Error(msg string, keysAndValues ...interface{})
	// Fatal logs a message at fatal level then exits the process.
	Fatal(msg string, keysAndValues ...interface{})
	// Trace logs a message at trace level.
	Trace(msg string, keysAndValues ...interface{})
	// With returns a new logger carrying the given key-value pair on every
	// subsequent log line.
	With(key string, value interface{}) Logger
	// NewSystem returns a new logger scoped to the given subsystem name,
	// carrying over this logger's accumulated key-value pairs.
	NewSystem(name string) Logger
}

// New creates a Logger for the given subsystem name, e.g. New("guard-chain").
func New(name string) Logger {
	return &ipfsLogger{
		lg:                  golog.Logger(name).SugaredLogger.Desugar().WithOptions(zap.AddCallerSkip(1)).Sugar(),
		commonKeysAndValues: []interface{}{},
	}
}

type ipfsLogger struct {
	lg                  *zap.SugaredLogger
	commonKeysAndValues []interface{}
}

func (l *ipfsLogger) Trace(_ string, _ ...interface{}) {}

func (l *ipfsLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.lg.Debugw(msg, keysAndValues...)
}

func (l *ipfsLogger) Info(msg string, keysAndValues ...interface{}) {
	l.lg.Infow(msg, keysAndValues...)
}

func (l *ipfsLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.lg.Warnw(msg, keysAndValues...)
}

func (l *ipfsLogger) Error(msg string, keysAndValues ...interface{}) {
	l.lg.Errorw(msg, keysAndValues...)
}

func (l *ipfsLogger) Fatal(msg string, keysAndValues ...interface{}) {
	l.lg.Fatalw(msg, keysAndValues...)
}

func (l *ipfsLogger) With(key string, value interface{}) Logger {
	return &ipfsLogger{
		lg:                  l.lg.With(key, value),
		commonKeysAndValues: append(append([]interface{}{}, l.commonKeysAndValues...), key, value),
	}
}

func (l *ipfsLogger) NewSystem(name string) Logger {
	lg := golog.Logger(name)
	return &ipfsLogger{
		lg:                  lg.SugaredLogger.Desugar().WithOptions(zap.AddCallerSkip(1)).Sugar().With(l.commonKeysAndValues...),
		commonKeysAndValues: []interface{}{},
	}
}

type contextKey struct{}

// IntoContext attaches lg to ctx so downstream pipeline steps can retrieve it
// without threading an extra parameter through every call.
func IntoContext(ctx context.Context, lg Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, lg)
}

// FromContext retrieves the logger stored in ctx, or a fresh logger named
// "noop" (which still logs) if none was attached.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(contextKey{}).(Logger); ok {
		return l
	}
	return New("noop")
}

func init() {
	level := os.Getenv("COREPAY_LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	zapLevel, err := golog.Parse(level)
	if err != nil {
		zapLevel = golog.LevelInfo
	}
	golog.SetupLogging(golog.Config{
		Level:  zapLevel,
		Stderr: true,
	})
}
