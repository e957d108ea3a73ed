// Package log provides the structured logging facade used by treestat.
//
// The package wraps rs/zerolog behind a minimal Logger interface so that
// library code can emit structured progress information without binding
// callers to a particular backend or output format. The default logger
// writes JSON to stderr at the warn level, which keeps the library silent
// in normal use; applications (and tests) raise the level or swap the
// writer as needed.
package log

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Logger is the structured logging interface used throughout the library.
// Fields are alternating key/value pairs, as in log/slog.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)

	// With returns a child logger with the given fields attached to
	// every subsequent message.
	With(fields ...any) Logger
}

var (
	mu     sync.RWMutex
	root   = newZerologLogger(zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.WarnLevel))
	levels = map[string]zerolog.Level{
		"debug": zerolog.DebugLevel,
		"info":  zerolog.InfoLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
	}
)

// GetLogger returns the process-wide logger.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// GetLoggerWithName returns the process-wide logger with a component name
// attached, e.g. "importance.evaluator".
func GetLoggerWithName(name string) Logger {
	return GetLogger().With("component", name)
}

// Configure replaces the process-wide logger with one writing to w at the
// given level ("debug", "info", "warn" or "error"; anything else means warn).
func Configure(w io.Writer, level string) {
	lvl, ok := levels[level]
	if !ok {
		lvl = zerolog.WarnLevel
	}
	mu.Lock()
	defer mu.Unlock()
	root = newZerologLogger(zerolog.New(w).With().Timestamp().Logger().Level(lvl))
}

type zerologLogger struct {
	zl zerolog.Logger
}

func newZerologLogger(zl zerolog.Logger) *zerologLogger {
	return &zerologLogger{zl: zl}
}

func (l *zerologLogger) Debug(msg string, fields ...any) { l.emit(l.zl.Debug(), msg, fields) }
func (l *zerologLogger) Info(msg string, fields ...any)  { l.emit(l.zl.Info(), msg, fields) }
func (l *zerologLogger) Warn(msg string, fields ...any)  { l.emit(l.zl.Warn(), msg, fields) }
func (l *zerologLogger) Error(msg string, fields ...any) { l.emit(l.zl.Error(), msg, fields) }

func (l *zerologLogger) With(fields ...any) Logger {
	ctx := l.zl.With()
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		ctx = ctx.Interface(key, fields[i+1])
	}
	return newZerologLogger(ctx.Logger())
}

func (l *zerologLogger) emit(event *zerolog.Event, msg string, fields []any) {
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		switch v := fields[i+1].(type) {
		case error:
			event = event.AnErr(key, v)
		case zerolog.LogObjectMarshaler:
			event = event.Object(key, v)
		default:
			event = event.Interface(key, v)
		}
	}
	event.Msg(msg)
}
