// Package log provides a small structured logging interface for grove.
//
// The interface is slog-compatible in spirit (message plus key-value
// fields) while the default implementation writes through zerolog. It is
// deliberately minimal: components grab a named logger once and emit
// Debug/Info progress lines during import, inference and training.
package log

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Logger is the structured logging interface used throughout grove.
type Logger interface {
	// Debug logs detailed diagnostic information.
	Debug(msg string, fields ...any)
	// Info logs general operational information.
	Info(msg string, fields ...any)
	// Warn logs potentially problematic conditions.
	Warn(msg string, fields ...any)
	// Error logs error conditions. If the first field is an error it is
	// attached as the "error" key with its stack when available.
	Error(msg string, fields ...any)
	// With returns a Logger with the given fields pre-populated.
	With(fields ...any) Logger
}

var (
	mu       sync.RWMutex
	base     = newZerologLogger(os.Stderr, zerolog.InfoLevel)
	disabled = &zlogger{l: zerolog.Nop()}
)

// SetOutput redirects the default loggers to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base = newZerologLogger(w, base.l.GetLevel())
}

// SetLevel sets the minimum level emitted by the default loggers.
// Recognized levels are "debug", "info", "warn" and "error".
func SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	mu.Lock()
	defer mu.Unlock()
	base = &zlogger{l: base.l.Level(lvl)}
}

// GetLogger returns the default logger.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// GetLoggerWithName returns the default logger tagged with a component name.
func GetLoggerWithName(name string) Logger {
	mu.RLock()
	defer mu.RUnlock()
	return &zlogger{l: base.l.With().Str("component", name).Logger()}
}

// Discard returns a logger that drops everything. Handy in tests and
// benchmarks where log output would only add noise.
func Discard() Logger {
	return disabled
}

type zlogger struct {
	l zerolog.Logger
}

func newZerologLogger(w io.Writer, lvl zerolog.Level) *zlogger {
	return &zlogger{l: zerolog.New(w).Level(lvl).With().Timestamp().Logger()}
}

func (z *zlogger) Debug(msg string, fields ...any) { emit(z.l.Debug(), msg, fields) }
func (z *zlogger) Info(msg string, fields ...any)  { emit(z.l.Info(), msg, fields) }
func (z *zlogger) Warn(msg string, fields ...any)  { emit(z.l.Warn(), msg, fields) }

func (z *zlogger) Error(msg string, fields ...any) {
	ev := z.l.Error()
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			ev = ev.Err(err)
			fields = fields[1:]
		}
	}
	emit(ev, msg, fields)
}

func (z *zlogger) With(fields ...any) Logger {
	ctx := z.l.With()
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		ctx = ctx.Interface(key, fields[i+1])
	}
	return &zlogger{l: ctx.Logger()}
}

func emit(ev *zerolog.Event, msg string, fields []any) {
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		switch v := fields[i+1].(type) {
		case zerolog.LogObjectMarshaler:
			ev = ev.Object(key, v)
		case error:
			ev = ev.AnErr(key, v)
		default:
			ev = ev.Interface(key, v)
		}
	}
	ev.Msg(msg)
}
