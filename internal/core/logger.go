package core

import (
	"fmt"
	"io"
	"strings"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Logger is the structured logging surface used by the service. Arguments
// after the message are alternating key/value pairs.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

type noopLogger struct{}

// NewNoopLogger returns a Logger that discards everything.
func NewNoopLogger() Logger { return noopLogger{} }

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// KitLogger adapts a go-kit logger to Logger.
type KitLogger struct {
	base kitlog.Logger
}

// NewKitLogger builds a leveled go-kit logger writing to w. Format is
// "logfmt" (default) or "json"; lvl is one of debug, info, warn, error.
func NewKitLogger(w io.Writer, format, lvl string) (*KitLogger, error) {
	var base kitlog.Logger
	switch strings.ToLower(format) {
	case "", "logfmt":
		base = kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(w))
	case "json":
		base = kitlog.NewJSONLogger(kitlog.NewSyncWriter(w))
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	var allow level.Option
	switch strings.ToLower(lvl) {
	case "debug":
		allow = level.AllowDebug()
	case "", "info":
		allow = level.AllowInfo()
	case "warn":
		allow = level.AllowWarn()
	case "error":
		allow = level.AllowError()
	default:
		return nil, fmt.Errorf("unknown log level %q", lvl)
	}
	base = level.NewFilter(base, allow)
	base = kitlog.With(base, "ts", kitlog.DefaultTimestampUTC)
	return &KitLogger{base: base}, nil
}

// With returns a logger that adds keyvals to every entry.
func (l *KitLogger) With(keyvals ...any) *KitLogger {
	return &KitLogger{base: kitlog.With(l.base, keyvals...)}
}

func (l *KitLogger) Debug(msg string, keyvals ...any) { l.log(level.Debug(l.base), msg, keyvals) }
func (l *KitLogger) Info(msg string, keyvals ...any)  { l.log(level.Info(l.base), msg, keyvals) }
func (l *KitLogger) Warn(msg string, keyvals ...any)  { l.log(level.Warn(l.base), msg, keyvals) }
func (l *KitLogger) Error(msg string, keyvals ...any) { l.log(level.Error(l.base), msg, keyvals) }

func (l *KitLogger) log(target kitlog.Logger, msg string, keyvals []any) {
	_ = target.Log(append([]any{"msg", msg}, keyvals...)...)
}
