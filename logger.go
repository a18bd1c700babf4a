package netkit

import "log/slog"

// Logger is the interface for structured logging.
// It is satisfied by *slog.Logger and by hclog.Logger.
type Logger interface {
	// Debug logs a debug-level message with optional key-value pairs.
	Debug(msg string, args ...any)
	// Info logs an info-level message with optional key-value pairs.
	Info(msg string, args ...any)
	// Warn logs a warning-level message with optional key-value pairs.
	Warn(msg string, args ...any)
	// Error logs an error-level message with optional key-value pairs.
	Error(msg string, args ...any)
}

// defaultLogger returns the default slog logger from the standard library.
func defaultLogger() Logger {
	return slog.Default()
}

// fieldLogger appends a fixed set of key-value pairs to every record.
type fieldLogger struct {
	l      Logger
	fields []any
}

func withFields(l Logger, fields ...any) Logger {
	if fl, ok := l.(*fieldLogger); ok {
		return &fieldLogger{l: fl.l, fields: append(append([]any(nil), fl.fields...), fields...)}
	}
	return &fieldLogger{l: l, fields: fields}
}

func (f *fieldLogger) args(args []any) []any {
	return append(append(make([]any, 0, len(f.fields)+len(args)), f.fields...), args...)
}

func (f *fieldLogger) Debug(msg string, args ...any) { f.l.Debug(msg, f.args(args)...) }
func (f *fieldLogger) Info(msg string, args ...any)  { f.l.Info(msg, f.args(args)...) }
func (f *fieldLogger) Warn(msg string, args ...any)  { f.l.Warn(msg, f.args(args)...) }
func (f *fieldLogger) Error(msg string, args ...any) { f.l.Error(msg, f.args(args)...) }
