package log

import (
	"context"
	"log/slog"
)

type contextKey struct{}

// NewContext returns ctx carrying l.
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the logger stored by NewContext, or one wrapping the
// slog default.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(contextKey{}).(*Logger); ok {
		return l
	}
	def := slog.Default()
	return &Logger{Logger: def, base: def}
}
