// Package log wraps log/slog with a component-tagged logger and the field
// names shared by every package of the service.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is a slog.Logger that remembers which component it belongs to.
// The component is attached once as an attribute; the level methods come
// from the embedded slog.Logger.
type Logger struct {
	*slog.Logger
	base      *slog.Logger // same attributes, no component
	component string
}

// Config holds logger configuration. A nil Handler means a text handler on
// stdout at Level.
type Config struct {
	Level     slog.Level
	Component string
	Handler   slog.Handler
}

func DefaultConfig() Config {
	return Config{Level: slog.LevelInfo, Component: ComponentApp}
}

func New(config Config) *Logger {
	handler := config.Handler
	if handler == nil {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: config.Level})
	}
	base := slog.New(handler)
	l := &Logger{Logger: base, base: base}
	if config.Component != "" {
		return l.WithComponent(config.Component)
	}
	return l
}

// Discard returns a logger that drops every record.
func Discard() *Logger {
	return New(Config{Component: ComponentApp, Handler: slog.NewTextHandler(io.Discard, nil)})
}

// With returns a logger carrying args on every record, same component.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger:    l.Logger.With(args...),
		base:      l.base.With(args...),
		component: l.component,
	}
}

// WithComponent derives a logger for another component. The component
// attribute is replaced, not repeated.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger:    l.base.With(FieldComponent, component),
		base:      l.base,
		component: component,
	}
}

func (l *Logger) Component() string {
	return l.component
}

func SetDefault(logger *Logger) {
	slog.SetDefault(logger.Logger)
}

// ParseLevel maps debug, info, warn or error to a slog level. Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
