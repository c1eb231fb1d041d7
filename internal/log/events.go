package log

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Events writes the records every request and mutation produces, so they
// share one shape across the UI and the API.
type Events struct {
	logger *Logger
}

func NewEvents(logger *Logger) *Events {
	return &Events{logger: logger}
}

// RequestStarted is logged at debug level; the completion record carries
// everything an operator needs.
func (e *Events) RequestStarted(ctx context.Context, r *http.Request, clientIP string) {
	e.logger.DebugContext(ctx, "HTTP request started",
		slog.Group("http",
			FieldMethod, r.Method,
			FieldPath, r.URL.Path,
			FieldUserAgent, r.UserAgent()),
		FieldClientIP, clientIP)
}

// RequestCompleted logs at warn for 4xx and error for 5xx.
func (e *Events) RequestCompleted(ctx context.Context, r *http.Request, status int, elapsed time.Duration, clientIP string) {
	level := slog.LevelInfo
	switch {
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	}
	e.logger.Log(ctx, level, "HTTP request completed",
		slog.Group("http",
			FieldMethod, r.Method,
			FieldPath, r.URL.Path,
			FieldQuery, r.URL.RawQuery,
			FieldStatusCode, status,
			FieldDuration, elapsed.Milliseconds(),
			FieldDurationHuman, elapsed.Round(time.Microsecond).String()),
		FieldClientIP, clientIP)
}

func (e *Events) TransactionCreated(ctx context.Context, id, title string, amount int64, typ, date string) {
	e.logger.InfoContext(ctx, "Transaction created",
		FieldOperation, OpCreate,
		FieldTransactionID, id,
		slog.Group("transaction",
			FieldTitle, title,
			FieldAmount, amount,
			FieldType, typ,
			FieldDate, date))
}

func (e *Events) TransactionDeleted(ctx context.Context, id string) {
	e.logger.InfoContext(ctx, "Transaction deleted",
		FieldOperation, OpDelete,
		FieldTransactionID, id)
}

// Failed logs err at error level tagged with op and errType.
func (e *Events) Failed(ctx context.Context, msg string, err error, op, errType string, args ...any) {
	args = append([]any{
		FieldOperation, op,
		FieldErrorType, errType,
		FieldError, err,
	}, args...)
	e.logger.ErrorContext(ctx, msg, args...)
}
