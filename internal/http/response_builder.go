package http

import (
	"encoding/json"
	"html/template"
	"net/http"
	"time"

	"moneymanager/internal/session"
)

// Client-side events raised through HX-Trigger. app.js listens for each.
const (
	EventHistoryRefresh   = "history:refresh"
	EventFormReset        = "form:reset"
	EventShowAlert        = "show-alert"
	EventShowNotification = "show-notification"
)

// NotificationType selects the toast style.
type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
	NotificationWarning NotificationType = "warning"
	NotificationInfo    NotificationType = "info"
)

// How long a toast stays up. Errors linger longer.
var notificationDuration = map[NotificationType]time.Duration{
	NotificationSuccess: 3 * time.Second,
	NotificationInfo:    3 * time.Second,
	NotificationWarning: 5 * time.Second,
	NotificationError:   5 * time.Second,
}

// HTMXResponseBuilder collects HX-Trigger events, a status and an optional
// HTML body, and writes them in one go.
type HTMXResponseBuilder struct {
	triggers   map[string]any
	statusCode int
	body       []byte
}

func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		triggers:   make(map[string]any),
		statusCode: http.StatusOK,
	}
}

func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.statusCode = code
	return b
}

// Trigger adds a named event; data becomes the event detail.
func (b *HTMXResponseBuilder) Trigger(name string, data any) *HTMXResponseBuilder {
	b.triggers[name] = data
	return b
}

func (b *HTMXResponseBuilder) TriggerHistoryRefresh() *HTMXResponseBuilder {
	return b.Trigger(EventHistoryRefresh, struct{}{})
}

func (b *HTMXResponseBuilder) TriggerFormReset() *HTMXResponseBuilder {
	return b.Trigger(EventFormReset, struct{}{})
}

// TriggerAlert shows a blocking browser alert with message.
func (b *HTMXResponseBuilder) TriggerAlert(message string) *HTMXResponseBuilder {
	return b.Trigger(EventShowAlert, map[string]string{"message": message})
}

// TriggerNotification shows a non-blocking toast.
func (b *HTMXResponseBuilder) TriggerNotification(typ NotificationType, message string) *HTMXResponseBuilder {
	d, ok := notificationDuration[typ]
	if !ok {
		d = 3 * time.Second
	}
	return b.Trigger(EventShowNotification, map[string]any{
		"type":     string(typ),
		"message":  message,
		"duration": d.Milliseconds(),
	})
}

func (b *HTMXResponseBuilder) TriggerSuccessNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationSuccess, message)
}

func (b *HTMXResponseBuilder) TriggerErrorNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationError, message)
}

// TriggerNotice turns a session notice into a toast. An empty notice adds
// nothing.
func (b *HTMXResponseBuilder) TriggerNotice(n session.Notice) *HTMXResponseBuilder {
	switch n.Kind {
	case session.NoticeSuccess:
		return b.TriggerSuccessNotification(n.Message)
	case session.NoticeError:
		return b.TriggerErrorNotification(n.Message)
	}
	return b
}

// HTML sets an already rendered body.
func (b *HTMXResponseBuilder) HTML(body []byte) *HTMXResponseBuilder {
	b.body = body
	return b
}

func (b *HTMXResponseBuilder) Write(w http.ResponseWriter) {
	if len(b.triggers) > 0 {
		if triggerJSON, err := json.Marshal(b.triggers); err == nil {
			w.Header().Set("HX-Trigger", string(triggerJSON))
		}
	}
	if len(b.body) > 0 {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	}
	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// ErrorResponse is an escaped error fragment with the given status.
func ErrorResponse(statusCode int, message string) *HTMXResponseBuilder {
	return NewHTMXResponse().
		Status(statusCode).
		HTML([]byte(`<div class="error">` + template.HTMLEscapeString(message) + `</div>`))
}

func BadRequestError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func UnprocessableEntityError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

func InternalServerError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}
