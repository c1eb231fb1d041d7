package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"moneymanager/internal/core"
	"moneymanager/internal/gateway"
	"moneymanager/internal/log"
	"moneymanager/internal/session"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).Round(time.Second).String(),
	})
}

// handleReady reports whether templates are loaded and the last fetch from
// the backend succeeded.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	last := s.session.Snapshot().State.LastFetch
	switch {
	case last.Err != nil:
		checks["backend"] = fmt.Sprintf("failed: %v", last.Err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	case last.At.IsZero():
		checks["backend"] = "pending"
	default:
		checks["backend"] = map[string]any{
			"status":     "ok",
			"last_fetch": last.At.Format(time.RFC3339),
			"records":    last.Count,
		}
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceMetrics := s.traceMiddleware.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	securityMetrics := s.securityDetector.GetMetrics()
	view := s.session.Snapshot()

	w.WriteHeader(http.StatusOK)

	metric := func(name, help, kind string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "Total number of HTTP requests", "counter", traceMetrics.TotalRequests)
	metric("http_server_errors_total", "Responses with a 5xx status", "counter", traceMetrics.ServerErrorResponses)
	metric("transactions_created_total", "Transactions created through this UI", "counter", s.appMetrics.created.Load())
	metric("transactions_deleted_total", "Transactions deleted through this UI", "counter", s.appMetrics.deleted.Load())
	metric("validation_failures_total", "Submissions rejected before any backend call", "counter", s.appMetrics.validationFailures.Load())
	metric("backend_failures_total", "Mutations that failed against the backend", "counter", s.appMetrics.transportFailures.Load())
	metric("store_records", "Records held by the transaction store", "gauge", len(view.Records))
	metric("rate_limit_hits_total", "Total rate limit hits", "counter", rateLimitMetrics.TotalHits)
	metric("suspicious_requests_total", "Total suspicious requests detected", "counter", securityMetrics.SuspiciousRequests)
	metric("active_rate_limit_clients", "Currently tracked rate limit clients", "gauge", rateLimitMetrics.ClientCount)
	metric("uptime_seconds", "Application uptime in seconds", "gauge", fmt.Sprintf("%.0f", time.Since(s.appMetrics.uptime).Seconds()))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.awaitSettled(r.Context())
	s.render(w, r, "index.html", newPageData(s.session.Snapshot(), s.now()))
}

// handleHistory renders the totals and table once pending refetches are done.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.awaitSettled(r.Context())
	s.renderHistory(w, r)
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}

	filter, err := filterForm(p)
	if errors.Is(err, errIncompleteRange) {
		// wait for the second date
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err == nil {
		err = s.session.SetFilter(r.Context(), filter)
	}
	if err != nil {
		s.logger.WarnContext(r.Context(), "Invalid filter",
			log.FieldOperation, log.OpFilter,
			log.FieldError, err)
		NewHTMXResponse().
			Status(http.StatusBadRequest).
			TriggerErrorNotification("Invalid filter: " + err.Error()).
			Write(w)
		return
	}

	s.awaitSettled(r.Context())
	s.renderHistory(w, r)
}

// handleFormEdit keeps the unsent form inputs in the session.
func (s *Server) handleFormEdit(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}
	s.session.Edit(transactionForm(p))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDismissNotice(w http.ResponseWriter, r *http.Request) {
	s.session.DismissNotice()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		s.logger.WarnContext(r.Context(), "Parse form error",
			log.FieldError, err,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)
		BadRequestError("Invalid request format").Write(w)
		return
	}

	err := s.session.Submit(r.Context(), transactionForm(p))

	var ve *core.ValidationError
	if errors.As(err, &ve) {
		s.appMetrics.validationFailures.Add(1)
		s.logger.DebugContext(r.Context(), "Transaction rejected",
			log.FieldOperation, log.OpValidate,
			log.FieldError, err)
		UnprocessableEntityError(ve.Error()).
			TriggerAlert(ve.Message).
			Write(w)
		return
	}

	// the form was accepted, so it resets whatever the backend answered
	resp := NewHTMXResponse().TriggerFormReset()
	if err != nil {
		s.appMetrics.transportFailures.Add(1)
		resp.TriggerNotice(s.noticeFor(err)).Write(w)
		return
	}

	s.appMetrics.created.Add(1)
	resp.TriggerHistoryRefresh().
		TriggerNotice(s.noticeFor(nil)).
		Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := core.ID(sanitizeInput(r.PathValue("id")))
	if id == "" {
		BadRequestError("Missing transaction id").Write(w)
		return
	}

	err := s.session.Remove(r.Context(), id)
	resp := NewHTMXResponse()
	switch {
	case err == nil:
		s.appMetrics.deleted.Add(1)
		resp.TriggerHistoryRefresh().TriggerNotice(s.noticeFor(nil))
	case gateway.IsNotFound(err):
		// already gone; the refetch drops it from the table
		resp.TriggerHistoryRefresh().TriggerNotice(s.noticeFor(err))
	default:
		s.appMetrics.transportFailures.Add(1)
		resp.TriggerNotice(s.noticeFor(err))
	}
	resp.Write(w)
}

// noticeFor returns the session's notice for the mutation just run. If the
// notice does not match the outcome, one is built from err.
func (s *Server) noticeFor(err error) session.Notice {
	n := s.session.Snapshot().State.Notice
	want := session.NoticeSuccess
	if err != nil {
		want = session.NoticeError
	}
	if n.Kind == want && n.Message != "" {
		return n
	}
	if err != nil {
		return session.Notice{Kind: session.NoticeError, Message: err.Error()}
	}
	return session.Notice{Kind: session.NoticeSuccess, Message: "Done"}
}

// awaitSettled waits for queued or debounced refetches so the render shows
// post-refresh data. On timeout the current store is rendered.
func (s *Server) awaitSettled(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.settleTimeout)
	defer cancel()
	if err := s.session.Settled(ctx); err != nil {
		s.logger.WarnContext(ctx, "Rendering before refresh completed", log.FieldError, err)
	}
}

func (s *Server) renderHistory(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "history", newHistoryView(s.session.Snapshot(), s.now()))
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	if s.templates == nil {
		s.logger.ErrorContext(r.Context(), "Templates not loaded",
			log.FieldPath, r.URL.Path,
			log.FieldComponent, log.ComponentTemplate,
			log.FieldErrorType, log.ErrorTypeConfiguration)
		InternalServerError("templates not loaded").Write(w)
		return
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		// carries the request id set by the trace middleware
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			log.FieldOperation, log.OpRender,
			"template", name,
			log.FieldError, err)
		InternalServerError("rendering failed").Write(w)
		return
	}
	NewHTMXResponse().HTML(buf.Bytes()).Write(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
