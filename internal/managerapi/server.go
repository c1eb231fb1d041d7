package managerapi

import (
	"context"
	"net/http"
	"time"

	"moneymanager/internal/log"
	"moneymanager/internal/middleware/trace"
)

// Pinger is implemented by repositories that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewServer builds the API server: the transaction routes plus /healthz and
// /readyz, wrapped in request tracing.
func NewServer(addr string, h *Handler, ready Pinger, logger *log.Logger) *http.Server {
	mux := http.NewServeMux()
	h.Register(mux)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready.Ping(ctx); err != nil {
				writeError(w, http.StatusServiceUnavailable, "storage unavailable")
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	tracer := trace.NewMiddleware(logger, trace.ClientIP)
	return &http.Server{
		Addr:              addr,
		Handler:           tracer.Middleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
