package http

import (
	"context"
	"html/template"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"moneymanager/internal/core"
	"moneymanager/internal/log"
	"moneymanager/internal/middleware/ratelimit"
	"moneymanager/internal/middleware/security"
	"moneymanager/internal/middleware/trace"
	"moneymanager/internal/session"
	appweb "moneymanager/web"
)

// DefaultSettleTimeout bounds how long a render waits for pending refetches.
const DefaultSettleTimeout = 15 * time.Second

// Session is what the UI needs from the client-side session.
type Session interface {
	Submit(ctx context.Context, form core.Form) error
	Edit(form core.Form)
	Remove(ctx context.Context, id core.ID) error
	SetFilter(ctx context.Context, f core.Filter) error
	DismissNotice()
	Snapshot() session.View
	Settled(ctx context.Context) error
}

type Server struct {
	http.Server
	templates     *template.Template
	session       Session
	logger        *log.Logger
	now           func() time.Time
	settleTimeout time.Duration

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	appMetrics       *appMetrics

	shutdownOnce sync.Once
}

type appMetrics struct {
	uptime             time.Time
	created            atomic.Int64
	deleted            atomic.Int64
	validationFailures atomic.Int64
	transportFailures  atomic.Int64
}

// Option configures a Server.
type Option func(*Server)

// WithClock sets the clock used for the default form date.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSettleTimeout bounds the wait for pending refetches before a render.
func WithSettleTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.settleTimeout = d
		}
	}
}

// WithRateLimit replaces the default mutation rate limit.
func WithRateLimit(cfg ratelimit.Config) Option {
	return func(s *Server) {
		s.rateLimiter.Stop()
		s.rateLimiter = ratelimit.NewLimiter(cfg)
	}
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run server.
func NewServer(addr string, sess Session, logger *log.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	httpLogger := logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		session:          sess,
		logger:           httpLogger,
		now:              time.Now,
		settleTimeout:    DefaultSettleTimeout,
		rateLimiter:      ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		securityDetector: security.NewDetector(logger),
		appMetrics:       &appMetrics{uptime: time.Now()},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.traceMiddleware = trace.NewMiddleware(logger, s.securityDetector.ExtractClientIP)

	t, err := appweb.ParseTemplates()
	if err != nil {
		httpLogger.Warn("Failed parsing templates",
			log.FieldError, err,
			log.FieldComponent, log.ComponentTemplate)
	}
	s.templates = t

	mux := http.NewServeMux()

	if sub, err := appweb.Static(); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		httpLogger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	// UI partials
	mux.HandleFunc("GET /ui/history", s.handleHistory)
	mux.HandleFunc("POST /ui/filter", s.handleFilter)
	mux.HandleFunc("POST /ui/form", s.handleFormEdit)
	mux.HandleFunc("DELETE /ui/notice", s.handleDismissNotice)

	mux.HandleFunc("POST /transactions", s.handleCreateTransaction)
	mux.HandleFunc("DELETE /transactions/{id}", s.handleDeleteTransaction)
	mux.HandleFunc("POST /transactions/{id}", s.handleDeleteTransaction)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limited := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, logger, func(w http.ResponseWriter, r *http.Request) {
		NewHTMXResponse().
			Status(http.StatusTooManyRequests).
			TriggerErrorNotification("Too many requests, please slow down").
			Write(w)
	})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.traceMiddleware.Middleware(s.securityDetector.Middleware(headers.Middleware(limited(mux)))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      s.settleTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}
	return s
}

// Shutdown stops the rate limiter and gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
