package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	for name, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	} {
		if got := rec.Header().Get(name); got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
	if csp := rec.Header().Get("Content-Security-Policy"); !strings.Contains(csp, "script-src 'self' https://unpkg.com; ") {
		t.Errorf("Content-Security-Policy = %q", csp)
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS must not be sent over plain HTTP")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Errorf("Strict-Transport-Security = %q", got)
	}
}

func TestHeadersMiddlewareSkipsEmptyValues(t *testing.T) {
	h := NewHeadersMiddleware(HeadersConfig{XFrameOptions: "SAMEORIGIN"}).Middleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Frame-Options"); got != "SAMEORIGIN" {
		t.Errorf("X-Frame-Options = %q", got)
	}
	for _, name := range []string{"Content-Security-Policy", "Referrer-Policy", "Strict-Transport-Security"} {
		if _, ok := rec.Header()[name]; ok {
			t.Errorf("%s sent with an empty config", name)
		}
	}
}

func TestDetectorSuspicious(t *testing.T) {
	d := NewDetector(nil)
	tests := []struct {
		name   string
		method string
		target string
		agent  string
		want   bool
	}{
		{"plain page", http.MethodGet, "/", "Mozilla/5.0", false},
		{"history partial", http.MethodGet, "/ui/history", "Mozilla/5.0", false},
		{"path traversal", http.MethodGet, "/static/../../etc/passwd", "Mozilla/5.0", true},
		{"dotenv probe", http.MethodGet, "/.env", "Mozilla/5.0", true},
		{"sql in query", http.MethodGet, "/ui/history?type=x%20union%20select", "Mozilla/5.0", true},
		{"scanner agent", http.MethodGet, "/", "sqlmap/1.7", true},
		{"trace method", "TRACE", "/", "Mozilla/5.0", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, tt.target, nil)
			r.Header.Set("User-Agent", tt.agent)
			if got := d.Suspicious(r); got != tt.want {
				t.Errorf("Suspicious() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetectorMiddlewareBlocks(t *testing.T) {
	d := NewDetector(nil)
	d.Block = true
	h := d.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.git/config", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}

	m := d.GetMetrics()
	if m.SuspiciousRequests != 1 || m.BlockedRequests != 1 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestExtractClientIP(t *testing.T) {
	d := NewDetector(nil)
	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"direct client", "203.0.113.5:1234", "", "203.0.113.5"},
		{"untrusted proxy header ignored", "203.0.113.5:1234", "198.51.100.1", "203.0.113.5"},
		{"trusted proxy", "10.0.0.2:1234", "198.51.100.1, 10.0.0.2", "198.51.100.1"},
		{"trusted proxy bad header", "10.0.0.2:1234", "garbage", "10.0.0.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := d.ExtractClientIP(r); got != tt.want {
				t.Errorf("ExtractClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
