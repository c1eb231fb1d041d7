package security

import (
	"net/http"
	"strconv"
	"strings"
)

// HeadersConfig lists the response headers the UI sends. Empty values are
// not sent.
type HeadersConfig struct {
	// CSP directives, joined with "; ".
	CSP []string

	// HSTS is only sent over TLS.
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool

	XFrameOptions       string
	XContentTypeOptions string
	ReferrerPolicy      string
	PermissionsPolicy   string
	CrossOriginOpener   string
	CrossOriginResource string
}

// DefaultHeadersConfig allows htmx from unpkg and nothing else off-origin.
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		CSP: []string{
			"default-src 'self'",
			"script-src 'self' https://unpkg.com",
			"style-src 'self' 'unsafe-inline'",
			"img-src 'self' data:",
			"connect-src 'self'",
			"object-src 'none'",
			"frame-ancestors 'none'",
			"base-uri 'self'",
			"form-action 'self'",
		},
		HSTSMaxAge:            31536000,
		HSTSIncludeSubdomains: true,
		XFrameOptions:         "DENY",
		XContentTypeOptions:   "nosniff",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		PermissionsPolicy:     "geolocation=(), microphone=(), camera=(), payment=()",
		CrossOriginOpener:     "same-origin",
		CrossOriginResource:   "same-origin",
	}
}

type header struct{ name, value string }

// HeadersMiddleware sets a fixed header list computed once from its config.
type HeadersMiddleware struct {
	always []header
	hsts   string
}

func NewHeadersMiddleware(config HeadersConfig) *HeadersMiddleware {
	h := &HeadersMiddleware{}
	for _, kv := range []header{
		{"X-Content-Type-Options", config.XContentTypeOptions},
		{"X-Frame-Options", config.XFrameOptions},
		{"Content-Security-Policy", strings.Join(config.CSP, "; ")},
		{"Referrer-Policy", config.ReferrerPolicy},
		{"Permissions-Policy", config.PermissionsPolicy},
		{"Cross-Origin-Opener-Policy", config.CrossOriginOpener},
		{"Cross-Origin-Resource-Policy", config.CrossOriginResource},
	} {
		if kv.value != "" {
			h.always = append(h.always, kv)
		}
	}
	if config.HSTSMaxAge > 0 {
		h.hsts = "max-age=" + strconv.Itoa(config.HSTSMaxAge)
		if config.HSTSIncludeSubdomains {
			h.hsts += "; includeSubDomains"
		}
	}
	return h
}

func (h *HeadersMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dst := w.Header()
		for _, kv := range h.always {
			dst.Set(kv.name, kv.value)
		}
		if r.TLS != nil && h.hsts != "" {
			dst.Set("Strict-Transport-Security", h.hsts)
		}
		next.ServeHTTP(w, r)
	})
}

// StaticAssetMiddleware marks embedded assets cacheable for maxAge seconds.
func StaticAssetMiddleware(maxAge int) func(http.Handler) http.Handler {
	value := "public, max-age=" + strconv.Itoa(maxAge)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxAge > 0 {
				w.Header().Set("Cache-Control", value)
			}
			next.ServeHTTP(w, r)
		})
	}
}
