package router

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ovaphlow/scanner-portal/internal/auth"
	"github.com/ovaphlow/scanner-portal/internal/diagnostic"
	"github.com/ovaphlow/scanner-portal/internal/metrics"
	"github.com/ovaphlow/scanner-portal/internal/user"
	"github.com/ovaphlow/scanner-portal/internal/web"
	"github.com/ovaphlow/scanner-portal/pkg/utilities"
)

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// RequestIDMiddleware keeps an incoming X-Request-Id or assigns a new one.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-Id")
			if id == "" || len(id) > 64 {
				id = utilities.NewRequestID()
				r.Header.Set("X-Request-Id", id)
			}
			w.Header().Set("X-Request-Id", id)
			next.ServeHTTP(w, r)
		})
	}
}

// LoggingMiddleware returns a middleware that logs requests at debug level using the provided sugared logger.
// It also records request metrics labelled by the route pattern routes matches.
func LoggingMiddleware(logger *zap.SugaredLogger, routes *http.ServeMux) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := "unmatched"
			if routes != nil {
				if _, pattern := routes.Handler(r); pattern != "" {
					route = pattern
				}
			}
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			// ensure status is set
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			metrics.RecordRequest(r.Method, route, status, dur.Seconds())
			logger.Debugw("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"route", route,
				"request_id", r.Header.Get("X-Request-Id"),
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware returns a middleware that sets common HTTP security headers.
// The CSP admits the Clerk browser SDK and its frontend API.
func SecurityHeadersMiddleware(clerkOrigin string) func(http.Handler) http.Handler {
	csp := "default-src 'self'; object-src 'none'; base-uri 'self'; img-src 'self' https://img.clerk.com data:; " +
		"script-src 'self' 'unsafe-inline' https://cdn.jsdelivr.net" + withOrigin(clerkOrigin) + "; " +
		"connect-src 'self'" + withOrigin(clerkOrigin) + "; " +
		"frame-src 'self' https://challenges.cloudflare.com; worker-src 'self' blob:; style-src 'self' 'unsafe-inline'"
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", csp)
			}
			// HSTS only over TLS
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

func withOrigin(origin string) string {
	if origin == "" {
		return ""
	}
	return " " + origin
}

// Deps are the handlers and collaborators the router mounts.
type Deps struct {
	Logger      *zap.SugaredLogger
	Verifier    auth.TokenVerifier
	Users       *user.Handler
	Diagnostics *diagnostic.Handler
	Pages       *web.Pages
	// ClerkOrigin is the https origin of the Clerk frontend API, for the CSP.
	ClerkOrigin string
}

// RegisterRoutes mounts HTTP handlers using the standard library's http.ServeMux.
// Handlers that need a signed-in caller are only reachable through auth.Require.
func RegisterRoutes(d Deps) http.Handler {
	logger := d.Logger
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	// pages
	mux.HandleFunc("GET /{$}", d.Pages.Home)
	mux.HandleFunc("GET /sign-in", d.Pages.SignIn)
	mux.HandleFunc("GET /sign-in/", d.Pages.SignIn)
	mux.HandleFunc("GET /sign-up", d.Pages.SignUp)
	mux.HandleFunc("GET /sign-up/", d.Pages.SignUp)
	mux.Handle("GET /static/", web.Static())

	// api
	mux.HandleFunc("GET /api/test", d.Diagnostics.Ping)
	mux.HandleFunc("POST /api/test", d.Diagnostics.Echo)
	mux.Handle("GET /api/debug/me", auth.Require(logger, d.Diagnostics.Me))
	mux.Handle("POST /api/user/sync", auth.Require(logger, d.Users.Sync))
	mux.Handle("GET /api/user/me", auth.Require(logger, d.Users.Me))

	// outermost first: request id, logging, security headers, gate, session
	var handler http.Handler = mux
	handler = auth.Resolve(logger, d.Verifier)(handler)
	handler = Gate(logger)(handler)
	handler = SecurityHeadersMiddleware(d.ClerkOrigin)(handler)
	handler = LoggingMiddleware(logger, mux)(handler)
	handler = RequestIDMiddleware()(handler)
	return handler
}
