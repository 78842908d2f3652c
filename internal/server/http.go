package server

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	healthhandler "content-with-coffee/backend/internal/health/handler"
	"content-with-coffee/backend/internal/server/middleware"
	sessionhandler "content-with-coffee/backend/internal/session/handler"
)

// HTTPDeps holds what the HTTP routes need.
type HTTPDeps struct {
	Session  *sessionhandler.HTTPHandler
	Verifier middleware.AccessVerifier
	Health   *healthhandler.Checker
	Logger   *slog.Logger
}

// NewHTTPHandler returns the routed, logged and instrumented HTTP handler.
func NewHTTPHandler(d HTTPDeps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	requireAuth := middleware.RequireAuth(d.Verifier)
	optionalAuth := middleware.OptionalAuth(d.Verifier)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", d.Session.Register)
	mux.HandleFunc("POST /login", d.Session.Login)
	mux.HandleFunc("POST /refresh", d.Session.Refresh)
	mux.Handle("POST /logout", optionalAuth(http.HandlerFunc(d.Session.Logout)))
	mux.Handle("GET /me", requireAuth(http.HandlerFunc(d.Session.Me)))
	mux.HandleFunc("POST /google", d.Session.Google)
	if d.Health != nil {
		mux.HandleFunc("GET /healthz", d.Health.Healthz)
		mux.HandleFunc("GET /readyz", d.Health.Readyz)
	}

	return otelhttp.NewHandler(middleware.RequestLog(logger)(mux), "http.server",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// NewHTTPServer returns an http.Server for h with read, write and idle timeouts.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
