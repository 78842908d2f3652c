// Package handler serves liveness and readiness probes over HTTP and keeps the gRPC health
// service in step with store reachability.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const defaultPingTimeout = 2 * time.Second

// Pinger checks the user store connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker reports liveness and store readiness.
type Checker struct {
	pinger  Pinger
	timeout time.Duration
	log     *slog.Logger
}

// NewChecker returns a Checker. If pinger is nil, readiness is always reported.
func NewChecker(pinger Pinger, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Checker{pinger: pinger, timeout: defaultPingTimeout, log: logger}
}

// Ready pings the store with a bounded timeout.
func (c *Checker) Ready(ctx context.Context) error {
	if c.pinger == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.pinger.Ping(ctx)
}

// Healthz answers 200 "ok" while the process is serving.
func (c *Checker) Healthz(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

// Readyz answers 200 "ready" when the store responds and 503 otherwise.
func (c *Checker) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := c.Ready(r.Context()); err != nil {
		c.log.WarnContext(r.Context(), "health.readyz.fail", "error", err)
		writeText(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeText(w, http.StatusOK, "ready")
}

// Watch sets the serving status of services on hs from Ready every interval until ctx is done.
// The empty service name is always included.
func (c *Checker) Watch(ctx context.Context, hs *health.Server, interval time.Duration, services ...string) {
	services = append([]string{""}, services...)
	update := func() {
		st := healthpb.HealthCheckResponse_SERVING
		if err := c.Ready(ctx); err != nil {
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
		for _, s := range services {
			hs.SetServingStatus(s, st)
		}
	}
	update()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			update()
		}
	}
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
