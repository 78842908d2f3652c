// Package server wires config, the user store, telemetry and the HTTP and gRPC servers.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"content-with-coffee/backend/internal/audit"
	"content-with-coffee/backend/internal/config"
	healthhandler "content-with-coffee/backend/internal/health/handler"
	googleauth "content-with-coffee/backend/internal/oauth/google"
	"content-with-coffee/backend/internal/security"
	"content-with-coffee/backend/internal/server/middleware"
	sessionhandler "content-with-coffee/backend/internal/session/handler"
	"content-with-coffee/backend/internal/session/service"
	otelsetup "content-with-coffee/backend/internal/telemetry/otel"
	"content-with-coffee/backend/internal/user/repository"
)

const (
	shutdownTimeout     = 10 * time.Second
	healthWatchInterval = 10 * time.Second
)

// App owns the HTTP and gRPC servers and the resources they share.
type App struct {
	cfg       *config.Config
	log       *slog.Logger
	repo      repository.Repository
	closeRepo func(context.Context) error
	providers *otelsetup.Providers
	checker   *healthhandler.Checker
	health    *health.Server
	handler   http.Handler
	httpSrv   *http.Server
	grpcSrv   *grpc.Server
}

// Option configures New.
type Option func(*options)

type options struct {
	repo repository.Repository
}

// WithRepository uses repo instead of opening the store named by DATABASE_URL.
func WithRepository(repo repository.Repository) Option {
	return func(o *options) { o.repo = repo }
}

// New builds an App from cfg. It connects to the user store; failure to connect is returned
// and is fatal to the caller.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	providers, err := otelsetup.NewProviders(ctx, otelsetup.Options{
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
	})
	if err != nil {
		return nil, err
	}
	providers.SetGlobal()

	a := &App{cfg: cfg, log: logger, providers: providers, repo: o.repo, closeRepo: func(context.Context) error { return nil }}
	if a.repo == nil {
		store, err := repository.Open(ctx, cfg.StoreDriver(), cfg.DatabaseURL, cfg.MongoDatabase)
		if err != nil {
			_ = providers.Shutdown(ctx)
			return nil, err
		}
		a.repo = store
		a.closeRepo = store.Close
	}

	recorder, err := audit.NewLogger(providers.LoggerProvider, providers.MeterProvider, middleware.GetClientIP)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	tokens := security.NewTokenProvider(cfg.AccessTokenSecret, cfg.RefreshTokenSecret, cfg.JWTIssuer, cfg.JWTAudience,
		cfg.AccessTTL(), cfg.RefreshTTL())
	if !tokens.AccessConfigured() || !tokens.RefreshConfigured() {
		logger.Warn("config.token_secrets_missing", "access", tokens.AccessConfigured(), "refresh", tokens.RefreshConfigured())
	}
	var google googleauth.Verifier
	if cfg.GoogleClientID != "" {
		google = googleauth.NewIDTokenVerifier(cfg.GoogleClientID)
	}
	svc := service.NewSessionService(a.repo, security.NewHasher(cfg.BcryptCost), tokens, google,
		googleauth.NewRevoker(nil, googleauth.RevokeURL), recorder, logger, cfg.MaxSessionsPerUser)

	a.checker = healthhandler.NewChecker(a.repo, logger)
	a.handler = NewHTTPHandler(HTTPDeps{
		Session: sessionhandler.NewHTTPHandler(svc, sessionhandler.CookieConfig{
			Name:   cfg.RefreshCookieName,
			Path:   cfg.RefreshCookiePath,
			Secure: cfg.IsProduction(),
			MaxAge: cfg.RefreshTTL(),
		}, logger),
		Verifier: svc,
		Health:   a.checker,
		Logger:   logger,
	})
	a.httpSrv = NewHTTPServer(cfg.HTTPAddr, a.handler)
	if cfg.GRPCAddr != "" {
		a.health = health.NewServer()
		a.grpcSrv = NewGRPCServer(Deps{Tokens: sessionhandler.NewGRPCServer(svc, logger), Health: a.health}, logger)
	}
	return a, nil
}

// Handler returns the HTTP handler with all routes.
func (a *App) Handler() http.Handler { return a.handler }

// Run listens on the configured addresses and serves until ctx is done or a server fails.
func (a *App) Run(ctx context.Context) error {
	httpLis, err := net.Listen("tcp", a.cfg.HTTPAddr)
	if err != nil {
		return err
	}
	var grpcLis net.Listener
	if a.grpcSrv != nil {
		grpcLis, err = net.Listen("tcp", a.cfg.GRPCAddr)
		if err != nil {
			_ = httpLis.Close()
			return err
		}
	}
	return a.Serve(ctx, httpLis, grpcLis)
}

// Serve serves HTTP on httpLis and, when gRPC is enabled, gRPC on grpcLis. On return both servers
// have been shut down gracefully within the shutdown timeout.
func (a *App) Serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()

	errCh := make(chan error, 2)
	a.log.Info("server.start", "http_addr", httpLis.Addr().String(), "store", a.cfg.StoreDriver())
	go func() {
		if err := a.httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	if a.grpcSrv != nil && grpcLis != nil {
		go a.checker.Watch(watchCtx, a.health, healthWatchInterval, sessionhandler.TokenServiceName)
		a.log.Info("grpc.start", "addr", grpcLis.Addr().String())
		go func() {
			if err := a.grpcSrv.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case runErr = <-errCh:
		a.log.Error("server.fail", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if a.health != nil {
		a.health.Shutdown()
	}
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "error", err)
		runErr = errors.Join(runErr, err)
	}
	if a.grpcSrv != nil {
		a.stopGRPC(shutdownCtx)
	}
	a.log.Info("server.stopped")
	return runErr
}

// stopGRPC drains in-flight RPCs, forcing a stop when ctx expires first.
func (a *App) stopGRPC(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		a.grpcSrv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.grpcSrv.Stop()
	}
}

// Close releases the store connection and flushes telemetry.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.closeRepo != nil {
		if err := a.closeRepo(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.providers != nil {
		if err := a.providers.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
