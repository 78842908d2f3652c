package server

import (
	"log/slog"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"content-with-coffee/backend/internal/server/middleware"
	sessionhandler "content-with-coffee/backend/internal/session/handler"
)

// Deps holds the gRPC service implementations.
type Deps struct {
	// Tokens serves TokenService. If nil, its RPCs return Unimplemented.
	Tokens sessionhandler.TokenServiceServer
	// Health serves grpc.health.v1.Health. If nil, the health service is not registered.
	Health *health.Server
}

// RegisterServices registers all gRPC services with s.
//
//   - cwc.session.v1.TokenService → internal/session/handler
//   - grpc.health.v1.Health       → google.golang.org/grpc/health, fed by internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	tokens := deps.Tokens
	if tokens == nil {
		tokens = sessionhandler.NewGRPCServer(nil, nil)
	}
	sessionhandler.RegisterTokenServiceServer(s, tokens)
	if deps.Health != nil {
		healthpb.RegisterHealthServer(s, deps.Health)
	}
}

// healthMethods are served but not logged.
var healthMethods = map[string]bool{
	"/grpc.health.v1.Health/Check": true,
	"/grpc.health.v1.Health/Watch": true,
}

// NewGRPCServer returns a gRPC server with OTel stats and request logging, and deps registered.
func NewGRPCServer(deps Deps, logger *slog.Logger) *grpc.Server {
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(middleware.UnaryLogging(logger, healthMethods)),
	)
	RegisterServices(s, deps)
	return s
}
