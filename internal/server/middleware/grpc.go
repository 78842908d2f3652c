package middleware

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// UnaryLogging returns a unary server interceptor that sets the request id and client IP in
// context and logs each RPC. skipMethods are served but not logged (e.g. health checks).
func UnaryLogging(logger *slog.Logger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		reqID := firstMetadata(ctx, "x-request-id")
		if reqID == "" {
			reqID = ulid.Make().String()
		}
		ctx = WithRequestID(ctx, reqID)
		ctx = WithClientIP(ctx, GRPCClientIP(ctx))

		resp, err := handler(ctx, req)
		if skipMethods[info.FullMethod] {
			return resp, err
		}
		code := status.Code(err)
		level := slog.LevelInfo
		switch code {
		case codes.OK, codes.Unauthenticated, codes.NotFound, codes.InvalidArgument:
		default:
			level = slog.LevelError
		}
		logger.Log(ctx, level, "grpc.request",
			"method", info.FullMethod,
			"code", code.String(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", GetClientIP(ctx),
			"request_id", reqID,
		)
		return resp, err
	}
}

// GRPCClientIP returns the client IP from gRPC metadata (x-forwarded-for, x-real-ip) or the peer, or "unknown".
func GRPCClientIP(ctx context.Context) string {
	if s := firstForwarded(firstMetadata(ctx, "x-forwarded-for")); s != "" {
		return s
	}
	if s := firstMetadata(ctx, "x-real-ip"); s != "" {
		return s
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return hostOnly(p.Addr.String())
	}
	return "unknown"
}

func firstMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get(key)
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}
