package handler

import (
	"context"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"content-with-coffee/backend/internal/autherr"
)

// TokenVerifier is the part of the session service the gRPC peer API needs.
type TokenVerifier interface {
	VerifyRefresh(ctx context.Context, refreshToken string) (string, error)
	VerifyAccess(ctx context.Context, accessToken string) (string, error)
}

// GRPCServer implements TokenServiceServer.
type GRPCServer struct {
	svc TokenVerifier
	log *slog.Logger
}

// NewGRPCServer returns a TokenService server. If svc is nil, all RPCs return Unimplemented.
func NewGRPCServer(svc TokenVerifier, logger *slog.Logger) *GRPCServer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &GRPCServer{svc: svc, log: logger}
}

// VerifyRefresh checks a refresh token without consuming it and returns the owning user id.
func (s *GRPCServer) VerifyRefresh(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	if s.svc == nil {
		return nil, status.Error(codes.Unimplemented, "method VerifyRefresh not implemented")
	}
	userID, err := s.svc.VerifyRefresh(ctx, req.GetValue())
	if err != nil {
		return nil, s.grpcError(ctx, "VerifyRefresh", err)
	}
	return wrapperspb.String(userID), nil
}

// VerifyAccess checks an access token and returns its subject.
func (s *GRPCServer) VerifyAccess(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	if s.svc == nil {
		return nil, status.Error(codes.Unimplemented, "method VerifyAccess not implemented")
	}
	userID, err := s.svc.VerifyAccess(ctx, req.GetValue())
	if err != nil {
		return nil, s.grpcError(ctx, "VerifyAccess", err)
	}
	return wrapperspb.String(userID), nil
}

func (s *GRPCServer) grpcError(ctx context.Context, method string, err error) error {
	code := grpcCode(autherr.KindOf(err))
	if code == codes.Internal {
		s.log.ErrorContext(ctx, "grpc.token_service.fail", "method", method, "error", err)
	}
	return status.Error(code, autherr.PublicMessage(err))
}

func grpcCode(k autherr.Kind) codes.Code {
	switch k {
	case autherr.KindValidation:
		return codes.InvalidArgument
	case autherr.KindUnauthorized:
		return codes.Unauthenticated
	case autherr.KindNotFound:
		return codes.NotFound
	case autherr.KindConflict:
		return codes.AlreadyExists
	default:
		return codes.Internal
	}
}
