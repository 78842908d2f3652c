package handler

import (
	"context"
	"errors"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"content-with-coffee/backend/internal/autherr"
	"content-with-coffee/backend/internal/security"
	"content-with-coffee/backend/internal/session/service"
	userrepo "content-with-coffee/backend/internal/user/repository"
)

func dialTokenService(t *testing.T, srv TokenServiceServer) *TokenServiceClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	RegisterTokenServiceServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewTokenServiceClient(conn)
}

func TestTokenService_EndToEnd(t *testing.T) {
	repo := userrepo.NewMemoryRepository()
	svc := service.NewSessionService(repo, security.NewHasher(security.MinPasswordCost), security.NewTestTokenProvider(),
		nil, nil, nil, nil, 0)
	ctx := context.Background()
	id, err := svc.Register(ctx, service.RegisterInput{Email: "a@b.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	login, err := svc.Login(ctx, "a@b.com", "secret123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	client := dialTokenService(t, NewGRPCServer(svc, nil))

	got, err := client.VerifyAccess(ctx, login.AccessToken)
	if err != nil || got != id {
		t.Fatalf("VerifyAccess = %q, %v; want %q", got, err, id)
	}
	got, err = client.VerifyRefresh(ctx, login.RefreshToken)
	if err != nil || got != id {
		t.Fatalf("VerifyRefresh = %q, %v; want %q", got, err, id)
	}
	// Verification does not consume: the token still rotates.
	if _, err := svc.Refresh(ctx, login.RefreshToken); err != nil {
		t.Fatalf("Refresh after VerifyRefresh: %v", err)
	}
	_, err = client.VerifyRefresh(ctx, login.RefreshToken)
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("VerifyRefresh of redeemed token: code = %v, want Unauthenticated", status.Code(err))
	}

	_, err = client.VerifyAccess(ctx, "")
	if st, _ := status.FromError(err); st.Code() != codes.Unauthenticated || st.Message() != "token missing" {
		t.Errorf("VerifyAccess(empty) = %v", err)
	}

	other, err := svc.Register(ctx, service.RegisterInput{Email: "c@d.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	otherLogin, _ := svc.Login(ctx, "c@d.com", "secret123")
	repo.Delete(other)
	_, err = client.VerifyRefresh(ctx, otherLogin.RefreshToken)
	if status.Code(err) != codes.NotFound {
		t.Errorf("VerifyRefresh for deleted user: code = %v, want NotFound", status.Code(err))
	}
}

type stubTokenVerifier struct {
	err error
}

func (s stubTokenVerifier) VerifyRefresh(context.Context, string) (string, error) { return "", s.err }
func (s stubTokenVerifier) VerifyAccess(context.Context, string) (string, error)  { return "", s.err }

func TestGRPCServer_ErrorMapping(t *testing.T) {
	testCases := []struct {
		name    string
		err     error
		code    codes.Code
		message string
	}{
		{"unauthorized", autherr.Unauthorized("invalid token"), codes.Unauthenticated, "invalid token"},
		{"not found", autherr.NotFound("user not found"), codes.NotFound, "user not found"},
		{"validation", autherr.Validation("bad input"), codes.InvalidArgument, "bad input"},
		{"configuration", autherr.Configuration("secret missing"), codes.Internal, "secret missing"},
		{"internal", autherr.Internal("lookup user", errors.New("conn reset")), codes.Internal, "internal server error"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := NewGRPCServer(stubTokenVerifier{err: tc.err}, nil)
			_, err := srv.VerifyAccess(context.Background(), wrapperspb.String("tok"))
			st, ok := status.FromError(err)
			if !ok {
				t.Fatalf("error is not a gRPC status: %v", err)
			}
			if st.Code() != tc.code || st.Message() != tc.message {
				t.Errorf("status = %v %q, want %v %q", st.Code(), st.Message(), tc.code, tc.message)
			}
		})
	}
}

func TestGRPCServer_NilService(t *testing.T) {
	srv := NewGRPCServer(nil, nil)
	_, err := srv.VerifyRefresh(context.Background(), wrapperspb.String("tok"))
	if status.Code(err) != codes.Unimplemented {
		t.Errorf("VerifyRefresh code = %v, want Unimplemented", status.Code(err))
	}
	_, err = srv.VerifyAccess(context.Background(), wrapperspb.String("tok"))
	if status.Code(err) != codes.Unimplemented {
		t.Errorf("VerifyAccess code = %v, want Unimplemented", status.Code(err))
	}
}
