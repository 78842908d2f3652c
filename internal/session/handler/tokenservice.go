package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// TokenService full method names. Requests and responses are google.protobuf.StringValue:
// the token in, the user id out.
const (
	TokenServiceName          = "cwc.session.v1.TokenService"
	TokenServiceVerifyRefresh = "/" + TokenServiceName + "/VerifyRefresh"
	TokenServiceVerifyAccess  = "/" + TokenServiceName + "/VerifyAccess"
)

// TokenServiceServer is the server API for the peer token verification service.
type TokenServiceServer interface {
	VerifyRefresh(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	VerifyAccess(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
}

// TokenServiceDesc is the grpc.ServiceDesc for TokenService.
var TokenServiceDesc = grpc.ServiceDesc{
	ServiceName: TokenServiceName,
	HandlerType: (*TokenServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "VerifyRefresh", Handler: verifyRefreshHandler},
		{MethodName: "VerifyAccess", Handler: verifyAccessHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cwc/session/v1/token.proto",
}

// RegisterTokenServiceServer registers srv on s.
func RegisterTokenServiceServer(s grpc.ServiceRegistrar, srv TokenServiceServer) {
	s.RegisterService(&TokenServiceDesc, srv)
}

func verifyRefreshHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TokenServiceServer).VerifyRefresh(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: TokenServiceVerifyRefresh}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TokenServiceServer).VerifyRefresh(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func verifyAccessHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TokenServiceServer).VerifyAccess(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: TokenServiceVerifyAccess}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TokenServiceServer).VerifyAccess(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// TokenServiceClient calls TokenService on a peer.
type TokenServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewTokenServiceClient returns a client over cc.
func NewTokenServiceClient(cc grpc.ClientConnInterface) *TokenServiceClient {
	return &TokenServiceClient{cc: cc}
}

// VerifyRefresh returns the user id for a valid, unredeemed refresh token.
func (c *TokenServiceClient) VerifyRefresh(ctx context.Context, refreshToken string, opts ...grpc.CallOption) (string, error) {
	return c.invoke(ctx, TokenServiceVerifyRefresh, refreshToken, opts...)
}

// VerifyAccess returns the user id for a valid access token.
func (c *TokenServiceClient) VerifyAccess(ctx context.Context, accessToken string, opts ...grpc.CallOption) (string, error) {
	return c.invoke(ctx, TokenServiceVerifyAccess, accessToken, opts...)
}

func (c *TokenServiceClient) invoke(ctx context.Context, method, token string, opts ...grpc.CallOption) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, method, wrapperspb.String(token), out, opts...); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}
