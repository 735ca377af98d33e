package proto

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "marksync.v1.Marksync"

const (
	Marksync_Ping_FullMethodName         = "/marksync.v1.Marksync/Ping"
	Marksync_RegisterUser_FullMethodName = "/marksync.v1.Marksync/RegisterUser"
	Marksync_Login_FullMethodName        = "/marksync.v1.Marksync/Login"
	Marksync_RefreshToken_FullMethodName = "/marksync.v1.Marksync/RefreshToken"
	Marksync_Sync_FullMethodName         = "/marksync.v1.Marksync/Sync"
	Marksync_Export_FullMethodName       = "/marksync.v1.Marksync/Export"
)

// MarksyncServer is implemented by the server's gRPC handler.
type MarksyncServer interface {
	Ping(context.Context, *PingRequest) (*PingResponse, error)
	RegisterUser(context.Context, *RegisterUserRequest) (*RegisterUserResponse, error)
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	RefreshToken(context.Context, *RefreshTokenRequest) (*RefreshTokenResponse, error)
	Sync(context.Context, *SyncRequest) (*SyncResponse, error)
	Export(context.Context, *ExportRequest) (*ExportResponse, error)
}

func RegisterMarksyncServer(s grpc.ServiceRegistrar, srv MarksyncServer) {
	s.RegisterService(&Marksync_ServiceDesc, srv)
}

// unaryHandler adapts one typed method to grpc's untyped method handler.
func unaryHandler[Req any, Resp any](fullMethod string, call func(MarksyncServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MarksyncServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(MarksyncServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var Marksync_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MarksyncServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ping", Handler: unaryHandler(Marksync_Ping_FullMethodName, MarksyncServer.Ping)},
		{MethodName: "RegisterUser", Handler: unaryHandler(Marksync_RegisterUser_FullMethodName, MarksyncServer.RegisterUser)},
		{MethodName: "Login", Handler: unaryHandler(Marksync_Login_FullMethodName, MarksyncServer.Login)},
		{MethodName: "RefreshToken", Handler: unaryHandler(Marksync_RefreshToken_FullMethodName, MarksyncServer.RefreshToken)},
		{MethodName: "Sync", Handler: unaryHandler(Marksync_Sync_FullMethodName, MarksyncServer.Sync)},
		{MethodName: "Export", Handler: unaryHandler(Marksync_Export_FullMethodName, MarksyncServer.Export)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "marksync.proto",
}

// MarksyncClient is the client stub.
type MarksyncClient interface {
	Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error)
	RegisterUser(ctx context.Context, in *RegisterUserRequest, opts ...grpc.CallOption) (*RegisterUserResponse, error)
	Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*LoginResponse, error)
	RefreshToken(ctx context.Context, in *RefreshTokenRequest, opts ...grpc.CallOption) (*RefreshTokenResponse, error)
	Sync(ctx context.Context, in *SyncRequest, opts ...grpc.CallOption) (*SyncResponse, error)
	Export(ctx context.Context, in *ExportRequest, opts ...grpc.CallOption) (*ExportResponse, error)
}

type marksyncClient struct {
	cc grpc.ClientConnInterface
}

func NewMarksyncClient(cc grpc.ClientConnInterface) MarksyncClient {
	return &marksyncClient{cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.ForceCodec(Codec())}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *marksyncClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	return invoke[PingResponse](ctx, c.cc, Marksync_Ping_FullMethodName, in, opts)
}

func (c *marksyncClient) RegisterUser(ctx context.Context, in *RegisterUserRequest, opts ...grpc.CallOption) (*RegisterUserResponse, error) {
	return invoke[RegisterUserResponse](ctx, c.cc, Marksync_RegisterUser_FullMethodName, in, opts)
}

func (c *marksyncClient) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*LoginResponse, error) {
	return invoke[LoginResponse](ctx, c.cc, Marksync_Login_FullMethodName, in, opts)
}

func (c *marksyncClient) RefreshToken(ctx context.Context, in *RefreshTokenRequest, opts ...grpc.CallOption) (*RefreshTokenResponse, error) {
	return invoke[RefreshTokenResponse](ctx, c.cc, Marksync_RefreshToken_FullMethodName, in, opts)
}

func (c *marksyncClient) Sync(ctx context.Context, in *SyncRequest, opts ...grpc.CallOption) (*SyncResponse, error) {
	return invoke[SyncResponse](ctx, c.cc, Marksync_Sync_FullMethodName, in, opts)
}

func (c *marksyncClient) Export(ctx context.Context, in *ExportRequest, opts ...grpc.CallOption) (*ExportResponse, error) {
	return invoke[ExportResponse](ctx, c.cc, Marksync_Export_FullMethodName, in, opts)
}
