// Package syncapi describes the cabinetsync gRPC surface: message types,
// their protobuf wire encoding and the service descriptor shared by server
// and client. The schema lives in api/proto/sync.proto.
package syncapi

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "cabinetsync.SyncService"

// Full method names, as seen by interceptors.
const (
	MethodShare    = "/" + ServiceName + "/Share"
	MethodRetrieve = "/" + ServiceName + "/Retrieve"
	MethodList     = "/" + ServiceName + "/List"
	MethodRevoke   = "/" + ServiceName + "/Revoke"
	MethodPing     = "/" + ServiceName + "/Ping"
)

type SyncServiceServer interface {
	Share(context.Context, *ShareRequest) (*ShareResponse, error)
	Retrieve(context.Context, *RetrieveRequest) (*RetrieveResponse, error)
	List(context.Context, *ListRequest) (*ListResponse, error)
	Revoke(context.Context, *RevokeRequest) (*RevokeResponse, error)
	Ping(context.Context, *PingRequest) (*PingResponse, error)
}

func unary[Req, Resp any](fullMethod string, call func(SyncServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SyncServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SyncServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SyncServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Share", Handler: unary(MethodShare, SyncServiceServer.Share)},
		{MethodName: "Retrieve", Handler: unary(MethodRetrieve, SyncServiceServer.Retrieve)},
		{MethodName: "List", Handler: unary(MethodList, SyncServiceServer.List)},
		{MethodName: "Revoke", Handler: unary(MethodRevoke, SyncServiceServer.Revoke)},
		{MethodName: "Ping", Handler: unary(MethodPing, SyncServiceServer.Ping)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sync.proto",
}

func RegisterSyncServiceServer(s grpc.ServiceRegistrar, srv SyncServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// SyncServiceClient calls SyncService over cc using the protowire codec.
type SyncServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewSyncServiceClient(cc grpc.ClientConnInterface) *SyncServiceClient {
	return &SyncServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SyncServiceClient) Share(ctx context.Context, in *ShareRequest, opts ...grpc.CallOption) (*ShareResponse, error) {
	return invoke[ShareResponse](ctx, c.cc, MethodShare, in, opts)
}

func (c *SyncServiceClient) Retrieve(ctx context.Context, in *RetrieveRequest, opts ...grpc.CallOption) (*RetrieveResponse, error) {
	return invoke[RetrieveResponse](ctx, c.cc, MethodRetrieve, in, opts)
}

func (c *SyncServiceClient) List(ctx context.Context, in *ListRequest, opts ...grpc.CallOption) (*ListResponse, error) {
	return invoke[ListResponse](ctx, c.cc, MethodList, in, opts)
}

func (c *SyncServiceClient) Revoke(ctx context.Context, in *RevokeRequest, opts ...grpc.CallOption) (*RevokeResponse, error) {
	return invoke[RevokeResponse](ctx, c.cc, MethodRevoke, in, opts)
}

func (c *SyncServiceClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	return invoke[PingResponse](ctx, c.cc, MethodPing, in, opts)
}
