// Package grpcctl exposes a gRPC control plane for the server process:
// the standard grpc_health_v1 health service plus a small hand-registered
// Control service (Stats, Drain), grounded on
// 0xinfinitykernel-telepresence's use of google.golang.org/grpc as the
// control-plane transport. No .proto codegen is invoked; Control's
// request/response types reuse the pre-compiled well-known types from
// google.golang.org/protobuf/types/known (emptypb, structpb), and its
// grpc.ServiceDesc is built by hand the way a generated _grpc.pb.go file
// would, wired directly to grpc.Server.RegisterService.
package grpcctl

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// StatsProvider reports a point-in-time snapshot of server state as a
// flat string-keyed map, so it can be marshaled into a structpb.Struct
// without the Control service needing to know about room/connection
// internals.
type StatsProvider interface {
	Stats() map[string]interface{}
}

// Drainer begins (or reports) a graceful shutdown drain.
type Drainer interface {
	BeginDrain() error
}

// ControlServer implements the hand-registered Control gRPC service.
type ControlServer struct {
	stats  StatsProvider
	drain  Drainer
}

// NewControlServer builds a ControlServer backed by stats and drain.
func NewControlServer(stats StatsProvider, drain Drainer) *ControlServer {
	return &ControlServer{stats: stats, drain: drain}
}

// Stats returns the current server snapshot as a google.protobuf.Struct.
func (c *ControlServer) Stats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return structpb.NewStruct(c.stats.Stats())
}

// Drain triggers a graceful shutdown drain and returns once it has been
// initiated (not once it has completed).
func (c *ControlServer) Drain(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := c.drain.BeginDrain(); err != nil {
		return nil, err
	}
	return &emptypb.Empty{}, nil
}

func statsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*ControlServer).Stats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/control.Control/Stats"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*ControlServer).Stats(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func drainHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*ControlServer).Drain(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/control.Control/Drain"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*ControlServer).Drain(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// controlServiceDesc is the hand-built equivalent of what protoc-gen-go-grpc
// would emit for a Control service with two empty-request RPCs.
var controlServiceDesc = grpc.ServiceDesc{
	ServiceName: "control.Control",
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Stats", Handler: statsHandler},
		{MethodName: "Drain", Handler: drainHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/adapters/grpcctl/grpcctl.go",
}

// RegisterControlServer registers srv onto s using the hand-built service
// descriptor.
func RegisterControlServer(s *grpc.Server, srv *ControlServer) {
	s.RegisterService(&controlServiceDesc, srv)
}

// NewServer builds a *grpc.Server with the standard health service and
// the Control service both registered, and marks serviceName SERVING.
func NewServer(serviceName string, stats StatsProvider, drain Drainer) *grpc.Server {
	s := grpc.NewServer()

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, healthSrv)

	RegisterControlServer(s, NewControlServer(stats, drain))
	return s
}
