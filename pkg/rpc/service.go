package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/yourusername/pairlab/pkg/api"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "pairlab.AnalysisService"

// Full method names.
const (
	MethodRun      = "/" + ServiceName + "/Run"
	MethodOptimize = "/" + ServiceName + "/Optimize"
)

// AnalysisServer is implemented by the gRPC analysis service.
type AnalysisServer interface {
	Run(context.Context, *api.RunRequest) (*api.RunResponse, error)
	Optimize(context.Context, *api.OptimizeRequest) (*api.OptimizeResponse, error)
}

// ServiceDesc describes AnalysisService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AnalysisServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Run", Handler: runHandler},
		{MethodName: "Optimize", Handler: optimizeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pairlab/analysis",
}

// RegisterAnalysisServer registers srv on s.
func RegisterAnalysisServer(s grpc.ServiceRegistrar, srv AnalysisServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func runHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(api.RunRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnalysisServer).Run(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodRun}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AnalysisServer).Run(ctx, req.(*api.RunRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func optimizeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(api.OptimizeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnalysisServer).Optimize(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodOptimize}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AnalysisServer).Optimize(ctx, req.(*api.OptimizeRequest))
	}
	return interceptor(ctx, in, info, handler)
}
