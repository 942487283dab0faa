package scheduler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "scheduler.v1.SchedulerService"

const (
	RunOnceMethod   = "/" + ServiceName + "/RunOnce"
	ReconcileMethod = "/" + ServiceName + "/Reconcile"
)

// SchedulerServiceServer is the server API for the scheduler trigger service.
// Requests and responses are google.protobuf.Struct so no generated code is needed.
type SchedulerServiceServer interface {
	RunOnce(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reconcile(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterSchedulerServiceServer registers srv on s
func RegisterSchedulerServiceServer(s grpc.ServiceRegistrar, srv SchedulerServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes scheduler.v1.SchedulerService
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SchedulerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RunOnce", Handler: unaryHandler(RunOnceMethod, SchedulerServiceServer.RunOnce)},
		{MethodName: "Reconcile", Handler: unaryHandler(ReconcileMethod, SchedulerServiceServer.Reconcile)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "scheduler/v1/scheduler.proto",
}

func unaryHandler(
	fullMethod string,
	call func(SchedulerServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error),
) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SchedulerServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(SchedulerServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Client calls a remote scheduler trigger service
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient creates a new scheduler service client
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// RunOnce triggers one pass on the remote server
func (c *Client) RunOnce(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, RunOnceMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Reconcile triggers a reconciliation sweep on the remote server
func (c *Client) Reconcile(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ReconcileMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
