package coordinator

import (
	"context"

	"google.golang.org/grpc"
)

const (
	CommandService_Handle_FullMethodName             = "/coordinator.v1.CommandService/Handle"
	CommandService_DryRun_FullMethodName             = "/coordinator.v1.CommandService/DryRun"
	EventQueryService_GetEventBook_FullMethodName    = "/coordinator.v1.EventQueryService/GetEventBook"
	EventQueryService_GetProcessState_FullMethodName = "/coordinator.v1.EventQueryService/GetProcessState"
)

// CommandServiceServer is the server API for coordinator.v1.CommandService.
type CommandServiceServer interface {
	Handle(context.Context, *HandleRequest) (*HandleResponse, error)
	DryRun(context.Context, *DryRunRequest) (*DryRunResponse, error)
}

// EventQueryServiceServer is the server API for coordinator.v1.EventQueryService.
type EventQueryServiceServer interface {
	GetEventBook(context.Context, *GetEventBookRequest) (*GetEventBookResponse, error)
	GetProcessState(context.Context, *GetProcessStateRequest) (*GetProcessStateResponse, error)
}

// CommandService_ServiceDesc describes coordinator.v1.CommandService.
var CommandService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "coordinator.v1.CommandService",
	HandlerType: (*CommandServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Handle",
			Handler: unary(CommandService_Handle_FullMethodName, func(srv CommandServiceServer) func(context.Context, *HandleRequest) (*HandleResponse, error) {
				return srv.Handle
			}),
		},
		{
			MethodName: "DryRun",
			Handler: unary(CommandService_DryRun_FullMethodName, func(srv CommandServiceServer) func(context.Context, *DryRunRequest) (*DryRunResponse, error) {
				return srv.DryRun
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "coordinator/v1/coordinator.json",
}

// EventQueryService_ServiceDesc describes coordinator.v1.EventQueryService.
var EventQueryService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "coordinator.v1.EventQueryService",
	HandlerType: (*EventQueryServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetEventBook",
			Handler: unary(EventQueryService_GetEventBook_FullMethodName, func(srv EventQueryServiceServer) func(context.Context, *GetEventBookRequest) (*GetEventBookResponse, error) {
				return srv.GetEventBook
			}),
		},
		{
			MethodName: "GetProcessState",
			Handler: unary(EventQueryService_GetProcessState_FullMethodName, func(srv EventQueryServiceServer) func(context.Context, *GetProcessStateRequest) (*GetProcessStateResponse, error) {
				return srv.GetProcessState
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "coordinator/v1/coordinator.json",
}

// RegisterCommandServiceServer registers srv on s.
func RegisterCommandServiceServer(s grpc.ServiceRegistrar, srv CommandServiceServer) {
	s.RegisterService(&CommandService_ServiceDesc, srv)
}

// RegisterEventQueryServiceServer registers srv on s.
func RegisterEventQueryServiceServer(s grpc.ServiceRegistrar, srv EventQueryServiceServer) {
	s.RegisterService(&EventQueryService_ServiceDesc, srv)
}

// unary builds the method handler for one RPC, decoding into a fresh Req and
// routing through the server interceptor chain when one is installed.
func unary[S any, Req any, Resp any](fullMethod string, method func(S) func(context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		call := method(srv.(S))
		if interceptor == nil {
			return call(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
