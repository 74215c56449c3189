package coordinator

import (
	"context"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	platformgrpc "github.com/louisbranch/evented/internal/platform/grpc"
)

// CommandServiceClient is the client API for coordinator.v1.CommandService.
type CommandServiceClient interface {
	Handle(ctx context.Context, in *HandleRequest, opts ...grpc.CallOption) (*HandleResponse, error)
	DryRun(ctx context.Context, in *DryRunRequest, opts ...grpc.CallOption) (*DryRunResponse, error)
}

// EventQueryServiceClient is the client API for coordinator.v1.EventQueryService.
type EventQueryServiceClient interface {
	GetEventBook(ctx context.Context, in *GetEventBookRequest, opts ...grpc.CallOption) (*GetEventBookResponse, error)
	GetProcessState(ctx context.Context, in *GetProcessStateRequest, opts ...grpc.CallOption) (*GetProcessStateResponse, error)
}

type commandServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewCommandServiceClient creates a CommandService client on cc.
func NewCommandServiceClient(cc grpc.ClientConnInterface) CommandServiceClient {
	return &commandServiceClient{cc: cc}
}

func (c *commandServiceClient) Handle(ctx context.Context, in *HandleRequest, opts ...grpc.CallOption) (*HandleResponse, error) {
	out := new(HandleResponse)
	if err := c.cc.Invoke(ctx, CommandService_Handle_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *commandServiceClient) DryRun(ctx context.Context, in *DryRunRequest, opts ...grpc.CallOption) (*DryRunResponse, error) {
	out := new(DryRunResponse)
	if err := c.cc.Invoke(ctx, CommandService_DryRun_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

type eventQueryServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewEventQueryServiceClient creates an EventQueryService client on cc.
func NewEventQueryServiceClient(cc grpc.ClientConnInterface) EventQueryServiceClient {
	return &eventQueryServiceClient{cc: cc}
}

func (c *eventQueryServiceClient) GetEventBook(ctx context.Context, in *GetEventBookRequest, opts ...grpc.CallOption) (*GetEventBookResponse, error) {
	out := new(GetEventBookResponse)
	if err := c.cc.Invoke(ctx, EventQueryService_GetEventBook_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *eventQueryServiceClient) GetProcessState(ctx context.Context, in *GetProcessStateRequest, opts ...grpc.CallOption) (*GetProcessStateResponse, error) {
	out := new(GetProcessStateResponse)
	if err := c.cc.Invoke(ctx, EventQueryService_GetProcessState_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{CallOption()}, opts...)
}

// Dial connects to a coordinator at target and waits for it to report
// healthy.
func Dial(ctx context.Context, target string, log logrus.FieldLogger, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	return platformgrpc.DialWithHealth(ctx, target, log, opts...)
}
