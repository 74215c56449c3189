package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/louisbranch/evented/internal/platform/logging"
	"github.com/louisbranch/evented/internal/platform/timeouts"
	coordinatorv1 "github.com/louisbranch/evented/internal/services/coordinator/api/grpc/coordinator"
	"github.com/louisbranch/evented/internal/services/coordinator/api/grpc/interceptors"
	"github.com/louisbranch/evented/internal/services/coordinator/modules"
)

// Server hosts the coordinator.
type Server struct {
	listener   net.Listener
	grpcServer *grpc.Server
	health     *health.Server
	runtime    *runtimeBundle
	log        logrus.FieldLogger
}

// Option configures a Server.
type Option func(*options)

type options struct {
	registry *modules.Registry
	listener net.Listener
}

// WithRegistry serves the modules in registry instead of the built-in set.
func WithRegistry(registry *modules.Registry) Option {
	return func(o *options) { o.registry = registry }
}

// WithListener serves on lis instead of listening on cfg.Addr.
func WithListener(lis net.Listener) Option {
	return func(o *options) { o.listener = lis }
}

// New creates a configured coordinator server.
func New(ctx context.Context, cfg Config, log logrus.FieldLogger, opts ...Option) (*Server, error) {
	log = logging.OrDiscard(log)
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	bundle, err := buildRuntime(ctx, cfg, o.registry, log)
	if err != nil {
		return nil, err
	}

	listener := o.listener
	if listener == nil {
		listener, err = net.Listen("tcp", cfg.Addr)
		if err != nil {
			_ = bundle.Close()
			return nil, fmt.Errorf("listen on %s: %w", cfg.Addr, err)
		}
	}

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.LoggingInterceptor(log.WithField("component", "grpc")),
		),
	)
	coordinatorv1.RegisterCommandServiceServer(grpcServer, coordinatorv1.NewCommandService(bundle.coordinator, bundle.engine))
	coordinatorv1.RegisterEventQueryServiceServer(grpcServer, coordinatorv1.NewEventQueryService(bundle.engine, bundle.dispatcher))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(coordinatorv1.CommandService_ServiceDesc.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(coordinatorv1.EventQueryService_ServiceDesc.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	return &Server{
		listener:   listener,
		grpcServer: grpcServer,
		health:     healthServer,
		runtime:    bundle,
		log:        log,
	}, nil
}

// Addr returns the listener address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves a coordinator until ctx ends.
func Run(ctx context.Context, cfg Config, log logrus.FieldLogger) error {
	srv, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}

// Serve runs the bus, the relay, and the gRPC server until ctx ends or one
// of them fails, then stops the rest.
func (s *Server) Serve(ctx context.Context) error {
	defer s.close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.runtime.bus.Run(gctx)
	})
	if s.runtime.relay != nil {
		g.Go(func() error {
			return s.runtime.relay.Run(gctx)
		})
	}
	g.Go(func() error {
		s.log.WithField("addr", s.Addr()).Info("coordinator listening")
		err := s.grpcServer.Serve(s.listener)
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		s.stop()
		return nil
	})
	return g.Wait()
}

// stop drains in-flight calls for up to timeouts.Shutdown, then forces the
// server down.
func (s *Server) stop() {
	s.health.Shutdown()
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeouts.Shutdown):
		s.log.Warn("graceful stop timed out, forcing")
		s.grpcServer.Stop()
	}
}

func (s *Server) close() {
	if err := s.runtime.Close(); err != nil {
		s.log.WithError(err).Warn("close event store")
	}
}
