// Package grpc holds client and server helpers shared by the coordinator's
// gRPC surface.
package grpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
	gogrpc "google.golang.org/grpc"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/louisbranch/evented/internal/platform/logging"
)

// HealthPolicy is the polling schedule used while waiting for a peer.
type HealthPolicy struct {
	Initial time.Duration
	Max     time.Duration
	// Check bounds a single health call.
	Check time.Duration
}

// DefaultHealthPolicy polls quickly at first and settles at one check per second.
func DefaultHealthPolicy() HealthPolicy {
	return HealthPolicy{Initial: 100 * time.Millisecond, Max: time.Second, Check: time.Second}
}

func (p HealthPolicy) backOff() *backoff.ExponentialBackOff {
	def := DefaultHealthPolicy()
	if p.Initial <= 0 {
		p.Initial = def.Initial
	}
	if p.Max < p.Initial {
		p.Max = max(def.Max, p.Initial)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	b.MaxInterval = p.Max
	b.RandomizationFactor = 0
	return b
}

// WaitForHealth blocks until the health service reports service as SERVING
// or ctx ends.
func WaitForHealth(ctx context.Context, conn gogrpc.ClientConnInterface, service string, policy HealthPolicy, log logrus.FieldLogger) error {
	if conn == nil {
		return errors.New("gRPC connection is not configured")
	}
	log = logging.OrDiscard(log).WithField("service", service)
	check := policy.Check
	if check <= 0 {
		check = DefaultHealthPolicy().Check
	}

	client := grpc_health_v1.NewHealthClient(conn)
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, check)
		defer cancel()
		resp, err := client.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
		if err != nil {
			log.WithError(err).Debug("waiting for gRPC health")
			return struct{}{}, err
		}
		if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
			log.WithField("status", resp.GetStatus().String()).Debug("waiting for gRPC health")
			return struct{}{}, fmt.Errorf("status %s", resp.GetStatus())
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(policy.backOff()))
	if err != nil {
		return fmt.Errorf("wait for gRPC health: %w", err)
	}
	log.Debug("gRPC health check is SERVING")
	return nil
}
