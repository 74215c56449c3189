// Package interceptors holds unary server interceptors for the coordinator.
package interceptors

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/louisbranch/evented/internal/platform/logging"
)

// LoggingInterceptor scopes a request logger into the call context and logs
// each unary call with its method, status code, and duration. Server-side
// failures log at error level; caller errors log at info.
func LoggingInterceptor(log logrus.FieldLogger) grpc.UnaryServerInterceptor {
	log = logging.OrDiscard(log)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		entry := log.WithField("method", info.FullMethod)
		if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
			entry = entry.WithFields(logrus.Fields{
				"trace_id": sc.TraceID().String(),
				"span_id":  sc.SpanID().String(),
			})
		}

		start := time.Now()
		resp, err := handler(logging.WithLogger(ctx, entry), req)
		code := status.Code(err)
		entry = entry.WithFields(logrus.Fields{
			"code":     code.String(),
			"duration": time.Since(start).String(),
		})
		switch code {
		case codes.OK:
			entry.Debug("grpc call")
		case codes.Internal, codes.Unknown, codes.DataLoss:
			entry.WithError(err).Error("grpc call failed")
		default:
			entry.WithError(err).Info("grpc call rejected")
		}
		return resp, err
	}
}
