package coordinator

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "github.com/louisbranch/evented/internal/platform/errors"
)

// toStatus converts a handler error into a gRPC status. Domain errors keep
// their kind and code; anything else is INTERNAL without its message.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request deadline exceeded")
	}
	if domainErr, ok := apperrors.As(err); ok {
		return domainErr.ToGRPCStatus()
	}
	return apperrors.Wrap(apperrors.KindInternal, apperrors.CodeUnknown, "internal error", err).ToGRPCStatus()
}
