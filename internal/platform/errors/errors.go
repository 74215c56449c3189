package errors

import (
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/status"
)

// Domain is the error domain reported in gRPC error details.
const Domain = "github.com/louisbranch/evented"

// Error is the domain error type with structured metadata.
type Error struct {
	Kind     Kind              // Caller-visible category
	Code     Code              // Machine-readable error code
	Message  string            // Human-readable reason
	Metadata map[string]string // Additional context
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a domain error with a kind, code, and message.
func New(kind Kind, code Code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// WithMetadata creates a domain error carrying metadata.
func WithMetadata(kind Kind, code Code, message string, metadata map[string]string) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Metadata: metadata}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(kind Kind, code Code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Cause: cause}
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// KindOf returns the kind of the first domain error in err's chain, or
// KindInternal for anything else. A nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if domainErr, ok := As(err); ok {
		return domainErr.Kind
	}
	return KindInternal
}

// CodeOf returns the code of the first domain error in err's chain.
func CodeOf(err error) Code {
	if domainErr, ok := As(err); ok {
		return domainErr.Code
	}
	if err == nil {
		return ""
	}
	return CodeUnknown
}

// IsConflict reports whether err is an optimistic-concurrency conflict.
func IsConflict(err error) bool {
	return CodeOf(err) == CodeSequenceConflict
}

// ToGRPCStatus converts the error to a gRPC status with errdetails.
func (e *Error) ToGRPCStatus() error {
	grpcCode := e.Kind.GRPCCode()
	st := status.New(grpcCode, e.Message)
	st, err := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   string(e.Code),
		Domain:   Domain,
		Metadata: e.Metadata,
	})
	if err != nil {
		return status.New(grpcCode, e.Message).Err()
	}
	return st.Err()
}

// FromGRPCStatus rebuilds a domain error from a gRPC error. Reasons attached
// by ToGRPCStatus are restored; other errors get CodeUnknown.
func FromGRPCStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	result := &Error{
		Kind:    KindFromGRPCCode(st.Code()),
		Code:    CodeUnknown,
		Message: st.Message(),
		Cause:   err,
	}
	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok && info.GetDomain() == Domain {
			result.Code = Code(info.GetReason())
			result.Metadata = info.GetMetadata()
		}
	}
	return result
}
