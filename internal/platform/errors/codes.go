// Package errors provides the coordinator's error taxonomy: a small set of
// caller-visible kinds plus stable machine-readable codes.
package errors

import "google.golang.org/grpc/codes"

// Kind is the caller-visible error category. Callers branch on Kind, never on
// message text.
type Kind string

const (
	// KindInvalidArgument marks malformed or unrecognized input. Never retried.
	KindInvalidArgument Kind = "INVALID_ARGUMENT"
	// KindFailedPrecondition marks sequence conflicts and business-rule
	// violations. Conflicts are retried by the caller with fresh state.
	KindFailedPrecondition Kind = "FAILED_PRECONDITION"
	// KindNotFound marks a referenced stream that must exist but does not.
	KindNotFound Kind = "NOT_FOUND"
	// KindInternal marks storage, transport, or unexpected failures.
	KindInternal Kind = "INTERNAL"
)

// GRPCCode maps a kind to its gRPC status code.
func (k Kind) GRPCCode() codes.Code {
	switch k {
	case KindInvalidArgument:
		return codes.InvalidArgument
	case KindFailedPrecondition:
		return codes.FailedPrecondition
	case KindNotFound:
		return codes.NotFound
	default:
		return codes.Internal
	}
}

// KindFromGRPCCode is the inverse of GRPCCode for the codes the coordinator emits.
func KindFromGRPCCode(code codes.Code) Kind {
	switch code {
	case codes.InvalidArgument:
		return KindInvalidArgument
	case codes.FailedPrecondition:
		return KindFailedPrecondition
	case codes.NotFound:
		return KindNotFound
	default:
		return KindInternal
	}
}

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Command validation
	CodeCommandEmpty          Code = "COMMAND_EMPTY"
	CodeCommandPayloadMissing Code = "COMMAND_PAYLOAD_MISSING"
	CodeCommandTypeUnknown    Code = "COMMAND_TYPE_UNKNOWN"
	CodeCoverInvalid          Code = "COVER_INVALID"
	CodeDomainUnknown         Code = "DOMAIN_UNKNOWN"
	CodePayloadDecodeFailed   Code = "PAYLOAD_DECODE_FAILED"
	CodeBookInvalid           Code = "BOOK_INVALID"

	// Concurrency
	CodeSequenceConflict        Code = "SEQUENCE_CONFLICT"
	CodeProcessRetriesExhausted Code = "PROCESS_RETRIES_EXHAUSTED"

	// Queries
	CodeStreamNotFound      Code = "STREAM_NOT_FOUND"
	CodeBoundInvalid        Code = "BOUND_INVALID"
	CodeBoundBeforeSnapshot Code = "BOUND_BEFORE_SNAPSHOT"
	CodeFilterInvalid       Code = "FILTER_INVALID"
	CodeProcessUnknown      Code = "PROCESS_UNKNOWN"
	CodePageTokenInvalid    Code = "PAGE_TOKEN_INVALID"

	// Infrastructure
	CodeStorageFailed      Code = "STORAGE_FAILED"
	CodeSyncDispatchFailed Code = "SYNC_DISPATCH_FAILED"
)
