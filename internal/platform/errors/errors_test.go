package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestKindGRPCCode(t *testing.T) {
	tests := []struct {
		kind Kind
		want codes.Code
	}{
		{KindInvalidArgument, codes.InvalidArgument},
		{KindFailedPrecondition, codes.FailedPrecondition},
		{KindNotFound, codes.NotFound},
		{KindInternal, codes.Internal},
		{Kind("other"), codes.Internal},
	}
	for _, tc := range tests {
		if got := tc.kind.GRPCCode(); got != tc.want {
			t.Errorf("%s.GRPCCode() = %v, want %v", tc.kind, got, tc.want)
		}
	}
}

func TestKindOfWrappedError(t *testing.T) {
	base := New(KindFailedPrecondition, CodeSequenceConflict, "sequence conflict")
	wrapped := fmt.Errorf("handle: %w", base)

	if got := KindOf(wrapped); got != KindFailedPrecondition {
		t.Fatalf("KindOf = %s, want %s", got, KindFailedPrecondition)
	}
	if !IsConflict(wrapped) {
		t.Fatal("expected wrapped conflict to be detected")
	}
	if KindOf(stderrors.New("boom")) != KindInternal {
		t.Fatal("expected plain errors to be internal")
	}
	if KindOf(nil) != "" {
		t.Fatal("expected nil error to have no kind")
	}
}

func TestErrorIsMatchesByCode(t *testing.T) {
	err := Wrap(KindNotFound, CodeStreamNotFound, "player stream missing", stderrors.New("no rows"))
	if !stderrors.Is(err, New(KindNotFound, CodeStreamNotFound, "")) {
		t.Fatal("expected errors.Is to match by code")
	}
	if stderrors.Is(err, New(KindNotFound, CodeCoverInvalid, "")) {
		t.Fatal("expected different code not to match")
	}
}

func TestGRPCStatusRoundTrip(t *testing.T) {
	original := WithMetadata(KindFailedPrecondition, Code("INSUFFICIENT_FUNDS"), "balance too low", map[string]string{"balance": "10"})

	grpcErr := original.ToGRPCStatus()
	if status.Code(grpcErr) != codes.FailedPrecondition {
		t.Fatalf("status code = %v, want FailedPrecondition", status.Code(grpcErr))
	}

	restored, ok := As(FromGRPCStatus(grpcErr))
	if !ok {
		t.Fatal("expected domain error after round trip")
	}
	if restored.Kind != KindFailedPrecondition {
		t.Fatalf("kind = %s, want %s", restored.Kind, KindFailedPrecondition)
	}
	if restored.Code != "INSUFFICIENT_FUNDS" {
		t.Fatalf("code = %s, want INSUFFICIENT_FUNDS", restored.Code)
	}
	if restored.Metadata["balance"] != "10" {
		t.Fatalf("metadata = %v", restored.Metadata)
	}
	if restored.Message != "balance too low" {
		t.Fatalf("message = %q", restored.Message)
	}
}

func TestFromGRPCStatusWithoutDetails(t *testing.T) {
	restored, ok := As(FromGRPCStatus(status.Error(codes.NotFound, "missing")))
	if !ok {
		t.Fatal("expected domain error")
	}
	if restored.Kind != KindNotFound || restored.Code != CodeUnknown {
		t.Fatalf("kind=%s code=%s", restored.Kind, restored.Code)
	}
}
