package command

import (
	apperrors "github.com/louisbranch/evented/internal/platform/errors"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/event"
)

// Rejection captures a domain-level reason a command was declined. Kind lets
// callers branch without parsing Message.
type Rejection struct {
	Kind    apperrors.Kind
	Code    apperrors.Code
	Message string
}

// Error implements error.
func (r Rejection) Error() string {
	return r.Message
}

// Err converts the rejection to a platform error.
func (r Rejection) Err() error {
	kind := r.Kind
	if kind != apperrors.KindInvalidArgument && kind != apperrors.KindNotFound {
		kind = apperrors.KindFailedPrecondition
	}
	return apperrors.New(kind, r.Code, r.Message)
}

// Reject builds a rejection.
func Reject(kind apperrors.Kind, code apperrors.Code, message string) Rejection {
	return Rejection{Kind: kind, Code: code, Message: message}
}

// Decision represents the pure outcome of handling a command.
type Decision struct {
	Events    []event.Payload
	Rejection *Rejection
}

// Accept returns a decision that emits the provided events.
func Accept(events ...event.Payload) Decision {
	return Decision{Events: append([]event.Payload(nil), events...)}
}

// Rejected returns a decision carrying r.
func Rejected(r Rejection) Decision {
	return Decision{Rejection: &r}
}

// Precondition rejects with a business-rule violation.
func Precondition(code apperrors.Code, message string) Decision {
	return Rejected(Reject(apperrors.KindFailedPrecondition, code, message))
}

// Invalid rejects a malformed command.
func Invalid(code apperrors.Code, message string) Decision {
	return Rejected(Reject(apperrors.KindInvalidArgument, code, message))
}

// IsRejected reports whether the decision declined the command.
func (d Decision) IsRejected() bool {
	return d.Rejection != nil
}
