package aggregate

import (
	"fmt"
	"strconv"
	"time"

	apperrors "github.com/louisbranch/evented/internal/platform/errors"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/command"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/event"
)

// Evaluator performs command handling up to, but not including,
// persistence. The Coordinator and the speculative engine share it so that
// dry runs take the same path as real commands.
type Evaluator struct {
	Router *Router
	Now    func() time.Time
}

// Evaluation is the would-be result of a command book.
type Evaluation struct {
	Domain Domain
	// State is the domain state after folding the new pages.
	State any
	// Pages are the stamped pages to append, possibly none.
	Pages []event.EventPage
}

// Check validates the shape of a command book and resolves its domain
// without reading any state.
func (e Evaluator) Check(book command.CommandBook) (Domain, error) {
	if len(book.Pages) == 0 {
		return nil, apperrors.New(apperrors.KindInvalidArgument, apperrors.CodeCommandEmpty, "command book has no pages")
	}
	for i, page := range book.Pages {
		if page.Payload.Empty() {
			return nil, apperrors.New(apperrors.KindInvalidArgument, apperrors.CodeCommandPayloadMissing,
				fmt.Sprintf("command page %d has no payload", i))
		}
	}
	if err := book.Cover.Validate(); err != nil {
		return nil, err
	}
	domain, ok := e.Router.Domain(book.Cover.Domain)
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.KindInvalidArgument, apperrors.CodeDomainUnknown,
			fmt.Sprintf("unknown domain %s", book.Cover.Domain),
			map[string]string{"domain": book.Cover.Domain})
	}
	for _, page := range book.Pages {
		if !domain.Handles(page.Payload.Type) {
			return nil, unknownCommand(domain.Name(), page.Payload.Type)
		}
	}
	return domain, nil
}

// Evaluate applies book to current. Pages are processed in order, each gated
// on the running next sequence and decided against state that already
// includes the events of earlier pages. Any failure discards the whole book.
func (e Evaluator) Evaluate(current event.EventBook, book command.CommandBook) (Evaluation, error) {
	domain, err := e.Check(book)
	if err != nil {
		return Evaluation{}, err
	}
	state, err := domain.Rebuild(current)
	if err != nil {
		return Evaluation{}, fmt.Errorf("rebuild %s: %w", current.Cover.Key(), err)
	}

	now := e.now()
	next := current.NextSequence()
	var stamped []event.EventPage
	for i, page := range book.Pages {
		if domain.RequiresExisting(page.Payload.Type) && next == 0 {
			return Evaluation{}, apperrors.WithMetadata(apperrors.KindNotFound, apperrors.CodeStreamNotFound,
				fmt.Sprintf("%s requires an existing %s stream", page.Payload.Type, domain.Name()),
				map[string]string{"domain": domain.Name(), "root": book.Cover.Root.String()})
		}
		if page.ExpectedSequence != next {
			return Evaluation{}, SequenceConflict(book.Cover, page.ExpectedSequence, next)
		}
		decision, err := domain.Decide(state, page.Payload)
		if err != nil {
			return Evaluation{}, err
		}
		if decision.IsRejected() {
			return Evaluation{}, decision.Rejection.Err()
		}
		for _, payload := range decision.Events {
			if payload.Empty() {
				return Evaluation{}, fmt.Errorf("%s page %d: handler emitted an event without a type", domain.Name(), i)
			}
			p := event.EventPage{Sequence: next, Payload: payload.Clone(), CreatedAt: now}
			state, err = domain.Fold(state, p)
			if err != nil {
				return Evaluation{}, fmt.Errorf("fold %s at %d: %w", payload.Type, next, err)
			}
			stamped = append(stamped, p)
			next++
		}
	}
	return Evaluation{Domain: domain, State: state, Pages: stamped}, nil
}

// now returns the page timestamp, truncated to the millisecond precision the
// durable journal keeps.
func (e Evaluator) now() time.Time {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	return now().UTC().Truncate(time.Millisecond)
}

// SequenceConflict builds the FAILED_PRECONDITION error for a stale
// expected sequence.
func SequenceConflict(cover event.Cover, expected, actual uint64) error {
	return apperrors.WithMetadata(apperrors.KindFailedPrecondition, apperrors.CodeSequenceConflict,
		fmt.Sprintf("sequence conflict on %s: expected %d, stream at %d", cover.Key(), expected, actual),
		map[string]string{
			"domain":   cover.Domain,
			"root":     cover.Root.String(),
			"expected": strconv.FormatUint(expected, 10),
			"actual":   strconv.FormatUint(actual, 10),
		})
}
