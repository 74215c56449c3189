// Package rebuild folds event books into typed state.
//
// Rebuild is a pure function of the book and the caller's functions: it does
// no I/O and reads no clock, so two calls with equal books produce equal
// state. Speculative evaluation and conflict retries both rely on that.
package rebuild

import (
	"errors"
	"fmt"

	"github.com/louisbranch/evented/internal/services/coordinator/domain/event"
)

var (
	// ErrEmptyRequired indicates Funcs without an Empty constructor.
	ErrEmptyRequired = errors.New("rebuild: empty state function is required")
	// ErrApplyRequired indicates Funcs without an Apply function.
	ErrApplyRequired = errors.New("rebuild: apply function is required")
	// ErrSnapshotLoaderRequired indicates a snapshot book with no loader.
	ErrSnapshotLoaderRequired = errors.New("rebuild: snapshot loader is required")
)

// Funcs are the caller-supplied pieces of a rebuild.
type Funcs[S any] struct {
	// Empty returns the state of a stream with no history.
	Empty func() S
	// FromSnapshot decodes snapshot state.
	FromSnapshot func([]byte) (S, error)
	// Apply folds one page into state.
	Apply func(S, event.EventPage) (S, error)
}

// Rebuild starts from the snapshot (or Empty) and folds pages in ascending
// sequence order. Delta books are rejected because they lack the history
// preceding their first page.
func Rebuild[S any](book event.EventBook, funcs Funcs[S]) (S, error) {
	var zero S
	if funcs.Empty == nil {
		return zero, ErrEmptyRequired
	}
	if funcs.Apply == nil {
		return zero, ErrApplyRequired
	}
	if err := book.Validate(); err != nil {
		return zero, err
	}
	if !book.Complete() {
		first := book.Pages[0].Sequence
		return zero, fmt.Errorf("%w: book for %s starts at %d without a snapshot", event.ErrBookInvalid, book.Cover.Key(), first)
	}

	state := funcs.Empty()
	if book.Snapshot != nil {
		if funcs.FromSnapshot == nil {
			return zero, ErrSnapshotLoaderRequired
		}
		loaded, err := funcs.FromSnapshot(book.Snapshot.State)
		if err != nil {
			return zero, fmt.Errorf("load snapshot at %d: %w", book.Snapshot.AsOfSequence, err)
		}
		state = loaded
	}
	for _, page := range book.Pages {
		next, err := funcs.Apply(state, page)
		if err != nil {
			return zero, fmt.Errorf("apply %s at %d: %w", page.Payload.Type, page.Sequence, err)
		}
		state = next
	}
	return state, nil
}
