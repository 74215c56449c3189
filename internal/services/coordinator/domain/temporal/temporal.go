// Package temporal answers questions about past and hypothetical states of a
// stream without writing anything.
package temporal

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/louisbranch/evented/internal/platform/errors"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/aggregate"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/command"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/event"
	"github.com/louisbranch/evented/internal/services/coordinator/storage"
)

// Bound selects a point in a stream's history. At most one field is set; the
// zero Bound means "now".
type Bound struct {
	Sequence *uint64
	Time     *time.Time
}

// AtSequence bounds a book to pages up to and including seq.
func AtSequence(seq uint64) Bound { return Bound{Sequence: &seq} }

// AtTime bounds a book to pages created at or before t.
func AtTime(t time.Time) Bound { return Bound{Time: &t} }

// IsZero reports whether the bound selects the current state.
func (b Bound) IsZero() bool { return b.Sequence == nil && b.Time == nil }

// AsOf truncates book to bound.
func AsOf(book event.EventBook, bound Bound) (event.EventBook, error) {
	switch {
	case bound.Sequence != nil && bound.Time != nil:
		return event.EventBook{}, apperrors.New(apperrors.KindInvalidArgument, apperrors.CodeBoundInvalid,
			"as_of_sequence and as_of_time are mutually exclusive")
	case bound.Sequence != nil:
		return AsOfSequence(book, *bound.Sequence)
	case bound.Time != nil:
		return AsOfTime(book, *bound.Time)
	default:
		return book.Clone(), nil
	}
}

// AsOfSequence keeps pages with Sequence <= seq. A bound beyond the tail
// returns the book unchanged.
func AsOfSequence(book event.EventBook, seq uint64) (event.EventBook, error) {
	if book.Snapshot != nil && seq < book.Snapshot.AsOfSequence {
		return event.EventBook{}, beforeSnapshot(book, fmt.Sprintf("sequence %d", seq))
	}
	out := book.Clone()
	kept := out.Pages[:0]
	for _, page := range out.Pages {
		if page.Sequence > seq {
			break
		}
		kept = append(kept, page)
	}
	out.Pages = kept
	return out, nil
}

// AsOfTime keeps the leading pages created at or before t. A book with a
// snapshot can only be bounded by time when at least one page after the
// snapshot satisfies t, which places the snapshot before the bound.
func AsOfTime(book event.EventBook, t time.Time) (event.EventBook, error) {
	out := book.Clone()
	kept := out.Pages[:0]
	for _, page := range out.Pages {
		if page.CreatedAt.After(t) {
			break
		}
		kept = append(kept, page)
	}
	if book.Snapshot != nil && len(kept) == 0 {
		return event.EventBook{}, beforeSnapshot(book, t.UTC().Format(time.RFC3339Nano))
	}
	out.Pages = kept
	return out, nil
}

func beforeSnapshot(book event.EventBook, bound string) error {
	return apperrors.WithMetadata(apperrors.KindInvalidArgument, apperrors.CodeBoundBeforeSnapshot,
		fmt.Sprintf("bound %s precedes the snapshot of %s", bound, book.Cover.Key()),
		map[string]string{"snapshot_sequence": fmt.Sprint(book.Snapshot.AsOfSequence)})
}

// Engine runs historical queries and speculative commands.
type Engine struct {
	Reader    storage.HistoryReader
	Evaluator aggregate.Evaluator
}

// Query returns the stream's history truncated to bound.
func (e Engine) Query(ctx context.Context, cover event.Cover, bound Bound) (event.EventBook, error) {
	if err := cover.Validate(); err != nil {
		return event.EventBook{}, err
	}
	book, err := e.history(ctx, cover)
	if err != nil {
		return event.EventBook{}, err
	}
	if book.Empty() {
		return event.EventBook{}, apperrors.WithMetadata(apperrors.KindNotFound, apperrors.CodeStreamNotFound,
			fmt.Sprintf("stream %s has no events", cover.Key()),
			map[string]string{"domain": cover.Domain, "root": cover.Root.String()})
	}
	return AsOf(book, bound)
}

// DryRun evaluates book against the stream as of bound and returns the pages
// it would append. Nothing is persisted, published, or dispatched.
func (e Engine) DryRun(ctx context.Context, bound Bound, book command.CommandBook) ([]event.EventPage, error) {
	if _, err := e.Evaluator.Check(book); err != nil {
		return nil, err
	}
	current, err := e.history(ctx, book.Cover)
	if err != nil {
		return nil, err
	}
	truncated, err := AsOf(current, bound)
	if err != nil {
		return nil, err
	}
	eval, err := e.Evaluator.Evaluate(truncated, book)
	if err != nil {
		return nil, err
	}
	return eval.Pages, nil
}

func (e Engine) history(ctx context.Context, cover event.Cover) (event.EventBook, error) {
	if e.Reader == nil {
		return event.EventBook{}, errors.New("history reader is required")
	}
	book, err := e.Reader.ReadHistory(ctx, cover)
	if err != nil {
		if _, ok := apperrors.As(err); ok {
			return event.EventBook{}, err
		}
		return event.EventBook{}, apperrors.Wrap(apperrors.KindInternal, apperrors.CodeStorageFailed, "read history", err)
	}
	return book, nil
}
