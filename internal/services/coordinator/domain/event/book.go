package event

import (
	"fmt"
	"time"

	apperrors "github.com/louisbranch/evented/internal/platform/errors"
)

// ErrBookInvalid matches any book that breaks the contiguity rules.
var ErrBookInvalid = apperrors.New(apperrors.KindInvalidArgument, apperrors.CodeBookInvalid, "event book is invalid")

// EventPage is one committed event. Sequence is the 0-based position within
// the stream and never changes once committed.
type EventPage struct {
	Sequence  uint64
	Payload   Payload
	CreatedAt time.Time
}

// Snapshot is serialized domain state as of a committed sequence.
type Snapshot struct {
	State        []byte
	AsOfSequence uint64
}

// EventBook is a contiguous run of pages for one stream, optionally prefixed
// by a snapshot. Books read from storage are complete; books carried by the
// bus are deltas holding only newly committed pages.
type EventBook struct {
	Cover    Cover
	Pages    []EventPage
	Snapshot *Snapshot
}

// Validate checks that pages are contiguous and, when a snapshot is present,
// start right after it.
func (b EventBook) Validate() error {
	for i := 1; i < len(b.Pages); i++ {
		if b.Pages[i].Sequence != b.Pages[i-1].Sequence+1 {
			return invalid("page sequence gap: expected %d got %d", b.Pages[i-1].Sequence+1, b.Pages[i].Sequence)
		}
	}
	if b.Snapshot != nil && len(b.Pages) > 0 && b.Pages[0].Sequence != b.Snapshot.AsOfSequence+1 {
		return invalid("first page %d does not follow snapshot %d", b.Pages[0].Sequence, b.Snapshot.AsOfSequence)
	}
	return nil
}

// Complete reports whether the book holds the whole history of its stream,
// either from sequence 0 or from its snapshot onward.
func (b EventBook) Complete() bool {
	if b.Validate() != nil {
		return false
	}
	if len(b.Pages) == 0 {
		return true
	}
	if b.Snapshot != nil {
		return true
	}
	return b.Pages[0].Sequence == 0
}

// NextSequence returns the next free sequence of the stream.
func (b EventBook) NextSequence() uint64 {
	if n := len(b.Pages); n > 0 {
		return b.Pages[n-1].Sequence + 1
	}
	if b.Snapshot != nil {
		return b.Snapshot.AsOfSequence + 1
	}
	return 0
}

// Empty reports whether the stream has no history at all.
func (b EventBook) Empty() bool {
	return len(b.Pages) == 0 && b.Snapshot == nil
}

// Last returns the final page, if any.
func (b EventBook) Last() (EventPage, bool) {
	if len(b.Pages) == 0 {
		return EventPage{}, false
	}
	return b.Pages[len(b.Pages)-1], true
}

// Clone deep-copies pages, payload bodies, and the snapshot.
func (b EventBook) Clone() EventBook {
	out := EventBook{Cover: b.Cover}
	if b.Pages != nil {
		out.Pages = make([]EventPage, len(b.Pages))
		for i, page := range b.Pages {
			page.Payload = page.Payload.Clone()
			out.Pages[i] = page
		}
	}
	if b.Snapshot != nil {
		out.Snapshot = &Snapshot{
			State:        append([]byte(nil), b.Snapshot.State...),
			AsOfSequence: b.Snapshot.AsOfSequence,
		}
	}
	return out
}

// Append returns a copy of the book extended with pages.
func (b EventBook) Append(pages ...EventPage) EventBook {
	out := b.Clone()
	for _, page := range pages {
		page.Payload = page.Payload.Clone()
		out.Pages = append(out.Pages, page)
	}
	return out
}

func invalid(format string, args ...any) error {
	return apperrors.Wrap(apperrors.KindInvalidArgument, apperrors.CodeBookInvalid,
		fmt.Sprintf(format, args...), ErrBookInvalid)
}
