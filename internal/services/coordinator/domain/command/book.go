package command

import (
	"github.com/louisbranch/evented/internal/services/coordinator/domain/event"
)

// SyncMode selects whether downstream dispatch runs before Handle returns.
type SyncMode int

const (
	// SyncModeNone leaves downstream dispatch to the bus.
	SyncModeNone SyncMode = iota
	// SyncModeSynchronous runs saga and process dispatch inline.
	SyncModeSynchronous
)

// String returns the wire name of the mode.
func (m SyncMode) String() string {
	switch m {
	case SyncModeSynchronous:
		return "SYNCHRONOUS"
	default:
		return "NONE"
	}
}

// ParseSyncMode maps a wire name back to a mode. Unknown values are NONE.
func ParseSyncMode(value string) SyncMode {
	if value == "SYNCHRONOUS" {
		return SyncModeSynchronous
	}
	return SyncModeNone
}

// CommandPage is one command. ExpectedSequence is the sequence the sender
// believes the target stream will assign next.
type CommandPage struct {
	ExpectedSequence uint64
	Payload          event.Payload
	SyncMode         SyncMode
}

// CommandBook addresses a stream with one or more commands.
type CommandBook struct {
	Cover event.Cover
	Pages []CommandPage
}

// NewBook builds a single-page book targeting destination at its next free
// sequence.
func NewBook(destination event.EventBook, payload event.Payload, correlationID string) CommandBook {
	cover := destination.Cover.Stream().WithCorrelation(correlationID)
	return CommandBook{
		Cover: cover,
		Pages: []CommandPage{{
			ExpectedSequence: destination.NextSequence(),
			Payload:          payload,
		}},
	}
}

// Synchronous reports whether any page requests synchronous dispatch.
func (b CommandBook) Synchronous() bool {
	for _, page := range b.Pages {
		if page.SyncMode == SyncModeSynchronous {
			return true
		}
	}
	return false
}

// WithExpectedSequence returns a copy whose pages expect consecutive
// sequences starting at next.
func (b CommandBook) WithExpectedSequence(next uint64) CommandBook {
	out := b.Clone()
	for i := range out.Pages {
		out.Pages[i].ExpectedSequence = next + uint64(i)
	}
	return out
}

// Clone deep-copies the pages.
func (b CommandBook) Clone() CommandBook {
	out := CommandBook{Cover: b.Cover}
	if b.Pages != nil {
		out.Pages = make([]CommandPage, len(b.Pages))
		for i, page := range b.Pages {
			page.Payload = page.Payload.Clone()
			out.Pages[i] = page
		}
	}
	return out
}
