package coordinator

import (
	"errors"
	"strings"
	"time"

	apperrors "github.com/louisbranch/evented/internal/platform/errors"
	"github.com/louisbranch/evented/internal/platform/id"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/command"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/event"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/temporal"
)

// CoverFromDomain converts a domain cover.
func CoverFromDomain(c event.Cover) Cover {
	return Cover{Domain: c.Domain, Root: c.Root.String(), CorrelationID: c.CorrelationID}
}

// ToDomain parses the cover. A missing or malformed root is COVER_INVALID.
func (c Cover) ToDomain() (event.Cover, error) {
	root, err := id.ParseRoot(c.Root)
	if err != nil {
		return event.Cover{}, apperrors.Wrap(apperrors.KindInvalidArgument, apperrors.CodeCoverInvalid,
			"cover root is invalid", err)
	}
	cover := event.Cover{Domain: strings.TrimSpace(c.Domain), Root: root, CorrelationID: c.CorrelationID}
	if err := cover.Validate(); err != nil {
		return event.Cover{}, err
	}
	return cover, nil
}

func payloadFromDomain(p event.Payload) Payload {
	return Payload{Type: p.Type, Body: append([]byte(nil), p.Body...)}
}

func (p Payload) toDomain() event.Payload {
	return event.Payload{Type: p.Type, Body: append([]byte(nil), p.Body...)}
}

// CommandBookFromDomain converts a domain command book.
func CommandBookFromDomain(b command.CommandBook) CommandBook {
	out := CommandBook{Cover: CoverFromDomain(b.Cover)}
	for _, page := range b.Pages {
		out.Pages = append(out.Pages, CommandPage{
			ExpectedSequence: page.ExpectedSequence,
			Payload:          payloadFromDomain(page.Payload),
			SyncMode:         page.SyncMode.String(),
		})
	}
	return out
}

// ToDomain converts the book, validating only its cover. Page validation is
// left to the coordinator so both transports report the same codes.
func (b CommandBook) ToDomain() (command.CommandBook, error) {
	cover, err := b.Cover.ToDomain()
	if err != nil {
		return command.CommandBook{}, err
	}
	out := command.CommandBook{Cover: cover}
	for _, page := range b.Pages {
		out.Pages = append(out.Pages, command.CommandPage{
			ExpectedSequence: page.ExpectedSequence,
			Payload:          page.Payload.toDomain(),
			SyncMode:         command.ParseSyncMode(strings.ToUpper(strings.TrimSpace(page.SyncMode))),
		})
	}
	return out, nil
}

func pagesFromDomain(pages []event.EventPage) []EventPage {
	out := make([]EventPage, 0, len(pages))
	for _, page := range pages {
		out = append(out, EventPage{
			Sequence:  page.Sequence,
			Payload:   payloadFromDomain(page.Payload),
			CreatedAt: page.CreatedAt,
		})
	}
	return out
}

// EventBookFromDomain converts a domain event book.
func EventBookFromDomain(b event.EventBook) EventBook {
	out := EventBook{Cover: CoverFromDomain(b.Cover), Pages: pagesFromDomain(b.Pages)}
	if b.Snapshot != nil {
		out.Snapshot = &Snapshot{
			State:        append([]byte(nil), b.Snapshot.State...),
			AsOfSequence: b.Snapshot.AsOfSequence,
		}
	}
	return out
}

// ToDomain converts the book and checks its contiguity.
func (b EventBook) ToDomain() (event.EventBook, error) {
	cover, err := b.Cover.ToDomain()
	if err != nil {
		return event.EventBook{}, err
	}
	out := event.EventBook{Cover: cover}
	for _, page := range b.Pages {
		out.Pages = append(out.Pages, event.EventPage{
			Sequence:  page.Sequence,
			Payload:   page.Payload.toDomain(),
			CreatedAt: page.CreatedAt,
		})
	}
	if b.Snapshot != nil {
		out.Snapshot = &event.Snapshot{
			State:        append([]byte(nil), b.Snapshot.State...),
			AsOfSequence: b.Snapshot.AsOfSequence,
		}
	}
	if err := out.Validate(); err != nil {
		return event.EventBook{}, err
	}
	return out, nil
}

func boundFromRequest(seq *uint64, at *time.Time) temporal.Bound {
	bound := temporal.Bound{}
	if seq != nil {
		v := *seq
		bound.Sequence = &v
	}
	if at != nil {
		v := at.UTC()
		bound.Time = &v
	}
	return bound
}

func errorFromDomain(err error) *Error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) {
		msg = domainErr.Message
	}
	return &Error{
		Kind:    string(apperrors.KindOf(err)),
		Code:    string(apperrors.CodeOf(err)),
		Message: msg,
	}
}
