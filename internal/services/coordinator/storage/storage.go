// Package storage defines the persistence contracts the coordinator depends
// on and assembles event books from them.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/louisbranch/evented/internal/services/coordinator/domain/event"
)

var (
	// ErrConflict reports that a compare-and-append lost the race: the stream
	// no longer ends at the expected sequence.
	ErrConflict = errors.New("storage: sequence conflict")
	// ErrNotFound reports a missing snapshot.
	ErrNotFound = errors.New("storage: not found")
)

// EventStore persists event pages per stream.
type EventStore interface {
	// ReadEvents returns pages with Sequence >= from in ascending order.
	ReadEvents(ctx context.Context, cover event.Cover, from uint64) ([]event.EventPage, error)
	// AppendEvents atomically appends pages when the stream's next free
	// sequence equals expected, and returns ErrConflict otherwise.
	AppendEvents(ctx context.Context, cover event.Cover, expected uint64, pages []event.EventPage) error
}

// SnapshotStore persists the latest snapshot per stream.
type SnapshotStore interface {
	GetSnapshot(ctx context.Context, cover event.Cover) (event.Snapshot, error)
	PutSnapshot(ctx context.Context, cover event.Cover, snapshot event.Snapshot) error
}

// Reader loads the current book of a stream.
type Reader interface {
	Read(ctx context.Context, cover event.Cover) (event.EventBook, error)
}

// HistoryReader loads every page of a stream, ignoring snapshots.
type HistoryReader interface {
	ReadHistory(ctx context.Context, cover event.Cover) (event.EventBook, error)
}

// BookReader reads complete books from an event store and an optional
// snapshot store.
type BookReader struct {
	Events    EventStore
	Snapshots SnapshotStore
}

// Read returns the latest snapshot plus the pages that follow it, or the
// whole stream when no snapshot exists.
func (r BookReader) Read(ctx context.Context, cover event.Cover) (event.EventBook, error) {
	if r.Events == nil {
		return event.EventBook{}, errors.New("event store is required")
	}
	book := event.EventBook{Cover: cover}
	from := uint64(0)
	if r.Snapshots != nil {
		snapshot, err := r.Snapshots.GetSnapshot(ctx, cover.Stream())
		switch {
		case err == nil:
			book.Snapshot = &snapshot
			from = snapshot.AsOfSequence + 1
		case errors.Is(err, ErrNotFound):
		default:
			return event.EventBook{}, fmt.Errorf("read snapshot %s: %w", cover.Key(), err)
		}
	}
	pages, err := r.Events.ReadEvents(ctx, cover.Stream(), from)
	if err != nil {
		return event.EventBook{}, fmt.Errorf("read events %s: %w", cover.Key(), err)
	}
	book.Pages = pages
	if err := book.Validate(); err != nil {
		return event.EventBook{}, fmt.Errorf("read %s: %w", cover.Key(), err)
	}
	return book, nil
}

// ReadHistory returns every page of the stream without a snapshot.
func (r BookReader) ReadHistory(ctx context.Context, cover event.Cover) (event.EventBook, error) {
	if r.Events == nil {
		return event.EventBook{}, errors.New("event store is required")
	}
	pages, err := r.Events.ReadEvents(ctx, cover.Stream(), 0)
	if err != nil {
		return event.EventBook{}, fmt.Errorf("read events %s: %w", cover.Key(), err)
	}
	book := event.EventBook{Cover: cover, Pages: pages}
	if err := book.Validate(); err != nil {
		return event.EventBook{}, fmt.Errorf("read %s: %w", cover.Key(), err)
	}
	return book, nil
}
