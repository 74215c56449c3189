// Package memory provides an in-memory event and snapshot store.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/louisbranch/evented/internal/services/coordinator/domain/event"
	"github.com/louisbranch/evented/internal/services/coordinator/storage"
)

// Store keeps streams and snapshots in memory. It is safe for concurrent use
// and copies every book in and out.
type Store struct {
	mu        sync.Mutex
	streams   map[string][]event.EventPage
	snapshots map[string]event.Snapshot
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		streams:   make(map[string][]event.EventPage),
		snapshots: make(map[string]event.Snapshot),
	}
}

// ReadEvents returns pages with Sequence >= from.
func (s *Store) ReadEvents(ctx context.Context, cover event.Cover, from uint64) ([]event.EventPage, error) {
	if err := check(ctx, s, cover); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.streams[cover.Key()]
	if from >= uint64(len(stream)) {
		return nil, nil
	}
	return clonePages(stream[from:]), nil
}

// AppendEvents appends pages when the stream ends right before expected.
func (s *Store) AppendEvents(ctx context.Context, cover event.Cover, expected uint64, pages []event.EventPage) error {
	if err := check(ctx, s, cover); err != nil {
		return err
	}
	for i, page := range pages {
		if page.Sequence != expected+uint64(i) {
			return fmt.Errorf("append %s: page %d has sequence %d, want %d", cover.Key(), i, page.Sequence, expected+uint64(i))
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := cover.Key()
	if uint64(len(s.streams[key])) != expected {
		return fmt.Errorf("append %s at %d (stream at %d): %w", key, expected, len(s.streams[key]), storage.ErrConflict)
	}
	s.streams[key] = append(s.streams[key], clonePages(pages)...)
	return nil
}

// GetSnapshot returns the latest snapshot or storage.ErrNotFound.
func (s *Store) GetSnapshot(ctx context.Context, cover event.Cover) (event.Snapshot, error) {
	if err := check(ctx, s, cover); err != nil {
		return event.Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, ok := s.snapshots[cover.Key()]
	if !ok {
		return event.Snapshot{}, storage.ErrNotFound
	}
	snapshot.State = append([]byte(nil), snapshot.State...)
	return snapshot, nil
}

// PutSnapshot replaces the stream's snapshot. Older snapshots never replace
// newer ones.
func (s *Store) PutSnapshot(ctx context.Context, cover event.Cover, snapshot event.Snapshot) error {
	if err := check(ctx, s, cover); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := cover.Key()
	if uint64(len(s.streams[key])) <= snapshot.AsOfSequence {
		return fmt.Errorf("snapshot %s at %d is ahead of the stream", key, snapshot.AsOfSequence)
	}
	if current, ok := s.snapshots[key]; ok && current.AsOfSequence >= snapshot.AsOfSequence {
		return nil
	}
	snapshot.State = append([]byte(nil), snapshot.State...)
	s.snapshots[key] = snapshot
	return nil
}

// Len returns the number of pages in a stream.
func (s *Store) Len(cover event.Cover) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams[cover.Key()])
}

func check(ctx context.Context, s *Store, cover event.Cover) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if s == nil {
		return errors.New("memory store is required")
	}
	return cover.Validate()
}

func clonePages(pages []event.EventPage) []event.EventPage {
	out := make([]event.EventPage, len(pages))
	for i, page := range pages {
		page.Payload = page.Payload.Clone()
		out[i] = page
	}
	return out
}
