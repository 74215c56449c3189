// Package saga runs stateless two-phase reactions to committed events.
//
// Prepare names the destination streams a saga must read; Execute turns the
// source delta plus those destinations into command books whose expected
// sequences come from the destinations as read. The engine never submits the
// books it returns, so a conflict is resolved by running both phases again
// against fresh state.
package saga

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/louisbranch/evented/internal/services/coordinator/domain/command"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/event"
	"github.com/louisbranch/evented/internal/services/coordinator/storage"
)

const defaultConcurrency = 8

// Saga is a stateless cross-aggregate reactor.
type Saga interface {
	Name() string
	// Prepare returns the covers whose current books Execute needs. It must
	// be a pure function of source.
	Prepare(source event.EventBook) []event.Cover
	// Execute returns zero or more command books, one per destination it
	// acts on.
	Execute(source event.EventBook, destinations []event.EventBook) ([]command.CommandBook, error)
}

// Engine loads destinations and runs both saga phases.
type Engine struct {
	Reader storage.Reader
	// Concurrency bounds destination reads. Zero uses a default.
	Concurrency int
}

// Run executes saga against the source delta.
func (e Engine) Run(ctx context.Context, s Saga, source event.EventBook) ([]command.CommandBook, error) {
	if s == nil {
		return nil, errors.New("saga is required")
	}
	covers := Dedupe(s.Prepare(source))
	destinations, err := e.Load(ctx, covers)
	if err != nil {
		return nil, fmt.Errorf("saga %s: %w", s.Name(), err)
	}
	books, err := s.Execute(source, destinations)
	if err != nil {
		return nil, fmt.Errorf("saga %s execute: %w", s.Name(), err)
	}
	return books, nil
}

// Load reads each cover concurrently, preserving order.
func (e Engine) Load(ctx context.Context, covers []event.Cover) ([]event.EventBook, error) {
	if len(covers) == 0 {
		return nil, nil
	}
	if e.Reader == nil {
		return nil, errors.New("saga reader is required")
	}
	limit := e.Concurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}
	books := make([]event.EventBook, len(covers))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(limit)
	for i, cover := range covers {
		group.Go(func() error {
			book, err := e.Reader.Read(groupCtx, cover)
			if err != nil {
				return fmt.Errorf("load %s: %w", cover.Key(), err)
			}
			books[i] = book
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return books, nil
}

// Dedupe drops repeated streams, keeping first occurrence order.
func Dedupe(covers []event.Cover) []event.Cover {
	seen := make(map[string]bool, len(covers))
	out := make([]event.Cover, 0, len(covers))
	for _, cover := range covers {
		key := cover.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, cover)
	}
	return out
}

// Find returns the destination book for cover.
func Find(destinations []event.EventBook, cover event.Cover) (event.EventBook, bool) {
	for _, book := range destinations {
		if book.Cover.Domain == cover.Domain && book.Cover.Root == cover.Root {
			return book, true
		}
	}
	return event.EventBook{}, false
}
