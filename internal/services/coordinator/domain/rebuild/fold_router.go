package rebuild

import (
	"fmt"

	"github.com/louisbranch/evented/internal/services/coordinator/domain/event"
)

// FoldRouter dispatches pages to typed fold functions by event type. Tables
// are built at startup; nothing is looked up by reflection.
//
// Unlike a hand-written switch with a default error, unknown types fold as a
// no-op so readers built against an older schema keep working.
type FoldRouter[S any] struct {
	handlers map[string]func(S, event.EventPage) (S, error)
	types    []string
}

// NewFoldRouter creates an empty router.
func NewFoldRouter[S any]() *FoldRouter[S] {
	return &FoldRouter[S]{handlers: make(map[string]func(S, event.EventPage) (S, error))}
}

// Apply folds page into state. It satisfies Funcs.Apply.
func (r *FoldRouter[S]) Apply(state S, page event.EventPage) (S, error) {
	handler, ok := r.handlers[page.Payload.Type]
	if !ok {
		return state, nil
	}
	return handler(state, page)
}

// Handles reports whether typ has a registered fold.
func (r *FoldRouter[S]) Handles(typ string) bool {
	_, ok := r.handlers[typ]
	return ok
}

// HandledTypes returns the registered event types in registration order.
func (r *FoldRouter[S]) HandledTypes() []string {
	return append([]string(nil), r.types...)
}

// HandleEvent registers a typed fold for typ. The payload body is decoded
// into P before fn runs.
//
// This is a top-level generic function because Go disallows method-level type
// parameters on generic types.
func HandleEvent[S, P any](r *FoldRouter[S], typ string, fn func(S, P) S) {
	if _, exists := r.handlers[typ]; exists {
		panic(fmt.Sprintf("rebuild: duplicate fold for %s", typ))
	}
	r.handlers[typ] = func(state S, page event.EventPage) (S, error) {
		payload, err := event.Decode[P](page.Payload)
		if err != nil {
			return state, err
		}
		return fn(state, payload), nil
	}
	r.types = append(r.types, typ)
}

// HandlePage registers a fold that needs page metadata such as the sequence
// or timestamp.
func HandlePage[S, P any](r *FoldRouter[S], typ string, fn func(S, event.EventPage, P) S) {
	if _, exists := r.handlers[typ]; exists {
		panic(fmt.Sprintf("rebuild: duplicate fold for %s", typ))
	}
	r.handlers[typ] = func(state S, page event.EventPage) (S, error) {
		payload, err := event.Decode[P](page.Payload)
		if err != nil {
			return state, err
		}
		return fn(state, page, payload), nil
	}
	r.types = append(r.types, typ)
}
