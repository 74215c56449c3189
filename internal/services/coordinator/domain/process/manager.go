package process

import (
	"strings"

	"github.com/louisbranch/evented/internal/platform/id"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/command"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/event"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/rebuild"
)

// Manager is a process manager.
type Manager interface {
	Name() string
	// Rebuild folds the manager's own stream into its state.
	Rebuild(state event.EventBook) (any, error)
	// Prepare returns the covers Handle needs, judged from the trigger.
	Prepare(trigger event.EventBook, state event.EventBook) []event.Cover
	// Handle folds the trigger into state and returns events for the
	// manager's stream plus commands for other domains.
	Handle(trigger event.EventBook, state event.EventBook, destinations []event.EventBook) (Outcome, error)
}

// Outcome is what one trigger produces.
type Outcome struct {
	Commands []command.CommandBook
	Events   []event.Payload
}

// Cover addresses the stream of manager name for correlationID.
func Cover(name, correlationID string) event.Cover {
	correlationID = strings.TrimSpace(correlationID)
	return event.Cover{
		Domain:        name,
		Root:          id.CorrelationRoot(correlationID),
		CorrelationID: correlationID,
	}
}

// Typed adapts typed state functions to Manager.
type Typed[S any] struct {
	ManagerName string
	Funcs       rebuild.Funcs[S]
	PrepareFn   func(trigger event.EventBook, state S) []event.Cover
	HandleFn    func(trigger event.EventBook, state S, destinations []event.EventBook) (Outcome, error)
}

// Name returns the manager name, which is also its stream domain.
func (t Typed[S]) Name() string { return t.ManagerName }

// Rebuild folds the manager stream.
func (t Typed[S]) Rebuild(state event.EventBook) (any, error) {
	return t.state(state)
}

// Prepare rebuilds state and delegates to PrepareFn.
func (t Typed[S]) Prepare(trigger event.EventBook, state event.EventBook) []event.Cover {
	if t.PrepareFn == nil {
		return nil
	}
	s, err := t.state(state)
	if err != nil {
		return nil
	}
	return t.PrepareFn(trigger, s)
}

// Handle rebuilds state and delegates to HandleFn.
func (t Typed[S]) Handle(trigger event.EventBook, state event.EventBook, destinations []event.EventBook) (Outcome, error) {
	s, err := t.state(state)
	if err != nil {
		return Outcome{}, err
	}
	if t.HandleFn == nil {
		return Outcome{}, nil
	}
	return t.HandleFn(trigger, s, destinations)
}

func (t Typed[S]) state(book event.EventBook) (S, error) {
	return rebuild.Rebuild(book, t.Funcs)
}
