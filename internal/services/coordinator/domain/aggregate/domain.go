package aggregate

import (
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/louisbranch/evented/internal/platform/errors"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/command"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/event"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/rebuild"
)

// Domain is the untyped view of a Definition the router dispatches through.
type Domain interface {
	Name() string
	Rebuild(book event.EventBook) (any, error)
	Fold(state any, page event.EventPage) (any, error)
	Decide(state any, payload event.Payload) (command.Decision, error)
	Handles(commandType string) bool
	HandledCommands() []string
	RequiresExisting(commandType string) bool
	Snapshot(state any) ([]byte, bool, error)
}

// Definition binds the rebuild functions and command handlers of one domain.
type Definition[S any] struct {
	name     string
	funcs    rebuild.Funcs[S]
	handlers map[string]func(S, event.Payload) (command.Decision, error)
	commands []string
	existing map[string]bool
	encode   func(S) ([]byte, error)
}

// NewDomain creates a definition for name.
func NewDomain[S any](name string, funcs rebuild.Funcs[S]) *Definition[S] {
	return &Definition[S]{
		name:     strings.TrimSpace(name),
		funcs:    funcs,
		handlers: make(map[string]func(S, event.Payload) (command.Decision, error)),
		existing: make(map[string]bool),
	}
}

// HandleCommand registers a typed handler for commandType. The command body
// is decoded into P before fn runs.
//
// This is a top-level generic function because Go disallows method-level type
// parameters on generic types.
func HandleCommand[S, P any](def *Definition[S], commandType string, fn func(S, P) command.Decision) {
	if _, exists := def.handlers[commandType]; exists {
		panic(fmt.Sprintf("aggregate %s: duplicate handler for %s", def.name, commandType))
	}
	def.handlers[commandType] = func(state S, payload event.Payload) (command.Decision, error) {
		body, err := event.Decode[P](payload)
		if err != nil {
			return command.Decision{}, err
		}
		return fn(state, body), nil
	}
	def.commands = append(def.commands, commandType)
}

// RequireExisting marks command types that need a non-empty stream.
func (d *Definition[S]) RequireExisting(commandTypes ...string) *Definition[S] {
	for _, t := range commandTypes {
		d.existing[t] = true
	}
	return d
}

// WithSnapshots enables snapshot writes using encode.
func (d *Definition[S]) WithSnapshots(encode func(S) ([]byte, error)) *Definition[S] {
	d.encode = encode
	return d
}

// Name returns the domain name.
func (d *Definition[S]) Name() string { return d.name }

// Funcs returns the rebuild functions.
func (d *Definition[S]) Funcs() rebuild.Funcs[S] { return d.funcs }

// Rebuild folds book into state.
func (d *Definition[S]) Rebuild(book event.EventBook) (any, error) {
	return rebuild.Rebuild(book, d.funcs)
}

// Fold applies one page to state.
func (d *Definition[S]) Fold(state any, page event.EventPage) (any, error) {
	s, err := d.assert(state)
	if err != nil {
		return nil, err
	}
	return d.funcs.Apply(s, page)
}

// Decide runs the handler registered for the payload type.
func (d *Definition[S]) Decide(state any, payload event.Payload) (command.Decision, error) {
	handler, ok := d.handlers[payload.Type]
	if !ok {
		return command.Decision{}, unknownCommand(d.name, payload.Type)
	}
	s, err := d.assert(state)
	if err != nil {
		return command.Decision{}, err
	}
	return handler(s, payload)
}

// Handles reports whether commandType has a handler.
func (d *Definition[S]) Handles(commandType string) bool {
	_, ok := d.handlers[commandType]
	return ok
}

// HandledCommands returns the command types in registration order.
func (d *Definition[S]) HandledCommands() []string {
	return append([]string(nil), d.commands...)
}

// RequiresExisting reports whether commandType was marked RequireExisting.
func (d *Definition[S]) RequiresExisting(commandType string) bool {
	return d.existing[commandType]
}

// Snapshot encodes state when snapshots are enabled.
func (d *Definition[S]) Snapshot(state any) ([]byte, bool, error) {
	if d.encode == nil {
		return nil, false, nil
	}
	s, err := d.assert(state)
	if err != nil {
		return nil, false, err
	}
	data, err := d.encode(s)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (d *Definition[S]) assert(state any) (S, error) {
	if state == nil {
		return d.funcs.Empty(), nil
	}
	s, ok := state.(S)
	if !ok {
		var zero S
		return zero, fmt.Errorf("aggregate %s: expected state %T, got %T", d.name, zero, state)
	}
	return s, nil
}

// Router is the immutable set of domains a process serves.
type Router struct {
	domains map[string]Domain
	names   []string
}

// NewRouter builds a router. Duplicate or unnamed domains are rejected.
func NewRouter(domains ...Domain) (*Router, error) {
	r := &Router{domains: make(map[string]Domain, len(domains))}
	for _, d := range domains {
		if d == nil {
			return nil, fmt.Errorf("aggregate router: nil domain")
		}
		name := d.Name()
		if name == "" {
			return nil, fmt.Errorf("aggregate router: domain name is required")
		}
		if _, exists := r.domains[name]; exists {
			return nil, fmt.Errorf("aggregate router: duplicate domain %s", name)
		}
		r.domains[name] = d
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r, nil
}

// MustRouter is NewRouter for static wiring.
func MustRouter(domains ...Domain) *Router {
	r, err := NewRouter(domains...)
	if err != nil {
		panic(err)
	}
	return r
}

// Domain returns the domain registered under name.
func (r *Router) Domain(name string) (Domain, bool) {
	if r == nil {
		return nil, false
	}
	d, ok := r.domains[name]
	return d, ok
}

// Names returns the registered domain names, sorted.
func (r *Router) Names() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.names...)
}

func unknownCommand(domain, commandType string) error {
	return apperrors.WithMetadata(apperrors.KindInvalidArgument, apperrors.CodeCommandTypeUnknown,
		fmt.Sprintf("domain %s does not handle command %s", domain, commandType),
		map[string]string{"domain": domain, "command_type": commandType})
}
