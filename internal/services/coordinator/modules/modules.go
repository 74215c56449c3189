// Package modules registers business domains with the coordinator. A module
// contributes aggregate domains plus the sagas and process managers that
// react to them.
package modules

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/louisbranch/evented/internal/services/coordinator/domain/aggregate"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/process"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/saga"
)

var (
	// ErrModuleIDRequired indicates a module without an id.
	ErrModuleIDRequired = errors.New("module id is required")
	// ErrModuleAlreadyRegistered indicates a duplicate module registration.
	ErrModuleAlreadyRegistered = errors.New("module already registered")
)

// Reactors accepts saga and process manager registrations by source domain.
type Reactors interface {
	RegisterSaga(s saga.Saga, sources ...string) error
	RegisterProcess(m process.Manager, sources ...string) error
}

// Module is one business area.
type Module interface {
	ID() string
	Domains() []aggregate.Domain
	RegisterReactors(r Reactors) error
}

// Registry collects modules.
type Registry struct {
	modules map[string]Module
}

// NewRegistry registers mods in order.
func NewRegistry(mods ...Module) (*Registry, error) {
	r := &Registry{modules: make(map[string]Module, len(mods))}
	for _, m := range mods {
		if err := r.Register(m); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds m.
func (r *Registry) Register(m Module) error {
	if m == nil {
		return errors.New("module is required")
	}
	moduleID := strings.TrimSpace(m.ID())
	if moduleID == "" {
		return ErrModuleIDRequired
	}
	if _, exists := r.modules[moduleID]; exists {
		return fmt.Errorf("%w: %s", ErrModuleAlreadyRegistered, moduleID)
	}
	r.modules[moduleID] = m
	return nil
}

// IDs returns the registered module ids, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.modules))
	for moduleID := range r.modules {
		ids = append(ids, moduleID)
	}
	sort.Strings(ids)
	return ids
}

// Router builds the aggregate router over every module's domains.
func (r *Registry) Router() (*aggregate.Router, error) {
	var domains []aggregate.Domain
	for _, moduleID := range r.IDs() {
		domains = append(domains, r.modules[moduleID].Domains()...)
	}
	return aggregate.NewRouter(domains...)
}

// RegisterReactors wires every module's sagas and process managers.
func (r *Registry) RegisterReactors(reactors Reactors) error {
	for _, moduleID := range r.IDs() {
		if err := r.modules[moduleID].RegisterReactors(reactors); err != nil {
			return fmt.Errorf("module %s: %w", moduleID, err)
		}
	}
	return nil
}
