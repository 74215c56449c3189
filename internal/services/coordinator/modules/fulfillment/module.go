package fulfillment

import (
	"github.com/louisbranch/evented/internal/services/coordinator/domain/aggregate"
	"github.com/louisbranch/evented/internal/services/coordinator/modules"
)

// Module is the fulfillment module.
type Module struct{}

// ID returns the module id.
func (Module) ID() string { return "fulfillment" }

// Domains returns the four order aggregates.
func (Module) Domains() []aggregate.Domain {
	return []aggregate.Domain{Payment(), Inventory(), Warehouse(), Shipping()}
}

// RegisterReactors subscribes the fulfillment process manager to its
// prerequisite domains.
func (Module) RegisterReactors(r modules.Reactors) error {
	return r.RegisterProcess(Process(), Prerequisites...)
}
