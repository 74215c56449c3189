// Package poker wires the player and hand aggregates and the settlement saga.
package poker

import (
	"github.com/louisbranch/evented/internal/services/coordinator/domain/aggregate"
	"github.com/louisbranch/evented/internal/services/coordinator/modules"
	"github.com/louisbranch/evented/internal/services/coordinator/modules/poker/hand"
	"github.com/louisbranch/evented/internal/services/coordinator/modules/poker/player"
	"github.com/louisbranch/evented/internal/services/coordinator/modules/poker/settlement"
)

// Module is the poker module.
type Module struct{}

// ID returns the module id.
func (Module) ID() string { return "poker" }

// Domains returns the player and hand domains.
func (Module) Domains() []aggregate.Domain {
	return []aggregate.Domain{player.New(), hand.New()}
}

// RegisterReactors subscribes settlement to hand events.
func (Module) RegisterReactors(r modules.Reactors) error {
	return r.RegisterSaga(settlement.Saga{}, hand.Domain)
}
