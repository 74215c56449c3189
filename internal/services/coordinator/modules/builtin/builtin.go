// Package builtin lists the modules compiled into the coordinator.
package builtin

import (
	"github.com/louisbranch/evented/internal/services/coordinator/modules"
	"github.com/louisbranch/evented/internal/services/coordinator/modules/fulfillment"
	"github.com/louisbranch/evented/internal/services/coordinator/modules/poker"
)

// Modules returns every built-in module.
func Modules() []modules.Module {
	return []modules.Module{poker.Module{}, fulfillment.Module{}}
}

// Registry returns a registry of the built-in modules.
func Registry() (*modules.Registry, error) {
	return modules.NewRegistry(Modules()...)
}
