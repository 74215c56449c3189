package fulfillment

import (
	"github.com/louisbranch/evented/internal/services/coordinator/domain/command"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/event"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/process"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/rebuild"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/saga"
)

// ProcessName is the process manager name and the domain of its streams.
const ProcessName = "fulfillment"

const (
	EventPrerequisiteRecorded = "fulfillment.prerequisite_recorded"
	EventShipmentRequested    = "fulfillment.shipment_requested"
)

// Prerequisites lists the domains whose events gate shipment, in report
// order.
var Prerequisites = []string{DomainPayment, DomainInventory, DomainWarehouse}

var prerequisiteEvents = map[string]string{
	EventPaymentSubmitted: DomainPayment,
	EventStockReserved:    DomainInventory,
	EventItemsPacked:      DomainWarehouse,
}

// PrerequisiteRecorded notes one completed prerequisite.
type PrerequisiteRecorded struct {
	Step string `json:"step"`
}

// ShipmentRequested notes the single Ship command.
type ShipmentRequested struct {
	OrderID string `json:"order_id"`
}

// ProcessState is the fan-in progress of one order.
type ProcessState struct {
	Completed         map[string]bool `json:"completed,omitempty"`
	ShipmentRequested bool            `json:"shipment_requested"`
}

// Pending lists prerequisites not yet seen.
func (s ProcessState) Pending() []string {
	var out []string
	for _, step := range Prerequisites {
		if !s.Completed[step] {
			out = append(out, step)
		}
	}
	return out
}

func (s ProcessState) record(step string) ProcessState {
	completed := make(map[string]bool, len(s.Completed)+1)
	for k, v := range s.Completed {
		completed[k] = v
	}
	completed[step] = true
	s.Completed = completed
	return s
}

// newSteps returns prerequisites the trigger completes that state has not
// seen, without repeats.
func newSteps(trigger event.EventBook, s ProcessState) []string {
	var steps []string
	seen := make(map[string]bool)
	for _, page := range trigger.Pages {
		step, ok := prerequisiteEvents[page.Payload.Type]
		if !ok || s.Completed[step] || seen[step] {
			continue
		}
		seen[step] = true
		steps = append(steps, step)
	}
	return steps
}

func completes(trigger event.EventBook, s ProcessState) bool {
	if s.ShipmentRequested {
		return false
	}
	for _, step := range newSteps(trigger, s) {
		s = s.record(step)
	}
	return len(s.Pending()) == 0
}

// shipped reports whether the shipping stream holds the order's shipment.
func shipped(dest event.EventBook) bool {
	if dest.Snapshot != nil {
		return true
	}
	for _, page := range dest.Pages {
		if page.Payload.Type == EventShipped {
			return true
		}
	}
	return false
}

func shipCommand(destinations []event.EventBook, orderID string) (command.CommandBook, bool, error) {
	cover := OrderCover(DomainShipping, orderID)
	dest, ok := saga.Find(destinations, cover)
	if !ok {
		dest = event.EventBook{Cover: cover.Stream()}
	}
	if shipped(dest) {
		return command.CommandBook{}, false, nil
	}
	payload, err := event.NewPayload(CommandShip, Ship{OrderID: orderID})
	if err != nil {
		return command.CommandBook{}, false, err
	}
	return command.NewBook(dest, payload, orderID), true, nil
}

// Process builds the fulfillment process manager.
func Process() process.Typed[ProcessState] {
	folds := rebuild.NewFoldRouter[ProcessState]()
	rebuild.HandleEvent(folds, EventPrerequisiteRecorded, func(s ProcessState, e PrerequisiteRecorded) ProcessState {
		return s.record(e.Step)
	})
	rebuild.HandleEvent(folds, EventShipmentRequested, func(s ProcessState, _ ShipmentRequested) ProcessState {
		s.ShipmentRequested = true
		return s
	})
	snapshots := rebuild.JSONSnapshot[ProcessState]{}

	return process.Typed[ProcessState]{
		ManagerName: ProcessName,
		Funcs: rebuild.Funcs[ProcessState]{
			Empty:        func() ProcessState { return ProcessState{} },
			FromSnapshot: snapshots.FromSnapshot,
			Apply:        folds.Apply,
		},
		PrepareFn: func(trigger event.EventBook, s ProcessState) []event.Cover {
			if !s.ShipmentRequested && !completes(trigger, s) {
				return nil
			}
			return []event.Cover{OrderCover(DomainShipping, trigger.Cover.CorrelationID).Stream()}
		},
		HandleFn: func(trigger event.EventBook, s ProcessState, destinations []event.EventBook) (process.Outcome, error) {
			var out process.Outcome
			orderID := trigger.Cover.CorrelationID
			if s.ShipmentRequested {
				// A Ship that never reached the shipping stream is sent again.
				ship, ok, err := shipCommand(destinations, orderID)
				if err != nil || !ok {
					return out, err
				}
				out.Commands = append(out.Commands, ship)
				return out, nil
			}

			ship := completes(trigger, s)
			for _, step := range newSteps(trigger, s) {
				payload, err := event.NewPayload(EventPrerequisiteRecorded, PrerequisiteRecorded{Step: step})
				if err != nil {
					return process.Outcome{}, err
				}
				out.Events = append(out.Events, payload)
			}
			if !ship {
				return out, nil
			}

			out.Events = append(out.Events, event.MustPayload(EventShipmentRequested, ShipmentRequested{OrderID: orderID}))
			book, ok, err := shipCommand(destinations, orderID)
			if err != nil {
				return process.Outcome{}, err
			}
			if ok {
				out.Commands = append(out.Commands, book)
			}
			return out, nil
		},
	}
}
