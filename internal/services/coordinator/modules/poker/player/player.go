// Package player is the poker player aggregate: a bankroll with per-hand
// reservations that are released when a hand settles.
package player

import (
	"fmt"

	"github.com/google/uuid"

	apperrors "github.com/louisbranch/evented/internal/platform/errors"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/aggregate"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/command"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/event"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/rebuild"
)

// Domain is the stream domain of player aggregates.
const Domain = "player"

const (
	CommandRegister     = "player.register"
	CommandDepositFunds = "player.deposit_funds"
	CommandReserveFunds = "player.reserve_funds"
	CommandReleaseFunds = "player.release_funds"

	EventRegistered     = "player.registered"
	EventFundsDeposited = "player.funds_deposited"
	EventFundsReserved  = "player.funds_reserved"
	EventFundsReleased  = "player.funds_released"
)

// Rejection codes.
const (
	CodeAlreadyRegistered apperrors.Code = "PLAYER_ALREADY_REGISTERED"
	CodeAmountInvalid     apperrors.Code = "PLAYER_AMOUNT_INVALID"
	CodeInsufficientFunds apperrors.Code = "PLAYER_INSUFFICIENT_FUNDS"
	CodeAlreadyReserved   apperrors.Code = "PLAYER_HAND_ALREADY_RESERVED"
	CodeNoReservation     apperrors.Code = "PLAYER_NO_RESERVATION"
	CodeAlreadyReleased   apperrors.Code = "PLAYER_FUNDS_ALREADY_RELEASED"
)

// Register opens a player account.
type Register struct {
	Name string `json:"name"`
}

// DepositFunds adds chips to the bankroll.
type DepositFunds struct {
	Amount int64 `json:"amount"`
}

// ReserveFunds sets chips aside for a hand.
type ReserveFunds struct {
	HandID uuid.UUID `json:"hand_id"`
	Amount int64     `json:"amount"`
}

// ReleaseFunds returns a hand's reservation, replaced by the payout.
type ReleaseFunds struct {
	HandID uuid.UUID `json:"hand_id"`
	Payout int64     `json:"payout"`
}

// Registered is emitted by Register.
type Registered struct {
	Name string `json:"name"`
}

// FundsDeposited is emitted by DepositFunds.
type FundsDeposited struct {
	Amount int64 `json:"amount"`
}

// FundsReserved is emitted by ReserveFunds.
type FundsReserved struct {
	HandID uuid.UUID `json:"hand_id"`
	Amount int64     `json:"amount"`
}

// FundsReleased is emitted by ReleaseFunds.
type FundsReleased struct {
	HandID   uuid.UUID `json:"hand_id"`
	Reserved int64     `json:"reserved"`
	Payout   int64     `json:"payout"`
}

// State is a player's bankroll.
type State struct {
	Registered bool                `json:"registered"`
	Name       string              `json:"name"`
	Balance    int64               `json:"balance"`
	Reserved   map[uuid.UUID]int64 `json:"reserved,omitempty"`
	Released   map[uuid.UUID]bool  `json:"released,omitempty"`
}

// Available is the balance not held by open hands.
func (s State) Available() int64 {
	available := s.Balance
	for _, amount := range s.Reserved {
		available -= amount
	}
	return available
}

// New builds the player domain.
func New() *aggregate.Definition[State] {
	folds := rebuild.NewFoldRouter[State]()
	rebuild.HandleEvent(folds, EventRegistered, func(s State, e Registered) State {
		s.Registered = true
		s.Name = e.Name
		return s
	})
	rebuild.HandleEvent(folds, EventFundsDeposited, func(s State, e FundsDeposited) State {
		s.Balance += e.Amount
		return s
	})
	rebuild.HandleEvent(folds, EventFundsReserved, func(s State, e FundsReserved) State {
		s.Reserved = copyMap(s.Reserved)
		s.Reserved[e.HandID] = e.Amount
		return s
	})
	rebuild.HandleEvent(folds, EventFundsReleased, func(s State, e FundsReleased) State {
		s.Reserved = copyMap(s.Reserved)
		delete(s.Reserved, e.HandID)
		s.Released = copyMap(s.Released)
		s.Released[e.HandID] = true
		s.Balance += e.Payout - e.Reserved
		return s
	})

	snapshots := rebuild.JSONSnapshot[State]{}
	def := aggregate.NewDomain(Domain, rebuild.Funcs[State]{
		Empty:        func() State { return State{} },
		FromSnapshot: snapshots.FromSnapshot,
		Apply:        folds.Apply,
	}).WithSnapshots(snapshots.Encode)

	aggregate.HandleCommand(def, CommandRegister, func(s State, c Register) command.Decision {
		if s.Registered {
			return command.Precondition(CodeAlreadyRegistered, "player is already registered")
		}
		return command.Accept(event.MustPayload(EventRegistered, Registered{Name: c.Name}))
	})
	aggregate.HandleCommand(def, CommandDepositFunds, func(s State, c DepositFunds) command.Decision {
		if c.Amount <= 0 {
			return command.Invalid(CodeAmountInvalid, "deposit must be positive")
		}
		return command.Accept(event.MustPayload(EventFundsDeposited, FundsDeposited{Amount: c.Amount}))
	})
	aggregate.HandleCommand(def, CommandReserveFunds, func(s State, c ReserveFunds) command.Decision {
		if c.Amount <= 0 {
			return command.Invalid(CodeAmountInvalid, "reservation must be positive")
		}
		if _, ok := s.Reserved[c.HandID]; ok || s.Released[c.HandID] {
			return command.Precondition(CodeAlreadyReserved, fmt.Sprintf("hand %s already has a reservation", c.HandID))
		}
		if c.Amount > s.Available() {
			return command.Precondition(CodeInsufficientFunds, fmt.Sprintf("available %d, requested %d", s.Available(), c.Amount))
		}
		return command.Accept(event.MustPayload(EventFundsReserved, FundsReserved{HandID: c.HandID, Amount: c.Amount}))
	})
	aggregate.HandleCommand(def, CommandReleaseFunds, func(s State, c ReleaseFunds) command.Decision {
		if c.Payout < 0 {
			return command.Invalid(CodeAmountInvalid, "payout must not be negative")
		}
		if s.Released[c.HandID] {
			return command.Precondition(CodeAlreadyReleased, fmt.Sprintf("hand %s is already settled", c.HandID))
		}
		reserved, ok := s.Reserved[c.HandID]
		if !ok {
			return command.Precondition(CodeNoReservation, fmt.Sprintf("no reservation for hand %s", c.HandID))
		}
		return command.Accept(event.MustPayload(EventFundsReleased, FundsReleased{HandID: c.HandID, Reserved: reserved, Payout: c.Payout}))
	})
	def.RequireExisting(CommandDepositFunds, CommandReserveFunds, CommandReleaseFunds)
	return def
}

func copyMap[V any](in map[uuid.UUID]V) map[uuid.UUID]V {
	out := make(map[uuid.UUID]V, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}
