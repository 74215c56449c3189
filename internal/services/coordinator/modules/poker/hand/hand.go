// Package hand is the poker hand aggregate. A hand is dealt to a set of
// seated players and ends with a payout per seat.
package hand

import (
	"fmt"

	"github.com/google/uuid"

	apperrors "github.com/louisbranch/evented/internal/platform/errors"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/aggregate"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/command"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/event"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/rebuild"
)

// Domain is the stream domain of hand aggregates.
const Domain = "hand"

const (
	CommandDeal = "hand.deal"
	CommandEnd  = "hand.end"

	EventDealt = "hand.dealt"
	EventEnded = "hand.ended"
)

// Rejection codes.
const (
	CodeAlreadyDealt   apperrors.Code = "HAND_ALREADY_DEALT"
	CodeAlreadyEnded   apperrors.Code = "HAND_ALREADY_ENDED"
	CodeSeatsInvalid   apperrors.Code = "HAND_SEATS_INVALID"
	CodeResultsInvalid apperrors.Code = "HAND_RESULTS_INVALID"
)

// DealHand seats players.
type DealHand struct {
	Players []uuid.UUID `json:"players"`
}

// Result is one seat's payout.
type Result struct {
	Player uuid.UUID `json:"player"`
	Payout int64     `json:"payout"`
}

// EndHand closes the hand with a payout per seat.
type EndHand struct {
	Results []Result `json:"results"`
}

// Dealt is emitted by DealHand.
type Dealt struct {
	Players []uuid.UUID `json:"players"`
}

// Ended is emitted by EndHand and lists every seated player.
type Ended struct {
	Results []Result `json:"results"`
}

// State is a hand's lifecycle.
type State struct {
	Dealt   bool        `json:"dealt"`
	Ended   bool        `json:"ended"`
	Players []uuid.UUID `json:"players,omitempty"`
}

func (s State) seated(player uuid.UUID) bool {
	for _, p := range s.Players {
		if p == player {
			return true
		}
	}
	return false
}

// New builds the hand domain.
func New() *aggregate.Definition[State] {
	folds := rebuild.NewFoldRouter[State]()
	rebuild.HandleEvent(folds, EventDealt, func(s State, e Dealt) State {
		s.Dealt = true
		s.Players = append([]uuid.UUID(nil), e.Players...)
		return s
	})
	rebuild.HandleEvent(folds, EventEnded, func(s State, _ Ended) State {
		s.Ended = true
		return s
	})

	def := aggregate.NewDomain(Domain, rebuild.Funcs[State]{
		Empty: func() State { return State{} },
		Apply: folds.Apply,
	})
	aggregate.HandleCommand(def, CommandDeal, func(s State, c DealHand) command.Decision {
		if s.Dealt {
			return command.Precondition(CodeAlreadyDealt, "hand is already dealt")
		}
		if len(c.Players) < 2 {
			return command.Invalid(CodeSeatsInvalid, "a hand needs at least two players")
		}
		seen := make(map[uuid.UUID]bool, len(c.Players))
		for _, p := range c.Players {
			if p == uuid.Nil || seen[p] {
				return command.Invalid(CodeSeatsInvalid, fmt.Sprintf("invalid or repeated seat %s", p))
			}
			seen[p] = true
		}
		return command.Accept(event.MustPayload(EventDealt, Dealt{Players: c.Players}))
	})
	aggregate.HandleCommand(def, CommandEnd, func(s State, c EndHand) command.Decision {
		if s.Ended {
			return command.Precondition(CodeAlreadyEnded, "hand is already over")
		}
		if len(c.Results) != len(s.Players) {
			return command.Invalid(CodeResultsInvalid, fmt.Sprintf("want %d results, got %d", len(s.Players), len(c.Results)))
		}
		seen := make(map[uuid.UUID]bool, len(c.Results))
		for _, r := range c.Results {
			if !s.seated(r.Player) || seen[r.Player] || r.Payout < 0 {
				return command.Invalid(CodeResultsInvalid, fmt.Sprintf("invalid result for %s", r.Player))
			}
			seen[r.Player] = true
		}
		return command.Accept(event.MustPayload(EventEnded, Ended{Results: c.Results}))
	})
	def.RequireExisting(CommandEnd)
	return def
}
