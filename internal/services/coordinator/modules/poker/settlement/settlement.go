// Package settlement releases each player's reservation when a hand ends.
// It is a splitter: one HandEnded event yields one ReleaseFunds command per
// seated player.
package settlement

import (
	"fmt"

	"github.com/louisbranch/evented/internal/services/coordinator/domain/command"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/event"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/saga"
	"github.com/louisbranch/evented/internal/services/coordinator/modules/poker/hand"
	"github.com/louisbranch/evented/internal/services/coordinator/modules/poker/player"
)

// Name identifies the saga.
const Name = "poker.settlement"

// Saga settles ended hands.
type Saga struct{}

// Name returns the saga name.
func (Saga) Name() string { return Name }

// Prepare names every player stream referenced by an ended hand.
func (Saga) Prepare(source event.EventBook) []event.Cover {
	var covers []event.Cover
	for _, ended := range endedEvents(source) {
		for _, r := range ended.Results {
			covers = append(covers, event.Cover{Domain: player.Domain, Root: r.Player})
		}
	}
	return covers
}

// Execute emits one ReleaseFunds per seat, targeted at the player's current
// next sequence.
func (Saga) Execute(source event.EventBook, destinations []event.EventBook) ([]command.CommandBook, error) {
	var books []command.CommandBook
	for _, ended := range endedEvents(source) {
		for _, r := range ended.Results {
			cover := event.Cover{Domain: player.Domain, Root: r.Player}
			dest, ok := saga.Find(destinations, cover)
			if !ok {
				return nil, fmt.Errorf("player %s was not loaded", r.Player)
			}
			payload, err := event.NewPayload(player.CommandReleaseFunds, player.ReleaseFunds{
				HandID: source.Cover.Root,
				Payout: r.Payout,
			})
			if err != nil {
				return nil, err
			}
			books = append(books, command.NewBook(dest, payload, source.Cover.CorrelationID))
		}
	}
	return books, nil
}

func endedEvents(source event.EventBook) []hand.Ended {
	if source.Cover.Domain != hand.Domain {
		return nil
	}
	var out []hand.Ended
	for _, page := range source.Pages {
		if page.Payload.Type != hand.EventEnded {
			continue
		}
		ended, err := event.Decode[hand.Ended](page.Payload)
		if err != nil {
			continue
		}
		out = append(out, ended)
	}
	return out
}
