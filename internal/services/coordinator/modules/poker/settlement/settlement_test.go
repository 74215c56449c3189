package settlement

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/louisbranch/evented/internal/services/coordinator/domain/event"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/saga"
	"github.com/louisbranch/evented/internal/services/coordinator/modules/poker/hand"
	"github.com/louisbranch/evented/internal/services/coordinator/modules/poker/player"
	"github.com/louisbranch/evented/internal/services/coordinator/storage"
	"github.com/louisbranch/evented/internal/services/coordinator/storage/memory"
)

func seedPlayer(t *testing.T, store *memory.Store, root uuid.UUID, pages int) {
	t.Helper()
	cover := event.Cover{Domain: player.Domain, Root: root}
	seeded := make([]event.EventPage, pages)
	for i := range seeded {
		seeded[i] = event.EventPage{Sequence: uint64(i), Payload: event.Payload{Type: player.EventFundsDeposited, Body: []byte(`{"amount":1}`)}}
	}
	if err := store.AppendEvents(context.Background(), cover, 0, seeded); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func endedHand(results ...hand.Result) event.EventBook {
	return event.EventBook{
		Cover: event.Cover{Domain: hand.Domain, Root: uuid.New(), CorrelationID: "table-9"},
		Pages: []event.EventPage{
			{Sequence: 1, Payload: event.MustPayload(hand.EventEnded, hand.Ended{Results: results})},
		},
	}
}

func TestSplitsOneReleasePerPlayer(t *testing.T) {
	store := memory.NewStore()
	p1, p2, p3 := uuid.New(), uuid.New(), uuid.New()
	seedPlayer(t, store, p1, 3)
	seedPlayer(t, store, p2, 1)
	seedPlayer(t, store, p3, 5)

	source := endedHand(hand.Result{Player: p1, Payout: 10}, hand.Result{Player: p2}, hand.Result{Player: p3, Payout: 5})
	engine := saga.Engine{Reader: storage.BookReader{Events: store}}

	want := map[uuid.UUID]uint64{p1: 3, p2: 1, p3: 5}
	for run := 0; run < 3; run++ {
		books, err := engine.Run(context.Background(), Saga{}, source)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if len(books) != 3 {
			t.Fatalf("books = %d, want 3", len(books))
		}
		for _, book := range books {
			if book.Cover.Domain != player.Domain || book.Cover.CorrelationID != "table-9" {
				t.Fatalf("cover = %+v", book.Cover)
			}
			if got := book.Pages[0].ExpectedSequence; got != want[book.Cover.Root] {
				t.Fatalf("expected sequence for %s = %d, want %d", book.Cover.Root, got, want[book.Cover.Root])
			}
			release, err := event.Decode[player.ReleaseFunds](book.Pages[0].Payload)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if release.HandID != source.Cover.Root {
				t.Fatalf("hand id = %s", release.HandID)
			}
		}
	}
}

func TestIgnoresOtherEvents(t *testing.T) {
	source := event.EventBook{
		Cover: event.Cover{Domain: hand.Domain, Root: uuid.New()},
		Pages: []event.EventPage{{Payload: event.MustPayload(hand.EventDealt, hand.Dealt{Players: []uuid.UUID{uuid.New()}})}},
	}
	if covers := (Saga{}).Prepare(source); len(covers) != 0 {
		t.Fatalf("covers = %v", covers)
	}
	books, err := Saga{}.Execute(source, nil)
	if err != nil || len(books) != 0 {
		t.Fatalf("books = %v, err = %v", books, err)
	}
}
