package hand

import (
	"testing"

	"github.com/google/uuid"

	apperrors "github.com/louisbranch/evented/internal/platform/errors"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/command"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/event"
)

func decide(t *testing.T, state State, typ string, body any) command.Decision {
	t.Helper()
	decision, err := New().Decide(state, event.MustPayload(typ, body))
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	return decision
}

func TestDealAndEnd(t *testing.T) {
	p1, p2 := uuid.New(), uuid.New()
	def := New()

	deal := decide(t, State{}, CommandDeal, DealHand{Players: []uuid.UUID{p1, p2}})
	if deal.IsRejected() || len(deal.Events) != 1 || deal.Events[0].Type != EventDealt {
		t.Fatalf("deal = %+v", deal)
	}
	state, err := def.Fold(State{}, event.EventPage{Payload: deal.Events[0]})
	if err != nil {
		t.Fatalf("fold: %v", err)
	}

	end := decide(t, state.(State), CommandEnd, EndHand{Results: []Result{{Player: p1, Payout: 30}, {Player: p2}}})
	if end.IsRejected() {
		t.Fatalf("end rejected: %v", end.Rejection)
	}
	ended, err := event.Decode[Ended](end.Events[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(ended.Results) != 2 || ended.Results[0].Payout != 30 {
		t.Fatalf("ended = %+v", ended)
	}
	if !def.RequiresExisting(CommandEnd) || def.RequiresExisting(CommandDeal) {
		t.Fatal("unexpected RequireExisting marks")
	}
}

func TestHandRejections(t *testing.T) {
	p1, p2, stranger := uuid.New(), uuid.New(), uuid.New()
	dealt := State{Dealt: true, Players: []uuid.UUID{p1, p2}}

	tests := []struct {
		name  string
		state State
		typ   string
		body  any
		code  apperrors.Code
	}{
		{"one seat", State{}, CommandDeal, DealHand{Players: []uuid.UUID{p1}}, CodeSeatsInvalid},
		{"repeated seat", State{}, CommandDeal, DealHand{Players: []uuid.UUID{p1, p1}}, CodeSeatsInvalid},
		{"redeal", dealt, CommandDeal, DealHand{Players: []uuid.UUID{p1, p2}}, CodeAlreadyDealt},
		{"missing result", dealt, CommandEnd, EndHand{Results: []Result{{Player: p1}}}, CodeResultsInvalid},
		{"stranger", dealt, CommandEnd, EndHand{Results: []Result{{Player: p1}, {Player: stranger}}}, CodeResultsInvalid},
		{"ended", State{Dealt: true, Ended: true, Players: dealt.Players}, CommandEnd, EndHand{Results: []Result{{Player: p1}, {Player: p2}}}, CodeAlreadyEnded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := decide(t, tt.state, tt.typ, tt.body)
			if !d.IsRejected() || d.Rejection.Code != tt.code {
				t.Fatalf("decision = %+v, want %s", d, tt.code)
			}
		})
	}
}
