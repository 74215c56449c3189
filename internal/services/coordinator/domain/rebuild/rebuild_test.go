package rebuild

import (
	"errors"
	"reflect"
	"testing"

	"github.com/louisbranch/evented/internal/services/coordinator/domain/event"
)

type ledger struct {
	Balance int64            `json:"balance"`
	Entries int              `json:"entries"`
	Tags    map[string]int64 `json:"tags,omitempty"`
}

type credit struct {
	Amount int64  `json:"amount"`
	Tag    string `json:"tag"`
}

type debit struct {
	Amount int64 `json:"amount"`
}

func ledgerFuncs() Funcs[ledger] {
	router := NewFoldRouter[ledger]()
	HandleEvent(router, "credited", func(s ledger, p credit) ledger {
		s.Balance += p.Amount
		s.Entries++
		if p.Tag != "" {
			tags := make(map[string]int64, len(s.Tags)+1)
			for k, v := range s.Tags {
				tags[k] = v
			}
			tags[p.Tag] += p.Amount
			s.Tags = tags
		}
		return s
	})
	HandleEvent(router, "debited", func(s ledger, p debit) ledger {
		s.Balance -= p.Amount
		s.Entries++
		return s
	})
	snap := JSONSnapshot[ledger]{}
	return Funcs[ledger]{
		Empty:        func() ledger { return ledger{} },
		FromSnapshot: snap.FromSnapshot,
		Apply:        router.Apply,
	}
}

func history() []event.EventPage {
	return []event.EventPage{
		{Sequence: 0, Payload: event.MustPayload("credited", credit{Amount: 100, Tag: "buyin"})},
		{Sequence: 1, Payload: event.MustPayload("debited", debit{Amount: 30})},
		{Sequence: 2, Payload: event.MustPayload("renamed", map[string]string{"name": "x"})},
		{Sequence: 3, Payload: event.MustPayload("credited", credit{Amount: 5, Tag: "rake"})},
		{Sequence: 4, Payload: event.MustPayload("debited", debit{Amount: 1})},
	}
}

func TestRebuildIsDeterministic(t *testing.T) {
	book := event.EventBook{Pages: history()}
	funcs := ledgerFuncs()

	first, err := Rebuild(book, funcs)
	if err != nil {
		t.Fatalf("first rebuild: %v", err)
	}
	second, err := Rebuild(book, funcs)
	if err != nil {
		t.Fatalf("second rebuild: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("rebuilds differ: %+v vs %+v", first, second)
	}
	if first.Balance != 74 || first.Entries != 4 {
		t.Fatalf("state = %+v", first)
	}
}

func TestRebuildSnapshotEquivalence(t *testing.T) {
	funcs := ledgerFuncs()
	all := history()
	full, err := Rebuild(event.EventBook{Pages: all}, funcs)
	if err != nil {
		t.Fatalf("full rebuild: %v", err)
	}

	snap := JSONSnapshot[ledger]{}
	for k := range all {
		prefix, err := Rebuild(event.EventBook{Pages: all[:k+1]}, funcs)
		if err != nil {
			t.Fatalf("prefix %d: %v", k, err)
		}
		data, err := snap.Encode(prefix)
		if err != nil {
			t.Fatalf("encode %d: %v", k, err)
		}
		book := event.EventBook{
			Snapshot: &event.Snapshot{State: data, AsOfSequence: uint64(k)},
			Pages:    all[k+1:],
		}
		got, err := Rebuild(book, funcs)
		if err != nil {
			t.Fatalf("snapshot rebuild at %d: %v", k, err)
		}
		if !reflect.DeepEqual(got, full) {
			t.Fatalf("snapshot at %d: got %+v, want %+v", k, got, full)
		}
	}
}

func TestRebuildUnknownEventIsNoop(t *testing.T) {
	funcs := ledgerFuncs()
	book := event.EventBook{Pages: []event.EventPage{
		{Sequence: 0, Payload: event.Payload{Type: "from.the.future", Body: []byte(`{"anything":true}`)}},
	}}
	got, err := Rebuild(book, funcs)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if !reflect.DeepEqual(got, ledger{}) {
		t.Fatalf("state = %+v, want empty", got)
	}
}

func TestRebuildRejectsDeltaAndGaps(t *testing.T) {
	funcs := ledgerFuncs()
	all := history()
	tests := []struct {
		name string
		book event.EventBook
	}{
		{name: "delta", book: event.EventBook{Pages: all[2:]}},
		{name: "gap", book: event.EventBook{Pages: []event.EventPage{all[0], all[2]}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Rebuild(tt.book, funcs); !errors.Is(err, event.ErrBookInvalid) {
				t.Fatalf("err = %v, want ErrBookInvalid", err)
			}
		})
	}
}

func TestRebuildRequiresFuncs(t *testing.T) {
	if _, err := Rebuild(event.EventBook{}, Funcs[ledger]{Apply: ledgerFuncs().Apply}); !errors.Is(err, ErrEmptyRequired) {
		t.Fatalf("err = %v", err)
	}
	if _, err := Rebuild(event.EventBook{}, Funcs[ledger]{Empty: func() ledger { return ledger{} }}); !errors.Is(err, ErrApplyRequired) {
		t.Fatalf("err = %v", err)
	}
	funcs := ledgerFuncs()
	funcs.FromSnapshot = nil
	book := event.EventBook{Snapshot: &event.Snapshot{State: []byte(`{}`)}}
	if _, err := Rebuild(book, funcs); !errors.Is(err, ErrSnapshotLoaderRequired) {
		t.Fatalf("err = %v", err)
	}
}

func TestRebuildSurfacesDecodeErrors(t *testing.T) {
	book := event.EventBook{Pages: []event.EventPage{
		{Sequence: 0, Payload: event.Payload{Type: "credited", Body: []byte(`{"amount":"many"}`)}},
	}}
	if _, err := Rebuild(book, ledgerFuncs()); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestFoldRouterHandledTypes(t *testing.T) {
	router := NewFoldRouter[ledger]()
	HandleEvent(router, "credited", func(s ledger, _ credit) ledger { return s })
	HandlePage(router, "debited", func(s ledger, page event.EventPage, _ debit) ledger {
		s.Entries = int(page.Sequence)
		return s
	})
	if got := router.HandledTypes(); !reflect.DeepEqual(got, []string{"credited", "debited"}) {
		t.Fatalf("types = %v", got)
	}
	if !router.Handles("debited") || router.Handles("renamed") {
		t.Fatal("Handles mismatch")
	}
	state, err := router.Apply(ledger{}, event.EventPage{Sequence: 7, Payload: event.MustPayload("debited", debit{})})
	if err != nil || state.Entries != 7 {
		t.Fatalf("state = %+v, err = %v", state, err)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected duplicate registration panic")
		}
	}()
	HandleEvent(router, "credited", func(s ledger, _ credit) ledger { return s })
}
