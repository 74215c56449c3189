package aggregate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/louisbranch/evented/internal/platform/errors"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/command"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/event"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/rebuild"
	"github.com/louisbranch/evented/internal/services/coordinator/storage"
	"github.com/louisbranch/evented/internal/services/coordinator/storage/memory"
)

const (
	cmdOpen     = "account.open"
	cmdDeposit  = "account.deposit"
	cmdWithdraw = "account.withdraw"
	evtOpened   = "account.opened"
	evtDeposit  = "account.deposited"
	evtWithdraw = "account.withdrawn"
)

type account struct {
	Opened  bool  `json:"opened"`
	Balance int64 `json:"balance"`
}

type amount struct {
	Amount int64 `json:"amount"`
}

func accountDomain() *Definition[account] {
	folds := rebuild.NewFoldRouter[account]()
	rebuild.HandleEvent(folds, evtOpened, func(s account, _ struct{}) account {
		s.Opened = true
		return s
	})
	rebuild.HandleEvent(folds, evtDeposit, func(s account, p amount) account {
		s.Balance += p.Amount
		return s
	})
	rebuild.HandleEvent(folds, evtWithdraw, func(s account, p amount) account {
		s.Balance -= p.Amount
		return s
	})
	snap := rebuild.JSONSnapshot[account]{}
	def := NewDomain("account", rebuild.Funcs[account]{
		Empty:        func() account { return account{} },
		FromSnapshot: snap.FromSnapshot,
		Apply:        folds.Apply,
	}).RequireExisting(cmdDeposit, cmdWithdraw).WithSnapshots(snap.Encode)

	HandleCommand(def, cmdOpen, func(s account, _ struct{}) command.Decision {
		if s.Opened {
			return command.Precondition("ACCOUNT_OPEN", "account already open")
		}
		return command.Accept(event.MustPayload(evtOpened, struct{}{}))
	})
	HandleCommand(def, cmdDeposit, func(s account, p amount) command.Decision {
		if p.Amount <= 0 {
			return command.Invalid("AMOUNT_INVALID", "amount must be positive")
		}
		return command.Accept(event.MustPayload(evtDeposit, p))
	})
	HandleCommand(def, cmdWithdraw, func(s account, p amount) command.Decision {
		if p.Amount > s.Balance {
			return command.Precondition("INSUFFICIENT_FUNDS", "balance too low")
		}
		return command.Accept(event.MustPayload(evtWithdraw, p))
	})
	return def
}

type recordingPublisher struct {
	mu     sync.Mutex
	deltas []event.EventBook
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, delta event.EventBook) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deltas = append(p.deltas, delta)
	return p.err
}

type recordingSync struct {
	calls []event.EventBook
	err   error
}

func (s *recordingSync) DispatchSync(_ context.Context, delta event.EventBook) error {
	s.calls = append(s.calls, delta)
	return s.err
}

type fixture struct {
	store     *memory.Store
	publisher *recordingPublisher
	sync      *recordingSync
	coord     *Coordinator
	cover     event.Cover
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.NewStore()
	pub := &recordingPublisher{}
	syn := &recordingSync{}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return fixture{
		store:     store,
		publisher: pub,
		sync:      syn,
		cover:     event.Cover{Domain: "account", Root: uuid.New()},
		coord: &Coordinator{
			Evaluator: Evaluator{Router: MustRouter(accountDomain()), Now: func() time.Time { return now }},
			Store:     store,
			Snapshots: store,
			Publisher: pub,
			Sync:      syn,
		},
	}
}

func single(cover event.Cover, expected uint64, typ string, body any) command.CommandBook {
	return command.CommandBook{Cover: cover, Pages: []command.CommandPage{{
		ExpectedSequence: expected,
		Payload:          event.MustPayload(typ, body),
	}}}
}

func TestHandleAppendsAtPriorPageCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	book, err := f.coord.Handle(ctx, single(f.cover, 0, cmdOpen, struct{}{}))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 1; i <= 4; i++ {
		prior := len(book.Pages)
		book, err = f.coord.Handle(ctx, single(f.cover, uint64(prior), cmdDeposit, amount{Amount: 10}))
		if err != nil {
			t.Fatalf("deposit %d: %v", i, err)
		}
		last, _ := book.Last()
		if last.Sequence != uint64(prior) {
			t.Fatalf("new page sequence = %d, want %d", last.Sequence, prior)
		}
		if last.CreatedAt.IsZero() {
			t.Fatal("page not stamped")
		}
	}
	if f.store.Len(f.cover) != 5 {
		t.Fatalf("stored pages = %d, want 5", f.store.Len(f.cover))
	}
	if len(f.publisher.deltas) != 5 {
		t.Fatalf("published = %d, want 5", len(f.publisher.deltas))
	}
	if len(f.publisher.deltas[4].Pages) != 1 || f.publisher.deltas[4].Pages[0].Sequence != 4 {
		t.Fatalf("last delta = %+v", f.publisher.deltas[4])
	}
}

func TestHandleStaleExpectedSequenceConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.coord.Handle(ctx, single(f.cover, 0, cmdOpen, struct{}{})); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.coord.Handle(ctx, single(f.cover, 1, cmdDeposit, amount{Amount: 5})); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	for _, expected := range []uint64{0, 1, 3, 99} {
		book, err := f.coord.Handle(ctx, single(f.cover, expected, cmdDeposit, amount{Amount: 5}))
		if apperrors.KindOf(err) != apperrors.KindFailedPrecondition || !apperrors.IsConflict(err) {
			t.Fatalf("expected %d: err = %v", expected, err)
		}
		if len(book.Pages) != 2 {
			t.Fatalf("expected prior book, got %d pages", len(book.Pages))
		}
	}
	if f.store.Len(f.cover) != 2 {
		t.Fatalf("stored pages = %d, want 2", f.store.Len(f.cover))
	}
	if len(f.publisher.deltas) != 2 {
		t.Fatalf("published = %d, want 2", len(f.publisher.deltas))
	}
}

func TestHandleRejectionReturnsPriorBook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.coord.Handle(ctx, single(f.cover, 0, cmdOpen, struct{}{})); err != nil {
		t.Fatalf("open: %v", err)
	}

	tests := []struct {
		name string
		book command.CommandBook
		kind apperrors.Kind
		code apperrors.Code
	}{
		{name: "business rule", book: single(f.cover, 1, cmdWithdraw, amount{Amount: 1}), kind: apperrors.KindFailedPrecondition, code: "INSUFFICIENT_FUNDS"},
		{name: "handler invalid", book: single(f.cover, 1, cmdDeposit, amount{Amount: -1}), kind: apperrors.KindInvalidArgument, code: "AMOUNT_INVALID"},
		{name: "duplicate open", book: single(f.cover, 1, cmdOpen, struct{}{}), kind: apperrors.KindFailedPrecondition, code: "ACCOUNT_OPEN"},
		{name: "undecodable", book: command.CommandBook{Cover: f.cover, Pages: []command.CommandPage{{ExpectedSequence: 1, Payload: event.Payload{Type: cmdDeposit, Body: []byte(`{"amount":"x"}`)}}}}, kind: apperrors.KindInvalidArgument, code: apperrors.CodePayloadDecodeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			book, err := f.coord.Handle(ctx, tt.book)
			if apperrors.KindOf(err) != tt.kind || apperrors.CodeOf(err) != tt.code {
				t.Fatalf("err = %v (kind %s, code %s)", err, apperrors.KindOf(err), apperrors.CodeOf(err))
			}
			if len(book.Pages) != 1 {
				t.Fatalf("book pages = %d, want 1", len(book.Pages))
			}
		})
	}
	if f.store.Len(f.cover) != 1 || len(f.publisher.deltas) != 1 {
		t.Fatalf("rejections changed store (%d) or bus (%d)", f.store.Len(f.cover), len(f.publisher.deltas))
	}
}

func TestHandleValidatesBook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tests := []struct {
		name string
		book command.CommandBook
		code apperrors.Code
	}{
		{name: "no pages", book: command.CommandBook{Cover: f.cover}, code: apperrors.CodeCommandEmpty},
		{name: "no payload", book: command.CommandBook{Cover: f.cover, Pages: []command.CommandPage{{}}}, code: apperrors.CodeCommandPayloadMissing},
		{name: "no root", book: single(event.Cover{Domain: "account"}, 0, cmdOpen, struct{}{}), code: apperrors.CodeCoverInvalid},
		{name: "unknown domain", book: single(event.Cover{Domain: "ledger", Root: uuid.New()}, 0, cmdOpen, struct{}{}), code: apperrors.CodeDomainUnknown},
		{name: "unknown command", book: single(f.cover, 0, "account.close", struct{}{}), code: apperrors.CodeCommandTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.coord.Handle(ctx, tt.book)
			if apperrors.KindOf(err) != apperrors.KindInvalidArgument || apperrors.CodeOf(err) != tt.code {
				t.Fatalf("err = %v (code %s), want %s", err, apperrors.CodeOf(err), tt.code)
			}
		})
	}
}

func TestHandleRequireExistingOnEmptyStream(t *testing.T) {
	f := newFixture(t)
	_, err := f.coord.Handle(context.Background(), single(f.cover, 0, cmdDeposit, amount{Amount: 1}))
	if apperrors.KindOf(err) != apperrors.KindNotFound {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestHandleMultiPageBookIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	failing := command.CommandBook{Cover: f.cover, Pages: []command.CommandPage{
		{ExpectedSequence: 0, Payload: event.MustPayload(cmdOpen, struct{}{})},
		{ExpectedSequence: 1, Payload: event.MustPayload(cmdDeposit, amount{Amount: 10})},
		{ExpectedSequence: 2, Payload: event.MustPayload(cmdWithdraw, amount{Amount: 50})},
	}}
	if _, err := f.coord.Handle(ctx, failing); apperrors.CodeOf(err) != "INSUFFICIENT_FUNDS" {
		t.Fatalf("err = %v, want INSUFFICIENT_FUNDS", err)
	}
	if f.store.Len(f.cover) != 0 {
		t.Fatalf("partial apply: %d pages stored", f.store.Len(f.cover))
	}

	ok := command.CommandBook{Cover: f.cover, Pages: []command.CommandPage{
		{ExpectedSequence: 0, Payload: event.MustPayload(cmdOpen, struct{}{})},
		{ExpectedSequence: 1, Payload: event.MustPayload(cmdDeposit, amount{Amount: 10})},
		{ExpectedSequence: 2, Payload: event.MustPayload(cmdWithdraw, amount{Amount: 4})},
	}}
	book, err := f.coord.Handle(ctx, ok)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(book.Pages) != 3 || len(f.publisher.deltas) != 1 || len(f.publisher.deltas[0].Pages) != 3 {
		t.Fatalf("book = %d pages, deltas = %+v", len(book.Pages), f.publisher.deltas)
	}
	state, err := accountDomain().Rebuild(book)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if got := state.(account); got.Balance != 6 || !got.Opened {
		t.Fatalf("state = %+v", got)
	}
}

func TestHandleWritesSnapshots(t *testing.T) {
	f := newFixture(t)
	f.coord.SnapshotEvery = 2
	ctx := context.Background()

	book, err := f.coord.Handle(ctx, single(f.cover, 0, cmdOpen, struct{}{}))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.store.GetSnapshot(ctx, f.cover); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("snapshot too early: %v", err)
	}
	for i := 0; i < 3; i++ {
		book, err = f.coord.Handle(ctx, single(f.cover, book.NextSequence(), cmdDeposit, amount{Amount: 7}))
		if err != nil {
			t.Fatalf("deposit: %v", err)
		}
	}
	snap, err := f.store.GetSnapshot(ctx, f.cover)
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if snap.AsOfSequence != 3 {
		t.Fatalf("snapshot at %d, want 3", snap.AsOfSequence)
	}

	book, err = f.coord.Handle(ctx, single(f.cover, 4, cmdWithdraw, amount{Amount: 21}))
	if err != nil {
		t.Fatalf("withdraw after snapshot: %v", err)
	}
	if book.Snapshot == nil || book.NextSequence() != 5 {
		t.Fatalf("book = %+v", book)
	}
}

func TestHandleSynchronousDispatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := single(f.cover, 0, cmdOpen, struct{}{})
	book.Pages[0].SyncMode = command.SyncModeSynchronous
	if _, err := f.coord.Handle(ctx, book); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(f.sync.calls) != 1 || f.sync.calls[0].Pages[0].Sequence != 0 {
		t.Fatalf("sync calls = %+v", f.sync.calls)
	}

	if _, err := f.coord.Handle(ctx, single(f.cover, 1, cmdDeposit, amount{Amount: 1})); err != nil {
		t.Fatalf("async handle: %v", err)
	}
	if len(f.sync.calls) != 1 {
		t.Fatalf("async command ran sync dispatch")
	}

	f.sync.err = errors.New("saga failed")
	syncBook := single(f.cover, 2, cmdDeposit, amount{Amount: 1})
	syncBook.Pages[0].SyncMode = command.SyncModeSynchronous
	updated, err := f.coord.Handle(ctx, syncBook)
	if err == nil {
		t.Fatal("expected dispatch error")
	}
	if len(updated.Pages) != 3 {
		t.Fatalf("updated pages = %d, want committed 3", len(updated.Pages))
	}
}

func TestHandlePublishFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("bus down")
	if _, err := f.coord.Handle(context.Background(), single(f.cover, 0, cmdOpen, struct{}{})); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if f.store.Len(f.cover) != 1 {
		t.Fatal("event not persisted")
	}
}

func TestHandleConcurrentWritersOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.coord.Handle(ctx, single(f.cover, 0, cmdOpen, struct{}{})); err != nil {
		t.Fatalf("open: %v", err)
	}

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.coord.Handle(ctx, single(f.cover, 1, cmdDeposit, amount{Amount: 1}))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case !apperrors.IsConflict(err):
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || f.store.Len(f.cover) != 2 {
		t.Fatalf("wins = %d, pages = %d", wins, f.store.Len(f.cover))
	}
}

func TestCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cover := event.Cover{Domain: "pm.fulfillment", Root: uuid.New(), CorrelationID: "PM-1"}

	book, err := f.coord.Commit(ctx, cover, 0, []event.Payload{
		event.MustPayload("pm.started", struct{}{}),
		event.MustPayload("pm.recorded", struct{}{}),
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if book.NextSequence() != 2 {
		t.Fatalf("next = %d, want 2", book.NextSequence())
	}
	if _, err := f.coord.Commit(ctx, cover, 1, []event.Payload{event.MustPayload("pm.recorded", struct{}{})}); !apperrors.IsConflict(err) {
		t.Fatalf("err = %v, want conflict", err)
	}
	last := f.publisher.deltas[len(f.publisher.deltas)-1]
	if last.Cover.CorrelationID != "PM-1" || len(last.Pages) != 2 {
		t.Fatalf("delta = %+v", last)
	}
}

func TestNewRouterRejectsDuplicates(t *testing.T) {
	if _, err := NewRouter(accountDomain(), accountDomain()); err == nil {
		t.Fatal("expected duplicate domain error")
	}
	if _, err := NewRouter(NewDomain("", rebuild.Funcs[account]{})); err == nil {
		t.Fatal("expected unnamed domain error")
	}
	r := MustRouter(accountDomain())
	if names := r.Names(); len(names) != 1 || names[0] != "account" {
		t.Fatalf("names = %v", names)
	}
}

func TestDefinitionIntrospection(t *testing.T) {
	def := accountDomain()
	if got := def.HandledCommands(); len(got) != 3 || got[0] != cmdOpen {
		t.Fatalf("commands = %v", got)
	}
	if !def.RequiresExisting(cmdDeposit) || def.RequiresExisting(cmdOpen) {
		t.Fatal("RequiresExisting mismatch")
	}
	if _, err := def.Decide("not an account", event.MustPayload(cmdOpen, struct{}{})); err == nil {
		t.Fatal("expected state type error")
	}
}
