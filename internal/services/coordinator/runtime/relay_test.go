package runtime

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/louisbranch/evented/internal/platform/logging"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/event"
	"github.com/louisbranch/evented/internal/services/coordinator/storage/integrity"
	"github.com/louisbranch/evented/internal/services/coordinator/storage/sqlite"
)

type recordingPublisher struct {
	mu     sync.Mutex
	deltas []event.EventBook
	fail   error
}

func (p *recordingPublisher) Publish(_ context.Context, delta event.EventBook) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.deltas = append(p.deltas, delta)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.deltas)
}

func openJournal(t *testing.T, now func() time.Time) *sqlite.Store {
	t.Helper()
	ring, err := integrity.NewKeyring(map[string][]byte{"v1": []byte("relay")}, "v1")
	if err != nil {
		t.Fatalf("keyring: %v", err)
	}
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "relay.db"), ring, logging.Discard(), sqlite.WithClock(now))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func appendPages(t *testing.T, store *sqlite.Store, cover event.Cover, from uint64, n int, at time.Time) {
	t.Helper()
	pages := make([]event.EventPage, n)
	for i := range pages {
		pages[i] = event.EventPage{Sequence: from + uint64(i), Payload: event.Payload{Type: "counter.added"}, CreatedAt: at}
	}
	if err := store.AppendEvents(context.Background(), cover, from, pages); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func TestRelayPublishesCommittedDeltas(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := openJournal(t, clock)
	cover := event.Cover{Domain: "counter", Root: uuid.New(), CorrelationID: "c-1"}
	appendPages(t, store, cover, 0, 2, now)
	appendPages(t, store, cover, 2, 1, now)

	pub := &recordingPublisher{}
	relay := Relay{Outbox: store, Publisher: pub, Now: clock, Logger: logging.Discard()}
	n, err := relay.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if n != 2 || pub.count() != 2 {
		t.Fatalf("claimed %d, published %d", n, pub.count())
	}
	first := pub.deltas[0]
	if first.Cover.CorrelationID != "c-1" || len(first.Pages) != 2 || first.Pages[1].Sequence != 1 {
		t.Fatalf("first delta = %+v", first)
	}
	if second := pub.deltas[1]; len(second.Pages) != 1 || second.Pages[0].Sequence != 2 {
		t.Fatalf("second delta = %+v", second)
	}

	stats, err := store.OutboxStats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats != (sqlite.OutboxStats{}) {
		t.Fatalf("outbox not drained: %+v", stats)
	}
}

func TestRelayRetriesFailedPublish(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := openJournal(t, clock)
	appendPages(t, store, event.Cover{Domain: "counter", Root: uuid.New()}, 0, 1, now)

	pub := &recordingPublisher{fail: errors.New("bus unavailable")}
	relay := Relay{Outbox: store, Publisher: pub, Now: clock, RetryInitial: time.Second, RetryMax: time.Minute}
	if _, err := relay.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	stats, _ := store.OutboxStats(context.Background())
	if stats.Failed != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	pub.fail = nil
	if n, _ := relay.Drain(context.Background()); n != 0 {
		t.Fatalf("row claimed before its retry time")
	}
	now = now.Add(2 * time.Second)
	if n, err := relay.Drain(context.Background()); err != nil || n != 1 {
		t.Fatalf("retry drain: n=%d err=%v", n, err)
	}
	if pub.count() != 1 {
		t.Fatalf("published %d", pub.count())
	}
}

func TestRelayRetryDelayGrows(t *testing.T) {
	relay := Relay{RetryInitial: time.Second, RetryMax: 10 * time.Second}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 1500 * time.Millisecond},
		{3, 2250 * time.Millisecond},
		{20, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := relay.retryDelay(tt.attempt); got != tt.want {
			t.Fatalf("attempt %d: delay = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRelayRunStopsOnCancel(t *testing.T) {
	store := openJournal(t, time.Now)
	appendPages(t, store, event.Cover{Domain: "counter", Root: uuid.New()}, 0, 1, time.Now())
	pub := &recordingPublisher{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Relay{Outbox: store, Publisher: pub, PollInterval: 5 * time.Millisecond}.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for pub.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("relay never published")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := (Relay{}).Run(context.Background()); err == nil {
		t.Fatal("expected configuration error")
	}
}
