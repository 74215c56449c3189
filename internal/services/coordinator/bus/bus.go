// Package bus delivers committed delta books to subscribers with
// at-least-once semantics.
//
// The topic of a delta is its source domain. Each subscriber consumes from
// its own queue in publication order; a failed delivery is retried with
// exponential backoff before the next delta is handed over.
package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"github.com/louisbranch/evented/internal/platform/logging"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/event"
)

var (
	// ErrRunning reports a subscription attempted after Run started.
	ErrRunning = errors.New("bus: already running")
	// ErrClosed reports a publish after Run returned.
	ErrClosed = errors.New("bus: closed")
)

// Handler consumes one delta book. Returning an error requests redelivery.
type Handler func(ctx context.Context, delta event.EventBook) error

// Config bounds redelivery.
type Config struct {
	MaxAttempts     uint          `env:"EVENTED_BUS_MAX_ATTEMPTS" envDefault:"5"`
	InitialInterval time.Duration `env:"EVENTED_BUS_RETRY_INITIAL" envDefault:"20ms"`
	MaxInterval     time.Duration `env:"EVENTED_BUS_RETRY_MAX" envDefault:"1s"`
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 5
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 20 * time.Millisecond
	}
	if c.MaxInterval < c.InitialInterval {
		c.MaxInterval = c.InitialInterval
	}
	return c
}

// DeadLetter is a delivery that exhausted its attempts.
type DeadLetter struct {
	Subscriber string
	Delta      event.EventBook
	Err        error
}

// Memory is an in-process bus.
type Memory struct {
	cfg    Config
	logger logrus.FieldLogger

	mu          sync.Mutex
	subs        []*subscription
	running     bool
	closed      bool
	outstanding int
	idle        chan struct{}
	dead        []DeadLetter
}

type subscription struct {
	name    string
	domains map[string]struct{}
	handler Handler

	mu     sync.Mutex
	queue  []event.EventBook
	notify chan struct{}
}

// NewMemory creates a bus.
func NewMemory(cfg Config, logger logrus.FieldLogger) *Memory {
	return &Memory{cfg: cfg.withDefaults(), logger: logging.OrDiscard(logger)}
}

// Subscribe registers handler for deltas whose source domain is in domains.
// An empty domain list receives every delta.
func (b *Memory) Subscribe(name string, domains []string, handler Handler) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("subscriber name is required")
	}
	if handler == nil {
		return fmt.Errorf("subscriber %s: handler is required", name)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running || b.closed {
		return ErrRunning
	}
	for _, sub := range b.subs {
		if sub.name == name {
			return fmt.Errorf("subscriber %s already registered", name)
		}
	}
	sub := &subscription{name: name, handler: handler, notify: make(chan struct{}, 1)}
	if len(domains) > 0 {
		sub.domains = make(map[string]struct{}, len(domains))
		for _, domain := range domains {
			sub.domains[domain] = struct{}{}
		}
	}
	b.subs = append(b.subs, sub)
	return nil
}

// Publish enqueues delta for every matching subscriber. It never blocks on
// consumers.
func (b *Memory) Publish(ctx context.Context, delta event.EventBook) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := delta.Cover.Validate(); err != nil {
		return err
	}
	if len(delta.Pages) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	for _, sub := range b.subs {
		if !sub.matches(delta.Cover.Domain) {
			continue
		}
		b.outstanding++
		sub.push(delta.Clone())
	}
	return nil
}

// Run consumes every subscriber's queue until ctx is cancelled.
func (b *Memory) Run(ctx context.Context) error {
	b.mu.Lock()
	if b.running || b.closed {
		b.mu.Unlock()
		return ErrRunning
	}
	b.running = true
	subs := append([]*subscription(nil), b.subs...)
	b.mu.Unlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.consume(ctx, sub)
		}()
	}
	wg.Wait()

	b.mu.Lock()
	b.running = false
	b.closed = true
	b.mu.Unlock()
	return nil
}

// Wait blocks until every published delta has been handled or dead-lettered,
// including deltas published by handlers while waiting.
func (b *Memory) Wait(ctx context.Context) error {
	b.mu.Lock()
	if b.outstanding == 0 {
		b.mu.Unlock()
		return nil
	}
	if b.idle == nil {
		b.idle = make(chan struct{})
	}
	idle := b.idle
	b.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DeadLetters returns deliveries that exhausted their attempts.
func (b *Memory) DeadLetters() []DeadLetter {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]DeadLetter(nil), b.dead...)
}

func (b *Memory) consume(ctx context.Context, sub *subscription) {
	for {
		delta, ok := sub.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-sub.notify:
				continue
			}
		}
		err := b.deliver(ctx, sub, delta)
		if ctx.Err() != nil {
			return
		}
		b.finish(sub, delta, err)
	}
}

func (b *Memory) deliver(ctx context.Context, sub *subscription, delta event.EventBook) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = b.cfg.InitialInterval
	policy.MaxInterval = b.cfg.MaxInterval

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := sub.handler(ctx, delta.Clone())
		if err != nil {
			b.logger.WithFields(logrus.Fields{
				"subscriber": sub.name,
				"stream":     delta.Cover.Key(),
				"attempt":    attempt,
			}).WithError(err).Warn("delivery failed")
		}
		return struct{}{}, err
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(b.cfg.MaxAttempts))
	return err
}

func (b *Memory) finish(sub *subscription, delta event.EventBook, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.dead = append(b.dead, DeadLetter{Subscriber: sub.name, Delta: delta, Err: err})
		b.logger.WithFields(logrus.Fields{
			"subscriber": sub.name,
			"stream":     delta.Cover.Key(),
		}).WithError(err).Error("delivery dead-lettered")
	}
	b.outstanding--
	if b.outstanding == 0 && b.idle != nil {
		close(b.idle)
		b.idle = nil
	}
}

func (s *subscription) matches(domain string) bool {
	if s.domains == nil {
		return true
	}
	_, ok := s.domains[domain]
	return ok
}

func (s *subscription) push(delta event.EventBook) {
	s.mu.Lock()
	s.queue = append(s.queue, delta)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscription) pop() (event.EventBook, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return event.EventBook{}, false
	}
	delta := s.queue[0]
	s.queue[0] = event.EventBook{}
	s.queue = s.queue[1:]
	return delta, true
}
