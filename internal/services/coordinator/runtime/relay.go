package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"github.com/louisbranch/evented/internal/platform/logging"
	"github.com/louisbranch/evented/internal/platform/timeouts"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/event"
	"github.com/louisbranch/evented/internal/services/coordinator/storage/sqlite"
)

const defaultRelayBatch = 64

// Outbox is the durable publication queue filled by the SQLite journal.
type Outbox interface {
	ClaimOutbox(ctx context.Context, now time.Time, limit int) ([]sqlite.OutboxEntry, error)
	OutboxPages(ctx context.Context, entry sqlite.OutboxEntry) (event.EventBook, error)
	CompleteOutbox(ctx context.Context, id int64) error
	FailOutbox(ctx context.Context, id int64, attempt int, nextAttempt time.Time, cause string) error
}

// Publisher hands a delta to the bus.
type Publisher interface {
	Publish(ctx context.Context, delta event.EventBook) error
}

// Relay moves committed deltas from the outbox to the bus.
type Relay struct {
	Outbox       Outbox
	Publisher    Publisher
	PollInterval time.Duration
	Batch        int
	// RetryInitial and RetryMax shape the delay before a failed row is
	// claimed again.
	RetryInitial time.Duration
	RetryMax     time.Duration
	Now          func() time.Time
	Logger       logrus.FieldLogger
}

// Run polls until ctx is cancelled.
func (r Relay) Run(ctx context.Context) error {
	if r.Outbox == nil || r.Publisher == nil {
		return errors.New("relay requires an outbox and a publisher")
	}
	interval := r.PollInterval
	if interval <= 0 {
		interval = timeouts.OutboxPoll
	}
	log := logging.OrDiscard(r.Logger)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		for {
			n, err := r.Drain(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.WithError(err).Warn("outbox drain failed")
				break
			}
			if n < r.batch() {
				break
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Drain claims one batch and publishes it. It returns the number of rows
// claimed.
func (r Relay) Drain(ctx context.Context) (int, error) {
	now := r.now()
	entries, err := r.Outbox.ClaimOutbox(ctx, now, r.batch())
	if err != nil {
		return 0, err
	}
	log := logging.OrDiscard(r.Logger)
	for _, entry := range entries {
		entryLog := log.WithFields(logrus.Fields{
			"outbox_id": entry.ID,
			"stream":    entry.Cover.Key(),
			"first_seq": entry.FirstSeq,
			"last_seq":  entry.LastSeq,
		})
		if err := r.publish(ctx, entry); err != nil {
			attempt := entry.AttemptCount + 1
			next := now.Add(r.retryDelay(attempt))
			entryLog.WithError(err).WithField("attempt", attempt).Warn("outbox publish failed")
			if failErr := r.Outbox.FailOutbox(ctx, entry.ID, attempt, next, err.Error()); failErr != nil {
				return len(entries), failErr
			}
			if attempt >= sqlite.OutboxDeadLetterThreshold {
				entryLog.Error("outbox row dead-lettered")
			}
			continue
		}
		if err := r.Outbox.CompleteOutbox(ctx, entry.ID); err != nil {
			return len(entries), err
		}
	}
	return len(entries), nil
}

func (r Relay) publish(ctx context.Context, entry sqlite.OutboxEntry) error {
	delta, err := r.Outbox.OutboxPages(ctx, entry)
	if err != nil {
		return err
	}
	return r.Publisher.Publish(ctx, delta)
}

// retryDelay grows exponentially with the attempt count.
func (r Relay) retryDelay(attempt int) time.Duration {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.RetryInitial
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = time.Second
	}
	policy.MaxInterval = r.RetryMax
	if policy.MaxInterval <= 0 {
		policy.MaxInterval = 5 * time.Minute
	}
	if policy.MaxInterval < policy.InitialInterval {
		policy.MaxInterval = policy.InitialInterval
	}
	policy.RandomizationFactor = 0
	policy.Reset()
	delay := policy.InitialInterval
	for i := 0; i < attempt; i++ {
		delay = policy.NextBackOff()
	}
	return delay
}

func (r Relay) batch() int {
	if r.Batch <= 0 {
		return defaultRelayBatch
	}
	return r.Batch
}

func (r Relay) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}
