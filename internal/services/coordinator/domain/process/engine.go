package process

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	apperrors "github.com/louisbranch/evented/internal/platform/errors"
	"github.com/louisbranch/evented/internal/platform/logging"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/command"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/event"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/saga"
	"github.com/louisbranch/evented/internal/services/coordinator/storage"
)

// Committer appends decided events to a stream with compare-and-append
// semantics. The aggregate coordinator implements it.
type Committer interface {
	Commit(ctx context.Context, cover event.Cover, expected uint64, payloads []event.Payload) (event.EventBook, error)
}

// RetryConfig bounds retries of the manager's own sequence conflicts.
type RetryConfig struct {
	MaxAttempts     uint          `env:"EVENTED_PM_MAX_ATTEMPTS" envDefault:"8"`
	InitialInterval time.Duration `env:"EVENTED_PM_RETRY_INITIAL" envDefault:"10ms"`
	MaxInterval     time.Duration `env:"EVENTED_PM_RETRY_MAX" envDefault:"500ms"`
}

// DefaultRetry returns the defaults used when a field is zero.
func DefaultRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 8, InitialInterval: 10 * time.Millisecond, MaxInterval: 500 * time.Millisecond}
}

func (c RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetry()
	if c.MaxAttempts == 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = d.InitialInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = d.MaxInterval
	}
	if c.MaxInterval < c.InitialInterval {
		c.MaxInterval = c.InitialInterval
	}
	return c
}

// Engine runs process managers.
type Engine struct {
	Reader    storage.Reader
	Committer Committer
	// Loader reads destination books. Its Reader defaults to Reader.
	Loader saga.Engine
	Retry  RetryConfig
	Logger logrus.FieldLogger
}

// Result describes one trigger delivery.
type Result struct {
	// Skipped is set when the trigger has no correlation id.
	Skipped bool
	// Commands are ready to submit; the manager's events are persisted.
	Commands []command.CommandBook
	// State is the manager's stream after this delivery.
	State event.EventBook
	// Attempts counts Prepare/Handle rounds, including conflicts.
	Attempts int
}

// Handle delivers trigger to m.
func (e Engine) Handle(ctx context.Context, m Manager, trigger event.EventBook) (Result, error) {
	if m == nil {
		return Result{}, errors.New("process manager is required")
	}
	if e.Reader == nil || e.Committer == nil {
		return Result{}, errors.New("process engine requires a reader and a committer")
	}
	correlationID := strings.TrimSpace(trigger.Cover.CorrelationID)
	if correlationID == "" {
		return Result{Skipped: true}, nil
	}

	cover := Cover(m.Name(), correlationID)
	log := logging.FromContext(ctx, e.Logger).WithFields(logrus.Fields{
		"process":        m.Name(),
		"correlation_id": correlationID,
		"trigger":        trigger.Cover.Key(),
	})
	cfg := e.Retry.withDefaults()
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = cfg.InitialInterval
	policy.MaxInterval = cfg.MaxInterval

	attempts := 0
	result, err := backoff.Retry(ctx, func() (Result, error) {
		attempts++
		res, err := e.attempt(ctx, m, cover, trigger)
		if err == nil {
			return res, nil
		}
		if apperrors.IsConflict(err) {
			log.WithError(err).WithField("attempt", attempts).Debug("process stream conflict, reloading")
			return Result{}, err
		}
		return Result{}, backoff.Permanent(err)
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(cfg.MaxAttempts))
	if err != nil {
		if apperrors.IsConflict(err) {
			return Result{Attempts: attempts}, apperrors.Wrap(apperrors.KindFailedPrecondition, apperrors.CodeProcessRetriesExhausted,
				fmt.Sprintf("process %s for %s: %d attempts lost to concurrent triggers", m.Name(), correlationID, attempts), err)
		}
		return Result{Attempts: attempts}, err
	}
	result.Attempts = attempts
	return result, nil
}

func (e Engine) attempt(ctx context.Context, m Manager, cover event.Cover, trigger event.EventBook) (Result, error) {
	state, err := e.Reader.Read(ctx, cover)
	if err != nil {
		return Result{}, fmt.Errorf("read process %s: %w", cover.Key(), err)
	}
	state.Cover = cover

	loader := e.Loader
	if loader.Reader == nil {
		loader.Reader = e.Reader
	}
	destinations, err := loader.Load(ctx, saga.Dedupe(m.Prepare(trigger, state)))
	if err != nil {
		return Result{}, fmt.Errorf("process %s: %w", m.Name(), err)
	}
	outcome, err := m.Handle(trigger, state, destinations)
	if err != nil {
		return Result{}, fmt.Errorf("process %s handle: %w", m.Name(), err)
	}

	if len(outcome.Events) > 0 {
		state, err = e.Committer.Commit(ctx, cover, state.NextSequence(), outcome.Events)
		if err != nil {
			return Result{}, err
		}
	}
	return Result{Commands: outcome.Commands, State: state}, nil
}

// StateView is a manager's stream and its rebuilt state.
type StateView struct {
	Book  event.EventBook
	State any
}

// State reads the stream of m for correlationID.
func (e Engine) State(ctx context.Context, m Manager, correlationID string) (StateView, error) {
	if m == nil {
		return StateView{}, errors.New("process manager is required")
	}
	if e.Reader == nil {
		return StateView{}, errors.New("process engine requires a reader")
	}
	if strings.TrimSpace(correlationID) == "" {
		return StateView{}, apperrors.New(apperrors.KindInvalidArgument, apperrors.CodeCoverInvalid, "correlation id is required")
	}
	cover := Cover(m.Name(), correlationID)
	book, err := e.Reader.Read(ctx, cover)
	if err != nil {
		return StateView{}, fmt.Errorf("read process %s: %w", cover.Key(), err)
	}
	book.Cover = cover
	state, err := m.Rebuild(book)
	if err != nil {
		return StateView{}, err
	}
	return StateView{Book: book, State: state}, nil
}
