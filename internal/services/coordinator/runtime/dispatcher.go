package runtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/evented/internal/platform/errors"
	"github.com/louisbranch/evented/internal/platform/logging"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/command"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/event"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/process"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/saga"
	"github.com/louisbranch/evented/internal/services/coordinator/storage"
)

var tracer = otel.Tracer("github.com/louisbranch/evented/coordinator/runtime")

// Commands submits command books. The aggregate coordinator implements it.
type Commands interface {
	Handle(ctx context.Context, book command.CommandBook) (event.EventBook, error)
}

// RetryConfig bounds conflict retries of saga rounds and process manager
// command resubmission.
type RetryConfig struct {
	MaxAttempts     uint          `env:"EVENTED_DISPATCH_MAX_ATTEMPTS" envDefault:"8"`
	InitialInterval time.Duration `env:"EVENTED_DISPATCH_RETRY_INITIAL" envDefault:"10ms"`
	MaxInterval     time.Duration `env:"EVENTED_DISPATCH_RETRY_MAX" envDefault:"500ms"`
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 8
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 10 * time.Millisecond
	}
	if c.MaxInterval < c.InitialInterval {
		c.MaxInterval = c.InitialInterval
	}
	return c
}

func (c RetryConfig) policy() *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.InitialInterval
	policy.MaxInterval = c.MaxInterval
	return policy
}

// Dispatcher runs registered sagas and process managers for committed deltas.
// It is both the bus handler and the coordinator's synchronous dispatch hook.
type Dispatcher struct {
	Commands      Commands
	Reader        storage.Reader
	SagaEngine    saga.Engine
	ProcessEngine process.Engine
	Retry         RetryConfig
	Logger        logrus.FieldLogger

	mu        sync.RWMutex
	sagas     map[string][]saga.Saga
	processes map[string][]process.Manager
	names     map[string]bool
}

// RegisterSaga subscribes s to deltas from the source domains.
func (d *Dispatcher) RegisterSaga(s saga.Saga, sources ...string) error {
	if s == nil {
		return errors.New("saga is required")
	}
	return d.register("saga", s.Name(), sources, func(source string) {
		if d.sagas == nil {
			d.sagas = make(map[string][]saga.Saga)
		}
		d.sagas[source] = append(d.sagas[source], s)
	})
}

// RegisterProcess subscribes m to deltas from the source domains.
func (d *Dispatcher) RegisterProcess(m process.Manager, sources ...string) error {
	if m == nil {
		return errors.New("process manager is required")
	}
	return d.register("process", m.Name(), sources, func(source string) {
		if d.processes == nil {
			d.processes = make(map[string][]process.Manager)
		}
		d.processes[source] = append(d.processes[source], m)
	})
}

func (d *Dispatcher) register(kind, name string, sources []string, add func(string)) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%s name is required", kind)
	}
	if len(sources) == 0 {
		return fmt.Errorf("%s %s: at least one source domain is required", kind, name)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	key := kind + ":" + name
	if d.names[key] {
		return fmt.Errorf("%s %s already registered", kind, name)
	}
	if d.names == nil {
		d.names = make(map[string]bool)
	}
	d.names[key] = true
	for _, source := range sources {
		add(strings.TrimSpace(source))
	}
	return nil
}

// Sources returns every domain some reactor listens to, sorted.
func (d *Dispatcher) Sources() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	seen := make(map[string]bool)
	for source := range d.sagas {
		seen[source] = true
	}
	for source := range d.processes {
		seen[source] = true
	}
	out := make([]string, 0, len(seen))
	for source := range seen {
		out = append(out, source)
	}
	sort.Strings(out)
	return out
}

// Process returns the registered process manager called name.
func (d *Dispatcher) Process(name string) (process.Manager, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, managers := range d.processes {
		for _, m := range managers {
			if m.Name() == name {
				return m, true
			}
		}
	}
	return nil, false
}

// ProcessState reads the state of the named process manager for one
// correlation id.
func (d *Dispatcher) ProcessState(ctx context.Context, name, correlationID string) (process.StateView, error) {
	m, ok := d.Process(name)
	if !ok {
		return process.StateView{}, apperrors.WithMetadata(apperrors.KindNotFound, apperrors.CodeProcessUnknown,
			fmt.Sprintf("unknown process %s", name), map[string]string{"process": name})
	}
	return d.processEngine().State(ctx, m, correlationID)
}

// DispatchSync runs reactors inline for a synchronous command.
func (d *Dispatcher) DispatchSync(ctx context.Context, delta event.EventBook) error {
	return d.Dispatch(ctx, delta)
}

// Dispatch runs every reactor registered for the delta's source domain. A
// returned error asks the bus to redeliver; reactors must tolerate repeats.
func (d *Dispatcher) Dispatch(ctx context.Context, delta event.EventBook) error {
	if d.Commands == nil {
		return errors.New("dispatcher requires a command handler")
	}
	d.mu.RLock()
	sagas := append([]saga.Saga(nil), d.sagas[delta.Cover.Domain]...)
	managers := append([]process.Manager(nil), d.processes[delta.Cover.Domain]...)
	d.mu.RUnlock()
	if len(sagas) == 0 && len(managers) == 0 {
		return nil
	}

	ctx, span := tracer.Start(ctx, "runtime.Dispatch", trace.WithAttributes(
		attribute.String("evented.domain", delta.Cover.Domain),
		attribute.String("evented.root", delta.Cover.Root.String()),
		attribute.Int("evented.sagas", len(sagas)),
		attribute.Int("evented.processes", len(managers)),
	))
	defer span.End()

	log := logging.FromContext(ctx, d.Logger).WithFields(logrus.Fields{
		"stream":         delta.Cover.Key(),
		"correlation_id": delta.Cover.CorrelationID,
	})

	var errs []error
	for _, s := range sagas {
		if err := d.runSaga(ctx, log.WithField("saga", s.Name()), s, delta); err != nil {
			errs = append(errs, fmt.Errorf("saga %s: %w", s.Name(), err))
		}
	}
	for _, m := range managers {
		if err := d.runProcess(ctx, log.WithField("process", m.Name()), m, delta); err != nil {
			errs = append(errs, fmt.Errorf("process %s: %w", m.Name(), err))
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

var errSagaConflict = errors.New("saga destination moved")

// runSaga re-runs both saga phases against fresh destinations whenever a
// submitted book loses a sequence race. Books already settled are not
// resubmitted; a book is identified by its position and destination.
func (d *Dispatcher) runSaga(ctx context.Context, log logrus.FieldLogger, s saga.Saga, delta event.EventBook) error {
	cfg := d.Retry.withDefaults()
	engine := d.SagaEngine
	if engine.Reader == nil {
		engine.Reader = d.Reader
	}
	settled := make(map[string]bool)

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		books, err := engine.Run(ctx, s, delta)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		conflicted := false
		for i, book := range books {
			key := book.Cover.Key()
			slot := strconv.Itoa(i) + "/" + key
			if settled[slot] {
				continue
			}
			_, err := d.Commands.Handle(ctx, book)
			switch {
			case err == nil:
				settled[slot] = true
			case apperrors.IsConflict(err):
				log.WithField("destination", key).Debug("saga destination moved, re-running")
				conflicted = true
			case isRejection(err):
				log.WithField("destination", key).WithError(err).Warn("saga command rejected")
				settled[slot] = true
			default:
				return struct{}{}, backoff.Permanent(err)
			}
		}
		if conflicted {
			return struct{}{}, errSagaConflict
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(cfg.policy()), backoff.WithMaxTries(cfg.MaxAttempts))
	return err
}

// processEngine fills the engine's reader and committer from the
// dispatcher when they are unset.
func (d *Dispatcher) processEngine() process.Engine {
	engine := d.ProcessEngine
	if engine.Reader == nil {
		engine.Reader = d.Reader
	}
	if engine.Committer == nil {
		if committer, ok := d.Commands.(process.Committer); ok {
			engine.Committer = committer
		}
	}
	return engine
}

func (d *Dispatcher) runProcess(ctx context.Context, log logrus.FieldLogger, m process.Manager, delta event.EventBook) error {
	result, err := d.processEngine().Handle(ctx, m, delta)
	if err != nil {
		return err
	}
	if result.Skipped {
		log.Debug("trigger has no correlation id, skipping")
		return nil
	}
	var errs []error
	for _, book := range result.Commands {
		if err := d.submit(ctx, log, book); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// submit sends a process manager command, refreshing its expected sequence
// from the destination when it loses a race.
func (d *Dispatcher) submit(ctx context.Context, log logrus.FieldLogger, book command.CommandBook) error {
	cfg := d.Retry.withDefaults()
	key := book.Cover.Key()
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		_, err := d.Commands.Handle(ctx, book)
		switch {
		case err == nil:
			return struct{}{}, nil
		case apperrors.IsConflict(err):
			if d.Reader == nil {
				return struct{}{}, backoff.Permanent(err)
			}
			current, readErr := d.Reader.Read(ctx, book.Cover.Stream())
			if readErr != nil {
				return struct{}{}, backoff.Permanent(readErr)
			}
			book = book.WithExpectedSequence(current.NextSequence())
			log.WithField("destination", key).Debug("process command conflicted, resubmitting")
			return struct{}{}, err
		case isRejection(err):
			log.WithField("destination", key).WithError(err).Warn("process command rejected")
			return struct{}{}, nil
		default:
			return struct{}{}, backoff.Permanent(err)
		}
	}, backoff.WithBackOff(cfg.policy()), backoff.WithMaxTries(cfg.MaxAttempts))
	return err
}

// isRejection reports a terminal business or validation outcome.
func isRejection(err error) bool {
	switch apperrors.KindOf(err) {
	case apperrors.KindInvalidArgument, apperrors.KindFailedPrecondition, apperrors.KindNotFound:
		return !apperrors.IsConflict(err)
	default:
		return false
	}
}
