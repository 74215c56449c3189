package aggregate

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/evented/internal/platform/errors"
	"github.com/louisbranch/evented/internal/platform/logging"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/command"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/event"
	"github.com/louisbranch/evented/internal/services/coordinator/storage"
)

var tracer = otel.Tracer("github.com/louisbranch/evented/coordinator/aggregate")

// Publisher hands committed delta books to the bus.
type Publisher interface {
	Publish(ctx context.Context, delta event.EventBook) error
}

// SyncDispatcher runs saga and process dispatch inline for synchronous
// commands.
type SyncDispatcher interface {
	DispatchSync(ctx context.Context, delta event.EventBook) error
}

// Coordinator handles command books against persisted streams.
type Coordinator struct {
	Evaluator Evaluator
	Store     storage.EventStore
	Snapshots storage.SnapshotStore
	// SnapshotEvery writes a snapshot each time a stream crosses a multiple
	// of this many pages. Zero disables snapshots.
	SnapshotEvery uint64
	Publisher     Publisher
	Sync          SyncDispatcher
	Logger        logrus.FieldLogger
}

// SyncDispatchError reports that a synchronous command committed its events
// but its reactors failed.
type SyncDispatchError struct {
	Cover event.Cover
	Err   error
}

func (e *SyncDispatchError) Error() string {
	return fmt.Sprintf("synchronous dispatch for %s: %v", e.Cover.Key(), e.Err)
}

func (e *SyncDispatchError) Unwrap() error { return e.Err }

// Handle evaluates book against the current stream and appends the result.
// On rejection or conflict it returns the prior book with the error. When the
// book asks for synchronous dispatch, a dispatch failure is returned along
// with the updated book because the events are already committed.
func (c *Coordinator) Handle(ctx context.Context, book command.CommandBook) (event.EventBook, error) {
	ctx, span := tracer.Start(ctx, "aggregate.Handle", trace.WithAttributes(
		attribute.String("evented.domain", book.Cover.Domain),
		attribute.String("evented.root", book.Cover.Root.String()),
		attribute.Int("evented.command_pages", len(book.Pages)),
	))
	defer span.End()

	updated, err := c.handle(ctx, book)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperrors.CodeOf(err)))
	}
	return updated, err
}

func (c *Coordinator) handle(ctx context.Context, book command.CommandBook) (event.EventBook, error) {
	log := logging.FromContext(ctx, c.Logger).WithFields(logrus.Fields{
		"domain": book.Cover.Domain,
		"root":   book.Cover.Root.String(),
	})
	if _, err := c.Evaluator.Check(book); err != nil {
		return event.EventBook{Cover: book.Cover}, err
	}
	if c.Store == nil {
		return event.EventBook{}, errors.New("event store is required")
	}
	current, err := c.reader().Read(ctx, book.Cover)
	if err != nil {
		return event.EventBook{}, storageFailed(err)
	}

	eval, err := c.Evaluator.Evaluate(current, book)
	if err != nil {
		log.WithError(err).WithField("code", apperrors.CodeOf(err)).Debug("command not applied")
		return current, err
	}
	if len(eval.Pages) == 0 {
		return current, nil
	}

	if err := c.Store.AppendEvents(ctx, book.Cover, current.NextSequence(), eval.Pages); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return current, raceConflict(book.Cover, current.NextSequence(), err)
		}
		return current, storageFailed(err)
	}
	updated := current.Append(eval.Pages...)
	log.WithFields(logrus.Fields{
		"from": eval.Pages[0].Sequence,
		"to":   eval.Pages[len(eval.Pages)-1].Sequence,
	}).Debug("appended events")

	c.maybeSnapshot(ctx, log, book.Cover, eval, current.NextSequence(), updated.NextSequence())

	delta := event.EventBook{Cover: book.Cover, Pages: clonePages(eval.Pages)}
	c.publish(ctx, log, delta)
	if book.Synchronous() && c.Sync != nil {
		if err := c.Sync.DispatchSync(ctx, delta); err != nil {
			return updated, &SyncDispatchError{Cover: book.Cover, Err: err}
		}
	}
	return updated, nil
}

// Commit appends already-decided events to cover at expected. Process
// managers use it to persist their own streams, which have no command
// handlers.
func (c *Coordinator) Commit(ctx context.Context, cover event.Cover, expected uint64, payloads []event.Payload) (event.EventBook, error) {
	ctx, span := tracer.Start(ctx, "aggregate.Commit", trace.WithAttributes(
		attribute.String("evented.domain", cover.Domain),
		attribute.String("evented.root", cover.Root.String()),
		attribute.Int("evented.events", len(payloads)),
	))
	defer span.End()

	updated, err := c.commit(ctx, cover, expected, payloads)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperrors.CodeOf(err)))
	}
	return updated, err
}

func (c *Coordinator) commit(ctx context.Context, cover event.Cover, expected uint64, payloads []event.Payload) (event.EventBook, error) {
	log := logging.FromContext(ctx, c.Logger).WithFields(logrus.Fields{
		"domain": cover.Domain,
		"root":   cover.Root.String(),
	})
	if err := cover.Validate(); err != nil {
		return event.EventBook{}, err
	}
	if c.Store == nil {
		return event.EventBook{}, errors.New("event store is required")
	}
	current, err := storage.BookReader{Events: c.Store}.Read(ctx, cover)
	if err != nil {
		return event.EventBook{}, storageFailed(err)
	}
	if expected != current.NextSequence() {
		return current, SequenceConflict(cover, expected, current.NextSequence())
	}
	if len(payloads) == 0 {
		return current, nil
	}
	now := c.Evaluator.now()
	pages := make([]event.EventPage, 0, len(payloads))
	for i, payload := range payloads {
		if payload.Empty() {
			return current, apperrors.New(apperrors.KindInvalidArgument, apperrors.CodeCommandPayloadMissing,
				fmt.Sprintf("event %d has no type", i))
		}
		pages = append(pages, event.EventPage{Sequence: expected + uint64(i), Payload: payload.Clone(), CreatedAt: now})
	}
	if err := c.Store.AppendEvents(ctx, cover, expected, pages); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return current, raceConflict(cover, expected, err)
		}
		return current, storageFailed(err)
	}
	c.publish(ctx, log, event.EventBook{Cover: cover, Pages: clonePages(pages)})
	return current.Append(pages...), nil
}

func (c *Coordinator) reader() storage.BookReader {
	return storage.BookReader{Events: c.Store, Snapshots: c.Snapshots}
}

func (c *Coordinator) maybeSnapshot(ctx context.Context, log logrus.FieldLogger, cover event.Cover, eval Evaluation, before, after uint64) {
	if c.Snapshots == nil || c.SnapshotEvery == 0 {
		return
	}
	if before/c.SnapshotEvery == after/c.SnapshotEvery {
		return
	}
	data, ok, err := eval.Domain.Snapshot(eval.State)
	if err != nil {
		log.WithError(err).Warn("encode snapshot")
		return
	}
	if !ok {
		return
	}
	snapshot := event.Snapshot{State: data, AsOfSequence: after - 1}
	if err := c.Snapshots.PutSnapshot(ctx, cover.Stream(), snapshot); err != nil {
		log.WithError(err).Warn("write snapshot")
	}
}

func (c *Coordinator) publish(ctx context.Context, log logrus.FieldLogger, delta event.EventBook) {
	if c.Publisher == nil {
		return
	}
	if err := c.Publisher.Publish(ctx, delta); err != nil {
		log.WithError(err).Warn("publish committed events")
	}
}

// raceConflict reports a writer that passed the sequence gate but lost the
// compare-and-append to a concurrent writer.
func raceConflict(cover event.Cover, expected uint64, cause error) error {
	return &apperrors.Error{
		Kind:     apperrors.KindFailedPrecondition,
		Code:     apperrors.CodeSequenceConflict,
		Message:  fmt.Sprintf("sequence conflict on %s: stream advanced past %d", cover.Key(), expected),
		Metadata: map[string]string{"domain": cover.Domain, "root": cover.Root.String(), "expected": strconv.FormatUint(expected, 10)},
		Cause:    cause,
	}
}

func storageFailed(err error) error {
	if _, ok := apperrors.As(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperrors.Wrap(apperrors.KindInternal, apperrors.CodeStorageFailed, "storage failure", err)
}

func clonePages(pages []event.EventPage) []event.EventPage {
	return event.EventBook{Pages: pages}.Clone().Pages
}
