package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/louisbranch/evented/internal/platform/logging"
	"github.com/louisbranch/evented/internal/services/coordinator/bus"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/aggregate"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/process"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/saga"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/temporal"
	"github.com/louisbranch/evented/internal/services/coordinator/modules"
	"github.com/louisbranch/evented/internal/services/coordinator/modules/builtin"
	"github.com/louisbranch/evented/internal/services/coordinator/runtime"
	"github.com/louisbranch/evented/internal/services/coordinator/storage"
	"github.com/louisbranch/evented/internal/services/coordinator/storage/integrity"
	"github.com/louisbranch/evented/internal/services/coordinator/storage/memory"
	"github.com/louisbranch/evented/internal/services/coordinator/storage/sqlite"
)

const dispatcherSubscriber = "dispatcher"

// eventStore is what the runtime needs from a backing store.
type eventStore interface {
	storage.EventStore
	storage.SnapshotStore
	Close() error
}

// memoryStore adapts memory.Store, which holds nothing to release.
type memoryStore struct{ *memory.Store }

func (memoryStore) Close() error { return nil }

// runtimeBundle is the wired coordinator runtime, independent of transport.
type runtimeBundle struct {
	store       eventStore
	coordinator *aggregate.Coordinator
	dispatcher  *runtime.Dispatcher
	engine      temporal.Engine
	bus         *bus.Memory
	// relay is nil in memory mode.
	relay *runtime.Relay
}

// Close releases the store.
func (b *runtimeBundle) Close() error {
	if b == nil || b.store == nil {
		return nil
	}
	return b.store.Close()
}

func buildRuntime(ctx context.Context, cfg Config, registry *modules.Registry, log logrus.FieldLogger) (*runtimeBundle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log = logging.OrDiscard(log)
	if registry == nil {
		var err error
		registry, err = builtin.Registry()
		if err != nil {
			return nil, fmt.Errorf("build module registry: %w", err)
		}
	}
	router, err := registry.Router()
	if err != nil {
		return nil, fmt.Errorf("build aggregate router: %w", err)
	}

	store, outbox, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	reader := storage.BookReader{Events: store, Snapshots: store}

	coord := &aggregate.Coordinator{
		Evaluator:     aggregate.Evaluator{Router: router},
		Store:         store,
		Snapshots:     store,
		SnapshotEvery: cfg.SnapshotEvery,
		Logger:        log.WithField("component", "aggregate"),
	}
	dispatcher := &runtime.Dispatcher{
		Commands:      coord,
		Reader:        reader,
		SagaEngine:    saga.Engine{Reader: reader},
		ProcessEngine: process.Engine{Reader: reader, Committer: coord, Retry: cfg.Process, Logger: log.WithField("component", "process")},
		Retry:         cfg.Dispatch,
		Logger:        log.WithField("component", "dispatcher"),
	}
	if err := registry.RegisterReactors(dispatcher); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("register reactors: %w", err)
	}
	coord.Sync = dispatcher

	eventBus := bus.NewMemory(cfg.Bus, log.WithField("component", "bus"))
	if sources := dispatcher.Sources(); len(sources) > 0 {
		if err := eventBus.Subscribe(dispatcherSubscriber, sources, dispatcher.Dispatch); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("subscribe dispatcher: %w", err)
		}
	}

	bundle := &runtimeBundle{
		store:       store,
		coordinator: coord,
		dispatcher:  dispatcher,
		engine:      temporal.Engine{Reader: reader, Evaluator: coord.Evaluator},
		bus:         eventBus,
	}
	if outbox != nil {
		bundle.relay = &runtime.Relay{
			Outbox:       outbox,
			Publisher:    eventBus,
			PollInterval: cfg.Relay.PollInterval,
			Batch:        cfg.Relay.Batch,
			RetryInitial: cfg.Relay.RetryInitial,
			RetryMax:     cfg.Relay.RetryMax,
			Logger:       log.WithField("component", "relay"),
		}
	} else {
		coord.Publisher = eventBus
	}
	return bundle, nil
}

// openStore opens the configured store. The outbox is non-nil only when
// the store records deltas for the relay.
func openStore(ctx context.Context, cfg Config, log logrus.FieldLogger) (eventStore, runtime.Outbox, error) {
	if cfg.storeMode() == StoreMemory {
		return memoryStore{memory.NewStore()}, nil, nil
	}
	keyring, err := integrity.KeyringFromConfig(cfg.Integrity)
	if err != nil {
		return nil, nil, fmt.Errorf("load event hmac keys: %w", err)
	}
	if err := ensureDir(cfg.DBPath); err != nil {
		return nil, nil, err
	}
	store, err := sqlite.Open(ctx, cfg.DBPath, keyring, log.WithField("component", "sqlite"))
	if err != nil {
		return nil, nil, fmt.Errorf("open event store: %w", err)
	}
	return store, store, nil
}

// ensureDir creates parent paths for sqlite files so startup can create DB files.
func ensureDir(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
	}
	return nil
}
