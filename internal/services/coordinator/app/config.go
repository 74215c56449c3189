package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/evented/internal/platform/config"
	"github.com/louisbranch/evented/internal/platform/logging"
	"github.com/louisbranch/evented/internal/services/coordinator/bus"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/process"
	"github.com/louisbranch/evented/internal/services/coordinator/runtime"
	"github.com/louisbranch/evented/internal/services/coordinator/storage/integrity"
)

// Store modes.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// RelayConfig shapes the outbox relay used in SQLite mode.
type RelayConfig struct {
	PollInterval time.Duration `env:"EVENTED_OUTBOX_POLL" envDefault:"250ms"`
	Batch        int           `env:"EVENTED_OUTBOX_BATCH" envDefault:"64"`
	RetryInitial time.Duration `env:"EVENTED_OUTBOX_RETRY_INITIAL" envDefault:"1s"`
	RetryMax     time.Duration `env:"EVENTED_OUTBOX_RETRY_MAX" envDefault:"5m"`
}

// Config holds server configuration.
type Config struct {
	Addr  string `env:"EVENTED_ADDR" envDefault:":8090"`
	Store string `env:"EVENTED_STORE" envDefault:"memory"`
	// DBPath is the SQLite journal location in SQLite mode.
	DBPath string `env:"EVENTED_DB_PATH" envDefault:"data/events.db"`
	// SnapshotEvery is the snapshot cadence in pages. Zero disables snapshots.
	SnapshotEvery uint64 `env:"EVENTED_SNAPSHOT_EVERY" envDefault:"64"`

	Log       logging.Config
	Integrity integrity.Config
	Bus       bus.Config
	Dispatch  runtime.RetryConfig
	Process   process.RetryConfig
	Relay     RelayConfig
}

// LoadConfig reads Config from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports configuration the server cannot start with.
func (c Config) Validate() error {
	switch c.storeMode() {
	case StoreMemory:
	case StoreSQLite:
		if strings.TrimSpace(c.DBPath) == "" {
			return fmt.Errorf("EVENTED_DB_PATH is required in sqlite mode")
		}
	default:
		return fmt.Errorf("unsupported store %q: want %s or %s", c.Store, StoreMemory, StoreSQLite)
	}
	return nil
}

func (c Config) storeMode() string {
	mode := strings.ToLower(strings.TrimSpace(c.Store))
	if mode == "" {
		return StoreMemory
	}
	return mode
}
