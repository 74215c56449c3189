// Package coordinator parses coordinator command flags and starts the runtime.
package coordinator

import (
	"context"
	"flag"
	"fmt"

	entrypoint "github.com/louisbranch/evented/internal/platform/cmd"
	"github.com/louisbranch/evented/internal/platform/logging"
	server "github.com/louisbranch/evented/internal/services/coordinator/app"
)

// ParseConfig parses environment and flags into a server config.
func ParseConfig(fs *flag.FlagSet, args []string) (server.Config, error) {
	var cfg server.Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return server.Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The coordinator listen address")
	fs.StringVar(&cfg.Store, "store", cfg.Store, "Event store: memory or sqlite")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite journal path (sqlite store)")
	fs.Uint64Var(&cfg.SnapshotEvery, "snapshot-every", cfg.SnapshotEvery, "Snapshot cadence in pages, 0 disables")
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "Log level")
	fs.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "Log format: text or json")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return server.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return server.Config{}, err
	}
	return cfg, nil
}

// Run starts the coordinator API service.
func Run(ctx context.Context, cfg server.Config) error {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceCoordinator, func(ctx context.Context) error {
		return server.Run(ctx, cfg, logger.WithField("service", entrypoint.ServiceCoordinator))
	})
}
