package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/louisbranch/evented/internal/services/coordinator/domain/event"
	"github.com/louisbranch/evented/internal/services/coordinator/storage"
)

// GetSnapshot returns the stream's latest snapshot or storage.ErrNotFound.
func (s *Store) GetSnapshot(ctx context.Context, cover event.Cover) (event.Snapshot, error) {
	if err := s.ready(ctx); err != nil {
		return event.Snapshot{}, err
	}
	if err := cover.Validate(); err != nil {
		return event.Snapshot{}, err
	}
	var (
		snapshot event.Snapshot
		asOf     int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `SELECT as_of_seq, state FROM snapshots WHERE domain = ? AND root = ?`,
		cover.Domain, cover.Root.String()).Scan(&asOf, &snapshot.State)
	if errors.Is(err, sql.ErrNoRows) {
		return event.Snapshot{}, storage.ErrNotFound
	}
	if err != nil {
		return event.Snapshot{}, fmt.Errorf("get snapshot: %w", err)
	}
	snapshot.AsOfSequence = uint64(asOf)
	return snapshot, nil
}

// PutSnapshot stores a snapshot unless a newer one already exists. The
// snapshot must not be ahead of the stream.
func (s *Store) PutSnapshot(ctx context.Context, cover event.Cover, snapshot event.Snapshot) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := cover.Validate(); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	next, _, err := streamHead(ctx, tx, cover)
	if err != nil {
		return err
	}
	if next <= snapshot.AsOfSequence {
		return fmt.Errorf("snapshot %s at %d is ahead of the stream", cover.Key(), snapshot.AsOfSequence)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO snapshots (domain, root, as_of_seq, state, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (domain, root) DO UPDATE SET
    as_of_seq = excluded.as_of_seq,
    state = excluded.state,
    updated_at = excluded.updated_at
WHERE excluded.as_of_seq > snapshots.as_of_seq`,
		cover.Domain, cover.Root.String(), int64(snapshot.AsOfSequence), snapshot.State, toMillis(s.now()),
	); err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}
