package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/louisbranch/evented/internal/services/coordinator/domain/event"
)

const (
	outboxStatusPending    = "pending"
	outboxStatusProcessing = "processing"
	outboxStatusFailed     = "failed"
	outboxStatusDead       = "dead"

	// OutboxDeadLetterThreshold is the attempt count at which a row stops
	// being retried.
	OutboxDeadLetterThreshold = 8
	outboxProcessingLease     = 2 * time.Minute
)

// OutboxEntry is one committed delta awaiting publication.
type OutboxEntry struct {
	ID           int64
	Cover        event.Cover
	FirstSeq     uint64
	LastSeq      uint64
	AttemptCount int
}

// OutboxStats counts outbox rows by status.
type OutboxStats struct {
	Pending    int
	Processing int
	Failed     int
	Dead       int
}

func enqueueOutbox(ctx context.Context, tx *sql.Tx, cover event.Cover, first, last uint64, now time.Time) error {
	at := toMillis(now)
	if _, err := tx.ExecContext(ctx, `INSERT INTO outbox (
    domain, root, correlation_id, first_seq, last_seq, status, next_attempt_at, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cover.Domain, cover.Root.String(), cover.CorrelationID, int64(first), int64(last),
		outboxStatusPending, at, at, at,
	); err != nil {
		return fmt.Errorf("enqueue outbox: %w", err)
	}
	return nil
}

// ClaimOutbox leases up to limit due rows for publication. Rows stuck in
// processing longer than the lease are reclaimed.
func (s *Store) ClaimOutbox(ctx context.Context, now time.Time, limit int) ([]OutboxEntry, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("claim limit must be greater than zero")
	}
	nowMillis := toMillis(now)
	staleBefore := toMillis(now.Add(-outboxProcessingLease))

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const dueCondition = `((status IN ('pending', 'failed') AND next_attempt_at <= ?)
    OR (status = 'processing' AND updated_at <= ?))`

	rows, err := tx.QueryContext(ctx, `SELECT id, domain, root, correlation_id, first_seq, last_seq, attempt_count
FROM outbox WHERE `+dueCondition+` ORDER BY id LIMIT ?`, nowMillis, staleBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("query due outbox rows: %w", err)
	}
	var candidates []OutboxEntry
	for rows.Next() {
		var (
			entry       OutboxEntry
			root        string
			first, last int64
		)
		if err := rows.Scan(&entry.ID, &entry.Cover.Domain, &root, &entry.Cover.CorrelationID, &first, &last, &entry.AttemptCount); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		parsed, err := uuid.Parse(root)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("parse outbox root %q: %w", root, err)
		}
		entry.Cover.Root = parsed
		entry.FirstSeq, entry.LastSeq = uint64(first), uint64(last)
		candidates = append(candidates, entry)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close outbox rows: %w", err)
	}

	claimed := make([]OutboxEntry, 0, len(candidates))
	for _, entry := range candidates {
		res, err := tx.ExecContext(ctx, `UPDATE outbox SET status = ?, updated_at = ?
WHERE id = ? AND `+dueCondition, outboxStatusProcessing, nowMillis, entry.ID, nowMillis, staleBefore)
		if err != nil {
			return nil, fmt.Errorf("claim outbox row %d: %w", entry.ID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claim outbox row %d: %w", entry.ID, err)
		}
		if affected == 1 {
			claimed = append(claimed, entry)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return claimed, nil
}

// OutboxPages loads the pages an outbox entry describes as a delta book.
func (s *Store) OutboxPages(ctx context.Context, entry OutboxEntry) (event.EventBook, error) {
	if err := s.ready(ctx); err != nil {
		return event.EventBook{}, err
	}
	pages, err := s.readRange(ctx, s.sqlDB, entry.Cover.Stream(), entry.FirstSeq, int64(entry.LastSeq))
	if err != nil {
		return event.EventBook{}, err
	}
	if uint64(len(pages)) != entry.LastSeq-entry.FirstSeq+1 {
		return event.EventBook{}, fmt.Errorf("outbox row %d: expected %d pages, found %d", entry.ID, entry.LastSeq-entry.FirstSeq+1, len(pages))
	}
	return event.EventBook{Cover: entry.Cover, Pages: pages}, nil
}

// CompleteOutbox deletes a published row.
func (s *Store) CompleteOutbox(ctx context.Context, id int64) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM outbox WHERE id = ? AND status = ?`, id, outboxStatusProcessing)
	if err != nil {
		return fmt.Errorf("complete outbox row %d: %w", id, err)
	}
	return ensureSingleRow(res, id)
}

// FailOutbox records a publication failure. Rows reaching the dead-letter
// threshold are parked as dead; others are retried at nextAttempt.
func (s *Store) FailOutbox(ctx context.Context, id int64, attempt int, nextAttempt time.Time, cause string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	status := outboxStatusFailed
	if attempt >= OutboxDeadLetterThreshold {
		status = outboxStatusDead
	}
	res, err := s.sqlDB.ExecContext(ctx, `UPDATE outbox SET
    status = ?, attempt_count = ?, next_attempt_at = ?, last_error = ?, updated_at = ?
WHERE id = ? AND status = ?`,
		status, attempt, toMillis(nextAttempt), strings.TrimSpace(cause), toMillis(s.now()), id, outboxStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("fail outbox row %d: %w", id, err)
	}
	return ensureSingleRow(res, id)
}

// OutboxStats reports how many rows sit in each status.
func (s *Store) OutboxStats(ctx context.Context) (OutboxStats, error) {
	if err := s.ready(ctx); err != nil {
		return OutboxStats{}, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT status, COUNT(*) FROM outbox GROUP BY status`)
	if err != nil {
		return OutboxStats{}, fmt.Errorf("query outbox stats: %w", err)
	}
	defer rows.Close()

	var stats OutboxStats
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return OutboxStats{}, fmt.Errorf("scan outbox stats: %w", err)
		}
		switch status {
		case outboxStatusPending:
			stats.Pending = count
		case outboxStatusProcessing:
			stats.Processing = count
		case outboxStatusFailed:
			stats.Failed = count
		case outboxStatusDead:
			stats.Dead = count
		}
	}
	return stats, rows.Err()
}

func ensureSingleRow(res sql.Result, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("outbox row %d: %w", id, err)
	}
	if affected != 1 {
		return fmt.Errorf("outbox row %d is not being processed", id)
	}
	return nil
}
