package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/louisbranch/evented/internal/services/coordinator/domain/event"
	"github.com/louisbranch/evented/internal/services/coordinator/storage"
	"github.com/louisbranch/evented/internal/services/coordinator/storage/integrity"
)

// ReadEvents returns pages with Sequence >= from in ascending order.
func (s *Store) ReadEvents(ctx context.Context, cover event.Cover, from uint64) ([]event.EventPage, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if err := cover.Validate(); err != nil {
		return nil, err
	}
	return s.readRange(ctx, s.sqlDB, cover, from, -1)
}

// AppendEvents writes pages, their integrity hashes and one outbox row in a
// single transaction when the stream's next sequence equals expected.
func (s *Store) AppendEvents(ctx context.Context, cover event.Cover, expected uint64, pages []event.EventPage) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := cover.Validate(); err != nil {
		return err
	}
	if len(pages) == 0 {
		return nil
	}
	for i, page := range pages {
		if page.Sequence != expected+uint64(i) {
			return fmt.Errorf("append %s: page %d has sequence %d, want %d", cover.Key(), i, page.Sequence, expected+uint64(i))
		}
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	next, prevHash, err := streamHead(ctx, tx, cover)
	if err != nil {
		return err
	}
	if next != expected {
		return fmt.Errorf("append %s at %d (stream at %d): %w", cover.Key(), expected, next, storage.ErrConflict)
	}

	streamKey := cover.Key()
	for _, page := range pages {
		eventHash, err := integrity.PageHash(cover, page)
		if err != nil {
			return fmt.Errorf("hash page %d: %w", page.Sequence, err)
		}
		chainHash, err := integrity.ChainHash(eventHash, prevHash)
		if err != nil {
			return fmt.Errorf("chain page %d: %w", page.Sequence, err)
		}
		signature, keyID, err := s.keyring.Sign(streamKey, chainHash)
		if err != nil {
			return fmt.Errorf("sign page %d: %w", page.Sequence, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO events (
    domain, root, seq, event_type, payload_json, correlation_id, created_at,
    event_hash, prev_chain_hash, chain_hash, signature_key_id, signature
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			cover.Domain, cover.Root.String(), int64(page.Sequence), page.Payload.Type, []byte(page.Payload.Body),
			cover.CorrelationID, toMillis(page.CreatedAt),
			eventHash, prevHash, chainHash, keyID, signature,
		); err != nil {
			if isConstraintError(err) {
				return fmt.Errorf("append %s at %d: %w", streamKey, page.Sequence, storage.ErrConflict)
			}
			return fmt.Errorf("insert page %d: %w", page.Sequence, err)
		}
		prevHash = chainHash
	}

	if err := enqueueOutbox(ctx, tx, cover, pages[0].Sequence, pages[len(pages)-1].Sequence, s.now()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("append %s: %w", streamKey, storage.ErrConflict)
		}
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

// VerifyIntegrity recomputes every page hash, chain link and signature of a
// stream. It returns the number of verified pages.
func (s *Store) VerifyIntegrity(ctx context.Context, cover event.Cover) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	if err := cover.Validate(); err != nil {
		return 0, err
	}
	cover = cover.Stream()
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT seq, event_type, payload_json, created_at,
    event_hash, prev_chain_hash, chain_hash, signature_key_id, signature
FROM events WHERE domain = ? AND root = ? ORDER BY seq`, cover.Domain, cover.Root.String())
	if err != nil {
		return 0, fmt.Errorf("query stream: %w", err)
	}
	defer rows.Close()

	streamKey := cover.Key()
	prev := ""
	count := 0
	for rows.Next() {
		var (
			page                                       event.EventPage
			seq, createdAt                             int64
			body                                       []byte
			eventHash, prevHash, chainHash, keyID, sig string
		)
		if err := rows.Scan(&seq, &page.Payload.Type, &body, &createdAt, &eventHash, &prevHash, &chainHash, &keyID, &sig); err != nil {
			return count, fmt.Errorf("scan page: %w", err)
		}
		page.Sequence = uint64(seq)
		page.Payload.Body = body
		page.CreatedAt = fromMillis(createdAt)

		wantHash, err := integrity.PageHash(cover, page)
		if err != nil {
			return count, err
		}
		if wantHash != eventHash {
			return count, fmt.Errorf("page %d: event hash mismatch", page.Sequence)
		}
		if prevHash != prev {
			return count, fmt.Errorf("page %d: chain link mismatch", page.Sequence)
		}
		wantChain, err := integrity.ChainHash(eventHash, prevHash)
		if err != nil {
			return count, err
		}
		if wantChain != chainHash {
			return count, fmt.Errorf("page %d: chain hash mismatch", page.Sequence)
		}
		if err := s.keyring.Verify(streamKey, chainHash, sig, keyID); err != nil {
			return count, fmt.Errorf("page %d: %w", page.Sequence, err)
		}
		prev = chainHash
		count++
	}
	if err := rows.Err(); err != nil {
		return count, fmt.Errorf("iterate stream: %w", err)
	}
	return count, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// readRange returns pages in [from, to]; a negative to reads to the end.
func (s *Store) readRange(ctx context.Context, q queryer, cover event.Cover, from uint64, to int64) ([]event.EventPage, error) {
	query := `SELECT seq, event_type, payload_json, created_at FROM events
WHERE domain = ? AND root = ? AND seq >= ?`
	args := []any{cover.Domain, cover.Root.String(), int64(from)}
	if to >= 0 {
		query += ` AND seq <= ?`
		args = append(args, to)
	}
	query += ` ORDER BY seq`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var pages []event.EventPage
	for rows.Next() {
		var (
			page      event.EventPage
			seq       int64
			createdAt int64
			body      []byte
		)
		if err := rows.Scan(&seq, &page.Payload.Type, &body, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		page.Sequence = uint64(seq)
		if len(body) > 0 {
			page.Payload.Body = body
		}
		page.CreatedAt = fromMillis(createdAt)
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return pages, nil
}

func streamHead(ctx context.Context, q queryer, cover event.Cover) (uint64, string, error) {
	var (
		seq       int64
		chainHash string
	)
	err := q.QueryRowContext(ctx, `SELECT seq, chain_hash FROM events
WHERE domain = ? AND root = ? ORDER BY seq DESC LIMIT 1`, cover.Domain, cover.Root.String()).Scan(&seq, &chainHash)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("read stream head: %w", err)
	}
	return uint64(seq) + 1, chainHash, nil
}
