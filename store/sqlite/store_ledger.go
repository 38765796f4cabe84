package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"okinoko-cipher_duel/coprocessor"
)

// BalanceKey addresses one balance row.
type BalanceKey struct {
	Account string
	Asset   string
}

// Event is a contract event as indexed by the node.
type Event struct {
	Seq       int64
	TxID      string
	RoomID    *uint64
	Type      string
	Payload   string
	CreatedAt time.Time
}

// Transaction is the receipt of one contract call.
type Transaction struct {
	TxID       string
	Entrypoint string
	Sender     string
	Error      string
	CreatedAt  time.Time
}

// Batch is everything one contract call produced. A failed call commits its
// receipt only.
type Batch struct {
	TxID       string
	Entrypoint string
	Sender     string
	Error      string
	CreatedAt  time.Time

	// Writes maps contract keys to their new value; nil deletes the key.
	Writes        map[string]*string
	BalanceDeltas map[BalanceKey]int64
	Events        []Event
	Disclosures   []coprocessor.Request
}

// Commit applies b in a single transaction.
func (s *Store) Commit(ctx context.Context, b Batch) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if b.TxID == "" {
		return fmt.Errorf("tx id is required")
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	created := toMillis(b.CreatedAt)

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("start commit transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO transactions (tx_id, entrypoint, sender, error, created_at) VALUES (?, ?, ?, ?, ?)
`, b.TxID, b.Entrypoint, b.Sender, b.Error, created); err != nil {
		return fmt.Errorf("insert transaction %s: %w", b.TxID, err)
	}

	if b.Error == "" {
		for key, value := range b.Writes {
			if value == nil {
				_, err = tx.ExecContext(ctx, `DELETE FROM contract_state WHERE key = ?`, key)
			} else {
				_, err = tx.ExecContext(ctx, `
INSERT INTO contract_state (key, value) VALUES (?, ?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value
`, key, *value)
			}
			if err != nil {
				return fmt.Errorf("write state %q: %w", key, err)
			}
		}
		for k, delta := range b.BalanceDeltas {
			if err := applyDelta(ctx, tx, k.Account, k.Asset, delta); err != nil {
				return err
			}
		}
		for _, ev := range b.Events {
			var room sql.NullInt64
			if ev.RoomID != nil {
				room = sql.NullInt64{Int64: int64(*ev.RoomID), Valid: true}
			}
			if _, err := tx.ExecContext(ctx, `
INSERT INTO events (tx_id, room_id, type, payload, created_at) VALUES (?, ?, ?, ?, ?)
`, b.TxID, room, ev.Type, ev.Payload, created); err != nil {
				return fmt.Errorf("insert event: %w", err)
			}
		}
		for _, req := range b.Disclosures {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO disclosure_outbox (request_id, handle, tx_id, created_at) VALUES (?, ?, ?, ?)
`, int64(req.ID), req.Handle.String(), b.TxID, created); err != nil {
				return fmt.Errorf("enqueue disclosure %d: %w", req.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction %s: %w", b.TxID, err)
	}
	return nil
}

// GetTransaction returns the receipt of a committed call.
func (s *Store) GetTransaction(ctx context.Context, txID string) (Transaction, error) {
	if err := s.ready(ctx); err != nil {
		return Transaction{}, err
	}
	var (
		t       Transaction
		created int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT tx_id, entrypoint, sender, error, created_at FROM transactions WHERE tx_id = ?
`, txID).Scan(&t.TxID, &t.Entrypoint, &t.Sender, &t.Error, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, ErrNotFound
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	t.CreatedAt = fromMillis(created)
	return t, nil
}

// RoomEvents lists the events of a room with a sequence above after.
func (s *Store) RoomEvents(ctx context.Context, roomID uint64, after int64, limit int) ([]Event, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT seq, tx_id, room_id, type, payload, created_at
FROM events
WHERE room_id = ? AND seq > ?
ORDER BY seq ASC
LIMIT ?
`, int64(roomID), after, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var (
			ev      Event
			room    sql.NullInt64
			created int64
		)
		if err := rows.Scan(&ev.Seq, &ev.TxID, &room, &ev.Type, &ev.Payload, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if room.Valid {
			id := uint64(room.Int64)
			ev.RoomID = &id
		}
		ev.CreatedAt = fromMillis(created)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
