package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"okinoko-cipher_duel/coprocessor"
	"okinoko-cipher_duel/sdk"
)

// Outbox statuses.
const (
	OutboxPending   = "pending"
	OutboxDelivered = "delivered"
	OutboxFailed    = "failed"
)

// OutboxEntry is one disclosure request as tracked by the outbox.
type OutboxEntry struct {
	RequestID     uint64
	Handle        sdk.Handle
	TxID          string
	Status        string
	DeliveryError string
	CreatedAt     time.Time
	DeliveredAt   *time.Time
}

// PendingDisclosures returns undelivered requests in request order.
func (s *Store) PendingDisclosures(ctx context.Context, limit int) ([]coprocessor.Request, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT request_id, handle FROM disclosure_outbox
WHERE status = ?
ORDER BY request_id ASC
LIMIT ?
`, OutboxPending, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending disclosures: %w", err)
	}
	defer rows.Close()

	out := make([]coprocessor.Request, 0, limit)
	for rows.Next() {
		var (
			id     int64
			handle string
		)
		if err := rows.Scan(&id, &handle); err != nil {
			return nil, fmt.Errorf("scan pending disclosure: %w", err)
		}
		out = append(out, coprocessor.Request{ID: uint64(id), Handle: sdk.Handle(handle)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending disclosures: %w", err)
	}
	return out, nil
}

// MarkDisclosureDelivered closes a request. A non-empty deliveryErr marks it
// failed so an operator can requeue it.
func (s *Store) MarkDisclosureDelivered(ctx context.Context, id uint64, deliveryErr string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	status := OutboxDelivered
	if deliveryErr != "" {
		status = OutboxFailed
	}
	res, err := s.sqlDB.ExecContext(ctx, `
UPDATE disclosure_outbox SET status = ?, delivery_error = ?, delivered_at = ?
WHERE request_id = ?
`, status, deliveryErr, toMillis(time.Now()), int64(id))
	if err != nil {
		return fmt.Errorf("mark disclosure %d: %w", id, err)
	}
	return expectOneRow(res, id)
}

// RequeueDisclosure puts a request back into the pending state.
func (s *Store) RequeueDisclosure(ctx context.Context, id uint64) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx, `
UPDATE disclosure_outbox SET status = ?, delivery_error = '', delivered_at = NULL
WHERE request_id = ?
`, OutboxPending, int64(id))
	if err != nil {
		return fmt.Errorf("requeue disclosure %d: %w", id, err)
	}
	return expectOneRow(res, id)
}

// GetOutboxEntry returns the delivery state of a request.
func (s *Store) GetOutboxEntry(ctx context.Context, id uint64) (OutboxEntry, error) {
	if err := s.ready(ctx); err != nil {
		return OutboxEntry{}, err
	}
	var (
		e         OutboxEntry
		handle    string
		created   int64
		delivered sql.NullInt64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT handle, tx_id, status, delivery_error, created_at, delivered_at
FROM disclosure_outbox WHERE request_id = ?
`, int64(id)).Scan(&handle, &e.TxID, &e.Status, &e.DeliveryError, &created, &delivered)
	if errors.Is(err, sql.ErrNoRows) {
		return OutboxEntry{}, ErrNotFound
	}
	if err != nil {
		return OutboxEntry{}, fmt.Errorf("get outbox entry: %w", err)
	}
	e.RequestID = id
	e.Handle = sdk.Handle(handle)
	e.CreatedAt = fromMillis(created)
	if delivered.Valid {
		t := fromMillis(delivered.Int64)
		e.DeliveredAt = &t
	}
	return e, nil
}

func expectOneRow(res sql.Result, id uint64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("disclosure %d: %w", id, ErrNotFound)
	}
	return nil
}

var _ coprocessor.Queue = (*Store)(nil)
