// Package sqlite persists the duel node: committed contract state, escrow
// balances, the transaction and event log, sealed coprocessor records and
// the disclosure outbox. One file backs all of it so a contract call and
// the disclosure requests it raised commit in the same transaction.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"okinoko-cipher_duel/store/sqlite/migrations"
)

var (
	// ErrNotFound is returned for a missing row.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientFunds is returned when a debit would drive a balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// pragmas are applied by the driver to every new connection. The oracle
// writes to the outbox while calls commit, so writers wait instead of
// failing with SQLITE_BUSY.
const pragmas = "_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store implements node persistence over SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite store and applies bundled migrations. The special path
// ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := "file:" + filepath.Clean(path) + "?" + pragmas
	if path == ":memory:" {
		dsn = "file::memory:?_pragma=foreign_keys(1)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		// every connection would otherwise see its own empty database
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := store.runMigrations(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// DB returns the raw database handle.
func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.sqlDB
}

// Close releases the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) runMigrations() error {
	return applyMigrations(context.Background(), s.sqlDB, migrations.FS)
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// GetState returns the committed value of a contract key, nil when unset.
func (s *Store) GetState(ctx context.Context, key string) (*string, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	var value string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT value FROM contract_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get state %q: %w", key, err)
	}
	return &value, nil
}

// Balance returns the committed balance of account in asset.
func (s *Store) Balance(ctx context.Context, account, asset string) (uint64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	var amount int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT amount FROM balances WHERE account = ? AND asset = ?`, account, asset,
	).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return uint64(amount), nil
}

// Credit adds amount to account outside of any contract call.
func (s *Store) Credit(ctx context.Context, account, asset string, amount uint64) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if amount > math.MaxInt64 {
		return fmt.Errorf("credit %d exceeds the balance range", amount)
	}
	return applyDelta(ctx, s.sqlDB, account, asset, int64(amount))
}

type execContexter interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func applyDelta(ctx context.Context, exec execContexter, account, asset string, delta int64) error {
	if delta == 0 {
		return nil
	}
	res, err := exec.ExecContext(ctx,
		`UPDATE balances SET amount = amount + ? WHERE account = ? AND asset = ?`,
		delta, account, asset,
	)
	if err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("%w: %s %s", ErrInsufficientFunds, account, asset)
		}
		return fmt.Errorf("update balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update balance rows: %w", err)
	}
	if n > 0 {
		return nil
	}
	if delta < 0 {
		return fmt.Errorf("%w: %s %s", ErrInsufficientFunds, account, asset)
	}
	if _, err := exec.ExecContext(ctx,
		`INSERT INTO balances (account, asset, amount) VALUES (?, ?, ?)`,
		account, asset, delta,
	); err != nil {
		return fmt.Errorf("insert balance: %w", err)
	}
	return nil
}

func isConstraintError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "constraint")
}
