package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"okinoko-cipher_duel/coprocessor"
	"okinoko-cipher_duel/sdk"
)

// PutRecord upserts a sealed record.
func (s *Store) PutRecord(ctx context.Context, rec coprocessor.Record) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	acl := rec.ACL
	if acl == nil {
		acl = []sdk.Address{}
	}
	aclJSON, err := json.Marshal(acl)
	if err != nil {
		return fmt.Errorf("encode acl: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO sealed_records (handle, kind, sealed, public, acl_json) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (handle) DO UPDATE SET
	sealed = excluded.sealed,
	public = excluded.public,
	acl_json = excluded.acl_json
`, rec.Handle.String(), int(rec.Kind), rec.Sealed, rec.Public, string(aclJSON))
	if err != nil {
		return fmt.Errorf("put record %s: %w", rec.Handle, err)
	}
	return nil
}

// GetRecord loads a sealed record.
func (s *Store) GetRecord(ctx context.Context, h sdk.Handle) (coprocessor.Record, error) {
	if err := s.ready(ctx); err != nil {
		return coprocessor.Record{}, err
	}
	var (
		kind    int
		sealed  []byte
		public  bool
		aclJSON string
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT kind, sealed, public, acl_json FROM sealed_records WHERE handle = ?
`, h.String()).Scan(&kind, &sealed, &public, &aclJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return coprocessor.Record{}, coprocessor.ErrRecordNotFound
	}
	if err != nil {
		return coprocessor.Record{}, fmt.Errorf("get record %s: %w", h, err)
	}
	var acl []sdk.Address
	if err := json.Unmarshal([]byte(aclJSON), &acl); err != nil {
		return coprocessor.Record{}, fmt.Errorf("decode acl of %s: %w", h, err)
	}
	return coprocessor.Record{Handle: h, Kind: sdk.Kind(kind), Sealed: sealed, Public: public, ACL: acl}, nil
}

var _ coprocessor.Store = (*Store)(nil)
