package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okinoko-cipher_duel/coprocessor"
	"okinoko-cipher_duel/sdk"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "duel.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func strPtr(s string) *string { return &s }

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "duel.db")
	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Credit(t.Context(), "hive:alice", "hive", 5))
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	defer second.Close()
	bal, err := second.Balance(t.Context(), "hive:alice", "hive")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), bal)

	var applied int
	require.NoError(t, second.DB().QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
	assert.Equal(t, 2, applied)
}

func TestExtractUpMigration(t *testing.T) {
	up := extractUpMigration("-- +migrate Up\nCREATE TABLE a (x);\n-- +migrate Down\nDROP TABLE a;\n")
	assert.Contains(t, up, "CREATE TABLE a")
	assert.NotContains(t, up, "DROP TABLE")
	assert.Equal(t, "SELECT 1;", extractUpMigration("SELECT 1;"))
}

func TestCommitAppliesBatch(t *testing.T) {
	store := openTestStore(t)
	ctx := t.Context()
	require.NoError(t, store.Credit(ctx, "hive:alice", "hive", 10_000))

	room := uint64(0)
	err := store.Commit(ctx, Batch{
		TxID:       "tx-1",
		Entrypoint: "create_room",
		Sender:     "hive:alice",
		CreatedAt:  time.Date(2025, 9, 3, 0, 0, 0, 0, time.UTC),
		Writes:     map[string]*string{"g_count": strPtr("1"), "stale": nil},
		BalanceDeltas: map[BalanceKey]int64{
			{Account: "hive:alice", Asset: "hive"}:    -1000,
			{Account: "contract:duel", Asset: "hive"}: 1000,
		},
		Events:      []Event{{RoomID: &room, Type: "roomCreated", Payload: `{"type":"roomCreated"}`}},
		Disclosures: []coprocessor.Request{{ID: 0, Handle: "0xabc"}},
	})
	require.NoError(t, err)

	v, err := store.GetState(ctx, "g_count")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "1", *v)

	missing, err := store.GetState(ctx, "stale")
	require.NoError(t, err)
	assert.Nil(t, missing)

	bal, err := store.Balance(ctx, "hive:alice", "hive")
	require.NoError(t, err)
	assert.Equal(t, uint64(9000), bal)
	bal, err = store.Balance(ctx, "contract:duel", "hive")
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), bal)

	events, err := store.RoomEvents(ctx, 0, 0, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "roomCreated", events[0].Type)
	assert.Equal(t, "tx-1", events[0].TxID)

	later, err := store.RoomEvents(ctx, 0, events[0].Seq, 10)
	require.NoError(t, err)
	assert.Empty(t, later)

	receipt, err := store.GetTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, "create_room", receipt.Entrypoint)
	assert.Empty(t, receipt.Error)
}

func TestCommitFailedCallKeepsOnlyReceipt(t *testing.T) {
	store := openTestStore(t)
	ctx := t.Context()

	err := store.Commit(ctx, Batch{
		TxID:       "tx-2",
		Entrypoint: "join_room",
		Sender:     "hive:bob",
		Error:      "wager mismatch",
		Writes:     map[string]*string{"g_count": strPtr("7")},
	})
	require.NoError(t, err)

	v, err := store.GetState(ctx, "g_count")
	require.NoError(t, err)
	assert.Nil(t, v)

	receipt, err := store.GetTransaction(ctx, "tx-2")
	require.NoError(t, err)
	assert.Equal(t, "wager mismatch", receipt.Error)

	_, err = store.GetTransaction(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCommitRollsBackOnOverdraft(t *testing.T) {
	store := openTestStore(t)
	ctx := t.Context()

	err := store.Commit(ctx, Batch{
		TxID:          "tx-3",
		Entrypoint:    "create_room",
		Sender:        "hive:carol",
		Writes:        map[string]*string{"g_count": strPtr("1")},
		BalanceDeltas: map[BalanceKey]int64{{Account: "hive:carol", Asset: "hive"}: -1},
	})
	require.ErrorIs(t, err, ErrInsufficientFunds)

	v, err := store.GetState(ctx, "g_count")
	require.NoError(t, err)
	assert.Nil(t, v)
	_, err = store.GetTransaction(ctx, "tx-3")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCommitDebitsFundedAccount(t *testing.T) {
	store := openTestStore(t)
	ctx := t.Context()
	require.NoError(t, store.Credit(ctx, "hive:alice", "hive", 1500))

	debit := func(txID string, amount int64) error {
		return store.Commit(ctx, Batch{
			TxID: txID, Entrypoint: "create_room", Sender: "hive:alice",
			BalanceDeltas: map[BalanceKey]int64{
				{Account: "hive:alice", Asset: "hive"}:    -amount,
				{Account: "contract:duel", Asset: "hive"}: amount,
			},
		})
	}

	require.NoError(t, debit("tx-5", 1000))
	bal, err := store.Balance(ctx, "hive:alice", "hive")
	require.NoError(t, err)
	assert.Equal(t, uint64(500), bal)

	require.ErrorIs(t, debit("tx-6", 600), ErrInsufficientFunds)
	bal, err = store.Balance(ctx, "hive:alice", "hive")
	require.NoError(t, err)
	assert.Equal(t, uint64(500), bal)
	bal, err = store.Balance(ctx, "contract:duel", "hive")
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), bal)

	require.NoError(t, debit("tx-7", 500))
	bal, err = store.Balance(ctx, "hive:alice", "hive")
	require.NoError(t, err)
	assert.Zero(t, bal)
	bal, err = store.Balance(ctx, "contract:duel", "hive")
	require.NoError(t, err)
	assert.Equal(t, uint64(1500), bal)
}

func TestSealedRecords(t *testing.T) {
	store := openTestStore(t)
	ctx := t.Context()

	_, err := store.GetRecord(ctx, "0x01")
	require.ErrorIs(t, err, coprocessor.ErrRecordNotFound)

	rec := coprocessor.Record{Handle: "0x01", Kind: sdk.KindUint8, Sealed: []byte{1, 2, 3}}
	require.NoError(t, store.PutRecord(ctx, rec))
	got, err := store.GetRecord(ctx, "0x01")
	require.NoError(t, err)
	assert.Equal(t, sdk.KindUint8, got.Kind)
	assert.Equal(t, []byte{1, 2, 3}, got.Sealed)
	assert.False(t, got.Public)
	assert.Empty(t, got.ACL)

	rec.Public = true
	rec.ACL = []sdk.Address{"hive:alice", "hive:bob"}
	require.NoError(t, store.PutRecord(ctx, rec))
	got, err = store.GetRecord(ctx, "0x01")
	require.NoError(t, err)
	assert.True(t, got.Public)
	assert.Equal(t, []sdk.Address{"hive:alice", "hive:bob"}, got.ACL)
}

func TestEngineOverStore(t *testing.T) {
	store := openTestStore(t)
	keys, err := coprocessor.DeriveKeys(coprocessor.Seed{1})
	require.NoError(t, err)
	e, err := coprocessor.NewEngine(keys, store, 8, zerolog.Nop())
	require.NoError(t, err)

	cts, proof, err := coprocessor.EncryptDigits(keys.Public, "hive:alice", 3, 1, 4, 1)
	require.NoError(t, err)
	hs, err := e.Seal("hive:alice", sdk.KindUint8, cts, proof)
	require.NoError(t, err)

	reopened, err := coprocessor.NewEngine(keys, store, 8, zerolog.Nop())
	require.NoError(t, err)
	_, v, err := reopened.Decrypt(hs[2], "hive:alice")
	require.NoError(t, err)
	assert.Equal(t, []byte{4}, v)
}

func TestDisclosureOutbox(t *testing.T) {
	store := openTestStore(t)
	ctx := t.Context()

	require.NoError(t, store.Commit(ctx, Batch{
		TxID: "tx-4", Entrypoint: "submit_probe", Sender: "hive:bob",
		Disclosures: []coprocessor.Request{{ID: 2, Handle: "0xbb"}, {ID: 1, Handle: "0xaa"}},
	}))

	pending, err := store.PendingDisclosures(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []coprocessor.Request{{ID: 1, Handle: "0xaa"}, {ID: 2, Handle: "0xbb"}}, pending)

	require.NoError(t, store.MarkDisclosureDelivered(ctx, 1, ""))
	require.NoError(t, store.MarkDisclosureDelivered(ctx, 2, "room finished"))

	pending, err = store.PendingDisclosures(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	entry, err := store.GetOutboxEntry(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, OutboxFailed, entry.Status)
	assert.Equal(t, "room finished", entry.DeliveryError)
	require.NotNil(t, entry.DeliveredAt)

	require.NoError(t, store.RequeueDisclosure(ctx, 2))
	pending, err = store.PendingDisclosures(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []coprocessor.Request{{ID: 2, Handle: "0xbb"}}, pending)

	require.ErrorIs(t, store.RequeueDisclosure(ctx, 99), ErrNotFound)
	_, err = store.PendingDisclosures(ctx, 0)
	require.Error(t, err)
}

func TestCancelledContext(t *testing.T) {
	store := openTestStore(t)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := store.GetState(ctx, "g_count")
	require.ErrorIs(t, err, context.Canceled)
}
