package node

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"okinoko-cipher_duel/contract"
	"okinoko-cipher_duel/coprocessor"
	"okinoko-cipher_duel/sdk"
)

const (
	alice = sdk.Address("hive:alice")
	bob   = sdk.Address("hive:bob")
	carol = sdk.Address("hive:carol")
	hive  = sdk.Asset("hive")
)

var testSeed = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

// testClock is a settable call clock.
type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// newTestNode returns a node on a fresh database with alice, bob and carol
// funded with 10 HIVE each.
func newTestNode(t *testing.T) (*Node, *testClock) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "duel.db")
	cfg.KeySeed = testSeed
	cfg.Faucet = true
	n, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })

	clock := &testClock{now: time.Date(2025, 9, 3, 0, 0, 0, 0, time.UTC)}
	n.ledger.now = clock.Now
	for _, who := range []sdk.Address{alice, bob, carol} {
		require.NoError(t, n.ledger.Credit(t.Context(), who, hive, 10_000))
	}
	return n, clock
}

// sealFor encrypts digits to the node's coprocessor as sender.
func sealFor(t *testing.T, n *Node, sender sdk.Address, digits ...uint8) contract.SealedInput {
	t.Helper()
	cts, proof, err := coprocessor.EncryptDigits(n.engine.PublicKeys(), sender, digits...)
	require.NoError(t, err)
	return contract.SealedInput{Ciphertexts: cts, Proof: proof}
}

func allowIntent(limit string) []sdk.Intent {
	return []sdk.Intent{{Type: "transfer.allow", Args: map[string]string{"limit": limit, "token": "hive"}}}
}

func balanceOf(t *testing.T, n *Node, who sdk.Address) uint64 {
	t.Helper()
	bal, err := n.ledger.Balance(t.Context(), who, hive)
	require.NoError(t, err)
	return bal
}

func roomOf(t *testing.T, n *Node, id uint64) *contract.Room {
	t.Helper()
	var r *contract.Room
	require.NoError(t, n.ledger.View(t.Context(), func(c *contract.Contract, chain sdk.Chain) error {
		var err error
		r, err = c.GetRoom(chain, id)
		return err
	}))
	return r
}
