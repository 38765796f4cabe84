package contract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"okinoko-cipher_duel/sdk"
)

const (
	alice = "hive:alice"
	bob   = "hive:bob"
	carol = "hive:carol"
	hive  = sdk.Asset("hive")
)

// sealed builds a sealed input for sender the mock backend accepts.
func sealed(sender string, digits ...uint8) SealedInput {
	cts, proof := sdk.MockInput(sdk.Address(sender), digits...)
	return SealedInput{Ciphertexts: cts, Proof: proof}
}

// newChain returns a mock chain where alice, bob and carol hold 10 HIVE each.
func newChain() *sdk.MockChain {
	chain := sdk.NewMockChain(alice)
	for _, who := range []string{alice, bob, carol} {
		chain.Fund(sdk.Address(who), 10_000, hive)
	}
	return chain
}

// openRoom creates a room by alice with a 1.000 HIVE wager.
func openRoom(t *testing.T, c *Contract, chain *sdk.MockChain, code ...uint8) uint64 {
	t.Helper()
	id, err := c.CreateRoom(chain.As(alice).WithAllowance("1.000", hive), sealed(alice, code...))
	require.NoError(t, err)
	return id
}

// startDuel returns a room in progress. Alice's code is 1 2 3 4, bob's is
// 5 6 7 8.
func startDuel(t *testing.T) (*Contract, *sdk.MockChain, uint64) {
	t.Helper()
	c := New(DefaultConfig())
	chain := newChain()
	id := openRoom(t, c, chain, 1, 2, 3, 4)
	require.NoError(t, c.JoinRoom(chain.As(bob).WithAllowance("1.000", hive), id, sealed(bob, 5, 6, 7, 8)))
	return c, chain, id
}

func mustRoom(t *testing.T, c *Contract, chain *sdk.MockChain, id uint64) *Room {
	t.Helper()
	r, err := c.GetRoom(chain, id)
	require.NoError(t, err)
	return r
}

// answer plays the oracle for every outstanding disclosure request.
func answer(t *testing.T, c *Contract, chain *sdk.MockChain) {
	t.Helper()
	for _, p := range chain.FHE.TakePending() {
		req, err := c.GetDisclosureRequest(chain, p.RequestID)
		require.NoError(t, err)
		if req == nil {
			continue
		}
		clear, proof, err := chain.FHE.Disclose(p.Handle)
		require.NoError(t, err)
		require.NoError(t, c.FulfillDisclosure(chain, Disclosure{
			RequestID: p.RequestID,
			RoomID:    req.RoomID,
			Winner:    string(clear),
			Proof:     proof,
		}))
	}
}

func eventTypes(chain *sdk.MockChain) []string {
	var out []string
	for _, ev := range chain.Events() {
		out = append(out, ev.Type)
	}
	return out
}

func lastEvent(t *testing.T, chain *sdk.MockChain) sdk.MockEvent {
	t.Helper()
	evs := chain.Events()
	require.NotEmpty(t, evs)
	return evs[len(evs)-1]
}

var day = 24 * time.Hour
