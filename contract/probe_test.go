package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okinoko-cipher_duel/sdk"
)

func TestTurnAlternation(t *testing.T) {
	c, chain, id := startDuel(t)

	assert.True(t, c.IsPlayerTurn(chain, id, alice))
	assert.False(t, c.IsPlayerTurn(chain, id, bob))

	n, err := c.SubmitProbe(chain.As(alice), id, sealed(alice, 0, 0, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)
	assert.Equal(t, uint64(1), mustRoom(t, c, chain, id).TurnCount)
	assert.True(t, c.IsPlayerTurn(chain, id, bob))

	_, err = c.SubmitProbe(chain.As(alice), id, sealed(alice, 0, 0, 0, 0))
	require.ErrorIs(t, err, ErrNotYourTurn)

	n, err = c.SubmitProbe(chain.As(bob), id, sealed(bob, 0, 0, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
	assert.True(t, c.IsPlayerTurn(chain, id, alice))

	n, err = c.SubmitProbe(chain.As(alice), id, sealed(alice, 9, 9, 9, 9))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)

	// turn counter is 3: bob's turn
	_, err = c.SubmitProbe(chain.As(alice), id, sealed(alice, 9, 9, 9, 9))
	require.ErrorIs(t, err, ErrNotYourTurn)
	assert.Equal(t, uint64(3), mustRoom(t, c, chain, id).TurnCount)

	_, err = c.SubmitProbe(chain.As(carol), id, sealed(carol, 9, 9, 9, 9))
	require.ErrorIs(t, err, ErrNotAPlayer)
	assert.False(t, c.IsPlayerTurn(chain, id, carol))
}

func TestIsPlayerTurnOutsideProgress(t *testing.T) {
	c := New(DefaultConfig())
	chain := newChain()
	id := openRoom(t, c, chain, 1, 2, 3, 4)
	assert.False(t, c.IsPlayerTurn(chain, id, alice))
	assert.False(t, c.IsPlayerTurn(chain, 77, alice))
}

func TestSubmitProbeRejects(t *testing.T) {
	c := New(DefaultConfig())

	t.Run("unknown room", func(t *testing.T) {
		chain := newChain()
		_, err := c.SubmitProbe(chain.As(alice), 3, sealed(alice, 1, 2, 3, 4))
		require.ErrorIs(t, err, ErrInvalidRoom)
	})
	t.Run("not started", func(t *testing.T) {
		chain := newChain()
		id := openRoom(t, c, chain, 1, 2, 3, 4)
		_, err := c.SubmitProbe(chain.As(alice), id, sealed(alice, 1, 2, 3, 4))
		require.ErrorIs(t, err, ErrWrongPhase)
	})
	t.Run("bad proof", func(t *testing.T) {
		_, chain, id := startDuel(t)
		_, err := c.SubmitProbe(chain.As(alice), id, sealed(bob, 1, 2, 3, 4))
		require.ErrorIs(t, err, ErrProofVerification)
		assert.Equal(t, uint64(0), mustRoom(t, c, chain, id).TurnCount)
		assert.Empty(t, chain.FHE.Pending)
	})
	t.Run("wrong length", func(t *testing.T) {
		_, chain, id := startDuel(t)
		_, err := c.SubmitProbe(chain.As(alice), id, sealed(alice, 1, 2, 3, 4, 5))
		require.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestSubmitProbeStoresSealedFeedback(t *testing.T) {
	c, chain, id := startDuel(t)

	_, err := c.LastProbe(chain, id)
	require.ErrorIs(t, err, ErrNoProbesYet)

	// bob's code is 5 6 7 8
	chain.Advance(day)
	_, err = c.SubmitProbe(chain.As(alice), id, sealed(alice, 5, 8, 6, 0))
	require.NoError(t, err)

	p, err := c.GetProbe(chain, id, 0)
	require.NoError(t, err)
	assert.Equal(t, alice, p.Submitter)
	assert.True(t, p.Computed)
	assert.Equal(t, uint64(chain.Env.Timestamp.Unix()), p.SubmittedAt)
	assert.Equal(t, []byte{1}, chain.FHE.Reveal(p.Breaches))
	assert.Equal(t, []byte{2}, chain.FHE.Reveal(p.Signals))
	assert.Equal(t, []byte{0}, chain.FHE.Reveal(p.IsWin))

	for _, h := range []sdk.Handle{p.Breaches, p.Signals, p.IsWin} {
		assert.True(t, chain.FHE.IsAllowed(h, alice))
		assert.True(t, chain.FHE.IsAllowed(h, bob))
		assert.False(t, chain.FHE.IsAllowed(h, carol))
		assert.True(t, chain.FHE.IsPublic(h))
	}
	for _, h := range p.Guess {
		assert.True(t, chain.FHE.IsAllowed(h, bob))
		assert.False(t, chain.FHE.IsPublic(h))
	}

	last, err := c.LastProbe(chain, id)
	require.NoError(t, err)
	assert.Equal(t, p, last)

	_, err = c.GetProbe(chain, id, 1)
	require.ErrorIs(t, err, ErrInvalidIndex)

	r := mustRoom(t, c, chain, id)
	assert.Equal(t, uint64(chain.Env.Timestamp.Unix()), r.LastActivityAt)
	assert.Empty(t, chain.FHE.Reveal(r.PendingWinner))
	assert.True(t, chain.FHE.IsPublic(r.PendingWinner))

	evs := chain.Events()
	require.GreaterOrEqual(t, len(evs), 2)
	computed, requested := evs[len(evs)-2], evs[len(evs)-1]
	assert.Equal(t, EventResultComputed, computed.Type)
	assert.Equal(t, alice, computed.Attributes["submitter"])
	assert.Equal(t, p.Breaches.String(), computed.Attributes["breaches"])
	assert.Equal(t, EventDisclosureRequested, requested.Type)
	assert.Equal(t, r.PendingWinner.String(), requested.Attributes["handle"])

	pending := chain.FHE.TakePending()
	require.Len(t, pending, 1)
	assert.Equal(t, r.PendingWinner, pending[0].Handle)
	req, err := c.GetDisclosureRequest(chain, pending[0].RequestID)
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, id, req.RoomID)
	assert.Equal(t, uint64(0), req.TurnIndex)
}

func TestOpponentProbesCreatorVault(t *testing.T) {
	c, chain, id := startDuel(t)
	_, err := c.SubmitProbe(chain.As(alice), id, sealed(alice, 0, 0, 0, 0))
	require.NoError(t, err)

	// alice's code is 1 2 3 4
	_, err = c.SubmitProbe(chain.As(bob), id, sealed(bob, 1, 2, 4, 3))
	require.NoError(t, err)
	p, err := c.LastProbe(chain, id)
	require.NoError(t, err)
	assert.Equal(t, bob, p.Submitter)
	assert.Equal(t, []byte{2}, chain.FHE.Reveal(p.Breaches))
	assert.Equal(t, []byte{2}, chain.FHE.Reveal(p.Signals))
}

func TestWinningProbeSealsSubmitterAsCandidate(t *testing.T) {
	c, chain, id := startDuel(t)
	_, err := c.SubmitProbe(chain.As(alice), id, sealed(alice, 5, 6, 7, 8))
	require.NoError(t, err)

	r := mustRoom(t, c, chain, id)
	assert.Equal(t, []byte(alice), chain.FHE.Reveal(r.PendingWinner))
	// nothing is settled until the oracle answers
	assert.Equal(t, InProgress, r.Phase)
	assert.Equal(t, uint64(2_000), chain.Balance(chain.Env.Contract, hive))
}
