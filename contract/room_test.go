package contract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okinoko-cipher_duel/sdk"
)

func TestCreateRoom(t *testing.T) {
	c := New(DefaultConfig())
	chain := newChain()

	id := openRoom(t, c, chain, 1, 2, 3, 4)
	require.Equal(t, uint64(0), id)

	r := mustRoom(t, c, chain, id)
	assert.Equal(t, alice, r.Creator)
	assert.Nil(t, r.Opponent)
	assert.Equal(t, uint64(1000), r.Wager)
	assert.Equal(t, hive, r.Asset)
	assert.Equal(t, WaitingForJoin, r.Phase)
	assert.Equal(t, uint64(chain.Env.Timestamp.Unix()), r.CreatedAt)

	assert.Equal(t, uint64(9_000), chain.Balance(alice, hive))
	assert.Equal(t, uint64(1_000), chain.Balance(chain.Env.Contract, hive))
	assert.Equal(t, []string{EventRoomCreated, EventVaultSubmitted}, eventTypes(chain))

	n, err := c.RoomCount(chain)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
	assert.True(t, c.RoomExists(chain, 0))
	assert.False(t, c.RoomExists(chain, 1))

	second := openRoom(t, c, chain, 9, 9, 9, 9)
	assert.Equal(t, uint64(1), second)
}

func TestCreateRoomVaultIsSealed(t *testing.T) {
	c := New(DefaultConfig())
	chain := newChain()
	id := openRoom(t, c, chain, 1, 2, 3, 4)

	v, err := c.GetVault(chain, id, alice)
	require.NoError(t, err)
	for i, h := range v {
		assert.True(t, chain.FHE.IsAllowed(h, alice))
		assert.True(t, chain.FHE.IsAllowed(h, chain.Env.Contract))
		assert.False(t, chain.FHE.IsAllowed(h, bob))
		assert.False(t, chain.FHE.IsPublic(h))
		assert.Equal(t, []byte{uint8(i + 1)}, chain.FHE.Reveal(h))
	}
}

func TestCreateRoomRejects(t *testing.T) {
	c := New(DefaultConfig())

	t.Run("no deposit", func(t *testing.T) {
		chain := newChain()
		_, err := c.CreateRoom(chain.As(alice), sealed(alice, 1, 2, 3, 4))
		require.ErrorIs(t, err, ErrInsufficientWager)
		assert.Empty(t, chain.State)
	})
	t.Run("below minimum", func(t *testing.T) {
		chain := newChain()
		_, err := c.CreateRoom(chain.As(alice).WithAllowance("0.999", hive), sealed(alice, 1, 2, 3, 4))
		require.ErrorIs(t, err, ErrInsufficientWager)
	})
	t.Run("unknown asset", func(t *testing.T) {
		chain := newChain()
		_, err := c.CreateRoom(chain.As(alice).WithAllowance("1.000", "btc"), sealed(alice, 1, 2, 3, 4))
		require.ErrorIs(t, err, ErrInvalidInput)
	})
	t.Run("short code", func(t *testing.T) {
		chain := newChain()
		_, err := c.CreateRoom(chain.As(alice).WithAllowance("1.000", hive), sealed(alice, 1, 2, 3))
		require.ErrorIs(t, err, ErrInvalidInput)
	})
	t.Run("input sealed for someone else", func(t *testing.T) {
		chain := newChain()
		_, err := c.CreateRoom(chain.As(alice).WithAllowance("1.000", hive), sealed(bob, 1, 2, 3, 4))
		require.ErrorIs(t, err, ErrProofVerification)
		assert.Empty(t, chain.State)
		assert.Equal(t, uint64(10_000), chain.Balance(alice, hive))
	})
	t.Run("cannot cover wager", func(t *testing.T) {
		chain := newChain()
		_, err := c.CreateRoom(chain.As(alice).WithAllowance("50.000", hive), sealed(alice, 1, 2, 3, 4))
		require.ErrorIs(t, err, ErrTransferFailed)
		assert.Empty(t, chain.State)
	})
}

func TestJoinRoom(t *testing.T) {
	c, chain, id := startDuel(t)

	r := mustRoom(t, c, chain, id)
	require.NotNil(t, r.Opponent)
	assert.Equal(t, bob, *r.Opponent)
	assert.Equal(t, InProgress, r.Phase)
	assert.Equal(t, uint64(0), r.TurnCount)
	assert.Equal(t, uint64(2_000), chain.Balance(chain.Env.Contract, hive))
	assert.Equal(t, uint64(9_000), chain.Balance(bob, hive))

	ev := lastEvent(t, chain)
	assert.Equal(t, EventRoomJoined, ev.Type)
	assert.Equal(t, bob, ev.Attributes["opponent"])

	v, err := c.GetVault(chain, id, bob)
	require.NoError(t, err)
	assert.False(t, chain.FHE.IsAllowed(v[0], alice))
}

func TestJoinRoomRejects(t *testing.T) {
	c := New(DefaultConfig())

	t.Run("unknown room", func(t *testing.T) {
		chain := newChain()
		err := c.JoinRoom(chain.As(bob).WithAllowance("1.000", hive), 42, sealed(bob, 1, 2, 3, 4))
		require.ErrorIs(t, err, ErrInvalidRoom)
	})
	t.Run("own room", func(t *testing.T) {
		chain := newChain()
		id := openRoom(t, c, chain, 1, 2, 3, 4)
		err := c.JoinRoom(chain.As(alice).WithAllowance("1.000", hive), id, sealed(alice, 1, 2, 3, 4))
		require.ErrorIs(t, err, ErrOwnRoomJoinAttempt)
	})
	t.Run("wrong amount", func(t *testing.T) {
		chain := newChain()
		id := openRoom(t, c, chain, 1, 2, 3, 4)
		err := c.JoinRoom(chain.As(bob).WithAllowance("2.000", hive), id, sealed(bob, 1, 2, 3, 4))
		require.ErrorIs(t, err, ErrWagerMismatch)
	})
	t.Run("wrong asset", func(t *testing.T) {
		chain := newChain()
		chain.Fund(bob, 10_000, "hbd")
		id := openRoom(t, c, chain, 1, 2, 3, 4)
		err := c.JoinRoom(chain.As(bob).WithAllowance("1.000", "hbd"), id, sealed(bob, 1, 2, 3, 4))
		require.ErrorIs(t, err, ErrWagerMismatch)
	})
	t.Run("no deposit", func(t *testing.T) {
		chain := newChain()
		id := openRoom(t, c, chain, 1, 2, 3, 4)
		err := c.JoinRoom(chain.As(bob), id, sealed(bob, 1, 2, 3, 4))
		require.ErrorIs(t, err, ErrWagerMismatch)
	})
	t.Run("already joined", func(t *testing.T) {
		_, chain, id := startDuel(t)
		before := len(chain.State)
		err := c.JoinRoom(chain.As(carol).WithAllowance("1.000", hive), id, sealed(carol, 1, 2, 3, 4))
		require.ErrorIs(t, err, ErrWrongPhase)
		assert.Len(t, chain.State, before)
		assert.Equal(t, uint64(10_000), chain.Balance(carol, hive))
	})
	t.Run("bad proof leaves room open", func(t *testing.T) {
		chain := newChain()
		id := openRoom(t, c, chain, 1, 2, 3, 4)
		err := c.JoinRoom(chain.As(bob).WithAllowance("1.000", hive), id, sealed(carol, 1, 2, 3, 4))
		require.ErrorIs(t, err, ErrProofVerification)
		assert.Equal(t, WaitingForJoin, mustRoom(t, c, chain, id).Phase)
		assert.Equal(t, uint64(10_000), chain.Balance(bob, hive))
	})
}

func TestCancelRoom(t *testing.T) {
	c := New(DefaultConfig())
	chain := newChain()
	id := openRoom(t, c, chain, 1, 2, 3, 4)

	err := c.CancelRoom(chain.As(bob), id)
	require.ErrorIs(t, err, ErrUnauthorizedCanceller)

	require.NoError(t, c.CancelRoom(chain.As(alice), id))
	r := mustRoom(t, c, chain, id)
	assert.Equal(t, Cancelled, r.Phase)
	assert.Equal(t, uint64(10_000), chain.Balance(alice, hive))
	assert.Equal(t, uint64(0), chain.Balance(chain.Env.Contract, hive))
	assert.Equal(t, EventRoomCancelled, lastEvent(t, chain).Type)

	// a second cancel finds the room closed and refunds nothing
	err = c.CancelRoom(chain.As(alice), id)
	require.ErrorIs(t, err, ErrWrongPhase)
	assert.Equal(t, uint64(10_000), chain.Balance(alice, hive))

	err = c.JoinRoom(chain.As(bob).WithAllowance("1.000", hive), id, sealed(bob, 1, 2, 3, 4))
	require.ErrorIs(t, err, ErrWrongPhase)
}

func TestCancelRoomAfterJoinFails(t *testing.T) {
	c, chain, id := startDuel(t)
	err := c.CancelRoom(chain.As(alice), id)
	require.ErrorIs(t, err, ErrWrongPhase)
	assert.Equal(t, InProgress, mustRoom(t, c, chain, id).Phase)
	assert.Equal(t, uint64(2_000), chain.Balance(chain.Env.Contract, hive))
}

func TestCancelRoomRefundFailureKeepsRoomOpen(t *testing.T) {
	c := New(DefaultConfig())
	chain := newChain()
	id := openRoom(t, c, chain, 1, 2, 3, 4)

	chain.FailTransfers = true
	err := c.CancelRoom(chain.As(alice), id)
	require.ErrorIs(t, err, ErrTransferFailed)
	assert.Equal(t, WaitingForJoin, mustRoom(t, c, chain, id).Phase)

	chain.FailTransfers = false
	require.NoError(t, c.CancelRoom(chain.As(alice), id))
}

func TestMissingSender(t *testing.T) {
	c := New(DefaultConfig())
	chain := newChain()
	_, err := c.CreateRoom(chain.As("").WithAllowance("1.000", hive), sealed("", 1, 2, 3, 4))
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestOversizedSenderCannotLockEscrow(t *testing.T) {
	c := New(DefaultConfig())
	chain := newChain()
	id := openRoom(t, c, chain, 1, 2, 3, 4)

	huge := "hive:" + strings.Repeat("x", 70_000)
	chain.Fund(sdk.Address(huge), 10_000, hive)
	err := c.JoinRoom(chain.As(sdk.Address(huge)).WithAllowance("1.000", hive), id, sealed(huge, 5, 6, 7, 8))
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, uint64(10_000), chain.Balance(sdk.Address(huge), hive))

	_, err = c.CreateRoom(chain.As(sdk.Address(huge)).WithAllowance("1.000", hive), sealed(huge, 5, 6, 7, 8))
	require.ErrorIs(t, err, ErrInvalidInput)

	// the room is still readable and its creator can reclaim the wager
	assert.Equal(t, WaitingForJoin, mustRoom(t, c, chain, id).Phase)
	chain.Advance(day)
	require.NoError(t, c.ClaimTimeout(chain.As(alice), id))
	assert.Equal(t, uint64(10_000), chain.Balance(alice, hive))
	assert.Equal(t, uint64(0), chain.Balance(chain.Env.Contract, hive))
}

func TestEscrowAccountCannotPlay(t *testing.T) {
	c := New(DefaultConfig())
	chain := newChain()
	openRoom(t, c, chain, 1, 2, 3, 4)
	escrow := chain.Env.Contract

	_, err := c.CreateRoom(chain.As(escrow).WithAllowance("1.000", hive), sealed(escrow.String(), 5, 6, 7, 8))
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, uint64(1_000), chain.Balance(escrow, hive))

	count, err := c.RoomCount(chain)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
	err = c.JoinRoom(chain.As(escrow).WithAllowance("1.000", hive), 0, sealed(escrow.String(), 5, 6, 7, 8))
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, WaitingForJoin, mustRoom(t, c, chain, 0).Phase)
}

func TestGetVaultOfOutsider(t *testing.T) {
	c, chain, id := startDuel(t)
	_, err := c.GetVault(chain, id, carol)
	require.ErrorIs(t, err, ErrNotAPlayer)
	_, err = c.GetVault(chain, 99, alice)
	require.ErrorIs(t, err, ErrInvalidRoom)
}
