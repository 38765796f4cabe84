package contract

import (
	"fmt"

	"okinoko-cipher_duel/sdk"
)

//
// Settlement.
//
// settle is the only path that pays out a pot. Everything that can fail
// is checked before the transfer, and state is written only after the
// transfer went through, so a failed payout leaves the room untouched.
//

// settle pays both wagers to winner and closes the room. It reports false
// without paying when the room was already finished.
func (c *Contract) settle(chain sdk.Chain, r *Room, winner string) (uint64, bool, error) {
	if r.Phase == Finished {
		return 0, false, nil
	}
	if r.Phase != InProgress {
		return 0, false, fmt.Errorf("%w: room %d is %s", ErrWrongPhase, r.ID, r.Phase)
	}
	if !r.isPlayer(winner) {
		return 0, false, fmt.Errorf("%w: %s", ErrNotAPlayer, winner)
	}
	wins, err := readWins(chain, winner)
	if err != nil {
		return 0, false, err
	}
	closed := *r
	closed.Phase = Finished
	closed.Winner = &winner
	closed.LastActivityAt = unixSeconds(chain.GetEnv().Timestamp)
	state, err := stateBinary(&closed)
	if err != nil {
		return 0, false, err
	}

	pot := r.Wager * 2
	if err := chain.Transfer(sdk.Address(winner), pot, r.Asset); err != nil {
		return 0, false, fmt.Errorf("%w: pay %s %s to %s: %v", ErrTransferFailed, formatFixedPoint3(pot), r.Asset, winner, err)
	}

	*r = closed
	saveStateBinary(chain, r.ID, state)
	writeCounter(chain, winsKey(winner), wins+1)
	return pot, true, nil
}

// finalize settles the room and announces the result. Calling it on a
// finished room is a no-op.
func (c *Contract) finalize(chain sdk.Chain, r *Room, winner string) error {
	pot, settled, err := c.settle(chain, r, winner)
	if err != nil || !settled {
		return err
	}
	EmitGameFinished(chain, r.ID, winner, pot)
	return nil
}
