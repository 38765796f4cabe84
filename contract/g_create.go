package contract

import (
	"fmt"
	"time"

	"okinoko-cipher_duel/sdk"
)

//
// Creation helpers for opening a new room.
//

// unixSeconds converts a call timestamp into the unix seconds stored on
// rooms and probes.
func unixSeconds(t time.Time) uint64 {
	if t.Unix() < 0 {
		return 0
	}
	return uint64(t.Unix())
}

// initNewRoom constructs a fresh Room waiting for its opponent.
// Timestamps are passed in so nothing reads the clock while testing.
func initNewRoom(id uint64, creator string, deposit *TransferAllow, now uint64) *Room {
	return &Room{
		ID:             id,
		Creator:        creator,
		Asset:          deposit.Token,
		Wager:          deposit.Limit,
		Phase:          WaitingForJoin,
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

// creatorDeposit reads the wager the creator authorized via a
// transfer.allow intent. A missing intent counts as a zero deposit.
func (c *Contract) creatorDeposit(env sdk.Env) (*TransferAllow, error) {
	ta, err := GetFirstTransferAllow(env.Intents, c.cfg.Assets)
	if err != nil {
		return nil, err
	}
	if ta == nil || ta.Limit < c.cfg.MinWager || ta.Limit == 0 {
		var got uint64
		if ta != nil {
			got = ta.Limit
		}
		return nil, fmt.Errorf("%w: deposited %s, minimum is %s",
			ErrInsufficientWager, formatFixedPoint3(got), formatFixedPoint3(c.cfg.MinWager))
	}
	return ta, nil
}

// escrowDeposit draws the wager from the caller into the contract.
func escrowDeposit(chain sdk.Chain, amount uint64, asset sdk.Asset) error {
	if err := chain.Draw(amount, asset); err != nil {
		return fmt.Errorf("%w: draw %s %s: %v", ErrTransferFailed, formatFixedPoint3(amount), asset, err)
	}
	return nil
}
