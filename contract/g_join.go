package contract

import (
	"fmt"

	"okinoko-cipher_duel/sdk"
)

// joinerDeposit checks that the joiner escrows exactly the creator's wager
// in the same asset.
func (c *Contract) joinerDeposit(env sdk.Env, r *Room) error {
	ta, err := GetFirstTransferAllow(env.Intents, c.cfg.Assets)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWagerMismatch, err)
	}
	if ta == nil {
		return fmt.Errorf("%w: no deposit, room wager is %s %s", ErrWagerMismatch, formatFixedPoint3(r.Wager), r.Asset)
	}
	if ta.Token != r.Asset || ta.Limit != r.Wager {
		return fmt.Errorf("%w: deposited %s %s, room wager is %s %s",
			ErrWagerMismatch, formatFixedPoint3(ta.Limit), ta.Token, formatFixedPoint3(r.Wager), r.Asset)
	}
	return nil
}
