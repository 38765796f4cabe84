package contract

import (
	"fmt"

	"okinoko-cipher_duel/sdk"
)

// refundCreator returns the creator's wager and closes the room. Used by
// an explicit cancel and by a join timeout.
func refundCreator(chain sdk.Chain, r *Room, now uint64) error {
	closed := *r
	closed.Phase = Cancelled
	closed.LastActivityAt = now
	state, err := stateBinary(&closed)
	if err != nil {
		return err
	}
	if err := chain.Transfer(sdk.Address(r.Creator), r.Wager, r.Asset); err != nil {
		return fmt.Errorf("%w: refund room %d: %v", ErrTransferFailed, r.ID, err)
	}
	*r = closed
	saveStateBinary(chain, r.ID, state)
	EmitRoomCancelled(chain, r.ID, r.Creator)
	return nil
}
