package contract

import (
	"fmt"
	"time"

	"okinoko-cipher_duel/sdk"
)

//
// Timeout resolution.
//
// A room waiting for its opponent can be cancelled by the creator once the
// join timeout passed. A room in progress can be claimed by the waiting
// player once the mover stayed idle for the move timeout.
//

// elapsed reports whether at least d passed between since and now.
func elapsed(since, now uint64, d time.Duration) bool {
	return now >= since && now-since >= uint64(d/time.Second)
}

// claimJoinTimeout refunds the creator of a room nobody joined in time.
func (c *Contract) claimJoinTimeout(chain sdk.Chain, r *Room, sender string, now uint64) error {
	if !elapsed(r.CreatedAt, now, c.cfg.JoinTimeout) {
		return fmt.Errorf("%w: join timeout of room %d not reached", ErrTimeoutNotReached, r.ID)
	}
	if sender != r.Creator {
		return fmt.Errorf("%w: only the creator can cancel room %d", ErrUnauthorizedCanceller, r.ID)
	}
	return refundCreator(chain, r, now)
}

// claimMoveTimeout awards the pot to the waiting player when the player to
// move stayed idle.
func (c *Contract) claimMoveTimeout(chain sdk.Chain, r *Room, sender string, now uint64) error {
	if !r.isPlayer(sender) {
		return fmt.Errorf("%w: %s", ErrNotAPlayer, sender)
	}
	if !elapsed(r.LastActivityAt, now, c.cfg.MoveTimeout) {
		return fmt.Errorf("%w: move timeout of room %d not reached", ErrTimeoutNotReached, r.ID)
	}
	idle := nextToPlay(r)
	claimant := waitingPlayer(r)
	if sender != claimant {
		return fmt.Errorf("%w: %s is the idle player", ErrUnauthorizedClaimant, sender)
	}
	pot, settled, err := c.settle(chain, r, claimant)
	if err != nil || !settled {
		return err
	}
	EmitGameTimedOut(chain, r.ID, idle, now)
	EmitGameFinished(chain, r.ID, claimant, pot)
	return nil
}
