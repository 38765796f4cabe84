package contract

import (
	"fmt"

	"okinoko-cipher_duel/sdk"
)

func roomMetaKey(id uint64) string  { return "r_" + UInt64ToString(id) + "_meta" }
func roomStateKey(id uint64) string { return "r_" + UInt64ToString(id) + "_state" }

const roomCountKey = "r_count"

// getRoomCount retrieves the number of rooms created so far, which is also
// the id the next room gets.
func getRoomCount(chain sdk.Chain) (uint64, error) {
	return readCounter(chain, roomCountKey)
}

func setRoomCount(chain sdk.Chain, n uint64) {
	writeCounter(chain, roomCountKey, n)
}

// metaBinary packs room info that never changes after create:
// creator, asset, wager and creation time.
func metaBinary(r *Room) (string, error) {
	w := newWr(32 + len(r.Creator) + len(r.Asset))
	w.str(r.Creator)
	w.str(r.Asset.String())
	w.u64(r.Wager)
	w.u64(r.CreatedAt)
	return w.blob()
}

// loadMetaBinary reads the immutable room metadata from storage.
// It does not touch dynamic values; caller layers state on top.
func loadMetaBinary(ptr string, id uint64) (*Room, error) {
	rr := &rd{b: []byte(ptr)}
	r := &Room{ID: id}
	r.Creator = rr.str()
	r.Asset = sdk.Asset(rr.str())
	r.Wager = rr.u64()
	r.CreatedAt = rr.u64()
	r.LastActivityAt = r.CreatedAt
	if err := rr.end(); err != nil {
		return nil, fmt.Errorf("room %d meta: %w", id, err)
	}
	return r, nil
}

// stateBinary packs the parts of a room that change during play:
// phase, opponent, turn counter, pending winner handle, winner and the last
// activity timestamp.
func stateBinary(r *Room) (string, error) {
	w := newWr(64 + len(r.PendingWinner))
	w.u8(byte(r.Phase))
	w.optStr(r.Opponent)
	w.u64(r.TurnCount)
	w.handle(r.PendingWinner)
	w.optStr(r.Winner)
	w.u64(r.LastActivityAt)
	return w.blob()
}

// saveStateBinary writes an encoded room state.
func saveStateBinary(chain sdk.Chain, id uint64, state string) {
	chain.StateSetObject(roomStateKey(id), state)
}

// loadStateBinary decodes the dynamic portion of a room from its blob.
func loadStateBinary(r *Room, data string) error {
	rr := &rd{b: []byte(data)}
	r.Phase = RoomPhase(rr.u8())
	r.Opponent = rr.optStr()
	r.TurnCount = rr.u64()
	r.PendingWinner = rr.handle()
	r.Winner = rr.optStr()
	r.LastActivityAt = rr.u64()
	if err := rr.end(); err != nil {
		return fmt.Errorf("room %d state: %w", r.ID, err)
	}
	if r.Phase > Cancelled {
		return fmt.Errorf("%w: room %d phase %d", ErrCorruptState, r.ID, r.Phase)
	}
	return nil
}

// loadRoom reconstructs a Room from its meta and state records.
func loadRoom(chain sdk.Chain, id uint64) (*Room, error) {
	ptr := chain.StateGetObject(roomMetaKey(id))
	if ptr == nil || *ptr == "" {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRoom, id)
	}
	r, err := loadMetaBinary(*ptr, id)
	if err != nil {
		return nil, err
	}
	if statePtr := chain.StateGetObject(roomStateKey(id)); statePtr != nil && *statePtr != "" {
		if err := loadStateBinary(r, *statePtr); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func roomExists(chain sdk.Chain, id uint64) bool {
	ptr := chain.StateGetObject(roomMetaKey(id))
	return ptr != nil && *ptr != ""
}

// ---------- Player stats ----------

func winsKey(addr string) string { return "p_" + addr + "_wins" }

func readWins(chain sdk.Chain, addr string) (uint64, error) {
	return readCounter(chain, winsKey(addr))
}
