package contract

import (
	"time"

	"okinoko-cipher_duel/sdk"
)

// CodeLength is the number of symbols in a vault and in every guess.
const CodeLength = 4

// RoomPhase is the lifecycle stage of a room.
type RoomPhase uint8

const (
	WaitingForJoin RoomPhase = 0 // created, escrow holds the creator's wager
	Locked         RoomPhase = 1 // reserved, never entered
	InProgress     RoomPhase = 2 // both vaults sealed, probes accepted
	Finished       RoomPhase = 3 // pot paid out
	Cancelled      RoomPhase = 4 // creator refunded
)

func (p RoomPhase) String() string {
	switch p {
	case WaitingForJoin:
		return "waiting_for_join"
	case Locked:
		return "locked"
	case InProgress:
		return "in_progress"
	case Finished:
		return "finished"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Vault is a player's secret code, held only as sealed handles.
type Vault [CodeLength]sdk.Handle

// Room is the runtime view of a room assembled from its meta and state
// records.
//
// Fields:
//   - ID: monotonic identifier assigned at creation
//   - Creator / Opponent: the two participants; Opponent is set once on join
//   - Asset / Wager: what each player escrowed (fixed point, 3 decimals)
//   - TurnCount: number of accepted probes; parity decides who moves
//   - PendingWinner: sealed identity of the latest round's candidate winner
//   - Winner: cleartext winner, set only when the room finished
//   - CreatedAt / LastActivityAt: unix seconds
type Room struct {
	ID             uint64     `json:"id"`
	Creator        string     `json:"creator"`
	Opponent       *string    `json:"opponent,omitempty"`
	Asset          sdk.Asset  `json:"asset"`
	Wager          uint64     `json:"wager"`
	Phase          RoomPhase  `json:"phase"`
	TurnCount      uint64     `json:"turnCount"`
	PendingWinner  sdk.Handle `json:"pendingWinner,omitempty"`
	Winner         *string    `json:"winner,omitempty"`
	CreatedAt      uint64     `json:"createdAt"`
	LastActivityAt uint64     `json:"lastActivityAt"`
}

// isPlayer reports whether addr is one of the room's participants.
func (r *Room) isPlayer(addr string) bool {
	if addr == r.Creator {
		return true
	}
	return r.Opponent != nil && addr == *r.Opponent
}

// Probe is one guess and its sealed feedback.
type Probe struct {
	RoomID      uint64                 `json:"roomId"`
	TurnIndex   uint64                 `json:"turnIndex"`
	Submitter   string                 `json:"submitter"`
	Guess       [CodeLength]sdk.Handle `json:"guess"`
	Breaches    sdk.Handle             `json:"breaches"`
	Signals     sdk.Handle             `json:"signals"`
	IsWin       sdk.Handle             `json:"isWin"`
	Computed    bool                   `json:"computed"`
	SubmittedAt uint64                 `json:"submittedAt"`
}

// DisclosureRequest records which handle a reveal was requested for, so
// the callback can be checked against exactly that handle.
type DisclosureRequest struct {
	ID        uint64     `json:"id"`
	RoomID    uint64     `json:"roomId"`
	TurnIndex uint64     `json:"turnIndex"`
	Handle    sdk.Handle `json:"handle"`
}

// SealedInput is a batch of CodeLength ciphertexts and the proof covering
// them, as produced by a client for its own address.
type SealedInput struct {
	Ciphertexts [][]byte `json:"ciphertexts"`
	Proof       []byte   `json:"proof"`
}

// Disclosure is the oracle's answer to a DisclosureRequest.
type Disclosure struct {
	RequestID uint64 `json:"requestId"`
	RoomID    uint64 `json:"roomId"`
	Winner    string `json:"winner"`
	Proof     []byte `json:"proof"`
}

// Config carries the deployment parameters of the contract.
type Config struct {
	MinWager    uint64 // fixed point, 3 decimals
	JoinTimeout time.Duration
	MoveTimeout time.Duration
	Assets      []sdk.Asset
}

// DefaultConfig returns the parameters used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MinWager:    1000,
		JoinTimeout: 24 * time.Hour,
		MoveTimeout: 7 * 24 * time.Hour,
		Assets:      []sdk.Asset{"hive", "hbd"},
	}
}
