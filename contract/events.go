package contract

import (
	"okinoko-cipher_duel/sdk"
)

// Event represents the common structure for all emitted events.
// Each event has a type and a set of key/value attributes.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Event types, also used by the node to index committed events.
const (
	EventRoomCreated         = "roomCreated"
	EventVaultSubmitted      = "vaultSubmitted"
	EventRoomJoined          = "roomJoined"
	EventRoomCancelled       = "roomCancelled"
	EventResultComputed      = "resultComputed"
	EventDisclosureRequested = "disclosureRequested"
	EventWinnerDisclosed     = "winnerDisclosed"
	EventGameFinished        = "gameFinished"
	EventGameTimedOut        = "gameTimedOut"
)

// emitEvent constructs an Event object with the given type and attributes,
// and logs it to the chain as JSON.
func emitEvent(chain sdk.Chain, eventType string, attributes map[string]string) {
	chain.Log(ToJSON(Event{Type: eventType, Attributes: attributes}))
}

// EmitRoomCreated emits an event when a new room is opened.
func EmitRoomCreated(chain sdk.Chain, roomID uint64, creator string, wager uint64, asset sdk.Asset) {
	emitEvent(chain, EventRoomCreated, map[string]string{
		"id":      UInt64ToString(roomID),
		"creator": creator,
		"wager":   formatFixedPoint3(wager),
		"asset":   asset.String(),
	})
}

// EmitVaultSubmitted emits an event when a player's code was sealed.
func EmitVaultSubmitted(chain sdk.Chain, roomID uint64, who string) {
	emitEvent(chain, EventVaultSubmitted, map[string]string{
		"id":  UInt64ToString(roomID),
		"who": who,
	})
}

// EmitRoomJoined emits an event when the opponent joined.
func EmitRoomJoined(chain sdk.Chain, roomID uint64, opponent string) {
	emitEvent(chain, EventRoomJoined, map[string]string{
		"id":       UInt64ToString(roomID),
		"opponent": opponent,
	})
}

// EmitRoomCancelled emits an event when a room was closed before it started.
func EmitRoomCancelled(chain sdk.Chain, roomID uint64, by string) {
	emitEvent(chain, EventRoomCancelled, map[string]string{
		"id": UInt64ToString(roomID),
		"by": by,
	})
}

// EmitResultComputed carries the sealed handles of a probe, never values.
func EmitResultComputed(chain sdk.Chain, p *Probe) {
	attrs := map[string]string{
		"id":        UInt64ToString(p.RoomID),
		"turn":      UInt64ToString(p.TurnIndex),
		"submitter": p.Submitter,
		"isWin":     p.IsWin.String(),
		"breaches":  p.Breaches.String(),
		"signals":   p.Signals.String(),
	}
	for i, h := range p.Guess {
		attrs["guess"+UInt64ToString(uint64(i))] = h.String()
	}
	emitEvent(chain, EventResultComputed, attrs)
}

// EmitDisclosureRequested emits an event when a reveal was queued.
func EmitDisclosureRequested(chain sdk.Chain, req *DisclosureRequest) {
	emitEvent(chain, EventDisclosureRequested, map[string]string{
		"id":      UInt64ToString(req.RoomID),
		"request": UInt64ToString(req.ID),
		"handle":  req.Handle.String(),
	})
}

// EmitWinnerDisclosed emits an event when the oracle revealed a winner.
func EmitWinnerDisclosed(chain sdk.Chain, roomID uint64, winner string) {
	emitEvent(chain, EventWinnerDisclosed, map[string]string{
		"id":     UInt64ToString(roomID),
		"winner": winner,
	})
}

// EmitGameFinished emits an event when the pot was paid out.
func EmitGameFinished(chain sdk.Chain, roomID uint64, winner string, amount uint64) {
	emitEvent(chain, EventGameFinished, map[string]string{
		"id":     UInt64ToString(roomID),
		"winner": winner,
		"amount": formatFixedPoint3(amount),
	})
}

// EmitGameTimedOut emits an event when a stalled player forfeited.
func EmitGameTimedOut(chain sdk.Chain, roomID uint64, idle string, at uint64) {
	emitEvent(chain, EventGameTimedOut, map[string]string{
		"id":   UInt64ToString(roomID),
		"idle": idle,
		"at":   UInt64ToString(at),
	})
}
