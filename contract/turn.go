package contract

// nextToPlay returns whose turn it is from the turn counter parity:
// even -> creator, odd -> opponent. Only meaningful once a room is
// InProgress, when the opponent is known.
func nextToPlay(r *Room) string {
	if r.TurnCount%2 == 0 {
		return r.Creator
	}
	return *r.Opponent
}

// waitingPlayer is the participant whose turn it is not.
func waitingPlayer(r *Room) string {
	if r.TurnCount%2 == 0 {
		return *r.Opponent
	}
	return r.Creator
}

// isPlayerTurn is false unless the room is in progress and addr is the
// participant due to move.
func isPlayerTurn(r *Room, addr string) bool {
	if r.Phase != InProgress || r.Opponent == nil {
		return false
	}
	return nextToPlay(r) == addr
}
