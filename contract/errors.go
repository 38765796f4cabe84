package contract

import "errors"

// Every failing entry point returns one of these, possibly wrapped. A failed
// call leaves no state behind.
var (
	ErrInvalidRoom           = errors.New("invalid room")
	ErrWrongPhase            = errors.New("wrong phase")
	ErrNotAPlayer            = errors.New("not a player")
	ErrOwnRoomJoinAttempt    = errors.New("creator cannot join own room")
	ErrNotYourTurn           = errors.New("not your turn")
	ErrInsufficientWager     = errors.New("insufficient wager")
	ErrWagerMismatch         = errors.New("wager mismatch")
	ErrUnauthorizedCanceller = errors.New("only the creator can cancel")
	ErrUnauthorizedClaimant  = errors.New("only the waiting player can claim a timeout")
	ErrTimeoutNotReached     = errors.New("timeout not reached")
	ErrTransferFailed        = errors.New("transfer failed")
	ErrProofVerification     = errors.New("proof verification failed")
	ErrInvalidIndex          = errors.New("invalid probe index")
	ErrNoProbesYet           = errors.New("no probes yet")
	ErrInvalidInput          = errors.New("invalid input")
	ErrCorruptState          = errors.New("corrupt state")
)
