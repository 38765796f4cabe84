package contract

import (
	"fmt"

	"okinoko-cipher_duel/sdk"
)

// Contract is the duel contract. It holds only deployment parameters; all
// room data lives in the chain state handed to each call.
type Contract struct {
	cfg Config
}

// New returns a contract using cfg.
func New(cfg Config) *Contract {
	return &Contract{cfg: cfg}
}

// Config returns the deployment parameters.
func (c *Contract) Config() Config { return c.cfg }

func callerOf(chain sdk.Chain) (sdk.Env, string, error) {
	env := chain.GetEnv()
	if env.Sender == "" {
		return env, "", fmt.Errorf("%w: missing sender", ErrInvalidInput)
	}
	if len(env.Sender) > maxString16 {
		return env, "", fmt.Errorf("%w: sender address of %d bytes", ErrInvalidInput, len(env.Sender))
	}
	if env.Sender == env.Contract {
		return env, "", fmt.Errorf("%w: the escrow account cannot play", ErrInvalidInput)
	}
	return env, env.Sender.String(), nil
}

// ---------- Entry: Create ----------

// CreateRoom opens a room with the caller's sealed code and escrows the
// wager authorized by the caller's transfer.allow intent.
func (c *Contract) CreateRoom(chain sdk.Chain, code SealedInput) (uint64, error) {
	env, sender, err := callerOf(chain)
	if err != nil {
		return 0, err
	}
	deposit, err := c.creatorDeposit(env)
	if err != nil {
		return 0, err
	}
	vault, err := sealCode(chain, code)
	if err != nil {
		return 0, err
	}
	id, err := getRoomCount(chain)
	if err != nil {
		return 0, err
	}
	r := initNewRoom(id, sender, deposit, unixSeconds(env.Timestamp))
	meta, err := metaBinary(r)
	if err != nil {
		return 0, err
	}
	state, err := stateBinary(r)
	if err != nil {
		return 0, err
	}
	sealedVault, err := vaultBinary(chain, r.ID, sender, vault)
	if err != nil {
		return 0, err
	}
	if err := escrowDeposit(chain, deposit.Limit, deposit.Token); err != nil {
		return 0, err
	}

	chain.StateSetObject(roomMetaKey(r.ID), meta)
	saveStateBinary(chain, r.ID, state)
	setRoomCount(chain, id+1)
	EmitRoomCreated(chain, r.ID, sender, r.Wager, r.Asset)
	storeVault(chain, r.ID, sender, sealedVault)
	return r.ID, nil
}

// ---------- Entry: Join ----------

// JoinRoom seats the caller as opponent, seals their code and escrows a
// matching wager. The room moves straight to InProgress.
func (c *Contract) JoinRoom(chain sdk.Chain, roomID uint64, code SealedInput) error {
	env, sender, err := callerOf(chain)
	if err != nil {
		return err
	}
	r, err := loadRoom(chain, roomID)
	if err != nil {
		return err
	}
	if r.Phase != WaitingForJoin {
		return fmt.Errorf("%w: room %d is %s", ErrWrongPhase, r.ID, r.Phase)
	}
	if sender == r.Creator {
		return fmt.Errorf("%w: room %d", ErrOwnRoomJoinAttempt, r.ID)
	}
	if err := c.joinerDeposit(env, r); err != nil {
		return err
	}
	vault, err := sealCode(chain, code)
	if err != nil {
		return err
	}
	r.Opponent = &sender
	r.Phase = InProgress
	r.LastActivityAt = unixSeconds(env.Timestamp)
	state, err := stateBinary(r)
	if err != nil {
		return err
	}
	sealedVault, err := vaultBinary(chain, r.ID, sender, vault)
	if err != nil {
		return err
	}
	if err := escrowDeposit(chain, r.Wager, r.Asset); err != nil {
		return err
	}

	saveStateBinary(chain, r.ID, state)
	storeVault(chain, r.ID, sender, sealedVault)
	EmitRoomJoined(chain, r.ID, sender)
	return nil
}

// ---------- Entry: Cancel ----------

// CancelRoom refunds the creator of a room nobody joined yet.
func (c *Contract) CancelRoom(chain sdk.Chain, roomID uint64) error {
	env, sender, err := callerOf(chain)
	if err != nil {
		return err
	}
	r, err := loadRoom(chain, roomID)
	if err != nil {
		return err
	}
	if sender != r.Creator {
		return fmt.Errorf("%w: only the creator can cancel room %d", ErrUnauthorizedCanceller, r.ID)
	}
	if r.Phase != WaitingForJoin || r.Opponent != nil {
		return fmt.Errorf("%w: room %d is %s", ErrWrongPhase, r.ID, r.Phase)
	}
	return refundCreator(chain, r, unixSeconds(env.Timestamp))
}

// ---------- Entry: Probe ----------

// SubmitProbe scores the caller's sealed guess against the opponent's vault,
// stores the sealed feedback and queues disclosure of the candidate winner.
// It returns the turn index of the probe.
func (c *Contract) SubmitProbe(chain sdk.Chain, roomID uint64, guess SealedInput) (uint64, error) {
	env, sender, err := callerOf(chain)
	if err != nil {
		return 0, err
	}
	r, err := loadRoom(chain, roomID)
	if err != nil {
		return 0, err
	}
	if r.Phase != InProgress {
		return 0, fmt.Errorf("%w: room %d is %s", ErrWrongPhase, r.ID, r.Phase)
	}
	if !r.isPlayer(sender) {
		return 0, fmt.Errorf("%w: %s", ErrNotAPlayer, sender)
	}
	if !isPlayerTurn(r, sender) {
		return 0, fmt.Errorf("%w: room %d waits for %s", ErrNotYourTurn, r.ID, nextToPlay(r))
	}

	guessed, err := sealCode(chain, guess)
	if err != nil {
		return 0, err
	}
	vault, err := targetVault(chain, r, sender)
	if err != nil {
		return 0, err
	}
	fhe := chain.Confidential()
	score, err := ScoreGuess(fhe, vault, guessed)
	if err != nil {
		return 0, err
	}
	pending, err := candidateWinner(fhe, score.IsWin, sender)
	if err != nil {
		return 0, err
	}
	if err := shareResults(fhe, r, guessed, score.Breaches, score.Signals, score.IsWin, pending); err != nil {
		return 0, err
	}
	reqID, err := readCounter(chain, disclosureCountKey)
	if err != nil {
		return 0, err
	}

	now := unixSeconds(env.Timestamp)
	p := &Probe{
		RoomID:      r.ID,
		TurnIndex:   r.TurnCount,
		Submitter:   sender,
		Guess:       guessed,
		Breaches:    score.Breaches,
		Signals:     score.Signals,
		IsWin:       score.IsWin,
		Computed:    true,
		SubmittedAt: now,
	}
	req := &DisclosureRequest{ID: reqID, RoomID: r.ID, TurnIndex: p.TurnIndex, Handle: pending}
	r.TurnCount++
	r.PendingWinner = pending
	r.LastActivityAt = now
	probeBlob, err := probeBinary(p)
	if err != nil {
		return 0, err
	}
	reqBlob, err := disclosureRequestBinary(req)
	if err != nil {
		return 0, err
	}
	state, err := stateBinary(r)
	if err != nil {
		return 0, err
	}
	if err := fhe.RequestDisclosure(req.ID, req.Handle); err != nil {
		return 0, err
	}

	chain.StateSetObject(probeKey(p.RoomID, p.TurnIndex), probeBlob)
	chain.StateSetObject(disclosureKey(req.ID), reqBlob)
	writeCounter(chain, disclosureCountKey, reqID+1)
	saveStateBinary(chain, r.ID, state)

	EmitResultComputed(chain, p)
	EmitDisclosureRequested(chain, req)
	return p.TurnIndex, nil
}

// ---------- Entry: Disclosure callback ----------

// FulfillDisclosure is called by the disclosure oracle with the cleartext
// winner identity of a pending request. Stale, unknown and null answers are
// ignored; a participant winner finalizes the room.
func (c *Contract) FulfillDisclosure(chain sdk.Chain, d Disclosure) error {
	req, r, err := acceptDisclosure(chain, d)
	if err != nil || req == nil {
		return err
	}
	if d.Winner == "" || !r.isPlayer(d.Winner) {
		consumeDisclosureRequest(chain, req.ID)
		return nil
	}
	pot, settled, err := c.settle(chain, r, d.Winner)
	if err != nil {
		return err
	}
	consumeDisclosureRequest(chain, req.ID)
	if settled {
		EmitWinnerDisclosed(chain, r.ID, d.Winner)
		EmitGameFinished(chain, r.ID, d.Winner, pot)
	}
	return nil
}

// ---------- Entry: Timeout ----------

// ClaimTimeout resolves a stalled room. See claimJoinTimeout and
// claimMoveTimeout for who may call it and when.
func (c *Contract) ClaimTimeout(chain sdk.Chain, roomID uint64) error {
	env, sender, err := callerOf(chain)
	if err != nil {
		return err
	}
	r, err := loadRoom(chain, roomID)
	if err != nil {
		return err
	}
	now := unixSeconds(env.Timestamp)
	switch r.Phase {
	case WaitingForJoin:
		return c.claimJoinTimeout(chain, r, sender, now)
	case InProgress:
		return c.claimMoveTimeout(chain, r, sender, now)
	default:
		return fmt.Errorf("%w: room %d is %s", ErrWrongPhase, r.ID, r.Phase)
	}
}

// ---------- Queries ----------

// GetRoom returns the room with id.
func (c *Contract) GetRoom(chain sdk.Chain, id uint64) (*Room, error) {
	return loadRoom(chain, id)
}

// RoomExists reports whether a room with id was created.
func (c *Contract) RoomExists(chain sdk.Chain, id uint64) bool {
	return roomExists(chain, id)
}

// RoomCount returns how many rooms were created.
func (c *Contract) RoomCount(chain sdk.Chain) (uint64, error) {
	return getRoomCount(chain)
}

// GetProbe returns probe n of room id.
func (c *Contract) GetProbe(chain sdk.Chain, id, n uint64) (*Probe, error) {
	r, err := loadRoom(chain, id)
	if err != nil {
		return nil, err
	}
	if n >= r.TurnCount {
		return nil, fmt.Errorf("%w: room %d has %d probes", ErrInvalidIndex, id, r.TurnCount)
	}
	return loadProbeBinary(chain, id, n)
}

// LastProbe returns the most recent probe of room id.
func (c *Contract) LastProbe(chain sdk.Chain, id uint64) (*Probe, error) {
	r, err := loadRoom(chain, id)
	if err != nil {
		return nil, err
	}
	if r.TurnCount == 0 {
		return nil, fmt.Errorf("%w: room %d", ErrNoProbesYet, id)
	}
	return loadProbeBinary(chain, id, r.TurnCount-1)
}

// IsPlayerTurn reports whether addr is due to probe in room id. Unknown
// rooms report false.
func (c *Contract) IsPlayerTurn(chain sdk.Chain, id uint64, addr string) bool {
	r, err := loadRoom(chain, id)
	if err != nil {
		return false
	}
	return isPlayerTurn(r, addr)
}

// WinCount returns how many rooms addr won.
func (c *Contract) WinCount(chain sdk.Chain, addr string) (uint64, error) {
	return readWins(chain, addr)
}

// GetVault returns the sealed handles of owner's code in room id. The
// handles are opaque; only the owner and the contract may decrypt them.
func (c *Contract) GetVault(chain sdk.Chain, id uint64, owner string) (Vault, error) {
	r, err := loadRoom(chain, id)
	if err != nil {
		return Vault{}, err
	}
	if !r.isPlayer(owner) {
		return Vault{}, fmt.Errorf("%w: %s", ErrNotAPlayer, owner)
	}
	return loadVault(chain, id, owner)
}

// GetDisclosureRequest returns the pending request with id, or nil once it
// was consumed.
func (c *Contract) GetDisclosureRequest(chain sdk.Chain, id uint64) (*DisclosureRequest, error) {
	return loadDisclosureRequest(chain, id)
}
