package contract

import (
	"fmt"

	"okinoko-cipher_duel/sdk"
)

func probeKey(roomID, n uint64) string {
	return "r_" + UInt64ToString(roomID) + "_probe_" + UInt64ToString(n)
}

// probeBinary packs a probe as: submitter, 4 guess handles, breaches,
// signals, isWin, computed flag and the submission time.
func probeBinary(p *Probe) (string, error) {
	w := newWr(9*70 + len(p.Submitter))
	w.str(p.Submitter)
	for _, h := range p.Guess {
		w.handle(h)
	}
	w.handle(p.Breaches)
	w.handle(p.Signals)
	w.handle(p.IsWin)
	if p.Computed {
		w.u8(1)
	} else {
		w.u8(0)
	}
	w.u64(p.SubmittedAt)
	return w.blob()
}

// loadProbeBinary reads probe n of roomID. Callers check n against the
// room's turn counter first.
func loadProbeBinary(chain sdk.Chain, roomID, n uint64) (*Probe, error) {
	ptr := chain.StateGetObject(probeKey(roomID, n))
	if ptr == nil || *ptr == "" {
		return nil, fmt.Errorf("%w: probe %d of room %d missing", ErrCorruptState, n, roomID)
	}
	r := &rd{b: []byte(*ptr)}
	p := &Probe{RoomID: roomID, TurnIndex: n}
	p.Submitter = r.str()
	for i := range p.Guess {
		p.Guess[i] = r.handle()
	}
	p.Breaches = r.handle()
	p.Signals = r.handle()
	p.IsWin = r.handle()
	p.Computed = r.u8() == 1
	p.SubmittedAt = r.u64()
	if err := r.end(); err != nil {
		return nil, fmt.Errorf("probe %d/%d: %w", roomID, n, err)
	}
	return p, nil
}

// ---------- Disclosure requests ----------

const disclosureCountKey = "d_count"

func disclosureKey(id uint64) string { return "d_" + UInt64ToString(id) }

func disclosureRequestBinary(req *DisclosureRequest) (string, error) {
	w := newWr(24 + len(req.Handle))
	w.u64(req.RoomID)
	w.u64(req.TurnIndex)
	w.handle(req.Handle)
	return w.blob()
}

// loadDisclosureRequest returns nil when the request is unknown or was
// already consumed.
func loadDisclosureRequest(chain sdk.Chain, id uint64) (*DisclosureRequest, error) {
	ptr := chain.StateGetObject(disclosureKey(id))
	if ptr == nil || *ptr == "" {
		return nil, nil
	}
	r := &rd{b: []byte(*ptr)}
	req := &DisclosureRequest{ID: id}
	req.RoomID = r.u64()
	req.TurnIndex = r.u64()
	req.Handle = r.handle()
	if err := r.end(); err != nil {
		return nil, fmt.Errorf("disclosure request %d: %w", id, err)
	}
	return req, nil
}

func consumeDisclosureRequest(chain sdk.Chain, id uint64) {
	chain.StateDeleteObject(disclosureKey(id))
}

// ---------- Probe evaluation ----------

// candidateWinner builds select(isWin, sender, null) so the identity stays
// sealed until disclosed.
func candidateWinner(fhe sdk.Confidential, isWin sdk.Handle, sender string) (sdk.Handle, error) {
	c := &circuit{fhe: fhe}
	who := c.constant(sdk.KindAddress, sdk.AddressValue(sdk.Address(sender)))
	null := c.constant(sdk.KindAddress, sdk.AddressValue(""))
	out := c.sel(isWin, who, null)
	return out, c.err
}

// shareResults lets both participants decrypt the guess, the probe
// feedback and the candidate winner. Feedback and candidate are also marked
// for public disclosure; the guess is not.
func shareResults(fhe sdk.Confidential, r *Room, guess [CodeLength]sdk.Handle, results ...sdk.Handle) error {
	players := []sdk.Address{sdk.Address(r.Creator), sdk.Address(*r.Opponent)}
	allow := func(h sdk.Handle) error {
		for _, p := range players {
			if err := fhe.Allow(h, p); err != nil {
				return err
			}
		}
		return nil
	}
	for _, h := range guess {
		if err := allow(h); err != nil {
			return err
		}
	}
	for _, h := range results {
		if err := allow(h); err != nil {
			return err
		}
		if err := fhe.MakePubliclyDecryptable(h); err != nil {
			return err
		}
	}
	return nil
}
