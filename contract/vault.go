package contract

import (
	"fmt"

	"okinoko-cipher_duel/sdk"
)

//
// Vault storage.
//
// A vault is written once, when its owner creates or joins a room, and is
// never rewritten. Only handles are stored; digits never reach the contract.
//

func vaultKey(roomID uint64, owner string) string {
	return "r_" + UInt64ToString(roomID) + "_vault_" + owner
}

// sealCode verifies a client's sealed input and returns its handles.
// The contract is granted access so later probes can compute on them.
func sealCode(chain sdk.Chain, in SealedInput) ([CodeLength]sdk.Handle, error) {
	var out [CodeLength]sdk.Handle
	if len(in.Ciphertexts) != CodeLength {
		return out, fmt.Errorf("%w: want %d ciphertexts, got %d", ErrInvalidInput, CodeLength, len(in.Ciphertexts))
	}
	env := chain.GetEnv()
	fhe := chain.Confidential()
	handles, err := fhe.Seal(env.Sender, sdk.KindUint8, in.Ciphertexts, in.Proof)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrProofVerification, err)
	}
	if len(handles) != CodeLength {
		return out, fmt.Errorf("%w: coprocessor returned %d handles", ErrProofVerification, len(handles))
	}
	for i, h := range handles {
		if len(h) > maxString16 {
			return out, fmt.Errorf("%w: handle of %d bytes", ErrInvalidInput, len(h))
		}
		if err := fhe.Allow(h, env.Contract); err != nil {
			return out, err
		}
		out[i] = h
	}
	return out, nil
}

// vaultBinary encodes owner's vault for roomID. A vault is sealed once, so
// an existing one is refused.
func vaultBinary(chain sdk.Chain, roomID uint64, owner string, v Vault) (string, error) {
	if ptr := chain.StateGetObject(vaultKey(roomID, owner)); ptr != nil && *ptr != "" {
		return "", fmt.Errorf("%w: vault of %s already sealed", ErrWrongPhase, owner)
	}
	w := newWr(CodeLength * 70)
	for _, h := range v {
		w.handle(h)
	}
	return w.blob()
}

// storeVault persists an encoded vault.
func storeVault(chain sdk.Chain, roomID uint64, owner, blob string) {
	chain.StateSetObject(vaultKey(roomID, owner), blob)
	EmitVaultSubmitted(chain, roomID, owner)
}

// loadVault returns owner's vault for roomID.
func loadVault(chain sdk.Chain, roomID uint64, owner string) (Vault, error) {
	var v Vault
	ptr := chain.StateGetObject(vaultKey(roomID, owner))
	if ptr == nil || *ptr == "" {
		return v, fmt.Errorf("%w: no vault for %s in room %d", ErrCorruptState, owner, roomID)
	}
	r := &rd{b: []byte(*ptr)}
	for i := range v {
		v[i] = r.handle()
	}
	if err := r.end(); err != nil {
		return v, fmt.Errorf("vault %d/%s: %w", roomID, owner, err)
	}
	return v, nil
}

// targetVault resolves whose code a probe from sender is scored against:
// the opponent's if sender created the room, the creator's otherwise.
func targetVault(chain sdk.Chain, r *Room, sender string) (Vault, error) {
	if sender == r.Creator {
		return loadVault(chain, r.ID, *r.Opponent)
	}
	return loadVault(chain, r.ID, r.Creator)
}
