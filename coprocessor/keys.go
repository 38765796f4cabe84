// Package coprocessor is the reference confidential compute backend. It
// implements sdk.Confidential over encrypted records and runs the
// disclosure oracle that reveals publicly decryptable handles.
package coprocessor

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// Seed is the master secret all coprocessor keys derive from.
type Seed [32]byte

// NewSeed draws a fresh random seed.
func NewSeed() (Seed, error) {
	var s Seed
	if _, err := rand.Read(s[:]); err != nil {
		return s, fmt.Errorf("read random seed: %w", err)
	}
	return s, nil
}

// ParseSeed decodes a hex seed as written by `duelnode keygen`.
func ParseSeed(h string) (Seed, error) {
	var s Seed
	b, err := hex.DecodeString(h)
	if err != nil {
		return s, fmt.Errorf("decode seed: %w", err)
	}
	if len(b) != len(s) {
		return s, fmt.Errorf("seed must be %d bytes, got %d", len(s), len(b))
	}
	copy(s[:], b)
	return s, nil
}

func (s Seed) String() string { return hex.EncodeToString(s[:]) }

// PublicKeys is what clients and verifiers need: the X25519 key inputs are
// encrypted to and the Ed25519 key disclosures are signed with.
type PublicKeys struct {
	Input      [32]byte
	Disclosure ed25519.PublicKey
}

// MarshalText encodes the keys as "<input hex>:<disclosure hex>".
func (p PublicKeys) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(p.Input[:]) + ":" + hex.EncodeToString(p.Disclosure)), nil
}

// UnmarshalText is the inverse of MarshalText.
func (p *PublicKeys) UnmarshalText(text []byte) error {
	in, sig, ok := strings.Cut(string(text), ":")
	if !ok {
		return fmt.Errorf("public keys must be <input>:<disclosure>")
	}
	inb, err := hex.DecodeString(in)
	if err != nil || len(inb) != 32 {
		return fmt.Errorf("bad input key %q", in)
	}
	sigb, err := hex.DecodeString(sig)
	if err != nil || len(sigb) != ed25519.PublicKeySize {
		return fmt.Errorf("bad disclosure key %q", sig)
	}
	copy(p.Input[:], inb)
	p.Disclosure = ed25519.PublicKey(sigb)
	return nil
}

// Keys holds the coprocessor's secret material.
type Keys struct {
	Public PublicKeys

	inputPriv  [32]byte
	storageKey [32]byte
	signPriv   ed25519.PrivateKey
}

// DeriveKeys expands seed into the input, storage and signing keys. Each
// key uses its own HKDF info label.
func DeriveKeys(seed Seed) (*Keys, error) {
	k := &Keys{}
	if err := expand(seed, "duel-input-v1", k.inputPriv[:]); err != nil {
		return nil, err
	}
	if err := expand(seed, "duel-storage-v1", k.storageKey[:]); err != nil {
		return nil, err
	}
	signSeed := make([]byte, ed25519.SeedSize)
	if err := expand(seed, "duel-disclosure-v1", signSeed); err != nil {
		return nil, err
	}
	k.signPriv = ed25519.NewKeyFromSeed(signSeed)
	k.Public.Disclosure = k.signPriv.Public().(ed25519.PublicKey)

	pub, err := curve25519.X25519(k.inputPriv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive input public key: %w", err)
	}
	copy(k.Public.Input[:], pub)
	return k, nil
}

func expand(seed Seed, info string, out []byte) error {
	r := hkdf.New(sha256.New, seed[:], nil, []byte(info))
	if _, err := io.ReadFull(r, out); err != nil {
		return fmt.Errorf("hkdf %s: %w", info, err)
	}
	return nil
}
