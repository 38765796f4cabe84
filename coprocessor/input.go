package coprocessor

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"

	"okinoko-cipher_duel/sdk"
)

// Input ciphertext layout: ephemeral X25519 key (32) || nonce (12) ||
// ChaCha20-Poly1305 ciphertext. The AEAD binds kind and sender, so a
// ciphertext lifted from another player's transaction fails to open.
const (
	ephemeralLen = 32
	minInputLen  = ephemeralLen + chacha20poly1305.NonceSize + chacha20poly1305.Overhead
)

var errShortInput = errors.New("input ciphertext too short")

// EncryptInputs encrypts values for sender under the coprocessor's input
// key and returns the ciphertexts and the batch proof Seal expects.
func EncryptInputs(pub PublicKeys, sender sdk.Address, kind sdk.Kind, values ...[]byte) ([][]byte, []byte, error) {
	cts := make([][]byte, len(values))
	for i, v := range values {
		if err := checkPlaintext(kind, v); err != nil {
			return nil, nil, fmt.Errorf("value %d: %w", i, err)
		}
		ct, err := encryptInput(pub.Input, sender, kind, v)
		if err != nil {
			return nil, nil, fmt.Errorf("encrypt value %d: %w", i, err)
		}
		cts[i] = ct
	}
	return cts, inputProof(sender, kind, cts), nil
}

// EncryptDigits is EncryptInputs for a code or guess of uint8 symbols.
func EncryptDigits(pub PublicKeys, sender sdk.Address, digits ...uint8) ([][]byte, []byte, error) {
	values := make([][]byte, len(digits))
	for i, d := range digits {
		values[i] = sdk.Uint8Value(d)
	}
	return EncryptInputs(pub, sender, sdk.KindUint8, values...)
}

func encryptInput(recipient [32]byte, sender sdk.Address, kind sdk.Kind, value []byte) ([]byte, error) {
	var eph [32]byte
	if _, err := rand.Read(eph[:]); err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}
	ephPub, err := curve25519.X25519(eph[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	shared, err := curve25519.X25519(eph[:], recipient[:])
	if err != nil {
		return nil, fmt.Errorf("x25519: %w", err)
	}
	aead, err := inputAEAD(shared, ephPub)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, minInputLen+len(value))
	out = append(out, ephPub...)
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	out = append(out, nonce...)
	return aead.Seal(out, nonce, value, inputAAD(sender, kind)), nil
}

// openInput decrypts one input ciphertext addressed to the coprocessor.
func (k *Keys) openInput(sender sdk.Address, kind sdk.Kind, ct []byte) ([]byte, error) {
	if len(ct) < minInputLen {
		return nil, errShortInput
	}
	ephPub := ct[:ephemeralLen]
	nonce := ct[ephemeralLen : ephemeralLen+chacha20poly1305.NonceSize]
	shared, err := curve25519.X25519(k.inputPriv[:], ephPub)
	if err != nil {
		return nil, fmt.Errorf("x25519: %w", err)
	}
	aead, err := inputAEAD(shared, ephPub)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, nonce, ct[ephemeralLen+chacha20poly1305.NonceSize:], inputAAD(sender, kind))
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return pt, nil
}

func inputAEAD(shared, ephPub []byte) (cipher.AEAD, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, ephPub, []byte("duel-input-aead-v1")), key); err != nil {
		return nil, fmt.Errorf("derive input key: %w", err)
	}
	return chacha20poly1305.New(key)
}

func inputAAD(sender sdk.Address, kind sdk.Kind) []byte {
	return append([]byte{byte(kind)}, []byte(sender)...)
}

// inputProof commits to sender, kind and every ciphertext of the batch.
func inputProof(sender sdk.Address, kind sdk.Kind, cts [][]byte) []byte {
	h := sha3.New256()
	h.Write([]byte("duel-input-proof-v1"))
	writeField(h, []byte(sender))
	h.Write([]byte{byte(kind)})
	for _, ct := range cts {
		writeField(h, ct)
	}
	return h.Sum(nil)
}

func writeField(w io.Writer, b []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(b)))
	w.Write(n[:])
	w.Write(b)
}

// checkPlaintext enforces the encoding of each kind.
func checkPlaintext(kind sdk.Kind, v []byte) error {
	switch kind {
	case sdk.KindBool:
		if len(v) != 1 || v[0] > 1 {
			return fmt.Errorf("%w: bool must be one byte 0 or 1", sdk.ErrKindMismatch)
		}
	case sdk.KindUint8:
		if len(v) != 1 {
			return fmt.Errorf("%w: uint8 must be one byte", sdk.ErrKindMismatch)
		}
	case sdk.KindAddress:
		if len(v) > 255 {
			return fmt.Errorf("%w: address longer than 255 bytes", sdk.ErrKindMismatch)
		}
	default:
		return fmt.Errorf("%w: unknown kind %d", sdk.ErrKindMismatch, kind)
	}
	return nil
}
