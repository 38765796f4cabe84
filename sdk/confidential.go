package sdk

import "errors"

// Kind is the plaintext type behind a sealed handle.
type Kind uint8

const (
	KindBool    Kind = 1
	KindUint8   Kind = 2
	KindAddress Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindUint8:
		return "uint8"
	case KindAddress:
		return "address"
	default:
		return "unknown"
	}
}

// Handle references an encrypted value held by the coprocessor. It carries
// no information about the value itself.
type Handle string

func (h Handle) String() string { return string(h) }

// IsZero reports whether h references nothing.
func (h Handle) IsZero() bool { return h == "" }

var (
	ErrInvalidProof   = errors.New("invalid proof")
	ErrUnknownHandle  = errors.New("unknown handle")
	ErrKindMismatch   = errors.New("kind mismatch")
	ErrAccessDenied   = errors.New("access denied")
	ErrNotDisclosable = errors.New("handle is not publicly disclosable")
)

// Confidential is the sealed-value primitive set. Every operation returns a
// fresh handle; no operation ever returns a plaintext.
type Confidential interface {
	// Seal verifies an input batch encrypted by sender and returns one handle
	// per ciphertext. The proof covers the whole batch.
	Seal(sender Address, kind Kind, ciphertexts [][]byte, proof []byte) ([]Handle, error)
	// Trivial encrypts a public constant.
	Trivial(kind Kind, value []byte) (Handle, error)

	Eq(a, b Handle) (Handle, error)
	And(a, b Handle) (Handle, error)
	Or(a, b Handle) (Handle, error)
	Not(a Handle) (Handle, error)
	Select(cond, ifTrue, ifFalse Handle) (Handle, error)
	Add(a, b Handle) (Handle, error)

	// Allow grants who the right to decrypt h.
	Allow(h Handle, who Address) error
	MakePubliclyDecryptable(h Handle) error
	// RequestDisclosure asks the oracle to reveal h. The answer arrives later
	// as a callback carrying requestID.
	RequestDisclosure(requestID uint64, h Handle) error
	// VerifyDisclosure checks that cleartext is the value behind h.
	VerifyDisclosure(h Handle, cleartext []byte, proof []byte) error
}

// BoolValue encodes b the way the coprocessor stores booleans.
func BoolValue(b bool) []byte {
	if b {
		return []byte{1}
	}
	return []byte{0}
}

// Uint8Value encodes v as a uint8 plaintext.
func Uint8Value(v uint8) []byte { return []byte{v} }

// AddressValue encodes a as an address plaintext. The null identity is the
// empty address.
func AddressValue(a Address) []byte { return []byte(a) }
