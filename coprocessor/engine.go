package coprocessor

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/sha3"

	"okinoko-cipher_duel/sdk"
)

// ErrRecordNotFound is returned by a Store for an unknown handle.
var ErrRecordNotFound = errors.New("sealed record not found")

// Record is a sealed value as persisted. Sealed holds the value encrypted
// under the storage key; the store never sees a plaintext.
type Record struct {
	Handle sdk.Handle
	Kind   sdk.Kind
	Sealed []byte
	Public bool
	ACL    []sdk.Address
}

// Store persists sealed records.
type Store interface {
	PutRecord(ctx context.Context, rec Record) error
	GetRecord(ctx context.Context, h sdk.Handle) (Record, error)
}

// value is a decrypted record held in the cache.
type value struct {
	kind   sdk.Kind
	plain  []byte
	public bool
	acl    map[sdk.Address]bool
}

func (v *value) allowed() []sdk.Address {
	out := make([]sdk.Address, 0, len(v.acl))
	for a := range v.acl {
		out = append(out, a)
	}
	return out
}

// Engine implements sdk.Confidential. Values are kept encrypted at rest in
// the Store and decrypted into an LRU cache on use. Handles are derived from
// a per-process boot nonce and a sequence number, so they never repeat and
// reveal nothing about the value.
type Engine struct {
	keys  *Keys
	store Store
	log   zerolog.Logger

	mu    sync.Mutex // serializes read-modify-write of ACLs
	cache *lru.Cache[sdk.Handle, *value]
	seq   *atomic.Uint64
	boot  [16]byte
}

// NewEngine returns an engine over store. cacheSize bounds the number of
// decrypted values kept in memory.
func NewEngine(keys *Keys, store Store, cacheSize int, log zerolog.Logger) (*Engine, error) {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New[sdk.Handle, *value](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create value cache: %w", err)
	}
	e := &Engine{
		keys:  keys,
		store: store,
		log:   log.With().Str("component", "coprocessor").Logger(),
		cache: cache,
		seq:   atomic.NewUint64(0),
	}
	if _, err := rand.Read(e.boot[:]); err != nil {
		return nil, fmt.Errorf("read boot nonce: %w", err)
	}
	return e, nil
}

// PublicKeys returns the keys clients encrypt to and verifiers check with.
func (e *Engine) PublicKeys() PublicKeys { return e.keys.Public }

// Purge drops every decrypted value from memory.
func (e *Engine) Purge() { e.cache.Purge() }

func (e *Engine) newHandle(op string, operands ...sdk.Handle) sdk.Handle {
	h := sha3.New256()
	h.Write(e.boot[:])
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], e.seq.Inc())
	h.Write(n[:])
	writeField(h, []byte(op))
	for _, o := range operands {
		writeField(h, []byte(o))
	}
	return sdk.Handle("0x" + hex.EncodeToString(h.Sum(nil)))
}

// ---------- at-rest encryption ----------

func (e *Engine) sealAtRest(h sdk.Handle, kind sdk.Kind, plain []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(e.keys.storageKey[:])
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plain, recordAAD(h, kind)), nil
}

func (e *Engine) openAtRest(rec Record) ([]byte, error) {
	aead, err := chacha20poly1305.New(e.keys.storageKey[:])
	if err != nil {
		return nil, err
	}
	if len(rec.Sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("record %s truncated", rec.Handle)
	}
	n := aead.NonceSize()
	return aead.Open(nil, rec.Sealed[:n], rec.Sealed[n:], recordAAD(rec.Handle, rec.Kind))
}

func recordAAD(h sdk.Handle, kind sdk.Kind) []byte {
	return append([]byte{byte(kind)}, []byte(h)...)
}

// ---------- record access ----------

func (e *Engine) persist(h sdk.Handle, v *value) error {
	sealed, err := e.sealAtRest(h, v.kind, v.plain)
	if err != nil {
		return fmt.Errorf("seal record %s: %w", h, err)
	}
	rec := Record{Handle: h, Kind: v.kind, Sealed: sealed, Public: v.public, ACL: v.allowed()}
	if err := e.store.PutRecord(context.Background(), rec); err != nil {
		return fmt.Errorf("store record %s: %w", h, err)
	}
	e.cache.Add(h, v)
	return nil
}

func (e *Engine) put(op string, kind sdk.Kind, plain []byte, operands ...sdk.Handle) (sdk.Handle, error) {
	h := e.newHandle(op, operands...)
	v := &value{kind: kind, plain: plain, acl: map[sdk.Address]bool{}}
	if err := e.persist(h, v); err != nil {
		return "", err
	}
	return h, nil
}

// load returns the value behind h, checking its kind unless want is 0.
func (e *Engine) load(h sdk.Handle, want sdk.Kind) (*value, error) {
	v, ok := e.cache.Get(h)
	if !ok {
		rec, err := e.store.GetRecord(context.Background(), h)
		if errors.Is(err, ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", sdk.ErrUnknownHandle, h)
		}
		if err != nil {
			return nil, err
		}
		plain, err := e.openAtRest(rec)
		if err != nil {
			return nil, fmt.Errorf("open record %s: %w", h, err)
		}
		v = &value{kind: rec.Kind, plain: plain, public: rec.Public, acl: map[sdk.Address]bool{}}
		for _, a := range rec.ACL {
			v.acl[a] = true
		}
		e.cache.Add(h, v)
	}
	if want != 0 && v.kind != want {
		return nil, fmt.Errorf("%w: %s is %s, want %s", sdk.ErrKindMismatch, h, v.kind, want)
	}
	return v, nil
}

func (e *Engine) truth(h sdk.Handle) (bool, error) {
	v, err := e.load(h, sdk.KindBool)
	if err != nil {
		return false, err
	}
	return v.plain[0] == 1, nil
}

// ---------- sdk.Confidential ----------

func (e *Engine) Seal(sender sdk.Address, kind sdk.Kind, cts [][]byte, proof []byte) ([]sdk.Handle, error) {
	if subtle.ConstantTimeCompare(proof, inputProof(sender, kind, cts)) != 1 {
		return nil, sdk.ErrInvalidProof
	}
	out := make([]sdk.Handle, len(cts))
	for i, ct := range cts {
		plain, err := e.keys.openInput(sender, kind, ct)
		if err != nil {
			e.log.Debug().Err(err).Str("sender", sender.String()).Int("index", i).Msg("input rejected")
			return nil, fmt.Errorf("%w: input %d", sdk.ErrInvalidProof, i)
		}
		if err := checkPlaintext(kind, plain); err != nil {
			return nil, err
		}
		h := e.newHandle("seal")
		v := &value{kind: kind, plain: plain, acl: map[sdk.Address]bool{sender: true}}
		if err := e.persist(h, v); err != nil {
			return nil, err
		}
		out[i] = h
	}
	return out, nil
}

func (e *Engine) Trivial(kind sdk.Kind, plain []byte) (sdk.Handle, error) {
	if err := checkPlaintext(kind, plain); err != nil {
		return "", err
	}
	return e.put("trivial", kind, append([]byte(nil), plain...))
}

func (e *Engine) Eq(a, b sdk.Handle) (sdk.Handle, error) {
	va, err := e.load(a, 0)
	if err != nil {
		return "", err
	}
	vb, err := e.load(b, va.kind)
	if err != nil {
		return "", err
	}
	eq := subtle.ConstantTimeCompare(va.plain, vb.plain) == 1
	return e.put("eq", sdk.KindBool, sdk.BoolValue(eq), a, b)
}

func (e *Engine) And(a, b sdk.Handle) (sdk.Handle, error) {
	x, err := e.truth(a)
	if err != nil {
		return "", err
	}
	y, err := e.truth(b)
	if err != nil {
		return "", err
	}
	return e.put("and", sdk.KindBool, sdk.BoolValue(x && y), a, b)
}

func (e *Engine) Or(a, b sdk.Handle) (sdk.Handle, error) {
	x, err := e.truth(a)
	if err != nil {
		return "", err
	}
	y, err := e.truth(b)
	if err != nil {
		return "", err
	}
	return e.put("or", sdk.KindBool, sdk.BoolValue(x || y), a, b)
}

func (e *Engine) Not(a sdk.Handle) (sdk.Handle, error) {
	x, err := e.truth(a)
	if err != nil {
		return "", err
	}
	return e.put("not", sdk.KindBool, sdk.BoolValue(!x), a)
}

func (e *Engine) Select(cond, ifTrue, ifFalse sdk.Handle) (sdk.Handle, error) {
	c, err := e.truth(cond)
	if err != nil {
		return "", err
	}
	vt, err := e.load(ifTrue, 0)
	if err != nil {
		return "", err
	}
	vf, err := e.load(ifFalse, vt.kind)
	if err != nil {
		return "", err
	}
	picked := vf.plain
	if c {
		picked = vt.plain
	}
	return e.put("select", vt.kind, append([]byte(nil), picked...), cond, ifTrue, ifFalse)
}

// Add wraps modulo 256.
func (e *Engine) Add(a, b sdk.Handle) (sdk.Handle, error) {
	va, err := e.load(a, sdk.KindUint8)
	if err != nil {
		return "", err
	}
	vb, err := e.load(b, sdk.KindUint8)
	if err != nil {
		return "", err
	}
	return e.put("add", sdk.KindUint8, sdk.Uint8Value(va.plain[0]+vb.plain[0]), a, b)
}

func (e *Engine) Allow(h sdk.Handle, who sdk.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, err := e.load(h, 0)
	if err != nil {
		return err
	}
	if v.acl[who] {
		return nil
	}
	next := &value{kind: v.kind, plain: v.plain, public: v.public, acl: map[sdk.Address]bool{who: true}}
	for a := range v.acl {
		next.acl[a] = true
	}
	return e.persist(h, next)
}

func (e *Engine) MakePubliclyDecryptable(h sdk.Handle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, err := e.load(h, 0)
	if err != nil {
		return err
	}
	if v.public {
		return nil
	}
	next := &value{kind: v.kind, plain: v.plain, public: true, acl: v.acl}
	return e.persist(h, next)
}

// RequestDisclosure only checks that h may be revealed. Delivering the
// request to the oracle is the ledger's job, after the calling transaction
// committed.
func (e *Engine) RequestDisclosure(requestID uint64, h sdk.Handle) error {
	v, err := e.load(h, 0)
	if err != nil {
		return err
	}
	if !v.public {
		return fmt.Errorf("%w: %s (request %d)", sdk.ErrNotDisclosable, h, requestID)
	}
	return nil
}

func (e *Engine) VerifyDisclosure(h sdk.Handle, cleartext []byte, proof []byte) error {
	if !ed25519.Verify(e.keys.Public.Disclosure, disclosureDigest(h, cleartext), proof) {
		return sdk.ErrInvalidProof
	}
	return nil
}

// ---------- reveal paths ----------

// Disclose reveals a publicly decryptable handle together with a signature
// VerifyDisclosure accepts.
func (e *Engine) Disclose(h sdk.Handle) (cleartext, proof []byte, err error) {
	v, err := e.load(h, 0)
	if err != nil {
		return nil, nil, err
	}
	if !v.public {
		return nil, nil, fmt.Errorf("%w: %s", sdk.ErrNotDisclosable, h)
	}
	clear := append([]byte(nil), v.plain...)
	return clear, ed25519.Sign(e.keys.signPriv, disclosureDigest(h, clear)), nil
}

// Decrypt returns the value behind h to an identity on its ACL, or to
// anyone once h is public.
func (e *Engine) Decrypt(h sdk.Handle, who sdk.Address) (sdk.Kind, []byte, error) {
	v, err := e.load(h, 0)
	if err != nil {
		return 0, nil, err
	}
	if !v.public && !v.acl[who] {
		return 0, nil, fmt.Errorf("%w: %s for %s", sdk.ErrAccessDenied, h, who)
	}
	return v.kind, append([]byte(nil), v.plain...), nil
}

// VerifyDisclosureWith checks a disclosure proof against a published key,
// for clients that only hold PublicKeys.
func VerifyDisclosureWith(pub PublicKeys, h sdk.Handle, cleartext, proof []byte) bool {
	return ed25519.Verify(pub.Disclosure, disclosureDigest(h, cleartext), proof)
}

func disclosureDigest(h sdk.Handle, cleartext []byte) []byte {
	d := sha3.New256()
	d.Write([]byte("duel-disclosure-v1"))
	writeField(d, []byte(h))
	writeField(d, cleartext)
	return d.Sum(nil)
}

var _ sdk.Confidential = (*Engine)(nil)
