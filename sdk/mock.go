package sdk

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrInsufficientFunds is returned by the mock escrow when a balance cannot
// cover a draw or a payout.
var ErrInsufficientFunds = errors.New("insufficient funds")

// MockChain is an in-memory Chain for tests. State writes apply immediately,
// so it is the contract's job to validate before it writes.
type MockChain struct {
	State    map[string]string
	Env      Env
	Logs     []string
	Balances map[Address]map[Asset]uint64
	// FailTransfers makes every payout fail.
	FailTransfers bool

	FHE *ClearConfidential
}

// NewMockChain returns a chain whose calls come from sender.
func NewMockChain(sender Address) *MockChain {
	return &MockChain{
		State: make(map[string]string),
		Env: Env{
			Sender:    sender,
			Contract:  "contract:duel",
			TxID:      "tx0",
			Timestamp: time.Date(2025, 9, 3, 0, 0, 0, 0, time.UTC),
		},
		Balances: make(map[Address]map[Asset]uint64),
		FHE:      NewClearConfidential(),
	}
}

// As switches the sender for the next call.
func (m *MockChain) As(sender Address) *MockChain {
	m.Env.Sender = sender
	m.Env.Intents = nil
	return m
}

// WithAllowance attaches a transfer.allow intent to the next call.
func (m *MockChain) WithAllowance(limit string, asset Asset) *MockChain {
	m.Env.Intents = []Intent{{
		Type: "transfer.allow",
		Args: map[string]string{"limit": limit, "token": asset.String()},
	}}
	return m
}

// Advance moves the call clock forward.
func (m *MockChain) Advance(d time.Duration) *MockChain {
	m.Env.Timestamp = m.Env.Timestamp.Add(d)
	return m
}

func (m *MockChain) StateSetObject(key, value string) { m.State[key] = value }

func (m *MockChain) StateGetObject(key string) *string {
	v, ok := m.State[key]
	if !ok {
		return nil
	}
	return &v
}

func (m *MockChain) StateDeleteObject(key string) { delete(m.State, key) }

func (m *MockChain) Log(msg string) { m.Logs = append(m.Logs, msg) }

func (m *MockChain) GetEnv() Env { return m.Env }

func (m *MockChain) Confidential() Confidential { return m.FHE }

// Fund credits addr with amount of asset.
func (m *MockChain) Fund(addr Address, amount uint64, asset Asset) {
	if m.Balances[addr] == nil {
		m.Balances[addr] = make(map[Asset]uint64)
	}
	m.Balances[addr][asset] += amount
}

// Balance returns the balance of addr in asset.
func (m *MockChain) Balance(addr Address, asset Asset) uint64 {
	return m.Balances[addr][asset]
}

func (m *MockChain) Draw(amount uint64, asset Asset) error {
	return m.move(m.Env.Sender, m.Env.Contract, amount, asset)
}

func (m *MockChain) Transfer(to Address, amount uint64, asset Asset) error {
	if m.FailTransfers {
		return errors.New("transfer rejected")
	}
	return m.move(m.Env.Contract, to, amount, asset)
}

func (m *MockChain) move(from, to Address, amount uint64, asset Asset) error {
	if amount == 0 {
		return nil
	}
	if m.Balances[from][asset] < amount {
		return fmt.Errorf("%w: %s has %d %s, needs %d", ErrInsufficientFunds, from, m.Balances[from][asset], asset, amount)
	}
	m.Balances[from][asset] -= amount
	m.Fund(to, amount, asset)
	return nil
}

// MockEvent is a decoded entry of Logs.
type MockEvent struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Events decodes every JSON event logged so far.
func (m *MockChain) Events() []MockEvent {
	var out []MockEvent
	for _, l := range m.Logs {
		var ev MockEvent
		if err := json.Unmarshal([]byte(l), &ev); err == nil && ev.Type != "" {
			out = append(out, ev)
		}
	}
	return out
}

// ---------- tagged cleartext backend ----------

type clearValue struct {
	kind    Kind
	value   []byte
	allowed map[Address]bool
	public  bool
}

// DisclosureRequest is a reveal the mock oracle has not answered yet.
type DisclosureRequest struct {
	RequestID uint64
	Handle    Handle
}

// ClearConfidential implements Confidential over single-assignment tagged
// cleartext values. Handles are never reused, values never change.
type ClearConfidential struct {
	values  map[Handle]*clearValue
	seq     uint64
	Pending []DisclosureRequest
}

func NewClearConfidential() *ClearConfidential {
	return &ClearConfidential{values: make(map[Handle]*clearValue)}
}

// MockInput builds the ciphertexts and batch proof the mock accepts from
// sender for the given uint8 values.
func MockInput(sender Address, values ...uint8) ([][]byte, []byte) {
	cts := make([][]byte, len(values))
	for i, v := range values {
		cts[i] = Uint8Value(v)
	}
	return cts, mockInputProof(sender, KindUint8, cts)
}

func mockInputProof(sender Address, kind Kind, cts [][]byte) []byte {
	h := sha256.New()
	h.Write([]byte(sender))
	h.Write([]byte{byte(kind)})
	for _, ct := range cts {
		h.Write(ct)
	}
	return h.Sum(nil)
}

func mockDisclosureProof(h Handle, cleartext []byte) []byte {
	sum := sha256.Sum256(append([]byte(h+"|"), cleartext...))
	return sum[:]
}

func (c *ClearConfidential) put(kind Kind, value []byte) Handle {
	c.seq++
	h := Handle("clear:" + strconv.FormatUint(c.seq, 10))
	c.values[h] = &clearValue{kind: kind, value: append([]byte(nil), value...), allowed: map[Address]bool{}}
	return h
}

func (c *ClearConfidential) get(h Handle, kind Kind) (*clearValue, error) {
	v, ok := c.values[h]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	if kind != 0 && v.kind != kind {
		return nil, fmt.Errorf("%w: %s is %s, want %s", ErrKindMismatch, h, v.kind, kind)
	}
	return v, nil
}

func (c *ClearConfidential) Seal(sender Address, kind Kind, cts [][]byte, proof []byte) ([]Handle, error) {
	if !bytes.Equal(proof, mockInputProof(sender, kind, cts)) {
		return nil, ErrInvalidProof
	}
	out := make([]Handle, len(cts))
	for i, ct := range cts {
		out[i] = c.put(kind, ct)
		c.values[out[i]].allowed[sender] = true
	}
	return out, nil
}

func (c *ClearConfidential) Trivial(kind Kind, value []byte) (Handle, error) {
	return c.put(kind, value), nil
}

func (c *ClearConfidential) Eq(a, b Handle) (Handle, error) {
	va, err := c.get(a, 0)
	if err != nil {
		return "", err
	}
	vb, err := c.get(b, va.kind)
	if err != nil {
		return "", err
	}
	return c.put(KindBool, BoolValue(bytes.Equal(va.value, vb.value))), nil
}

func (c *ClearConfidential) bools(a, b Handle) (bool, bool, error) {
	va, err := c.get(a, KindBool)
	if err != nil {
		return false, false, err
	}
	vb, err := c.get(b, KindBool)
	if err != nil {
		return false, false, err
	}
	return va.value[0] == 1, vb.value[0] == 1, nil
}

func (c *ClearConfidential) And(a, b Handle) (Handle, error) {
	x, y, err := c.bools(a, b)
	if err != nil {
		return "", err
	}
	return c.put(KindBool, BoolValue(x && y)), nil
}

func (c *ClearConfidential) Or(a, b Handle) (Handle, error) {
	x, y, err := c.bools(a, b)
	if err != nil {
		return "", err
	}
	return c.put(KindBool, BoolValue(x || y)), nil
}

func (c *ClearConfidential) Not(a Handle) (Handle, error) {
	va, err := c.get(a, KindBool)
	if err != nil {
		return "", err
	}
	return c.put(KindBool, BoolValue(va.value[0] != 1)), nil
}

func (c *ClearConfidential) Select(cond, ifTrue, ifFalse Handle) (Handle, error) {
	vc, err := c.get(cond, KindBool)
	if err != nil {
		return "", err
	}
	vt, err := c.get(ifTrue, 0)
	if err != nil {
		return "", err
	}
	vf, err := c.get(ifFalse, vt.kind)
	if err != nil {
		return "", err
	}
	if vc.value[0] == 1 {
		return c.put(vt.kind, vt.value), nil
	}
	return c.put(vf.kind, vf.value), nil
}

func (c *ClearConfidential) Add(a, b Handle) (Handle, error) {
	va, err := c.get(a, KindUint8)
	if err != nil {
		return "", err
	}
	vb, err := c.get(b, KindUint8)
	if err != nil {
		return "", err
	}
	return c.put(KindUint8, Uint8Value(va.value[0]+vb.value[0])), nil
}

func (c *ClearConfidential) Allow(h Handle, who Address) error {
	v, err := c.get(h, 0)
	if err != nil {
		return err
	}
	v.allowed[who] = true
	return nil
}

func (c *ClearConfidential) MakePubliclyDecryptable(h Handle) error {
	v, err := c.get(h, 0)
	if err != nil {
		return err
	}
	v.public = true
	return nil
}

func (c *ClearConfidential) RequestDisclosure(requestID uint64, h Handle) error {
	if _, err := c.get(h, 0); err != nil {
		return err
	}
	c.Pending = append(c.Pending, DisclosureRequest{RequestID: requestID, Handle: h})
	return nil
}

func (c *ClearConfidential) VerifyDisclosure(h Handle, cleartext []byte, proof []byte) error {
	v, err := c.get(h, 0)
	if err != nil {
		return err
	}
	if !v.public || !bytes.Equal(v.value, cleartext) || !bytes.Equal(proof, mockDisclosureProof(h, cleartext)) {
		return ErrInvalidProof
	}
	return nil
}

// Disclose answers a disclosure request the way the oracle would.
func (c *ClearConfidential) Disclose(h Handle) (cleartext, proof []byte, err error) {
	v, err := c.get(h, 0)
	if err != nil {
		return nil, nil, err
	}
	if !v.public {
		return nil, nil, ErrNotDisclosable
	}
	return v.value, mockDisclosureProof(h, v.value), nil
}

// Reveal returns the plaintext behind h. Test use only.
func (c *ClearConfidential) Reveal(h Handle) []byte {
	v, ok := c.values[h]
	if !ok {
		return nil
	}
	return v.value
}

// IsAllowed reports whether who may decrypt h.
func (c *ClearConfidential) IsAllowed(h Handle, who Address) bool {
	v, ok := c.values[h]
	return ok && v.allowed[who]
}

// IsPublic reports whether h was marked publicly decryptable.
func (c *ClearConfidential) IsPublic(h Handle) bool {
	v, ok := c.values[h]
	return ok && v.public
}

// TakePending drains the outstanding disclosure requests.
func (c *ClearConfidential) TakePending() []DisclosureRequest {
	out := c.Pending
	c.Pending = nil
	return out
}
