package contract

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"okinoko-cipher_duel/sdk"
)

// ---------- JSON Conversions ----------

func ToJSON[T any](v T) string {
	b, err := json.Marshal(v)
	if err != nil {
		// only plain maps and structs of strings are passed in
		return "{}"
	}
	return string(b)
}

// ---------- UInt/String Helpers ----------

func UInt64ToString(val uint64) string {
	return strconv.FormatUint(val, 10)
}

// ---------- Transfer Intent Helpers ----------

// TransferAllow is the parsed form of a "transfer.allow" intent.
type TransferAllow struct {
	Limit uint64 // fixed point, 3 decimals
	Token sdk.Asset
}

// GetFirstTransferAllow scans intents for one transfer.allow
// instruction and returns its parsed token+limit. Nil if missing.
func GetFirstTransferAllow(intents []sdk.Intent, assets []sdk.Asset) (*TransferAllow, error) {
	for _, intent := range intents {
		if intent.Type != "transfer.allow" {
			continue
		}
		token := sdk.Asset(intent.Args["token"])
		if !isValidAsset(token, assets) {
			return nil, fmt.Errorf("%w: intent token %q", ErrInvalidInput, token)
		}
		limit, err := parseFixedPoint3(intent.Args["limit"])
		if err != nil {
			return nil, err
		}
		return &TransferAllow{Limit: limit, Token: token}, nil
	}
	return nil, nil
}

// isValidAsset checks we only allow configured tokens.
func isValidAsset(token sdk.Asset, assets []sdk.Asset) bool {
	for _, a := range assets {
		if token == a {
			return true
		}
	}
	return false
}

// parseFixedPoint3 parses a decimal string with up to 3 fractional digits
// and returns an integer scaled by 1000 (e.g., "1.23" -> 1230).
func parseFixedPoint3(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty amount", ErrInvalidInput)
	}

	var intPart, fracPart uint64
	var fracDigits int
	dotSeen := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '.' {
			if dotSeen {
				return 0, fmt.Errorf("%w: multiple dots in %q", ErrInvalidInput, s)
			}
			dotSeen = true
			continue
		}
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: invalid character in %q", ErrInvalidInput, s)
		}
		d := uint64(c - '0')
		if !dotSeen {
			if intPart > (math.MaxUint64-d)/10 {
				return 0, fmt.Errorf("%w: amount %q overflows", ErrInvalidInput, s)
			}
			intPart = intPart*10 + d
		} else {
			if fracDigits == 3 {
				return 0, fmt.Errorf("%w: too many fractional digits in %q", ErrInvalidInput, s)
			}
			fracDigits++
			fracPart = fracPart*10 + d
		}
	}

	// scale fractional part to 3 digits
	for ; fracDigits < 3; fracDigits++ {
		fracPart *= 10
	}
	if intPart > (math.MaxUint64-fracPart)/1000 {
		return 0, fmt.Errorf("%w: amount %q overflows", ErrInvalidInput, s)
	}
	return intPart*1000 + fracPart, nil
}

// formatFixedPoint3 is the inverse of parseFixedPoint3.
func formatFixedPoint3(v uint64) string {
	frac := strconv.FormatUint(v%1000, 10)
	for len(frac) < 3 {
		frac = "0" + frac
	}
	return UInt64ToString(v/1000) + "." + frac
}

// ---------- Binary codec ----------

// rd is a binary reader over a stored record. The first failure sticks;
// later reads return zero values and err reports it.
type rd struct {
	b   []byte // raw buffer
	i   int    // current read index
	err error
}

func (r *rd) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.i+n > len(r.b) {
		r.err = fmt.Errorf("%w: decode overflow at %d", ErrCorruptState, r.i)
		return false
	}
	return true
}

func (r *rd) u8() byte {
	if !r.need(1) {
		return 0
	}
	v := r.b[r.i]
	r.i++
	return v
}

func (r *rd) u16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.b[r.i : r.i+2])
	r.i += 2
	return v
}

// u64 reads a uint64 in big-endian format.
func (r *rd) u64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(r.b[r.i : r.i+8])
	r.i += 8
	return v
}

// str reads a length-prefixed string (2-byte length).
func (r *rd) str() string {
	l := int(r.u16())
	if !r.need(l) {
		return ""
	}
	v := string(r.b[r.i : r.i+l])
	r.i += l
	return v
}

// optStr reads a presence flag followed by a string when set.
func (r *rd) optStr() *string {
	if r.u8() != 1 {
		return nil
	}
	s := r.str()
	return &s
}

func (r *rd) handle() sdk.Handle { return sdk.Handle(r.str()) }

// end verifies that the reader consumed all bytes exactly.
func (r *rd) end() error {
	if r.err == nil && r.i != len(r.b) {
		r.err = fmt.Errorf("%w: %d trailing bytes", ErrCorruptState, len(r.b)-r.i)
	}
	return r.err
}

func appendU64(out []byte, v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return append(out, buf[:]...)
}

// maxString16 is the longest string a 2-byte length prefix can describe.
const maxString16 = math.MaxUint16

// wr is the writing counterpart of rd. The first error sticks; callers
// check it before anything reaches state.
type wr struct {
	b   []byte
	err error
}

func newWr(capacity int) *wr { return &wr{b: make([]byte, 0, capacity)} }

func (w *wr) u8(v byte) { w.b = append(w.b, v) }

func (w *wr) u64(v uint64) { w.b = appendU64(w.b, v) }

// str writes a length-prefixed string (2-byte length).
func (w *wr) str(s string) {
	if len(s) > maxString16 {
		if w.err == nil {
			w.err = fmt.Errorf("%w: %d byte string exceeds %d", ErrInvalidInput, len(s), maxString16)
		}
		return
	}
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], uint16(len(s)))
	w.b = append(w.b, tmp[:]...)
	w.b = append(w.b, s...)
}

func (w *wr) optStr(s *string) {
	if s == nil {
		w.u8(0)
		return
	}
	w.u8(1)
	w.str(*s)
}

func (w *wr) handle(h sdk.Handle) { w.str(h.String()) }

// blob returns the encoded record or the first error.
func (w *wr) blob() (string, error) {
	if w.err != nil {
		return "", w.err
	}
	return string(w.b), nil
}

// readCounter returns the counter stored at key, 0 when missing.
func readCounter(chain sdk.Chain, key string) (uint64, error) {
	ptr := chain.StateGetObject(key)
	if ptr == nil || *ptr == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(*ptr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: counter %s: %v", ErrCorruptState, key, err)
	}
	return n, nil
}

func writeCounter(chain sdk.Chain, key string, n uint64) {
	chain.StateSetObject(key, UInt64ToString(n))
}

// ParseAmount parses a fixed point amount with 3 decimals, e.g. "1.5".
func ParseAmount(s string) (uint64, error) { return parseFixedPoint3(s) }

// FormatAmount renders an amount scaled by 1000.
func FormatAmount(v uint64) string { return formatFixedPoint3(v) }
