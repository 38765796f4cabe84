package contract

import (
	"fmt"

	"okinoko-cipher_duel/sdk"
)

// Score is the sealed feedback for one guess.
type Score struct {
	Breaches sdk.Handle // exact position matches
	Signals  sdk.Handle // right symbol, other unclaimed position
	IsWin    sdk.Handle // Breaches == CodeLength
}

// circuit chains sealed operations and keeps the first error, so a scoring
// pass reads as straight-line code.
type circuit struct {
	fhe sdk.Confidential
	err error
}

func (c *circuit) do(f func() (sdk.Handle, error)) sdk.Handle {
	if c.err != nil {
		return ""
	}
	h, err := f()
	if err != nil {
		c.err = err
		return ""
	}
	return h
}

func (c *circuit) constant(kind sdk.Kind, v []byte) sdk.Handle {
	return c.do(func() (sdk.Handle, error) { return c.fhe.Trivial(kind, v) })
}
func (c *circuit) eq(a, b sdk.Handle) sdk.Handle {
	return c.do(func() (sdk.Handle, error) { return c.fhe.Eq(a, b) })
}
func (c *circuit) and(a, b sdk.Handle) sdk.Handle {
	return c.do(func() (sdk.Handle, error) { return c.fhe.And(a, b) })
}
func (c *circuit) or(a, b sdk.Handle) sdk.Handle {
	return c.do(func() (sdk.Handle, error) { return c.fhe.Or(a, b) })
}
func (c *circuit) not(a sdk.Handle) sdk.Handle {
	return c.do(func() (sdk.Handle, error) { return c.fhe.Not(a) })
}
func (c *circuit) sel(cond, t, f sdk.Handle) sdk.Handle {
	return c.do(func() (sdk.Handle, error) { return c.fhe.Select(cond, t, f) })
}
func (c *circuit) add(a, b sdk.Handle) sdk.Handle {
	return c.do(func() (sdk.Handle, error) { return c.fhe.Add(a, b) })
}

// ScoreGuess computes breaches, signals and the win flag of guess against
// vault without decrypting anything.
//
// Exact matches are counted first and lock both slots. Signals are then
// claimed pairwise, guess position i ascending, vault position j ascending,
// j != i; a pair counts only if both slots are still free and it locks them.
// The iteration order decides contested duplicate symbols and must not
// change, or results on repeated digits diverge.
func ScoreGuess(fhe sdk.Confidential, vault Vault, guess [CodeLength]sdk.Handle) (Score, error) {
	c := &circuit{fhe: fhe}
	zero := c.constant(sdk.KindUint8, sdk.Uint8Value(0))
	one := c.constant(sdk.KindUint8, sdk.Uint8Value(1))

	var guessMatched, vaultMatched [CodeLength]sdk.Handle

	breaches := zero
	for i := 0; i < CodeLength; i++ {
		exact := c.eq(vault[i], guess[i])
		guessMatched[i] = exact
		vaultMatched[i] = exact
		breaches = c.add(breaches, c.sel(exact, one, zero))
	}

	signals := zero
	for i := 0; i < CodeLength; i++ {
		for j := 0; j < CodeLength; j++ {
			if j == i {
				continue
			}
			free := c.and(c.not(guessMatched[i]), c.not(vaultMatched[j]))
			claim := c.and(c.eq(guess[i], vault[j]), free)
			signals = c.add(signals, c.sel(claim, one, zero))
			guessMatched[i] = c.or(guessMatched[i], claim)
			vaultMatched[j] = c.or(vaultMatched[j], claim)
		}
	}

	isWin := c.eq(breaches, c.constant(sdk.KindUint8, sdk.Uint8Value(CodeLength)))
	if c.err != nil {
		return Score{}, fmt.Errorf("score guess: %w", c.err)
	}
	return Score{Breaches: breaches, Signals: signals, IsWin: isWin}, nil
}
