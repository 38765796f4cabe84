package node

import (
	"context"
	"fmt"
	"math"

	"okinoko-cipher_duel/coprocessor"
	"okinoko-cipher_duel/sdk"
	"okinoko-cipher_duel/store/sqlite"
)

// txChain is the sdk.Chain handed to one contract call. Reads fall through
// to committed state; writes, balance movements, logs and disclosure
// requests are buffered until the ledger commits them.
type txChain struct {
	ctx      context.Context
	store    *sqlite.Store
	env      sdk.Env
	readOnly bool

	writes   map[string]*string
	deltas   map[sqlite.BalanceKey]int64
	logs     []string
	requests []coprocessor.Request
	fhe      *txConfidential

	// err is the first storage failure. The call result is discarded when set.
	err error
}

func newTxChain(ctx context.Context, store *sqlite.Store, engine *coprocessor.Engine, env sdk.Env) *txChain {
	c := &txChain{
		ctx:    ctx,
		store:  store,
		env:    env,
		writes: make(map[string]*string),
		deltas: make(map[sqlite.BalanceKey]int64),
	}
	c.fhe = &txConfidential{Engine: engine, chain: c}
	return c
}

func (c *txChain) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func (c *txChain) StateSetObject(key, value string) {
	if c.readOnly {
		c.fail(fmt.Errorf("write %q in a read-only view", key))
		return
	}
	c.writes[key] = &value
}

func (c *txChain) StateGetObject(key string) *string {
	if v, ok := c.writes[key]; ok {
		return v
	}
	v, err := c.store.GetState(c.ctx, key)
	if err != nil {
		c.fail(err)
		return nil
	}
	return v
}

func (c *txChain) StateDeleteObject(key string) {
	if c.readOnly {
		c.fail(fmt.Errorf("delete %q in a read-only view", key))
		return
	}
	c.writes[key] = nil
}

func (c *txChain) Log(msg string) { c.logs = append(c.logs, msg) }

func (c *txChain) GetEnv() sdk.Env { return c.env }

func (c *txChain) Confidential() sdk.Confidential { return c.fhe }

// balance is the committed balance plus what this call moved so far.
func (c *txChain) balance(account sdk.Address, asset sdk.Asset) (int64, error) {
	committed, err := c.store.Balance(c.ctx, account.String(), asset.String())
	if err != nil {
		return 0, err
	}
	return int64(committed) + c.deltas[sqlite.BalanceKey{Account: account.String(), Asset: asset.String()}], nil
}

func (c *txChain) move(from, to sdk.Address, amount uint64, asset sdk.Asset) error {
	if c.readOnly {
		return fmt.Errorf("transfer in a read-only view")
	}
	if amount == 0 {
		return nil
	}
	if amount > math.MaxInt64 {
		return fmt.Errorf("%w: %d %s exceeds any balance", sqlite.ErrInsufficientFunds, amount, asset)
	}
	have, err := c.balance(from, asset)
	if err != nil {
		c.fail(err)
		return err
	}
	if have < int64(amount) {
		return fmt.Errorf("%w: %s has %d %s, needs %d", sqlite.ErrInsufficientFunds, from, have, asset, amount)
	}
	c.deltas[sqlite.BalanceKey{Account: from.String(), Asset: asset.String()}] -= int64(amount)
	c.deltas[sqlite.BalanceKey{Account: to.String(), Asset: asset.String()}] += int64(amount)
	return nil
}

func (c *txChain) Draw(amount uint64, asset sdk.Asset) error {
	return c.move(c.env.Sender, c.env.Contract, amount, asset)
}

func (c *txChain) Transfer(to sdk.Address, amount uint64, asset sdk.Asset) error {
	return c.move(c.env.Contract, to, amount, asset)
}

// txConfidential buffers disclosure requests so they reach the outbox only
// if the call commits. Every other primitive goes straight to the engine.
type txConfidential struct {
	*coprocessor.Engine
	chain *txChain
}

func (t *txConfidential) RequestDisclosure(requestID uint64, h sdk.Handle) error {
	if err := t.Engine.RequestDisclosure(requestID, h); err != nil {
		return err
	}
	if t.chain.readOnly {
		return fmt.Errorf("disclosure request in a read-only view")
	}
	t.chain.requests = append(t.chain.requests, coprocessor.Request{ID: requestID, Handle: h})
	return nil
}

var (
	_ sdk.Chain        = (*txChain)(nil)
	_ sdk.Confidential = (*txConfidential)(nil)
)
