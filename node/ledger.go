package node

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"okinoko-cipher_duel/contract"
	"okinoko-cipher_duel/coprocessor"
	"okinoko-cipher_duel/sdk"
	"okinoko-cipher_duel/store/sqlite"
)

// Call identifies who invokes which entry point.
type Call struct {
	Entrypoint string
	Sender     sdk.Address
	Intents    []sdk.Intent
}

// Receipt is the outcome of an executed call.
type Receipt struct {
	TxID   string           `json:"txId"`
	Events []contract.Event `json:"events"`
}

// CallFunc runs one contract entry point on chain.
type CallFunc func(c *contract.Contract, chain sdk.Chain) error

// Ledger executes contract calls one at a time. Each call sees committed
// state plus its own writes, and everything it produced is committed in a
// single store transaction, or nothing is when it fails.
type Ledger struct {
	mu       sync.RWMutex
	store    *sqlite.Store
	engine   *coprocessor.Engine
	contract *contract.Contract
	metrics  *Metrics
	log      zerolog.Logger

	contractAddr sdk.Address
	oracleAddr   sdk.Address
	now          func() time.Time
	notify       func()
}

func NewLedger(store *sqlite.Store, engine *coprocessor.Engine, c *contract.Contract, cfg Config, metrics *Metrics, log zerolog.Logger) *Ledger {
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Ledger{
		store:        store,
		engine:       engine,
		contract:     c,
		metrics:      metrics,
		log:          log.With().Str("component", "ledger").Logger(),
		contractAddr: sdk.Address(cfg.ContractAddr),
		oracleAddr:   sdk.Address(cfg.OracleAddr),
		now:          func() time.Time { return time.Now().UTC() },
		notify:       func() {},
	}
}

// OnDisclosure registers fn to run after a commit queued disclosure requests.
func (l *Ledger) OnDisclosure(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notify = fn
}

// Execute runs fn as call. The returned error is the contract's own error,
// if any; storage failures are returned wrapped and commit nothing.
func (l *Ledger) Execute(ctx context.Context, call Call, fn CallFunc) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := time.Now()
	env := sdk.Env{
		Sender:    call.Sender,
		Contract:  l.contractAddr,
		TxID:      uuid.NewString(),
		Timestamp: l.now(),
		Intents:   call.Intents,
	}
	log := l.log.With().
		Str("tx", env.TxID).
		Str("entrypoint", call.Entrypoint).
		Str("sender", call.Sender.String()).
		Logger()

	chain := newTxChain(ctx, l.store, l.engine, env)
	callErr := fn(l.contract, chain)
	if chain.err != nil {
		log.Error().Err(chain.err).Msg("call aborted by storage failure")
		return Receipt{TxID: env.TxID}, fmt.Errorf("execute %s: %w", call.Entrypoint, chain.err)
	}

	batch := sqlite.Batch{
		TxID:       env.TxID,
		Entrypoint: call.Entrypoint,
		Sender:     call.Sender.String(),
		CreatedAt:  env.Timestamp,
	}
	var events []contract.Event
	if callErr != nil {
		batch.Error = callErr.Error()
	} else {
		events = decodeEvents(chain.logs)
		batch.Writes = chain.writes
		batch.BalanceDeltas = chain.deltas
		batch.Disclosures = chain.requests
		batch.Events = indexEvents(events)
	}
	if err := l.store.Commit(ctx, batch); err != nil {
		log.Error().Err(err).Msg("commit failed")
		return Receipt{TxID: env.TxID}, fmt.Errorf("commit %s: %w", call.Entrypoint, err)
	}

	took := time.Since(start)
	l.metrics.CallExecuted(call.Entrypoint, callErr != nil, took)
	if callErr != nil {
		log.Info().Err(callErr).Dur("took", took).Msg("call rejected")
		return Receipt{TxID: env.TxID}, callErr
	}
	for _, ev := range events {
		l.metrics.EventCommitted(ev.Type)
		log.Debug().Str("event", ev.Type).Interface("attributes", ev.Attributes).Msg("event")
	}
	log.Info().Int("events", len(events)).Dur("took", took).Msg("call committed")
	if len(chain.requests) > 0 {
		l.metrics.DisclosuresQueued(len(chain.requests))
		l.notify()
	}
	return Receipt{TxID: env.TxID, Events: events}, nil
}

// View runs fn against committed state. Writes are rejected.
func (l *Ledger) View(ctx context.Context, fn CallFunc) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	chain := newTxChain(ctx, l.store, l.engine, sdk.Env{Contract: l.contractAddr, Timestamp: l.now()})
	chain.readOnly = true
	err := fn(l.contract, chain)
	if chain.err != nil {
		return chain.err
	}
	return err
}

// Deliver hands an oracle answer to the contract callback. Answers to
// requests the contract already consumed are dropped.
func (l *Ledger) Deliver(ctx context.Context, a coprocessor.Answer) error {
	var req *contract.DisclosureRequest
	if err := l.View(ctx, func(c *contract.Contract, chain sdk.Chain) error {
		var err error
		req, err = c.GetDisclosureRequest(chain, a.RequestID)
		return err
	}); err != nil {
		return err
	}
	if req == nil {
		l.log.Debug().Uint64("request", a.RequestID).Msg("answer for consumed request dropped")
		return nil
	}
	d := contract.Disclosure{
		RequestID: a.RequestID,
		RoomID:    req.RoomID,
		Winner:    string(a.Cleartext),
		Proof:     a.Proof,
	}
	_, err := l.Execute(ctx, Call{Entrypoint: "fulfill_disclosure", Sender: l.oracleAddr}, func(c *contract.Contract, chain sdk.Chain) error {
		return c.FulfillDisclosure(chain, d)
	})
	l.metrics.DisclosureDelivered(err)
	return err
}

// Credit adds funds to an account outside of any contract call.
func (l *Ledger) Credit(ctx context.Context, account sdk.Address, asset sdk.Asset, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.store.Credit(ctx, account.String(), asset.String(), amount); err != nil {
		return err
	}
	l.metrics.FaucetCredited(asset.String())
	l.log.Info().Str("account", account.String()).Str("asset", asset.String()).
		Str("amount", contract.FormatAmount(amount)).Msg("faucet credit")
	return nil
}

// Balance returns the committed balance of account.
func (l *Ledger) Balance(ctx context.Context, account sdk.Address, asset sdk.Asset) (uint64, error) {
	return l.store.Balance(ctx, account.String(), asset.String())
}

// Redeliver puts a failed disclosure request back into the outbox.
func (l *Ledger) Redeliver(ctx context.Context, requestID uint64) error {
	if err := l.store.RequeueDisclosure(ctx, requestID); err != nil {
		return err
	}
	l.mu.RLock()
	notify := l.notify
	l.mu.RUnlock()
	notify()
	return nil
}

func decodeEvents(logs []string) []contract.Event {
	out := make([]contract.Event, 0, len(logs))
	for _, raw := range logs {
		var ev contract.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil || ev.Type == "" {
			continue
		}
		out = append(out, ev)
	}
	return out
}

func indexEvents(events []contract.Event) []sqlite.Event {
	out := make([]sqlite.Event, 0, len(events))
	for _, ev := range events {
		row := sqlite.Event{Type: ev.Type}
		if id, err := strconv.ParseUint(ev.Attributes["id"], 10, 64); err == nil {
			row.RoomID = &id
		}
		b, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		row.Payload = string(b)
		out = append(out, row)
	}
	return out
}
