// Package sdk defines the boundary between the duel contract and the ledger
// that executes it: persistent key/value state, call environment, escrow
// transfers, event logging and the sealed-value coprocessor.
package sdk

import "time"

// Address identifies an account on the ledger.
type Address string

func (a Address) String() string { return string(a) }

// Asset is a token symbol escrow transfers are denominated in.
type Asset string

func (a Asset) String() string { return string(a) }

// Intent is an authorization attached to a call, e.g. a "transfer.allow"
// carrying the maximum amount the contract may draw from the sender.
type Intent struct {
	Type string            `json:"type"`
	Args map[string]string `json:"args"`
}

// Env describes the call being executed.
type Env struct {
	Sender    Address
	Contract  Address
	TxID      string
	Timestamp time.Time
	Intents   []Intent
}

// Chain is everything a contract call may touch. A Chain is scoped to one
// call: writes become visible to later calls only after the ledger commits.
type Chain interface {
	StateSetObject(key, value string)
	StateGetObject(key string) *string
	StateDeleteObject(key string)
	Log(msg string)
	GetEnv() Env
	// Draw moves amount from the sender into the contract's escrow.
	Draw(amount uint64, asset Asset) error
	// Transfer pays amount out of the contract's escrow.
	Transfer(to Address, amount uint64, asset Asset) error
	Confidential() Confidential
}
