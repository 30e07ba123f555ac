package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseStatus is the state of the purchase state machine.
type PurchaseStatus string

// Purchase states.
const (
	StatusIdle       PurchaseStatus = "idle"
	StatusApproving  PurchaseStatus = "approving"
	StatusConfirming PurchaseStatus = "confirming"
	StatusSuccess    PurchaseStatus = "success"
	StatusError      PurchaseStatus = "error"
)

// String returns the status name.
func (s PurchaseStatus) String() string {
	return string(s)
}

// CanSubmit reports whether a new attempt may start from this status.
func (s PurchaseStatus) CanSubmit() bool {
	return s == StatusIdle || s == StatusError
}

// InFlight reports whether a transaction is being approved or confirmed.
func (s PurchaseStatus) InFlight() bool {
	return s == StatusApproving || s == StatusConfirming
}

// Affordance is the action a client should offer for the buy control.
type Affordance string

// Buy control affordances.
const (
	AffordanceConnect    Affordance = "connect"
	AffordanceBuy        Affordance = "buy"
	AffordanceProcessing Affordance = "processing"
)

// PurchaseIntent is what the user has typed and selected.
type PurchaseIntent struct {
	Amount     string `json:"amount"`
	CurrencyID string `json:"currency"`
}

// PurchaseState is a consistent copy of the orchestrator's observable state.
type PurchaseState struct {
	Status       PurchaseStatus `json:"status"`
	TxHash       string         `json:"txHash,omitempty"`
	ErrorMessage string         `json:"error,omitempty"`
	Intent       PurchaseIntent `json:"intent"`
	Wallet       string         `json:"wallet,omitempty"`
	Affordance   Affordance     `json:"affordance"`
}

// Receipt is the settlement record of a successful purchase. Price is the unit
// price captured when the attempt was submitted.
type Receipt struct {
	ID          string          `json:"id"`
	TxHash      string          `json:"txHash"`
	CurrencyID  string          `json:"currency"`
	Amount      decimal.Decimal `json:"amount"`
	Price       decimal.Decimal `json:"price"`
	Contributed decimal.Decimal `json:"contributed"`
	Tokens      string          `json:"tokens"`
	Wallet      string          `json:"wallet"`
	At          time.Time       `json:"at"`
}

// Redirect sends a fiat purchase to the external onramp.
type Redirect struct {
	URL string `json:"redirect"`
}

// AttemptOutcome is delivered once a submitted attempt reaches Success or Error.
type AttemptOutcome struct {
	Status  PurchaseStatus
	TxHash  string
	Receipt *Receipt
	Err     error
}

// SubmitResult is what a submit produces: a redirect for fiat currencies, or a
// channel that delivers the attempt's outcome once and is then closed.
type SubmitResult struct {
	Redirect *Redirect
	Outcome  <-chan AttemptOutcome
}
