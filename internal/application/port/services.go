package port

import (
	"context"

	"fluid-presale/internal/domain/entity"
)

// PriceFeed defines the price aggregator used by purchases and the HTTP API.
type PriceFeed interface {
	// RefreshPrices runs a fetch cycle and returns the resulting snapshot.
	RefreshPrices(ctx context.Context) entity.PriceSnapshot

	// Snapshot returns the current snapshot without blocking.
	Snapshot() entity.PriceSnapshot

	// Loading reports whether a fetch cycle is in flight.
	Loading() bool

	// View returns the snapshot with the loading flag.
	View() entity.PriceView
}

// Purchase defines the per-session purchase orchestrator.
type Purchase interface {
	SelectCurrency(id string) error
	SetAmount(amount string)
	ConnectWallet(address string) error
	DisconnectWallet()
	Affordance() entity.Affordance
	Quote() string
	Submit(ctx context.Context) (entity.SubmitResult, error)
	Dismiss()
	State() entity.PurchaseState
}

// Progress defines the read side of a session's raise tracker.
type Progress interface {
	State() entity.RaiseState
}

// Session groups the per-user orchestration state.
type Session interface {
	ID() string
	// Context is cancelled when the session ends; purchase attempts run under it.
	Context() context.Context
	Purchase() Purchase
	Progress() Progress
}

// SessionManager creates and resolves sessions.
type SessionManager interface {
	// Create starts a new session with its timers running.
	Create(ctx context.Context) (Session, error)

	// Get resolves a live session and extends its lifetime.
	Get(ctx context.Context, id string) (Session, error)

	// Close ends a session and releases its timers.
	Close(ctx context.Context, id string) error
}

// PresaleService exposes the catalog, the sale terms and settlement records.
type PresaleService interface {
	Currencies() []entity.CurrencyView
	Terms() entity.SaleTerms
	Receipt(ctx context.Context, txHash string) (entity.Receipt, error)
}
