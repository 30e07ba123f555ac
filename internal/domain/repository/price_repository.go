package repository

import (
	"context"

	"fluid-presale/internal/domain/entity"
)

// PrimaryPriceSource fetches the price of a single trading symbol.
type PrimaryPriceSource interface {
	// FetchPrice returns the last traded price for the symbol (e.g. ETHUSDT).
	FetchPrice(ctx context.Context, symbol string) (float64, error)
}

// BulkPriceSource fetches prices for many provider ids in one request.
type BulkPriceSource interface {
	// FetchPrices returns provider id -> price in the quote currency. Ids the
	// provider does not know are absent from the result.
	FetchPrices(ctx context.Context, feedIDs []string) (map[string]float64, error)
}

// SnapshotRepository keeps the most recent price snapshot.
type SnapshotRepository interface {
	// GetSnapshot returns the stored snapshot and whether one exists.
	GetSnapshot(ctx context.Context) (entity.PriceSnapshot, bool, error)

	// SetSnapshot replaces the stored snapshot.
	SetSnapshot(ctx context.Context, snapshot entity.PriceSnapshot) error
}
