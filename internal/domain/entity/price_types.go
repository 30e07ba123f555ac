package entity

import "time"

// PriceSource identifies which provider produced a snapshot.
type PriceSource string

// Known price sources.
const (
	SourceInitial   PriceSource = "initial"
	SourcePrimary   PriceSource = "primary"
	SourceSecondary PriceSource = "secondary"
)

// PriceSnapshot is an immutable map of currency id to unit price in the quote
// currency. A snapshot is produced by exactly one fetch cycle and replaced as a whole.
type PriceSnapshot struct {
	prices    map[string]float64
	FetchedAt time.Time
	Source    PriceSource
}

// NewPriceSnapshot copies the given prices into a new snapshot.
func NewPriceSnapshot(prices map[string]float64, source PriceSource, fetchedAt time.Time) PriceSnapshot {
	copied := make(map[string]float64, len(prices))
	for id, p := range prices {
		copied[id] = p
	}
	return PriceSnapshot{prices: copied, FetchedAt: fetchedAt, Source: source}
}

// InitialSnapshot seeds a snapshot from the catalog's configured prices.
func InitialSnapshot(catalog *Catalog, at time.Time) PriceSnapshot {
	prices := make(map[string]float64)
	for _, c := range catalog.All() {
		prices[c.ID] = c.InitialPrice
		if c.Pegged {
			prices[c.ID] = 1.0
		}
	}
	return NewPriceSnapshot(prices, SourceInitial, at)
}

// Price returns the unit price for a currency id.
func (s PriceSnapshot) Price(id string) (float64, bool) {
	p, ok := s.prices[id]
	return p, ok
}

// Prices returns a copy of the whole price map.
func (s PriceSnapshot) Prices() map[string]float64 {
	out := make(map[string]float64, len(s.prices))
	for id, p := range s.prices {
		out[id] = p
	}
	return out
}

// PriceView is a snapshot as seen by API clients.
type PriceView struct {
	Prices    map[string]float64 `json:"prices"`
	Source    PriceSource        `json:"source"`
	FetchedAt time.Time          `json:"fetchedAt"`
	Loading   bool               `json:"loading"`
}
