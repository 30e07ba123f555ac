package coingecko

import (
	"math"
	"strings"

	dto "fluid-presale/internal/adapter/storage/coingecko/dto"

	"go.uber.org/zap"
)

// toDomainPrices flattens the raw response to provider id -> price in the quote
// currency, dropping ids without a usable positive quote.
func toDomainPrices(raw dto.SimplePriceRaw, quote string, logger *zap.Logger) map[string]float64 {
	if raw == nil {
		return nil
	}
	quote = strings.ToLower(quote)
	prices := make(map[string]float64, len(raw))
	for id, quotes := range raw {
		price, ok := quotes[quote]
		if !ok {
			if logger != nil {
				logger.Warn("Skipping price without requested quote currency",
					zap.String("feedId", id), zap.String("quote", quote))
			}
			continue
		}
		if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
			if logger != nil {
				logger.Warn("Skipping non-positive price", zap.String("feedId", id), zap.Float64("price", price))
			}
			continue
		}
		prices[id] = price
	}
	return prices
}
