package catalog

import (
	"fmt"
	"strings"

	dto "fluid-presale/internal/adapter/storage/catalog/dto"
	"fluid-presale/internal/domain/entity"
)

// toDomainCurrency converts a raw catalog entry into the tagged currency variant,
// rejecting fields that do not belong to the entry's kind.
func toDomainCurrency(raw dto.CurrencyRaw) (entity.Currency, error) {
	var (
		c   entity.Currency
		err error
	)
	switch entity.CurrencyKind(strings.ToLower(strings.TrimSpace(raw.Kind))) {
	case entity.KindNative:
		if raw.Address != "" || raw.Decimals != nil {
			return entity.Currency{}, fmt.Errorf("native currency %s cannot declare a contract", raw.ID)
		}
		c, err = entity.NewNativeCurrency(raw.ID, raw.Name, raw.Symbol, raw.Price)
	case entity.KindToken:
		if raw.Decimals == nil {
			return entity.Currency{}, fmt.Errorf("token currency %s requires decimals", raw.ID)
		}
		if *raw.Decimals < 0 || *raw.Decimals > entity.MaxTokenDecimals {
			return entity.Currency{}, fmt.Errorf("token currency %s has unsupported decimals %d", raw.ID, *raw.Decimals)
		}
		addr, addrErr := entity.ParseAddress(raw.Address)
		if addrErr != nil {
			return entity.Currency{}, fmt.Errorf("token currency %s: %w", raw.ID, addrErr)
		}
		c, err = entity.NewTokenCurrency(raw.ID, raw.Name, raw.Symbol, raw.Price, addr, uint8(*raw.Decimals))
	case entity.KindFiat:
		if raw.Address != "" || raw.Decimals != nil || raw.FeedID != "" {
			return entity.Currency{}, fmt.Errorf("fiat currency %s cannot declare a contract or price feed", raw.ID)
		}
		c, err = entity.NewFiatCurrency(raw.ID, raw.Name, raw.Symbol)
	default:
		return entity.Currency{}, fmt.Errorf("currency %s has unknown kind %q", raw.ID, raw.Kind)
	}
	if err != nil {
		return entity.Currency{}, err
	}

	c.Icon = raw.Icon
	c.FeedID = raw.FeedID
	if raw.Pegged {
		c.Pegged = true
	}
	return c, nil
}
