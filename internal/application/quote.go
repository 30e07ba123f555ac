package application

import (
	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"fluid-presale/internal/domain/entity"
)

// ComputeReceivable converts a pay amount into the number of sale tokens it buys,
// rounded to a whole token and grouped by thousands ("320,000"). Empty, non-numeric
// and non-positive amounts, as well as non-positive prices, yield "0".
func ComputeReceivable(payAmount string, payCurrencyPrice, targetTokenPrice float64) string {
	amount, ok := entity.PositiveAmount(payAmount)
	if !ok || payCurrencyPrice <= 0 || targetTokenPrice <= 0 {
		return "0"
	}
	return formatTokens(receivable(amount, decimal.NewFromFloat(payCurrencyPrice), decimal.NewFromFloat(targetTokenPrice)))
}

// QuoteFor computes the receivable amount for an intent using the snapshot price of
// its currency.
func QuoteFor(intent entity.PurchaseIntent, snapshot entity.PriceSnapshot, targetTokenPrice float64) string {
	price, ok := snapshot.Price(intent.CurrencyID)
	if !ok {
		return "0"
	}
	return ComputeReceivable(intent.Amount, price, targetTokenPrice)
}

func receivable(amount, payPrice, tokenPrice decimal.Decimal) decimal.Decimal {
	return amount.Mul(payPrice).Div(tokenPrice).Round(0)
}

func formatTokens(tokens decimal.Decimal) string {
	return humanize.BigComma(tokens.BigInt())
}
