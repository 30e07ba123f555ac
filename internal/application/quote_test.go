package application

import (
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"fluid-presale/internal/domain/entity"
)

func TestComputeReceivable(t *testing.T) {
	testCases := []struct {
		name       string
		amount     string
		payPrice   float64
		tokenPrice float64
		expected   string
	}{
		{name: "empty", amount: "", payPrice: 3200, tokenPrice: 1, expected: "0"},
		{name: "whitespace", amount: "   ", payPrice: 3200, tokenPrice: 1, expected: "0"},
		{name: "non-numeric", amount: "abc", payPrice: 3200, tokenPrice: 1, expected: "0"},
		{name: "zero", amount: "0", payPrice: 3200, tokenPrice: 1, expected: "0"},
		{name: "negative", amount: "-5", payPrice: 3200, tokenPrice: 1, expected: "0"},
		{name: "reference quote", amount: "100", payPrice: 3200, tokenPrice: 1, expected: "320,000"},
		{name: "fractional amount", amount: "0.5", payPrice: 600, tokenPrice: 1, expected: "300"},
		{name: "rounds half up", amount: "2.5", payPrice: 1, tokenPrice: 1, expected: "3"},
		{name: "rounds down", amount: "2.49", payPrice: 1, tokenPrice: 1, expected: "2"},
		{name: "millions", amount: "1234567", payPrice: 1, tokenPrice: 1, expected: "1,234,567"},
		{name: "token price above one", amount: "100", payPrice: 1, tokenPrice: 1.25, expected: "80"},
		{name: "zero pay price", amount: "100", payPrice: 0, tokenPrice: 1, expected: "0"},
		{name: "zero token price", amount: "100", payPrice: 3200, tokenPrice: 0, expected: "0"},
		{name: "exponent notation", amount: "1e100000", payPrice: 3200, tokenPrice: 1, expected: "0"},
		{name: "huge exponent", amount: "1E5000000", payPrice: 3200, tokenPrice: 1, expected: "0"},
		{name: "too many digits", amount: strings.Repeat("9", entity.MaxAmountDigits+1), payPrice: 1, tokenPrice: 1, expected: "0"},
		{name: "billion", amount: "1" + strings.Repeat("0", 9), payPrice: 1, tokenPrice: 1, expected: "1,000,000,000"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ComputeReceivable(tc.amount, tc.payPrice, tc.tokenPrice))
		})
	}
}

func TestComputeReceivable_MonotonicInAmount(t *testing.T) {
	parse := func(s string) int64 {
		n, err := strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64)
		assert.NoError(t, err)
		return n
	}

	previous := int64(0)
	for i := 1; i <= 2000; i++ {
		amount := fmt.Sprintf("%.3f", float64(i)*0.137)
		got := parse(ComputeReceivable(amount, 3187.42, 1.0))
		assert.GreaterOrEqual(t, got, previous, "amount %s", amount)
		previous = got
	}
}

func TestComputeReceivable_Idempotent(t *testing.T) {
	first := ComputeReceivable("42.42", 599.99, 1)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ComputeReceivable("42.42", 599.99, 1))
	}
}

func TestQuoteFor(t *testing.T) {
	snapshot := entity.NewPriceSnapshot(map[string]float64{"ETH": 3200}, entity.SourcePrimary, time.Now())

	assert.Equal(t, "320,000", QuoteFor(entity.PurchaseIntent{Amount: "100", CurrencyID: "ETH"}, snapshot, 1))
	assert.Equal(t, "0", QuoteFor(entity.PurchaseIntent{Amount: "100", CurrencyID: "DOGE"}, snapshot, 1))
}
