package entity

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// MaxAmountDigits bounds the significant digits and the fractional precision of a
// user-entered amount. It covers the uint256 range.
const MaxAmountDigits = 78

// ParseAmount parses a user-entered decimal string. Empty and non-numeric input
// are errors, as are exponent notation and amounts beyond MaxAmountDigits; the
// sign is not checked here.
func ParseAmount(raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, fmt.Errorf("amount cannot be empty")
	}
	if strings.ContainsAny(trimmed, "eE") {
		return decimal.Zero, fmt.Errorf("invalid amount %q: exponent notation is not accepted", raw)
	}
	if len(trimmed) > 2*MaxAmountDigits+2 {
		return decimal.Zero, fmt.Errorf("invalid amount %q: too long", raw)
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if d.NumDigits() > MaxAmountDigits || d.Exponent() < -MaxAmountDigits {
		return decimal.Zero, fmt.Errorf("invalid amount %q: exceeds %d digits", raw, MaxAmountDigits)
	}
	return d, nil
}

// PositiveAmount parses raw and requires it to be greater than zero.
func PositiveAmount(raw string) (decimal.Decimal, bool) {
	d, err := ParseAmount(raw)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}

// ToUnits converts a decimal amount into its fixed-point integer representation.
// Digits beyond the given precision are truncated.
func ToUnits(amount decimal.Decimal, decimals uint8) *big.Int {
	return amount.Shift(int32(decimals)).Truncate(0).BigInt()
}

// FromUnits converts a fixed-point integer back into a decimal amount.
func FromUnits(units *big.Int, decimals uint8) decimal.Decimal {
	if units == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(units, -int32(decimals))
}

// ParseAddress validates a hex contract or wallet address.
func ParseAddress(raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(trimmed), nil
}
