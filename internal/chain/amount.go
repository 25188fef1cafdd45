package chain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ToBaseUnits converts a human token amount ("12.5") into the smallest unit
// for a token with the given decimals. Fractions below one base unit are
// rejected rather than rounded.
func ToBaseUnits(amount string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid token amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("token amount %q is negative", amount)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("token amount %q has more than %d decimals", amount, decimals)
	}
	return scaled.BigInt(), nil
}

// FormatUnits renders a base-unit amount as a human token amount.
func FormatUnits(amount *big.Int, decimals int32) string {
	return decimal.NewFromBigInt(amount, -decimals).String()
}

// ParseBaseUnits parses a stored decimal-string amount.
func ParseBaseUnits(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid base unit amount %q", s)
	}
	return v, nil
}
