package chains

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ParseUnits converts a human amount ("1.5") into the token's integer base
// units ("1500000" for 6 decimals). Amounts with more fractional digits than
// the token supports are rejected rather than rounded.
func ParseUnits(amount string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if !d.IsPositive() {
		return nil, fmt.Errorf("amount must be greater than 0")
	}

	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", amount, decimals)
	}

	return scaled.BigInt(), nil
}

// FormatUnits converts base units back into a human readable amount
func FormatUnits(base string, decimals int32) string {
	v, ok := new(big.Int).SetString(base, 10)
	if !ok {
		return base
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}
