package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const maxAmountLength = 100

// CheckAmount rejects amounts that are empty, too long or written in
// exponent notation, before any decimal arithmetic runs on them.
func CheckAmount(amount string) error {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return fmt.Errorf("amount is empty")
	}
	if len(amount) > maxAmountLength {
		return fmt.Errorf("amount is longer than %d characters", maxAmountLength)
	}
	if strings.ContainsAny(amount, "eE") {
		return fmt.Errorf("invalid amount %q: exponent notation is not supported", amount)
	}
	return nil
}

// ParseUnits converts a human readable amount into base units. The result
// must fit in a uint256.
func ParseUnits(amount string, decimals uint8) (*big.Int, error) {
	if err := CheckAmount(amount); err != nil {
		return nil, err
	}
	amount = strings.TrimSpace(amount)
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount must not be negative: %s", amount)
	}
	shifted := d.Shift(int32(decimals))
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("amount %s has more than %d decimals", amount, decimals)
	}
	out := shifted.BigInt()
	if out.BitLen() > 256 {
		return nil, fmt.Errorf("amount %s does not fit in uint256", amount)
	}
	return out, nil
}

func FormatUnits(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -int32(decimals)).String()
}
