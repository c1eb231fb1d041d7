// Package core provides amount parsing for transaction input.
//
// Amounts are whole units. Fractional input is accepted and truncated toward
// zero, so "12.9" becomes 12.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// maxAmount keeps sums over a store far away from int64 overflow.
const maxAmount = int64(1) << 50

// Truncate and comparisons rescale to exponent 0, which costs 10^|exp|.
const (
	maxIntegerDigits = 16 // digits of maxAmount
	minExponent      = -18
)

// ParseAmount converts user input to a non-negative integer amount.
//
// Examples:
//
//	ParseAmount("500")   -> 500, nil
//	ParseAmount("12.9")  -> 12, nil
//	ParseAmount("1e3")   -> 1000, nil
//	ParseAmount("-1")    -> 0, ErrInvalidAmount
//	ParseAmount("abc")   -> 0, ErrInvalidAmount
//	ParseAmount("1e999") -> 0, ErrInvalidAmount
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if d.IsNegative() || d.Exponent() < minExponent {
		return 0, ErrInvalidAmount
	}
	if d.NumDigits()+int(d.Exponent()) > maxIntegerDigits {
		return 0, ErrInvalidAmount
	}
	whole := d.Truncate(0)
	if whole.GreaterThan(decimal.NewFromInt(maxAmount)) {
		return 0, ErrInvalidAmount
	}
	return whole.IntPart(), nil
}
