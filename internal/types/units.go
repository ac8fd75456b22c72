// Package types contains shared units and constants used across multiple packages
package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// Time and rate units shared by the catalog, the accrual math and the ledger
const (
	SecondsPerDay  uint64 = 86_400
	DaysPerYear    uint64 = 365
	SecondsPerYear uint64 = SecondsPerDay * DaysPerYear
	BasisPoints    uint64 = 10_000

	// TokenDecimals is the number of base-unit decimals of the custody token
	TokenDecimals = 18
)

// ErrInvalidAmount is returned when an amount string cannot be parsed
var ErrInvalidAmount = errors.New("invalid amount")

var oneToken = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(TokenDecimals))

// OneToken returns a fresh copy of one whole token in base units
func OneToken() *uint256.Int {
	return new(uint256.Int).Set(oneToken)
}

// Tokens returns n whole tokens expressed in base units
func Tokens(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), oneToken)
}

// ParseAmount parses a decimal string of base units (e.g. "1500000000000000000").
// Leading and trailing whitespace is ignored.
func ParseAmount(raw string) (*uint256.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, raw, err)
	}
	return v, nil
}

// FormatTokens renders base units as a whole-token decimal with up to 18 fractional digits,
// trimming trailing zeros ("1.5" for 1.5e18).
func FormatTokens(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	whole, frac := new(uint256.Int).DivMod(v, oneToken, new(uint256.Int))
	if frac.IsZero() {
		return whole.Dec()
	}
	fs := frac.Dec()
	fs = strings.Repeat("0", TokenDecimals-len(fs)) + fs
	return whole.Dec() + "." + strings.TrimRight(fs, "0")
}
