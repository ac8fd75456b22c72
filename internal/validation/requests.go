// Package validation parses and checks API input before it reaches the ledger.
// Every error it returns wraps ledger.ErrValidation.
package validation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/yourorg/lockstake-ledger/internal/ledger"
	"github.com/yourorg/lockstake-ledger/internal/types"
)

// MaxIndex bounds period and stake indices accepted from clients
const MaxIndex = 1 << 20

// Limits caps list queries
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 1000
)

// ErrPeriodRequired is returned when a call needs a target period and got none
var ErrPeriodRequired = invalid("period_index is required")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ledger.ErrValidation, fmt.Sprintf(format, args...))
}

// ParseAddress parses a 0x-prefixed hex account address. The zero address is
// rejected.
func ParseAddress(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, invalid("invalid address %q", raw)
	}
	addr := common.HexToAddress(raw)
	if addr == (common.Address{}) {
		return common.Address{}, invalid("zero address")
	}
	return addr, nil
}

// ParseAmount accepts either base units ("1500000000000000000") or whole
// tokens with a decimal point ("1.5"). Zero is rejected.
func ParseAmount(raw string) (*uint256.Int, error) {
	raw = strings.TrimSpace(raw)
	var (
		v   *uint256.Int
		err error
	)
	if strings.Contains(raw, ".") {
		v, err = ParseTokens(raw)
	} else {
		v, err = types.ParseAmount(raw)
	}
	if err != nil {
		return nil, invalid("%v", err)
	}
	if v.IsZero() {
		return nil, invalid("amount must be positive")
	}
	return v, nil
}

// ParseTokens converts a whole-token decimal such as "12.25" into base units
func ParseTokens(raw string) (*uint256.Int, error) {
	raw = strings.TrimSpace(raw)
	whole, frac, _ := strings.Cut(raw, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > types.TokenDecimals {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", types.ErrInvalidAmount, raw, types.TokenDecimals)
	}
	if strings.ContainsAny(whole+frac, "+-") {
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidAmount, raw)
	}
	frac += strings.Repeat("0", types.TokenDecimals-len(frac))
	digits := strings.TrimLeft(whole+frac, "0")
	if digits == "" {
		return new(uint256.Int), nil
	}
	return types.ParseAmount(digits)
}

// ParseIndex parses a non-negative period or stake index
func ParseIndex(raw string) (int, error) {
	i, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || i < 0 || i >= MaxIndex {
		return 0, invalid("invalid index %q", raw)
	}
	return i, nil
}

// ParseLimit parses an optional list limit, applying the default and cap
func ParseLimit(raw string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return DefaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return 0, invalid("invalid limit %q", raw)
	}
	if n > MaxHistoryLimit {
		n = MaxHistoryLimit
	}
	return n, nil
}

func checkIndex(name string, i *int) (int, error) {
	if i == nil {
		return 0, invalid("%s is required", name)
	}
	if *i < 0 || *i >= MaxIndex {
		return 0, invalid("%s out of range: %d", name, *i)
	}
	return *i, nil
}

// OpenRequest is the body of a new stake
type OpenRequest struct {
	Amount       string `json:"amount"`
	PeriodIndex  *int   `json:"period_index"`
	AutoCompound bool   `json:"auto_compound"`
}

// Parse validates the request and returns the amount and period
func (r OpenRequest) Parse() (*uint256.Int, int, error) {
	amount, err := ParseAmount(r.Amount)
	if err != nil {
		return nil, 0, err
	}
	period, err := checkIndex("period_index", r.PeriodIndex)
	if err != nil {
		return nil, 0, err
	}
	return amount, period, nil
}

// PeriodRequest names a target period; restake requires one, compound flush
// falls back to the preferred period when it is absent
type PeriodRequest struct {
	PeriodIndex *int `json:"period_index"`
}

// Parse returns the period index; ok is false when none was given
func (r PeriodRequest) Parse() (index int, ok bool, err error) {
	if r.PeriodIndex == nil {
		return 0, false, nil
	}
	index, err = checkIndex("period_index", r.PeriodIndex)
	return index, err == nil, err
}

// AmountRequest carries a single token amount
type AmountRequest struct {
	Amount string `json:"amount"`
}

// Parse validates the amount
func (r AmountRequest) Parse() (*uint256.Int, error) {
	return ParseAmount(r.Amount)
}

// RateRequest changes the 365-day base rate
type RateRequest struct {
	RateBps uint64 `json:"rate_bps"`
}

// Parse validates the rate against the basis point scale
func (r RateRequest) Parse() (uint64, error) {
	if r.RateBps == 0 || r.RateBps > types.BasisPoints {
		return 0, invalid("rate_bps must be in (0, %d]", types.BasisPoints)
	}
	return r.RateBps, nil
}

// ToggleRequest opens or closes a period
type ToggleRequest struct {
	Active *bool `json:"active"`
}

// Parse requires the flag to be present
func (r ToggleRequest) Parse() (bool, error) {
	if r.Active == nil {
		return false, invalid("active is required")
	}
	return *r.Active, nil
}

// TokenRequest moves dev custody tokens
type TokenRequest struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

// Parse validates account and amount
func (r TokenRequest) Parse() (common.Address, *uint256.Int, error) {
	addr, err := ParseAddress(r.Account)
	if err != nil {
		return common.Address{}, nil, err
	}
	amount, err := ParseAmount(r.Amount)
	if err != nil {
		return common.Address{}, nil, err
	}
	return addr, amount, nil
}
