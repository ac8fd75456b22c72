// Package custody defines the fungible-token interface the ledger keeps funds in,
// plus an in-process implementation used by the dev server and tests.
package custody

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// ErrInsufficientBalance is returned when the sender cannot cover a transfer
	ErrInsufficientBalance = errors.New("custody: insufficient balance")

	// ErrInsufficientAllowance is returned when the spender is not approved for the amount
	ErrInsufficientAllowance = errors.New("custody: insufficient allowance")
)

// Token is the ERC-20 style custody surface. Every mutating call is all-or-nothing:
// a non-nil error means no balance moved. Implementations must pass ctx through to
// any receiver callback so the ledger can detect re-entry.
type Token interface {
	// BalanceOf returns the balance held by account
	BalanceOf(ctx context.Context, account common.Address) (*uint256.Int, error)

	// Allowance returns how much spender may move on behalf of owner
	Allowance(ctx context.Context, owner, spender common.Address) (*uint256.Int, error)

	// Transfer moves amount from `from` (the caller) to `to`
	Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error

	// TransferFrom moves amount from `from` to `to` using spender's allowance
	TransferFrom(ctx context.Context, spender, from, to common.Address, amount *uint256.Int) error
}
