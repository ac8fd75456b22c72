package custody

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
)

// TransferHook is invoked after a transfer has moved balances and before it
// returns. Returning an error reverts the transfer. It models the receiver
// callback of real token contracts, which is where untrusted code runs.
type TransferHook func(ctx context.Context, from, to common.Address, amount *uint256.Int) error

// MemoryToken is an in-process token ledger with ERC-20 semantics
type MemoryToken struct {
	mu         sync.RWMutex
	symbol     string
	balances   map[common.Address]*uint256.Int
	allowances map[common.Address]map[common.Address]*uint256.Int
	supply     *uint256.Int
	hook       TransferHook
}

// NewMemoryToken creates an empty token ledger
func NewMemoryToken(symbol string) *MemoryToken {
	return &MemoryToken{
		symbol:     symbol,
		balances:   make(map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]map[common.Address]*uint256.Int),
		supply:     new(uint256.Int),
	}
}

// WithHook installs a transfer hook and returns the token
func (t *MemoryToken) WithHook(hook TransferHook) *MemoryToken {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hook = hook
	return t
}

// Symbol returns the token ticker
func (t *MemoryToken) Symbol() string {
	return t.symbol
}

// TotalSupply returns the amount minted so far
func (t *MemoryToken) TotalSupply() *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(uint256.Int).Set(t.supply)
}

// Mint credits amount to account out of thin air
func (t *MemoryToken) Mint(account common.Address, amount *uint256.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.credit(account, amount)
	t.supply.Add(t.supply, amount)
	logrus.WithFields(logrus.Fields{
		"account": account.Hex(),
		"amount":  amount.Dec(),
		"symbol":  t.symbol,
	}).Debug("Tokens minted")
}

// Approve sets spender's allowance over owner's balance
func (t *MemoryToken) Approve(owner, spender common.Address, amount *uint256.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	byOwner, ok := t.allowances[owner]
	if !ok {
		byOwner = make(map[common.Address]*uint256.Int)
		t.allowances[owner] = byOwner
	}
	byOwner[spender] = new(uint256.Int).Set(amount)
}

// BalanceOf implements Token
func (t *MemoryToken) BalanceOf(_ context.Context, account common.Address) (*uint256.Int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(uint256.Int).Set(t.balanceLocked(account)), nil
}

// Allowance implements Token
func (t *MemoryToken) Allowance(_ context.Context, owner, spender common.Address) (*uint256.Int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if a, ok := t.allowances[owner][spender]; ok {
		return new(uint256.Int).Set(a), nil
	}
	return new(uint256.Int), nil
}

// Transfer implements Token
func (t *MemoryToken) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	if err := t.move(from, to, amount); err != nil {
		t.mu.Unlock()
		return err
	}
	hook := t.hook
	t.mu.Unlock()

	return t.runHook(ctx, hook, from, to, amount, nil)
}

// TransferFrom implements Token
func (t *MemoryToken) TransferFrom(ctx context.Context, spender, from, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	allowance, ok := t.allowances[from][spender]
	if !ok || allowance.Lt(amount) {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s approved for %s", ErrInsufficientAllowance, spender.Hex(), amount.Dec())
	}
	if err := t.move(from, to, amount); err != nil {
		t.mu.Unlock()
		return err
	}
	spent := new(uint256.Int).Set(amount)
	allowance.Sub(allowance, spent)
	hook := t.hook
	t.mu.Unlock()

	return t.runHook(ctx, hook, from, to, amount, func() {
		allowance.Add(allowance, spent)
	})
}

// runHook calls the hook outside the lock and reverts the move when it fails
func (t *MemoryToken) runHook(ctx context.Context, hook TransferHook, from, to common.Address, amount *uint256.Int, undo func()) error {
	if hook == nil {
		return nil
	}
	if err := hook(ctx, from, to, amount); err != nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		if rerr := t.move(to, from, amount); rerr != nil {
			// the hook spent what it received; nothing left to pull back
			logrus.WithError(rerr).Error("Custody revert incomplete")
		}
		if undo != nil {
			undo()
		}
		return fmt.Errorf("custody: transfer reverted: %w", err)
	}
	return nil
}

func (t *MemoryToken) move(from, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	bal := t.balanceLocked(from)
	if bal.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), bal.Dec(), amount.Dec())
	}
	t.balances[from] = new(uint256.Int).Sub(bal, amount)
	t.credit(to, amount)
	return nil
}

func (t *MemoryToken) credit(account common.Address, amount *uint256.Int) {
	t.balances[account] = new(uint256.Int).Add(t.balanceLocked(account), amount)
}

func (t *MemoryToken) balanceLocked(account common.Address) *uint256.Int {
	if b, ok := t.balances[account]; ok {
		return b
	}
	return new(uint256.Int)
}
