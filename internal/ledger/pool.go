package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/yourorg/lockstake-ledger/internal/model"
)

// reserve earmarks amount of funded capacity for a promised reward
func (s *state) reserve(amount *uint256.Int) error {
	free := s.pool.Free()
	if free.Lt(amount) {
		return fmt.Errorf("%w: need %s, free %s", ErrInsufficientCapacity, amount.Dec(), free.Dec())
	}
	s.pool.TotalReserved.Add(&s.pool.TotalReserved, amount)
	return nil
}

// release returns an unused reservation to free capacity
func (s *state) release(amount *uint256.Int) {
	subFloor(&s.pool.TotalReserved, amount)
}

// consume removes a paid-out reward from both the reservation and the funded
// total: the tokens leave the reward pool for the account, its compound pool
// or a new principal.
func (s *state) consume(amount *uint256.Int) {
	subFloor(&s.pool.TotalReserved, amount)
	subFloor(&s.pool.TotalFunded, amount)
}

// subFloor subtracts in place, stopping at zero
func subFloor(z *uint256.Int, x *uint256.Int) {
	if z.Lt(x) {
		z.Clear()
		return
	}
	z.Sub(z, x)
}

// Fund pulls amount from the owner into the reward pool
func (e *Engine) Fund(ctx context.Context, caller common.Address, amount *uint256.Int) error {
	return e.execute(ctx, "fund", func(c *call) error {
		if err := e.authorize(caller); err != nil {
			return err
		}
		if amount == nil || amount.IsZero() {
			return ErrZeroAmount
		}
		pool := &c.st.pool
		pool.TotalFunded.Add(&pool.TotalFunded, amount)
		pool.FundsAvailable = true

		c.emit(model.EventPoolFunded, caller, map[string]string{
			"amount":      amount.Dec(),
			"totalFunded": pool.TotalFunded.Dec(),
		})
		return c.pull(caller, amount)
	})
}

// WithdrawExcess sends custody surplus to the owner. Only the part of custody
// not backing principal, reservations or compound pool balances can leave.
func (e *Engine) WithdrawExcess(ctx context.Context, caller common.Address, amount *uint256.Int) error {
	return e.execute(ctx, "withdraw_excess", func(c *call) error {
		if err := e.authorize(caller); err != nil {
			return err
		}
		if amount == nil || amount.IsZero() {
			return ErrZeroAmount
		}
		balance, err := e.token.BalanceOf(c.ctx, e.custody)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTransferFailed, err)
		}
		available := excess(c.st, balance)
		if available.Lt(amount) {
			return fmt.Errorf("%w: requested %s, available %s", ErrExcessUnavailable, amount.Dec(), available.Dec())
		}

		pool := &c.st.pool
		unreserved := pool.Free()
		drawn := minAmount(amount, unreserved)
		subFloor(&pool.TotalFunded, drawn)
		if drawn.Eq(unreserved) {
			pool.FundsAvailable = false
		}

		c.emit(model.EventPoolDrained, caller, map[string]string{
			"amount":         amount.Dec(),
			"fromFunded":     drawn.Dec(),
			"totalFunded":    pool.TotalFunded.Dec(),
			"fundsAvailable": fmt.Sprintf("%t", pool.FundsAvailable),
		})
		return c.pay(caller, amount)
	})
}

// excess is custody balance minus everything it must back
func excess(s *state, balance *uint256.Int) *uint256.Int {
	committed := new(uint256.Int).Add(&s.totalStaked, &s.pool.TotalReserved)
	committed.Add(committed, &s.totalCompound)
	if balance.Lt(committed) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(balance, committed)
}

// Pool returns the reward pool snapshot
func (e *Engine) Pool() model.PoolView {
	st := e.committed()
	return model.PoolView{
		TotalFunded:      st.pool.TotalFunded.Dec(),
		TotalReserved:    st.pool.TotalReserved.Dec(),
		Available:        st.pool.Free().Dec(),
		BaseRate365:      st.pool.BaseRate365,
		LastRateChangeAt: st.pool.LastRateChangeAt,
		FundsAvailable:   st.pool.FundsAvailable,
		TotalStaked:      st.totalStaked.Dec(),
		TotalCompound:    st.totalCompound.Dec(),
	}
}

// RewardPool returns a copy of the raw pool record
func (e *Engine) RewardPool() model.RewardPool {
	return e.committed().pool
}

// Audit recomputes record sums for invariant checks, including the custody
// balance actually held
func (e *Engine) Audit(ctx context.Context) (model.AuditReport, error) {
	st := e.committed()
	r := st.audit()
	r.GeneratedAt = e.nowUnix()
	balance, err := e.token.BalanceOf(ctx, e.custody)
	if err != nil {
		return r, fmt.Errorf("ledger: read custody balance: %w", err)
	}
	r.CustodyBalance.Set(balance)
	return r, nil
}
