package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/yourorg/lockstake-ledger/internal/accrual"
	"github.com/yourorg/lockstake-ledger/internal/model"
	"github.com/yourorg/lockstake-ledger/internal/types"
)

// ClaimResult describes where a claimed reward went
type ClaimResult struct {
	Index      int
	Reward     *uint256.Int
	Compounded bool

	// FlushedInto is the index of the stake opened by an automatic compound
	// pool flush during this claim, or -1
	FlushedInto int
}

// ClaimAllResult aggregates a ClaimAll call
type ClaimAllResult struct {
	Claims     []ClaimResult
	CashPaid   *uint256.Int
	Compounded *uint256.Int
}

// WithdrawResult describes a closed stake
type WithdrawResult struct {
	Principal *uint256.Int
	Reward    *uint256.Int

	// CompoundedInto is the index of the stake opened with the reward, or -1
	// when the reward was paid in cash
	CompoundedInto int
}

// RestakeResult describes a stake rolled into a new period
type RestakeResult struct {
	NewIndex int
	Amount   *uint256.Int
	Reward   *uint256.Int
}

// Open locks amount from account for the given period and reserves the full
// promised reward. It returns the index of the new record.
func (e *Engine) Open(ctx context.Context, account common.Address, amount *uint256.Int, periodIndex int, autoCompound bool) (int, error) {
	var index int
	err := e.execute(ctx, "open", func(c *call) error {
		if amount == nil || amount.IsZero() {
			return ErrZeroAmount
		}
		if _, err := c.st.catalog.active(periodIndex); err != nil {
			return err
		}
		if !c.st.pool.FundsAvailable {
			return ErrFundsNotOffered
		}
		var err error
		if index, err = c.open(account, amount, periodIndex, autoCompound); err != nil {
			return err
		}
		return c.pull(account, amount)
	})
	if err != nil {
		return 0, err
	}
	return index, nil
}

// open appends a new stake record funded by amount, which must already be in
// custody or be pulled by the caller. The period must have been validated.
func (c *call) open(account common.Address, amount *uint256.Int, periodIndex int, autoCompound bool) (int, error) {
	p, err := c.st.catalog.active(periodIndex)
	if err != nil {
		return 0, err
	}
	reward, err := accrual.Reservation(amount, p.ScaledRateBps, p.DurationDays)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrAmountTooLarge, err)
	}
	if err := c.st.reserve(reward); err != nil {
		return 0, err
	}

	st := model.Stake{
		OpenedAt:     c.now,
		UnlockAt:     c.now + p.DurationDays*types.SecondsPerDay,
		DurationDays: p.DurationDays,
		RateBps:      p.ScaledRateBps,
		LastClaimAt:  c.now,
		AutoCompound: autoCompound,
		Active:       true,
		PeriodIndex:  periodIndex,
	}
	st.Amount.Set(amount)
	st.ReservedReward.Set(reward)
	index := c.st.appendStake(account, st)
	c.st.totalStaked.Add(&c.st.totalStaked, amount)

	c.emit(model.EventStakeOpened, account, map[string]string{
		"index":          itoa(index),
		"amount":         amount.Dec(),
		"periodIndex":    itoa(periodIndex),
		"durationDays":   utoa(p.DurationDays),
		"rateBps":        utoa(p.ScaledRateBps),
		"reservedReward": reward.Dec(),
		"unlockAt":       utoa(st.UnlockAt),
		"autoCompound":   fmt.Sprintf("%t", autoCompound),
	})
	return index, nil
}

// openStake returns a writable open record or the matching error
func (c *call) openStake(account common.Address, index int) (*model.Stake, error) {
	st, err := c.st.stake(account, index)
	if err != nil {
		return nil, err
	}
	if !st.IsOpen() {
		return nil, fmt.Errorf("%w: index %d", ErrStakeClosed, index)
	}
	return st, nil
}

// accrue brings a record up to now: it computes the earned reward, advances
// LastClaimAt and takes the reward out of the stake's reservation and the
// pool. It must run before any decision that depends on accrual.
func (c *call) accrue(st *model.Stake) (*uint256.Int, error) {
	reward, err := earned(st, c.now)
	if err != nil {
		return nil, err
	}
	st.LastClaimAt = c.now
	if reward.IsZero() {
		return reward, nil
	}
	reward = minAmount(reward, &st.ReservedReward)
	subFloor(&st.ReservedReward, reward)
	c.st.consume(reward)
	return reward, nil
}

// earned is the accrued reward of a record; an overflowing record is an error
// rather than a silent zero
func earned(st *model.Stake, now uint64) (*uint256.Int, error) {
	reward, err := accrual.EarnedChecked(st, now)
	if err != nil {
		return nil, fmt.Errorf("%w: accrual of %s at rate %d: %v", ErrAmountTooLarge, st.Amount.Dec(), st.RateBps, err)
	}
	return reward, nil
}

// compoundEligible reports whether a reward of an auto-compounding stake goes
// to reinvestment instead of cash
func (c *call) compoundEligible(autoCompound bool, reward *uint256.Int) bool {
	return autoCompound &&
		!reward.IsZero() &&
		!reward.Lt(&c.e.minAutoCompound) &&
		c.st.pool.FundsAvailable
}

// Claim collects the accrued reward of one stake. Auto-compounding stakes send
// it to the account's compound pool when it clears the minimum; everything
// else is paid in cash.
func (e *Engine) Claim(ctx context.Context, account common.Address, index int) (*ClaimResult, error) {
	var res *ClaimResult
	err := e.execute(ctx, "claim", func(c *call) error {
		st, err := c.openStake(account, index)
		if err != nil {
			return err
		}
		pending, err := earned(st, c.now)
		if err != nil {
			return err
		}
		if pending.IsZero() {
			return ErrNothingToClaim
		}
		res, err = c.claim(account, index, st)
		if err != nil {
			return err
		}
		if !res.Compounded {
			return c.pay(account, res.Reward)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// claim settles one record with non-zero accrual; cash is left for the
// caller to pay
func (c *call) claim(account common.Address, index int, st *model.Stake) (*ClaimResult, error) {
	reward, err := c.accrue(st)
	if err != nil {
		return nil, err
	}
	res := &ClaimResult{Index: index, Reward: reward, FlushedInto: -1}

	if c.compoundEligible(st.AutoCompound, reward) {
		flushed, err := c.addReward(account, reward, st.PeriodIndex)
		if err != nil {
			return nil, err
		}
		res.Compounded = true
		res.FlushedInto = flushed
	}

	c.emit(model.EventRewardClaimed, account, map[string]string{
		"index":      itoa(index),
		"reward":     reward.Dec(),
		"compounded": fmt.Sprintf("%t", res.Compounded),
	})
	return res, nil
}

// ClaimAll claims every open stake of account that has accrued something.
// Stakes with nothing accrued are skipped.
func (e *Engine) ClaimAll(ctx context.Context, account common.Address) (*ClaimAllResult, error) {
	var res *ClaimAllResult
	err := e.execute(ctx, "claim_all", func(c *call) error {
		res = &ClaimAllResult{CashPaid: new(uint256.Int), Compounded: new(uint256.Int)}
		count := len(c.st.stakesOf(account))
		for i := 0; i < count; i++ {
			ro := &c.st.stakesOf(account)[i]
			if !ro.IsOpen() {
				continue
			}
			pending, err := earned(ro, c.now)
			if err != nil {
				return err
			}
			if pending.IsZero() {
				continue
			}
			st, err := c.st.stake(account, i)
			if err != nil {
				return err
			}
			cr, err := c.claim(account, i, st)
			if err != nil {
				return err
			}
			res.Claims = append(res.Claims, *cr)
			if cr.Compounded {
				res.Compounded.Add(res.Compounded, cr.Reward)
			} else {
				res.CashPaid.Add(res.CashPaid, cr.Reward)
			}
		}
		if len(res.Claims) == 0 {
			return ErrNothingToClaim
		}
		return c.pay(account, res.CashPaid)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// close marks a matured record terminal and returns its final reward. The
// remaining reservation is released and the principal leaves the total.
func (c *call) close(st *model.Stake) (*uint256.Int, error) {
	reward, err := c.accrue(st)
	if err != nil {
		return nil, err
	}
	c.st.release(&st.ReservedReward)
	st.ReservedReward.Clear()
	st.Active = false
	st.Withdrawn = true
	subFloor(&c.st.totalStaked, &st.Amount)
	return reward, nil
}

// Withdraw closes a matured stake. Principal is always paid in cash; the final
// reward of an auto-compounding stake is reinvested into the longest period the
// pool can still afford, falling back to cash.
func (e *Engine) Withdraw(ctx context.Context, account common.Address, index int) (*WithdrawResult, error) {
	var res *WithdrawResult
	err := e.execute(ctx, "withdraw", func(c *call) error {
		st, err := c.openStake(account, index)
		if err != nil {
			return err
		}
		if !st.Matured(c.now) {
			return fmt.Errorf("%w: unlocks at %d", ErrNotMatured, st.UnlockAt)
		}

		principal := new(uint256.Int).Set(&st.Amount)
		auto := st.AutoCompound
		reward, err := c.close(st)
		if err != nil {
			return err
		}
		res = &WithdrawResult{Principal: principal, Reward: reward, CompoundedInto: -1}

		if c.compoundEligible(auto, reward) {
			if period, ok := c.st.selectPeriod(reward); ok {
				newIndex, err := c.open(account, reward, period, true)
				if err != nil {
					return err
				}
				res.CompoundedInto = newIndex
			} else {
				c.e.log.WithField("account", account.Hex()).Info("No affordable period for withdraw compounding, paying reward in cash")
			}
		}

		payout := new(uint256.Int).Set(principal)
		if res.CompoundedInto < 0 {
			payout.Add(payout, reward)
		}
		c.emit(model.EventStakeWithdrawn, account, map[string]string{
			"index":          itoa(index),
			"principal":      principal.Dec(),
			"reward":         reward.Dec(),
			"paid":           payout.Dec(),
			"compoundedInto": itoa(res.CompoundedInto),
		})
		return c.pay(account, payout)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Restake closes a matured stake and opens principal plus final reward in
// newPeriodIndex, keeping the auto-compound preference.
func (e *Engine) Restake(ctx context.Context, account common.Address, index, newPeriodIndex int) (*RestakeResult, error) {
	var res *RestakeResult
	err := e.execute(ctx, "restake", func(c *call) error {
		st, err := c.openStake(account, index)
		if err != nil {
			return err
		}
		if !st.Matured(c.now) {
			return fmt.Errorf("%w: unlocks at %d", ErrNotMatured, st.UnlockAt)
		}
		if _, err := c.st.catalog.active(newPeriodIndex); err != nil {
			return err
		}

		auto := st.AutoCompound
		combined := new(uint256.Int).Set(&st.Amount)
		reward, err := c.close(st)
		if err != nil {
			return err
		}
		combined.Add(combined, reward)

		newIndex, err := c.open(account, combined, newPeriodIndex, auto)
		if err != nil {
			return err
		}
		res = &RestakeResult{NewIndex: newIndex, Amount: combined, Reward: reward}

		c.emit(model.EventStakeRestaked, account, map[string]string{
			"index":          itoa(index),
			"newIndex":       itoa(newIndex),
			"amount":         combined.Dec(),
			"reward":         reward.Dec(),
			"newPeriodIndex": itoa(newPeriodIndex),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// StakeCount returns how many records account has ever opened
func (e *Engine) StakeCount(account common.Address) int {
	return len(e.committed().stakesOf(account))
}

// StakeAt returns a copy of one record
func (e *Engine) StakeAt(account common.Address, index int) (model.Stake, error) {
	list := e.committed().stakesOf(account)
	if index < 0 || index >= len(list) {
		return model.Stake{}, ErrInvalidIndex
	}
	return list[index], nil
}

// Stakes returns copies of all records of account in index order
func (e *Engine) Stakes(account common.Address) []model.Stake {
	list := e.committed().stakesOf(account)
	out := make([]model.Stake, len(list))
	copy(out, list)
	return out
}

// StakeViews renders all records of account with their pending rewards
func (e *Engine) StakeViews(account common.Address) []model.StakeView {
	now := e.nowUnix()
	list := e.committed().stakesOf(account)
	out := make([]model.StakeView, 0, len(list))
	for i := range list {
		out = append(out, model.NewStakeView(i, list[i], accrual.Earned(&list[i], now), now))
	}
	return out
}

// StakeView renders one record with its pending reward
func (e *Engine) StakeView(account common.Address, index int) (model.StakeView, error) {
	st, err := e.StakeAt(account, index)
	if err != nil {
		return model.StakeView{}, err
	}
	now := e.nowUnix()
	return model.NewStakeView(index, st, accrual.Earned(&st, now), now), nil
}

// PendingReward returns what Claim would collect from a record right now
func (e *Engine) PendingReward(account common.Address, index int) (*uint256.Int, error) {
	st, err := e.StakeAt(account, index)
	if err != nil {
		return nil, err
	}
	return accrual.Earned(&st, e.nowUnix()), nil
}

// Summary aggregates the positions of account
func (e *Engine) Summary(account common.Address) model.AccountSummary {
	st := e.committed()
	list := st.stakesOf(account)
	open := 0
	for i := range list {
		if list[i].IsOpen() {
			open++
		}
	}
	cp := st.compound[account]
	return model.AccountSummary{
		Account:         account.Hex(),
		StakeCount:      len(list),
		OpenCount:       open,
		ActivePrincipal: accrual.ActivePrincipal(list).Dec(),
		PendingRewards:  accrual.TotalPending(list, e.nowUnix()).Dec(),
		CompoundBalance: cp.TotalAmount.Dec(),
	}
}
