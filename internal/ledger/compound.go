package ledger

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/lockstake-ledger/internal/model"
)

// addReward credits an auto-compounded reward to the account's pool and
// flushes it when the threshold is reached. It returns the index of the stake
// opened by the flush, or -1.
func (c *call) addReward(account common.Address, amount *uint256.Int, sourcePeriod int) (int, error) {
	cp := c.st.compound[account]
	cp.TotalAmount.Add(&cp.TotalAmount, amount)
	cp.HasActivePool = true
	cp.LastUpdateAt = c.now
	if sourcePeriod > cp.PreferredPeriodIndex {
		cp.PreferredPeriodIndex = sourcePeriod
	}
	c.st.compound[account] = cp
	c.st.totalCompound.Add(&c.st.totalCompound, amount)

	c.emit(model.EventCompoundAdded, account, map[string]string{
		"amount":          amount.Dec(),
		"poolBalance":     cp.TotalAmount.Dec(),
		"preferredPeriod": itoa(cp.PreferredPeriodIndex),
	})

	if c.e.autoFlushThreshold.IsZero() || cp.TotalAmount.Lt(&c.e.autoFlushThreshold) {
		return -1, nil
	}
	index, err := c.flush(account, cp.PreferredPeriodIndex)
	if err != nil {
		// The balance stays pooled; the account can flush or withdraw it later.
		if errors.Is(err, ErrValidation) || errors.Is(err, ErrSolvency) {
			c.e.log.WithFields(logrus.Fields{
				"account": account.Hex(),
				"period":  cp.PreferredPeriodIndex,
				"error":   err,
			}).Info("Automatic compound flush skipped")
			return -1, nil
		}
		return -1, err
	}
	return index, nil
}

// flush opens an auto-compounding stake holding the whole pool balance and
// zeroes the pool. Nothing is mutated when it fails.
func (c *call) flush(account common.Address, periodIndex int) (int, error) {
	cp, ok := c.st.compound[account]
	if !ok || !cp.HasActivePool || cp.TotalAmount.IsZero() {
		return -1, ErrNoCompoundPool
	}
	amount := new(uint256.Int).Set(&cp.TotalAmount)
	index, err := c.open(account, amount, periodIndex, true)
	if err != nil {
		return -1, err
	}

	cp.TotalAmount.Clear()
	cp.HasActivePool = false
	cp.LastUpdateAt = c.now
	c.st.compound[account] = cp
	subFloor(&c.st.totalCompound, amount)

	c.emit(model.EventCompoundFlushed, account, map[string]string{
		"amount":      amount.Dec(),
		"periodIndex": itoa(periodIndex),
		"newIndex":    itoa(index),
	})
	return index, nil
}

// FlushCompound stakes the account's compound pool into periodIndex and
// returns the new record index
func (e *Engine) FlushCompound(ctx context.Context, account common.Address, periodIndex int) (int, error) {
	index := -1
	err := e.execute(ctx, "flush_compound", func(c *call) error {
		var err error
		index, err = c.flush(account, periodIndex)
		return err
	})
	return index, err
}

// FlushCompoundAuto stakes the compound pool into its preferred period
func (e *Engine) FlushCompoundAuto(ctx context.Context, account common.Address) (int, error) {
	index := -1
	err := e.execute(ctx, "flush_compound_auto", func(c *call) error {
		cp, ok := c.st.compound[account]
		if !ok || !cp.HasActivePool {
			return ErrNoCompoundPool
		}
		var err error
		index, err = c.flush(account, cp.PreferredPeriodIndex)
		return err
	})
	return index, err
}

// WithdrawCompound pays the compound pool balance out in cash
func (e *Engine) WithdrawCompound(ctx context.Context, account common.Address) (*uint256.Int, error) {
	var amount *uint256.Int
	err := e.execute(ctx, "withdraw_compound", func(c *call) error {
		cp, ok := c.st.compound[account]
		if !ok || !cp.HasActivePool || cp.TotalAmount.IsZero() {
			return ErrNoCompoundPool
		}
		amount = new(uint256.Int).Set(&cp.TotalAmount)
		cp.TotalAmount.Clear()
		cp.HasActivePool = false
		cp.LastUpdateAt = c.now
		c.st.compound[account] = cp
		subFloor(&c.st.totalCompound, amount)

		c.emit(model.EventCompoundWithdrawn, account, map[string]string{
			"amount": amount.Dec(),
		})
		return c.pay(account, amount)
	})
	if err != nil {
		return nil, err
	}
	return amount, nil
}

// CompoundPool returns the account's compound pool snapshot. Accounts that
// never compounded get a zero view.
func (e *Engine) CompoundPool(account common.Address) model.CompoundView {
	return model.NewCompoundView(e.committed().compound[account])
}
