package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/yourorg/lockstake-ledger/internal/accrual"
	"github.com/yourorg/lockstake-ledger/internal/model"
)

// catalog is the ordered lock-duration menu. Indices are permanent.
type catalog []model.PeriodConfig

func newCatalog(days []uint64, baseRate uint64) (catalog, error) {
	c := make(catalog, 0, len(days))
	for _, d := range days {
		if d == 0 {
			return nil, errors.New("ledger: period duration must be positive")
		}
		c = append(c, model.PeriodConfig{DurationDays: d, Active: true})
	}
	c.rescale(baseRate)
	return c, nil
}

func (c catalog) clone() catalog {
	out := make(catalog, len(c))
	copy(out, c)
	return out
}

// get returns the period at index
func (c catalog) get(index int) (model.PeriodConfig, error) {
	if index < 0 || index >= len(c) {
		return model.PeriodConfig{}, ErrInvalidPeriod
	}
	return c[index], nil
}

// active returns the period at index if it is open for new stakes
func (c catalog) active(index int) (model.PeriodConfig, error) {
	p, err := c.get(index)
	if err != nil {
		return p, err
	}
	if !p.Active {
		return p, fmt.Errorf("%w: index %d", ErrPeriodInactive, index)
	}
	return p, nil
}

func (c catalog) rescale(baseRate uint64) {
	for i := range c {
		c[i].ScaledRateBps = accrual.ScaledRate(baseRate, c[i].DurationDays)
	}
}

// SetBaseRate changes the 365-day base rate and rescales every period. Stakes
// already open keep the rate they were opened with.
func (e *Engine) SetBaseRate(ctx context.Context, caller common.Address, newRate uint64) error {
	return e.execute(ctx, "set_base_rate", func(c *call) error {
		if err := e.authorize(caller); err != nil {
			return err
		}
		if newRate == 0 || newRate > e.maxBaseRate {
			return fmt.Errorf("%w: %d (ceiling %d)", ErrInvalidRate, newRate, e.maxBaseRate)
		}
		pool := &c.st.pool
		if newRate == pool.BaseRate365 {
			return ErrRateUnchanged
		}
		if pool.LastRateChangeAt != 0 && c.now < pool.LastRateChangeAt+e.rateCooldown {
			return fmt.Errorf("%w: next change allowed at %d", ErrRateCooldown, pool.LastRateChangeAt+e.rateCooldown)
		}

		old := pool.BaseRate365
		pool.BaseRate365 = newRate
		pool.LastRateChangeAt = c.now
		c.st.catalog.rescale(newRate)

		c.emit(model.EventRateChanged, caller, map[string]string{
			"oldRateBps": utoa(old),
			"newRateBps": utoa(newRate),
		})
		return nil
	})
}

// TogglePeriod opens or closes a period for new stakes
func (e *Engine) TogglePeriod(ctx context.Context, caller common.Address, index int, active bool) error {
	return e.execute(ctx, "toggle_period", func(c *call) error {
		if err := e.authorize(caller); err != nil {
			return err
		}
		if _, err := c.st.catalog.get(index); err != nil {
			return err
		}
		c.st.catalog[index].Active = active
		c.emit(model.EventPeriodToggled, caller, map[string]string{
			"periodIndex":  itoa(index),
			"durationDays": utoa(c.st.catalog[index].DurationDays),
			"active":       fmt.Sprintf("%t", active),
		})
		return nil
	})
}

// Periods lists the whole catalog
func (e *Engine) Periods() []model.PeriodView {
	st := e.committed()
	out := make([]model.PeriodView, 0, len(st.catalog))
	for i, p := range st.catalog {
		out = append(out, periodView(i, p))
	}
	return out
}

// ActivePeriods lists the periods open for new stakes
func (e *Engine) ActivePeriods() []model.PeriodView {
	st := e.committed()
	var out []model.PeriodView
	for i, p := range st.catalog {
		if p.Active {
			out = append(out, periodView(i, p))
		}
	}
	return out
}

// EstimateReward projects the full-duration reward of amount in a period at
// the current scaled rate
func (e *Engine) EstimateReward(amount *uint256.Int, periodIndex int) (*uint256.Int, error) {
	if amount == nil || amount.IsZero() {
		return nil, ErrZeroAmount
	}
	p, err := e.committed().catalog.get(periodIndex)
	if err != nil {
		return nil, err
	}
	r, err := accrual.Estimate(amount, p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAmountTooLarge, err)
	}
	return r, nil
}

func periodView(i int, p model.PeriodConfig) model.PeriodView {
	return model.PeriodView{
		Index:         i,
		DurationDays:  p.DurationDays,
		Active:        p.Active,
		ScaledRateBps: p.ScaledRateBps,
	}
}
