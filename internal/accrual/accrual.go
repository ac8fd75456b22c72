// Package accrual computes reservations and earned rewards for fixed-period stakes.
// All functions are pure; callers supply the clock.
package accrual

import (
	"errors"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/lockstake-ledger/internal/model"
	"github.com/yourorg/lockstake-ledger/internal/types"
)

// ErrOverflow is returned when a reward does not fit in 256 bits
var ErrOverflow = errors.New("reward computation overflows 256 bits")

var (
	// reservationDenom is 10000 * 365
	reservationDenom = uint256.NewInt(types.BasisPoints * types.DaysPerYear)

	// accrualDenom is 10000 * seconds per year
	accrualDenom = uint256.NewInt(types.BasisPoints * types.SecondsPerYear)
)

// ScaledRate derives a period rate from the 365-day base rate
func ScaledRate(baseRate365, durationDays uint64) uint64 {
	return baseRate365 * durationDays / types.DaysPerYear
}

// Reservation returns the full-duration reward promised to a stake:
// amount * rateBps * durationDays / (10000 * 365)
func Reservation(amount *uint256.Int, rateBps, durationDays uint64) (*uint256.Int, error) {
	if amount == nil || amount.IsZero() || rateBps == 0 || durationDays == 0 {
		return new(uint256.Int), nil
	}
	factor := new(uint256.Int).Mul(uint256.NewInt(rateBps), uint256.NewInt(durationDays))
	out, overflow := new(uint256.Int).MulDivOverflow(amount, factor, reservationDenom)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// Window returns the number of accruing seconds between the last claim and now,
// capped at the unlock time. It is zero when the stake is closed or already
// claimed past maturity.
func Window(s *model.Stake, now uint64) uint64 {
	if s == nil || !s.IsOpen() {
		return 0
	}
	end := now
	if end > s.UnlockAt {
		end = s.UnlockAt
	}
	if end <= s.LastClaimAt {
		return 0
	}
	return end - s.LastClaimAt
}

// Earned returns the reward accrued but not yet claimed:
// amount * rateBps * window / (10000 * secondsPerYear).
// A record whose accrual overflows is logged and reported as earning nothing;
// callers that settle rewards use EarnedChecked.
func Earned(s *model.Stake, now uint64) *uint256.Int {
	out, err := EarnedChecked(s, now)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"module":  "accrual",
			"amount":  s.Amount.Dec(),
			"rateBps": s.RateBps,
			"error":   err,
		}).Error("Stake accrual overflows, record is inconsistent")
		return new(uint256.Int)
	}
	return out
}

// EarnedChecked is Earned with the overflow surfaced as ErrOverflow
func EarnedChecked(s *model.Stake, now uint64) (*uint256.Int, error) {
	window := Window(s, now)
	if window == 0 || s.RateBps == 0 {
		return new(uint256.Int), nil
	}
	factor := new(uint256.Int).Mul(uint256.NewInt(s.RateBps), uint256.NewInt(window))
	out, overflow := new(uint256.Int).MulDivOverflow(&s.Amount, factor, accrualDenom)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// Estimate projects the full-duration reward of a hypothetical stake in period p
func Estimate(amount *uint256.Int, p model.PeriodConfig) (*uint256.Int, error) {
	return Reservation(amount, p.ScaledRateBps, p.DurationDays)
}

// ActivePrincipal sums the principal of all open stakes
func ActivePrincipal(stakes []model.Stake) *uint256.Int {
	total := new(uint256.Int)
	for i := range stakes {
		if stakes[i].IsOpen() {
			total.Add(total, &stakes[i].Amount)
		}
	}
	return total
}

// TotalPending sums the earned rewards of all open stakes at now
func TotalPending(stakes []model.Stake, now uint64) *uint256.Int {
	total := new(uint256.Int)
	for i := range stakes {
		total.Add(total, Earned(&stakes[i], now))
	}
	return total
}

// TotalReserved sums the outstanding reservations of all open stakes
func TotalReserved(stakes []model.Stake) *uint256.Int {
	total := new(uint256.Int)
	for i := range stakes {
		if stakes[i].IsOpen() {
			total.Add(total, &stakes[i].ReservedReward)
		}
	}
	return total
}
