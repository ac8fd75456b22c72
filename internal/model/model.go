// Package model defines the core data structures for the lock-stake ledger.
package model

import (
	"github.com/holiman/uint256"
)

// PeriodConfig is one entry of the lock-duration menu.
type PeriodConfig struct {
	// DurationDays is the lock length of stakes opened under this period
	DurationDays uint64

	// Active controls whether new stakes may be opened under this period
	Active bool

	// ScaledRateBps is the annual rate in basis points scaled to the duration:
	// baseRate365 * DurationDays / 365
	ScaledRateBps uint64
}

// Stake is a single locked position. Records are append-only per account and
// addressed by (account, index) forever.
type Stake struct {
	Amount       uint256.Int
	OpenedAt     uint64
	UnlockAt     uint64
	DurationDays uint64

	// RateBps is copied from the period at creation and never re-priced
	RateBps     uint64
	LastClaimAt uint64

	// ReservedReward is the part of the full-duration reward still promised to
	// this stake. Paid-out rewards are deducted from it.
	ReservedReward uint256.Int

	AutoCompound bool
	Active       bool
	Withdrawn    bool
	PeriodIndex  int
}

// IsOpen reports whether the stake still holds principal and accrues reward
func (s *Stake) IsOpen() bool {
	return s.Active && !s.Withdrawn
}

// Matured reports whether the lock window has elapsed at now
func (s *Stake) Matured(now uint64) bool {
	return now >= s.UnlockAt
}

// Status returns a human readable lifecycle label
func (s *Stake) Status(now uint64) string {
	switch {
	case s.Withdrawn:
		return "withdrawn"
	case !s.Active:
		return "inactive"
	case s.Matured(now):
		return "matured"
	default:
		return "open"
	}
}

// RewardPool is the process-wide reward solvency bookkeeping.
type RewardPool struct {
	// TotalFunded is the reward capacity paid in by the owner and not yet paid out
	TotalFunded uint256.Int

	// TotalReserved is the capacity earmarked for promised rewards of open stakes
	TotalReserved uint256.Int

	BaseRate365      uint64
	LastRateChangeAt uint64
	FundsAvailable   bool
}

// Free returns the funded capacity not covered by reservations
func (p *RewardPool) Free() *uint256.Int {
	if p.TotalFunded.Lt(&p.TotalReserved) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(&p.TotalFunded, &p.TotalReserved)
}

// CompoundPool holds auto-compounded rewards of one account awaiting reinvestment.
type CompoundPool struct {
	TotalAmount          uint256.Int
	LastUpdateAt         uint64
	PreferredPeriodIndex int
	HasActivePool        bool
}

// AuditReport captures the pool totals next to the sums recomputed from the
// individual records, so invariants can be checked from outside the ledger.
type AuditReport struct {
	TotalFunded     uint256.Int
	TotalReserved   uint256.Int
	SumReservations uint256.Int
	TotalStaked     uint256.Int
	SumPrincipal    uint256.Int
	TotalCompound   uint256.Int
	SumCompound     uint256.Int
	CustodyBalance  uint256.Int
	OpenStakes      int
	Accounts        int
	GeneratedAt     uint64
}
