package model

import (
	"github.com/holiman/uint256"
)

// PeriodView is the JSON rendering of a catalog entry
type PeriodView struct {
	Index         int    `json:"index"`
	DurationDays  uint64 `json:"duration_days"`
	Active        bool   `json:"active"`
	ScaledRateBps uint64 `json:"scaled_rate_bps"`
}

// StakeView is the JSON rendering of a stake record
type StakeView struct {
	Index          int    `json:"index"`
	Amount         string `json:"amount"`
	OpenedAt       uint64 `json:"opened_at"`
	UnlockAt       uint64 `json:"unlock_at"`
	DurationDays   uint64 `json:"duration_days"`
	RateBps        uint64 `json:"rate_bps"`
	LastClaimAt    uint64 `json:"last_claim_at"`
	ReservedReward string `json:"reserved_reward"`
	PendingReward  string `json:"pending_reward"`
	AutoCompound   bool   `json:"auto_compound"`
	Active         bool   `json:"active"`
	Withdrawn      bool   `json:"withdrawn"`
	PeriodIndex    int    `json:"period_index"`
	Status         string `json:"status"`
}

// NewStakeView renders a stake with its pending reward at now
func NewStakeView(index int, s Stake, pending *uint256.Int, now uint64) StakeView {
	return StakeView{
		Index:          index,
		Amount:         s.Amount.Dec(),
		OpenedAt:       s.OpenedAt,
		UnlockAt:       s.UnlockAt,
		DurationDays:   s.DurationDays,
		RateBps:        s.RateBps,
		LastClaimAt:    s.LastClaimAt,
		ReservedReward: s.ReservedReward.Dec(),
		PendingReward:  pending.Dec(),
		AutoCompound:   s.AutoCompound,
		Active:         s.Active,
		Withdrawn:      s.Withdrawn,
		PeriodIndex:    s.PeriodIndex,
		Status:         s.Status(now),
	}
}

// PoolView is the reward pool snapshot exposed to readers
type PoolView struct {
	TotalFunded      string `json:"total_funded"`
	TotalReserved    string `json:"total_reserved"`
	Available        string `json:"available"`
	BaseRate365      uint64 `json:"base_rate_365_bps"`
	LastRateChangeAt uint64 `json:"last_rate_change_at"`
	FundsAvailable   bool   `json:"funds_available"`
	TotalStaked      string `json:"total_staked"`
	TotalCompound    string `json:"total_compound"`
}

// CompoundView is the JSON rendering of an account's compound pool
type CompoundView struct {
	TotalAmount          string `json:"total_amount"`
	LastUpdateAt         uint64 `json:"last_update_at"`
	PreferredPeriodIndex int    `json:"preferred_period_index"`
	HasActivePool        bool   `json:"has_active_pool"`
}

// NewCompoundView renders a compound pool
func NewCompoundView(cp CompoundPool) CompoundView {
	return CompoundView{
		TotalAmount:          cp.TotalAmount.Dec(),
		LastUpdateAt:         cp.LastUpdateAt,
		PreferredPeriodIndex: cp.PreferredPeriodIndex,
		HasActivePool:        cp.HasActivePool,
	}
}

// AccountSummary aggregates an account's positions
type AccountSummary struct {
	Account         string `json:"account"`
	StakeCount      int    `json:"stake_count"`
	OpenCount       int    `json:"open_count"`
	ActivePrincipal string `json:"active_principal"`
	PendingRewards  string `json:"pending_rewards"`
	CompoundBalance string `json:"compound_balance"`
}
