package api

import (
	"github.com/holiman/uint256"

	"github.com/yourorg/lockstake-ledger/internal/ledger"
	"github.com/yourorg/lockstake-ledger/internal/model"
)

// OpenResponse reports a newly opened stake
type OpenResponse struct {
	Index int             `json:"index"`
	Stake model.StakeView `json:"stake"`
}

// ClaimResponse renders a ledger.ClaimResult
type ClaimResponse struct {
	Index       int    `json:"index"`
	Reward      string `json:"reward"`
	Compounded  bool   `json:"compounded"`
	FlushedInto *int   `json:"flushed_into,omitempty"`
}

// ClaimAllResponse renders a ledger.ClaimAllResult
type ClaimAllResponse struct {
	Claims     []ClaimResponse `json:"claims"`
	CashPaid   string          `json:"cash_paid"`
	Compounded string          `json:"compounded"`
}

// WithdrawResponse renders a ledger.WithdrawResult
type WithdrawResponse struct {
	Principal      string `json:"principal"`
	Reward         string `json:"reward"`
	CompoundedInto *int   `json:"compounded_into,omitempty"`
}

// RestakeResponse renders a ledger.RestakeResult
type RestakeResponse struct {
	NewIndex int    `json:"new_index"`
	Amount   string `json:"amount"`
	Reward   string `json:"reward"`
}

// FlushResponse reports the stake opened from a compound pool
type FlushResponse struct {
	Index int `json:"index"`
}

// AmountResponse carries a single token amount
type AmountResponse struct {
	Amount string `json:"amount"`
}

// EstimateResponse is the projected full-duration reward
type EstimateResponse struct {
	Amount      string `json:"amount"`
	PeriodIndex int    `json:"period_index"`
	Reward      string `json:"reward"`
}

// HistoryResponse lists journaled events of an account
type HistoryResponse struct {
	Account string        `json:"account"`
	Events  []model.Event `json:"events"`
}

// BalanceResponse is a dev custody balance
type BalanceResponse struct {
	Account string `json:"account"`
	Balance string `json:"balance"`
	Symbol  string `json:"symbol"`
}

func dec(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func optionalIndex(i int) *int {
	if i < 0 {
		return nil
	}
	return &i
}

func newClaimResponse(r ledger.ClaimResult) ClaimResponse {
	return ClaimResponse{
		Index:       r.Index,
		Reward:      dec(r.Reward),
		Compounded:  r.Compounded,
		FlushedInto: optionalIndex(r.FlushedInto),
	}
}

func newClaimAllResponse(r *ledger.ClaimAllResult) ClaimAllResponse {
	out := ClaimAllResponse{
		Claims:     make([]ClaimResponse, 0, len(r.Claims)),
		CashPaid:   dec(r.CashPaid),
		Compounded: dec(r.Compounded),
	}
	for _, c := range r.Claims {
		out.Claims = append(out.Claims, newClaimResponse(c))
	}
	return out
}

func newWithdrawResponse(r *ledger.WithdrawResult) WithdrawResponse {
	return WithdrawResponse{
		Principal:      dec(r.Principal),
		Reward:         dec(r.Reward),
		CompoundedInto: optionalIndex(r.CompoundedInto),
	}
}

func newRestakeResponse(r *ledger.RestakeResult) RestakeResponse {
	return RestakeResponse{
		NewIndex: r.NewIndex,
		Amount:   dec(r.Amount),
		Reward:   dec(r.Reward),
	}
}
