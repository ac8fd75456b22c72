package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/lockstake-ledger/internal/model"
	"github.com/yourorg/lockstake-ledger/internal/types"
)

func scaledRates(periods []model.PeriodView) []uint64 {
	out := make([]uint64, 0, len(periods))
	for _, p := range periods {
		out = append(out, p.ScaledRateBps)
	}
	return out
}

func TestNew_DefaultCatalog(t *testing.T) {
	h := newHarness(t)

	periods := h.e.Periods()
	require.Len(t, periods, 6)
	assert.Equal(t, []uint64{38, 76, 153, 493, 986, 2000}, scaledRates(periods))
	for i, p := range periods {
		assert.Equal(t, i, p.Index)
		assert.True(t, p.Active)
	}

	pool := h.e.Pool()
	assert.Equal(t, uint64(2000), pool.BaseRate365)
	assert.Zero(t, pool.LastRateChangeAt, "initial configuration does not start the cooldown")
	assert.False(t, pool.FundsAvailable)
}

func TestNew_RejectsBadOptions(t *testing.T) {
	opts := DefaultOptions()
	_, err := New(opts)
	assert.Error(t, err, "token missing")

	h := newHarness(t)
	opts.Token = h.tok
	opts.Custody = custodyAddr
	opts.Owner = owner

	bad := opts
	bad.PeriodDays = []uint64{7, 0}
	_, err = New(bad)
	assert.Error(t, err)

	bad = opts
	bad.BaseRateBps = 6000
	_, err = New(bad)
	assert.Error(t, err)

	bad = opts
	bad.PeriodDays = nil
	_, err = New(bad)
	assert.Error(t, err)
}

func TestSetBaseRate_Cooldown(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.e.SetBaseRate(h.ctx, owner, 3000))
	assert.Equal(t, uint64(t0), h.e.Pool().LastRateChangeAt)

	h.clock.Advance(days(3))
	err := h.e.SetBaseRate(h.ctx, owner, 4000)
	assert.ErrorIs(t, err, ErrCooldown)
	assert.Equal(t, uint64(3000), h.e.Pool().BaseRate365)

	h.clock.Advance(days(4))
	require.NoError(t, h.e.SetBaseRate(h.ctx, owner, 4000))

	rates := scaledRates(h.e.Periods())
	assert.Equal(t, uint64(306), rates[p28d])
	assert.Equal(t, uint64(4000), rates[p365d])
	assert.Equal(t, uint64(4000*7/365), rates[p7d])
}

func TestSetBaseRate_Errors(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.e.SetBaseRate(h.ctx, alice, 3000), ErrAuthorization)
	assert.ErrorIs(t, h.e.SetBaseRate(h.ctx, owner, 2000), ErrRateUnchanged)
	assert.ErrorIs(t, h.e.SetBaseRate(h.ctx, owner, 2000), ErrCooldown)
	assert.ErrorIs(t, h.e.SetBaseRate(h.ctx, owner, 0), ErrValidation)
	assert.ErrorIs(t, h.e.SetBaseRate(h.ctx, owner, 5001), ErrInvalidRate)
	assert.Equal(t, uint64(2000), h.e.Pool().BaseRate365)
}

func TestSetBaseRate_OpenStakesKeepTheirRate(t *testing.T) {
	h := newHarness(t)
	h.fund(types.Tokens(1000))
	h.open(alice, types.Tokens(1000), p28d, false)

	require.NoError(t, h.e.SetBaseRate(h.ctx, owner, 4000))

	st, err := h.e.StakeAt(alice, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(153), st.RateBps)

	h.open(alice, types.Tokens(1000), p28d, false)
	st, err = h.e.StakeAt(alice, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(306), st.RateBps)
	h.assertInvariants()
}

func TestTogglePeriod(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.e.TogglePeriod(h.ctx, bob, p14d, false), ErrNotOwner)
	assert.ErrorIs(t, h.e.TogglePeriod(h.ctx, owner, 9, false), ErrInvalidPeriod)

	require.NoError(t, h.e.TogglePeriod(h.ctx, owner, p14d, false))
	active := h.e.ActivePeriods()
	require.Len(t, active, 5)
	for _, p := range active {
		assert.NotEqual(t, p14d, p.Index)
	}
	assert.Len(t, h.e.Periods(), 6, "indices are permanent")

	require.NoError(t, h.e.TogglePeriod(h.ctx, owner, p14d, true))
	assert.Len(t, h.e.ActivePeriods(), 6)
	assert.Contains(t, h.sink.types(), model.EventPeriodToggled)
}

func TestEstimateReward(t *testing.T) {
	h := newHarness(t)

	r, err := h.e.EstimateReward(types.Tokens(1000), p365d)
	require.NoError(t, err)
	assert.Equal(t, types.Tokens(200).Dec(), r.Dec())

	require.NoError(t, h.e.TogglePeriod(h.ctx, owner, p365d, false))
	_, err = h.e.EstimateReward(types.Tokens(1000), p365d)
	assert.NoError(t, err, "estimation works for inactive periods")

	_, err = h.e.EstimateReward(types.Tokens(1), 17)
	assert.ErrorIs(t, err, ErrInvalidPeriod)
	_, err = h.e.EstimateReward(nil, p7d)
	assert.ErrorIs(t, err, ErrZeroAmount)
}
