package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/lockstake-ledger/internal/model"
	"github.com/yourorg/lockstake-ledger/internal/types"
)

func TestFund(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.e.Fund(h.ctx, alice, types.Tokens(10)), ErrAuthorization)
	assert.ErrorIs(t, h.e.Fund(h.ctx, owner, nil), ErrZeroAmount)

	h.fund(types.Tokens(10))
	h.fund(types.Tokens(5))
	pool := h.e.Pool()
	assert.Equal(t, types.Tokens(15).Dec(), pool.TotalFunded)
	assert.Equal(t, types.Tokens(15).Dec(), pool.Available)
	assert.True(t, pool.FundsAvailable)
	assert.Equal(t, types.Tokens(15).Dec(), h.balance(custodyAddr).Dec())
}

func TestFund_TransferFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	h.tok.Approve(owner, custodyAddr, types.Tokens(1))

	err := h.e.Fund(h.ctx, owner, types.Tokens(10))
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.ErrorIs(t, err, ErrSolvency)
	assert.Equal(t, "0", h.e.Pool().TotalFunded)
	assert.False(t, h.e.Pool().FundsAvailable)
}

func TestWithdrawExcess(t *testing.T) {
	h := newHarness(t)
	h.fund(types.Tokens(300))
	h.open(alice, types.Tokens(1000), p365d, false)

	// surplus that reached custody outside the ledger
	h.tok.Mint(custodyAddr, types.Tokens(50))

	// custody 1350 backs 1000 principal and 200 reserved
	err := h.e.WithdrawExcess(h.ctx, owner, types.Tokens(151))
	assert.ErrorIs(t, err, ErrExcessUnavailable)
	assert.ErrorIs(t, err, ErrSolvency)

	assert.ErrorIs(t, h.e.WithdrawExcess(h.ctx, alice, types.Tokens(1)), ErrNotOwner)

	before := h.balance(owner)
	require.NoError(t, h.e.WithdrawExcess(h.ctx, owner, types.Tokens(150)))
	assert.Equal(t, add(before, types.Tokens(150)).Dec(), h.balance(owner).Dec())

	pool := h.e.Pool()
	assert.Equal(t, types.Tokens(200).Dec(), pool.TotalFunded)
	assert.Equal(t, "0", pool.Available)
	assert.False(t, pool.FundsAvailable, "unreserved capacity drained")
	assert.Contains(t, h.sink.types(), model.EventPoolDrained)
	h.assertInvariants()

	_, err = h.e.Open(h.ctx, bob, types.Tokens(1), p7d, false)
	assert.ErrorIs(t, err, ErrFundsNotOffered)

	h.fund(types.Tokens(10))
	assert.True(t, h.e.Pool().FundsAvailable)
	h.open(bob, types.Tokens(1), p7d, false)
}

func TestWithdrawExcess_PartialKeepsFundsAvailable(t *testing.T) {
	h := newHarness(t)
	h.fund(types.Tokens(100))

	require.NoError(t, h.e.WithdrawExcess(h.ctx, owner, types.Tokens(40)))
	pool := h.e.Pool()
	assert.Equal(t, types.Tokens(60).Dec(), pool.TotalFunded)
	assert.True(t, pool.FundsAvailable)
	h.assertInvariants()
}

func TestWithdrawExcess_CompoundBalancesAreNotExcess(t *testing.T) {
	h := newHarness(t)
	h.fund(types.Tokens(300))
	h.open(alice, types.Tokens(1000), p365d, true)
	h.clock.Advance(days(30))
	res, err := h.e.Claim(h.ctx, alice, 0)
	require.NoError(t, err)
	require.True(t, res.Compounded)

	audit, err := h.e.Audit(h.ctx)
	require.NoError(t, err)
	free := sub(&audit.TotalFunded, &audit.TotalReserved)

	err = h.e.WithdrawExcess(h.ctx, owner, add(free, types.OneToken()))
	assert.ErrorIs(t, err, ErrExcessUnavailable)
	require.NoError(t, h.e.WithdrawExcess(h.ctx, owner, free))
	h.assertInvariants()
}

func TestAudit(t *testing.T) {
	h := newHarness(t)
	h.fund(types.Tokens(500))
	h.open(alice, types.Tokens(1000), p90d, false)
	h.open(bob, types.Tokens(10), p7d, false)

	r, err := h.e.Audit(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, r.OpenStakes)
	assert.Equal(t, 2, r.Accounts)
	assert.Equal(t, uint64(t0), r.GeneratedAt)
	assert.Equal(t, types.Tokens(1510).Dec(), r.CustodyBalance.Dec())
	assert.Equal(t, types.Tokens(1010).Dec(), r.SumPrincipal.Dec())
}
