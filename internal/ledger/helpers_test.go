package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/lockstake-ledger/internal/accrual"
	"github.com/yourorg/lockstake-ledger/internal/custody"
	"github.com/yourorg/lockstake-ledger/internal/model"
	"github.com/yourorg/lockstake-ledger/internal/types"
)

const t0 = 1_700_000_000

var (
	owner       = common.HexToAddress("0x000000000000000000000000000000000000a0a0")
	custodyAddr = common.HexToAddress("0x000000000000000000000000000000000000c0c0")
	alice       = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob         = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

const (
	p7d = iota
	p14d
	p28d
	p90d
	p180d
	p365d
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

type recordingSink struct {
	mu     sync.Mutex
	events []model.Event
}

func (s *recordingSink) Publish(_ context.Context, events []model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Type)
	}
	return out
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

type harness struct {
	t     *testing.T
	ctx   context.Context
	e     *Engine
	tok   *custody.MemoryToken
	clock *manualClock
	sink  *recordingSink
}

func newHarness(t *testing.T) *harness {
	return newHarnessWith(t, custodyToken(), nil)
}

func newHarnessWith(t *testing.T, tok *custody.MemoryToken, mutate func(*Options)) *harness {
	t.Helper()
	opts := DefaultOptions()
	opts.Token = tok
	opts.Custody = custodyAddr
	opts.Owner = owner
	if mutate != nil {
		mutate(&opts)
	}

	e, err := New(opts)
	require.NoError(t, err)

	clock := &manualClock{now: time.Unix(t0, 0)}
	sink := &recordingSink{}
	e.WithClock(clock.Now).WithSink(sink)

	unlimited := new(uint256.Int).SetAllOne()
	for _, who := range []common.Address{owner, alice, bob} {
		tok.Mint(who, types.Tokens(1_000_000))
		tok.Approve(who, custodyAddr, unlimited)
	}

	return &harness{t: t, ctx: context.Background(), e: e, tok: tok, clock: clock, sink: sink}
}

func (h *harness) fund(amount *uint256.Int) {
	h.t.Helper()
	require.NoError(h.t, h.e.Fund(h.ctx, owner, amount))
}

func (h *harness) open(who common.Address, amount *uint256.Int, period int, auto bool) int {
	h.t.Helper()
	index, err := h.e.Open(h.ctx, who, amount, period, auto)
	require.NoError(h.t, err)
	return index
}

func (h *harness) balance(who common.Address) *uint256.Int {
	h.t.Helper()
	b, err := h.tok.BalanceOf(h.ctx, who)
	require.NoError(h.t, err)
	return b
}

// assertInvariants checks the solvency and bookkeeping identities against
// the records and the custody balance
func (h *harness) assertInvariants() {
	h.t.Helper()
	r, err := h.e.Audit(h.ctx)
	require.NoError(h.t, err)

	assert.False(h.t, r.TotalFunded.Lt(&r.TotalReserved), "funded %s < reserved %s", r.TotalFunded.Dec(), r.TotalReserved.Dec())
	assert.Equal(h.t, r.SumReservations.Dec(), r.TotalReserved.Dec(), "reserved total drifted from records")
	assert.Equal(h.t, r.SumPrincipal.Dec(), r.TotalStaked.Dec(), "principal total drifted from records")
	assert.Equal(h.t, r.SumCompound.Dec(), r.TotalCompound.Dec(), "compound total drifted from pools")

	backing := new(uint256.Int).Add(&r.TotalFunded, &r.TotalStaked)
	backing.Add(backing, &r.TotalCompound)
	assert.False(h.t, r.CustodyBalance.Lt(backing), "custody %s cannot back %s", r.CustodyBalance.Dec(), backing.Dec())
}

func reservation(t *testing.T, amount *uint256.Int, rate, durationDays uint64) *uint256.Int {
	t.Helper()
	r, err := accrual.Reservation(amount, rate, durationDays)
	require.NoError(t, err)
	return r
}

func add(a, b *uint256.Int) *uint256.Int {
	return new(uint256.Int).Add(a, b)
}

func sub(a, b *uint256.Int) *uint256.Int {
	return new(uint256.Int).Sub(a, b)
}

func mustParse(t *testing.T, dec string) *uint256.Int {
	t.Helper()
	v, err := uint256.FromDecimal(dec)
	require.NoError(t, err)
	return v
}

func custodyToken() *custody.MemoryToken {
	return custody.NewMemoryToken("LOCK")
}
