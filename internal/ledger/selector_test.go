package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/lockstake-ledger/internal/types"
)

func fundedState(t *testing.T, days []uint64, funded uint64) *state {
	t.Helper()
	cat, err := newCatalog(days, 2000)
	require.NoError(t, err)
	s := newState(cat, 2000)
	s.pool.TotalFunded.Set(types.Tokens(funded))
	s.pool.FundsAvailable = true
	return s
}

func TestSelectPeriod(t *testing.T) {
	tests := []struct {
		name   string
		days   []uint64
		funded uint64
		amount uint64
		off    []int
		want   int
		ok     bool
	}{
		{name: "longest when affordable", days: []uint64{7, 14, 28, 90, 180, 365}, funded: 1000, amount: 100, want: 5, ok: true},
		{name: "catalog order does not matter", days: []uint64{365, 7, 90}, funded: 1000, amount: 100, want: 0, ok: true},
		{name: "steps down to what fits", days: []uint64{7, 14, 28, 90, 180, 365}, funded: 10, amount: 100, want: 4, ok: true},
		{name: "skips inactive", days: []uint64{7, 14, 28, 90, 180, 365}, funded: 1000, amount: 100, off: []int{5, 4}, want: 3, ok: true},
		{name: "equal durations prefer higher index", days: []uint64{30, 30}, funded: 1000, amount: 100, want: 1, ok: true},
		{name: "nothing affordable", days: []uint64{7, 365}, funded: 0, amount: 100, ok: false},
		{name: "nothing active", days: []uint64{7}, funded: 1000, amount: 100, off: []int{0}, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := fundedState(t, tt.days, tt.funded)
			for _, i := range tt.off {
				s.catalog[i].Active = false
			}
			got, ok := s.selectPeriod(types.Tokens(tt.amount))
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestSelectPeriod_RespectsReservations(t *testing.T) {
	s := fundedState(t, []uint64{7, 365}, 1000)
	s.pool.TotalReserved.Set(types.Tokens(990))

	// 100 tokens for 365 days needs 20 of capacity, for 7 days about 0.07
	got, ok := s.selectPeriod(types.Tokens(100))
	require.True(t, ok)
	assert.Equal(t, 0, got)
}
