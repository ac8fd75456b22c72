package ledger

import (
	"sort"

	"github.com/holiman/uint256"

	"github.com/yourorg/lockstake-ledger/internal/accrual"
)

// selectPeriod picks the period a reward is compounded into when the account
// gave no explicit target: the longest active period whose reservation still
// fits the free capacity. Equal durations are tried from the highest index
// down. ok is false when nothing is affordable.
func (s *state) selectPeriod(amount *uint256.Int) (index int, ok bool) {
	order := make([]int, len(s.catalog))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		pa, pb := s.catalog[order[a]], s.catalog[order[b]]
		if pa.DurationDays != pb.DurationDays {
			return pa.DurationDays > pb.DurationDays
		}
		return order[a] > order[b]
	})

	free := s.pool.Free()
	for _, i := range order {
		p := s.catalog[i]
		if !p.Active {
			continue
		}
		need, err := accrual.Reservation(amount, p.ScaledRateBps, p.DurationDays)
		if err != nil {
			continue
		}
		if !free.Lt(need) {
			return i, true
		}
	}
	return 0, false
}
