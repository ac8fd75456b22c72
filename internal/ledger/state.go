package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/yourorg/lockstake-ledger/internal/model"
)

// state is everything the engine owns. A committed state is never mutated:
// calls work on a clone and the engine swaps it in on success.
type state struct {
	catalog  catalog
	pool     model.RewardPool
	stakes   map[common.Address][]model.Stake
	compound map[common.Address]model.CompoundPool

	// totalStaked is the principal of every open stake across accounts
	totalStaked uint256.Int

	// totalCompound is the sum of all compound pool balances
	totalCompound uint256.Int

	// owned marks stake slices already copied by this clone
	owned map[common.Address]bool
}

func newState(c catalog, baseRate uint64) *state {
	return &state{
		catalog:  c,
		pool:     model.RewardPool{BaseRate365: baseRate},
		stakes:   make(map[common.Address][]model.Stake),
		compound: make(map[common.Address]model.CompoundPool),
		owned:    make(map[common.Address]bool),
	}
}

// clone copies the aggregates and the compound map eagerly and shares stake
// slices until they are first written.
func (s *state) clone() *state {
	c := &state{
		catalog:       s.catalog.clone(),
		pool:          s.pool,
		stakes:        make(map[common.Address][]model.Stake, len(s.stakes)),
		compound:      make(map[common.Address]model.CompoundPool, len(s.compound)),
		totalStaked:   s.totalStaked,
		totalCompound: s.totalCompound,
		owned:         make(map[common.Address]bool),
	}
	for acct, list := range s.stakes {
		c.stakes[acct] = list
	}
	for acct, cp := range s.compound {
		c.compound[acct] = cp
	}
	return c
}

// stakesOf returns the read-only record list of an account
func (s *state) stakesOf(account common.Address) []model.Stake {
	return s.stakes[account]
}

// mutableStakes returns the account's record list, copying it on first write
func (s *state) mutableStakes(account common.Address) []model.Stake {
	list := s.stakes[account]
	if !s.owned[account] {
		cp := make([]model.Stake, len(list), len(list)+1)
		copy(cp, list)
		s.stakes[account] = cp
		s.owned[account] = true
		list = cp
	}
	return list
}

// stake returns a writable pointer to record index of account
func (s *state) stake(account common.Address, index int) (*model.Stake, error) {
	if index < 0 || index >= len(s.stakes[account]) {
		return nil, ErrInvalidIndex
	}
	return &s.mutableStakes(account)[index], nil
}

// appendStake adds a record and returns its index
func (s *state) appendStake(account common.Address, st model.Stake) int {
	list := append(s.mutableStakes(account), st)
	s.stakes[account] = list
	return len(list) - 1
}

// audit recomputes the per-record sums next to the running totals
func (s *state) audit() model.AuditReport {
	r := model.AuditReport{
		TotalFunded:   s.pool.TotalFunded,
		TotalReserved: s.pool.TotalReserved,
		TotalStaked:   s.totalStaked,
		TotalCompound: s.totalCompound,
		Accounts:      len(s.stakes),
	}
	for _, list := range s.stakes {
		for i := range list {
			if !list[i].IsOpen() {
				continue
			}
			r.OpenStakes++
			r.SumReservations.Add(&r.SumReservations, &list[i].ReservedReward)
			r.SumPrincipal.Add(&r.SumPrincipal, &list[i].Amount)
		}
	}
	for _, cp := range s.compound {
		r.SumCompound.Add(&r.SumCompound, &cp.TotalAmount)
	}
	return r
}
