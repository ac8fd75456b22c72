package api

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yourorg/lockstake-ledger/internal/validation"
)

func (s *Server) handleStakes(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.deps.Engine.StakeViews(account))
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	index, err := indexParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.deps.Engine.StakeView(account, index)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.deps.Engine.Summary(account))
}

func (s *Server) handleCompound(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.deps.Engine.CompoundPool(account))
}

// handleHistory returns journaled events of the account, newest first
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit, err := validation.ParseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	events, err := s.deps.Journal.History(r.Context(), account.Hex(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, HistoryResponse{Account: account.Hex(), Events: events})
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req validation.OpenRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	amount, period, err := req.Parse()
	if err != nil {
		s.fail(w, r, err)
		return
	}

	index, err := s.deps.Engine.Open(r.Context(), account, amount, period, req.AutoCompound)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.deps.Engine.StakeView(account, index)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, OpenResponse{Index: index, Stake: view})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	account, index, ok := s.stakeParams(w, r)
	if !ok {
		return
	}
	res, err := s.deps.Engine.Claim(r.Context(), account, index)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newClaimResponse(*res))
}

func (s *Server) handleClaimAll(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.deps.Engine.ClaimAll(r.Context(), account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newClaimAllResponse(res))
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	account, index, ok := s.stakeParams(w, r)
	if !ok {
		return
	}
	res, err := s.deps.Engine.Withdraw(r.Context(), account, index)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newWithdrawResponse(res))
}

func (s *Server) handleRestake(w http.ResponseWriter, r *http.Request) {
	account, index, ok := s.stakeParams(w, r)
	if !ok {
		return
	}
	var req validation.PeriodRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	period, given, err := req.Parse()
	if err == nil && !given {
		err = validation.ErrPeriodRequired
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := s.deps.Engine.Restake(r.Context(), account, index, period)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newRestakeResponse(res))
}

// handleFlushCompound reinvests the compound pool into the given period, or
// into the preferred period when the body names none
func (s *Server) handleFlushCompound(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req validation.PeriodRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	period, given, err := req.Parse()
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var index int
	if given {
		index, err = s.deps.Engine.FlushCompound(r.Context(), account, period)
	} else {
		index, err = s.deps.Engine.FlushCompoundAuto(r.Context(), account)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, FlushResponse{Index: index})
}

func (s *Server) handleWithdrawCompound(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := s.deps.Engine.WithdrawCompound(r.Context(), account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, AmountResponse{Amount: dec(amount)})
}

func (s *Server) stakeParams(w http.ResponseWriter, r *http.Request) (account common.Address, index int, ok bool) {
	account, err := accountParam(r)
	if err != nil {
		s.fail(w, r, err)
		return account, 0, false
	}
	index, err = indexParam(r)
	if err != nil {
		s.fail(w, r, err)
		return account, 0, false
	}
	return account, index, true
}
