package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/yourorg/lockstake-ledger/internal/ledger"
	"github.com/yourorg/lockstake-ledger/internal/validation"
)

// owner requires the verified caller to be the ledger owner. Only the circuit
// and audit routes need it; ledger admin calls check inside the engine.
func (s *Server) owner(w http.ResponseWriter, r *http.Request) bool {
	if callerFrom(r) != s.deps.Engine.Owner() {
		s.fail(w, r, ledger.ErrNotOwner)
		return false
	}
	return true
}

func (s *Server) handleSetRate(w http.ResponseWriter, r *http.Request) {
	who := callerFrom(r)
	var req validation.RateRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	rate, err := req.Parse()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Engine.SetBaseRate(r.Context(), who, rate); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"base_rate_365_bps": rate,
		"periods":           s.deps.Engine.Periods(),
	})
}

func (s *Server) handleTogglePeriod(w http.ResponseWriter, r *http.Request) {
	who := callerFrom(r)
	index, err := indexParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req validation.ToggleRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	active, err := req.Parse()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Engine.TogglePeriod(r.Context(), who, index, active); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.deps.Engine.Periods()[index])
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	s.poolCall(w, r, s.deps.Engine.Fund)
}

func (s *Server) handleWithdrawExcess(w http.ResponseWriter, r *http.Request) {
	s.poolCall(w, r, s.deps.Engine.WithdrawExcess)
}

// poolCall runs an owner call that moves an amount into or out of the pool
func (s *Server) poolCall(w http.ResponseWriter, r *http.Request, call func(context.Context, common.Address, *uint256.Int) error) {
	who := callerFrom(r)
	var req validation.AmountRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := req.Parse()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := call(r.Context(), who, amount); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.deps.Engine.Pool())
}

// handleCircuitStatus reports the breaker state
func (s *Server) handleCircuitStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Breaker == nil {
		s.errorResponse(w, r, http.StatusServiceUnavailable, "Circuit breaker not enabled")
		return
	}
	response := map[string]interface{}{
		"state": s.deps.Breaker.GetState().String(),
	}
	if reason := s.deps.Breaker.LastReason(); reason != "" {
		response["reason"] = reason
	}
	if report, ok := s.deps.Breaker.LastGoodReport(); ok {
		response["last_good_audit"] = time.Unix(int64(report.GeneratedAt), 0).UTC().Format(time.RFC3339)
	}
	s.writeJSON(w, http.StatusOK, response)
}

// handleCircuitReset force-closes the breaker
func (s *Server) handleCircuitReset(w http.ResponseWriter, r *http.Request) {
	if !s.owner(w, r) {
		return
	}
	if s.deps.Breaker == nil {
		s.errorResponse(w, r, http.StatusServiceUnavailable, "Circuit breaker not enabled")
		return
	}
	s.deps.Breaker.Reset()
	s.metrics.setBreaker(s.deps.Breaker.GetState())
	s.log.Warn("Circuit breaker reset by owner")
	s.writeJSON(w, http.StatusOK, map[string]string{
		"state":   s.deps.Breaker.GetState().String(),
		"message": "Circuit breaker reset",
	})
}

// handleAudit runs the ledger audit now
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if !s.owner(w, r) {
		return
	}
	if s.deps.Scheduler == nil {
		s.errorResponse(w, r, http.StatusServiceUnavailable, "Audit scheduler not enabled")
		return
	}
	res := s.deps.Scheduler.RunNow()
	if res.Err != nil {
		s.fail(w, r, res.Err)
		return
	}
	response := map[string]interface{}{
		"clean":          res.Violation == nil,
		"total_funded":   res.Report.TotalFunded.Dec(),
		"total_reserved": res.Report.TotalReserved.Dec(),
		"total_staked":   res.Report.TotalStaked.Dec(),
		"total_compound": res.Report.TotalCompound.Dec(),
		"custody":        res.Report.CustodyBalance.Dec(),
		"open_stakes":    res.Report.OpenStakes,
		"accounts":       res.Report.Accounts,
	}
	if res.Violation != nil {
		response["violation"] = res.Violation.Error()
	}
	s.writeJSON(w, http.StatusOK, response)
}
