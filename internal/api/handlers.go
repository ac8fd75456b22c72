package api

import (
	"net/http"
	"time"

	"github.com/yourorg/lockstake-ledger/internal/validation"
)

// handleHealth is a simple health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"version":   Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatus provides detailed service status information
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	engine := s.deps.Engine
	status := map[string]interface{}{
		"status":  "operational",
		"uptime":  time.Since(s.startTime).String(),
		"version": Version,
		"owner":   engine.Owner().Hex(),
		"custody": engine.CustodyAddress().Hex(),
		"pool":    engine.Pool(),
		"periods": len(engine.Periods()),
	}

	if s.deps.Breaker != nil {
		status["circuit_state"] = s.deps.Breaker.GetState().String()
		if reason := s.deps.Breaker.LastReason(); reason != "" {
			status["circuit_reason"] = reason
		}
	}
	if s.deps.Exporter != nil {
		status["export"] = s.deps.Exporter.Status()
	}
	if n, err := s.deps.Journal.Count(r.Context()); err == nil {
		status["journaled_events"] = n
	}
	if s.deps.Scheduler != nil {
		last := s.deps.Scheduler.Last()
		if last.Runs > 0 {
			audit := map[string]interface{}{
				"runs":   last.Runs,
				"ran_at": last.RanAt.UTC().Format(time.RFC3339),
				"clean":  last.Err == nil && last.Violation == nil,
			}
			if last.Violation != nil {
				audit["violation"] = last.Violation.Error()
			}
			if last.Err != nil {
				audit["error"] = last.Err.Error()
			}
			status["last_audit"] = audit
		}
	}

	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handlePeriods(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.deps.Engine.Periods())
}

func (s *Server) handleActivePeriods(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.deps.Engine.ActivePeriods())
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.deps.Engine.Pool())
}

// handleEstimate projects the reward of ?amount= in ?period=
func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := validation.ParseAmount(q.Get("amount"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	period, err := validation.ParseIndex(q.Get("period"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	reward, err := s.deps.Engine.EstimateReward(amount, period)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, EstimateResponse{
		Amount:      amount.Dec(),
		PeriodIndex: period,
		Reward:      reward.Dec(),
	})
}
