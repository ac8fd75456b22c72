package api

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yourorg/lockstake-ledger/internal/validation"
)

// handleMint credits dev custody tokens to an account
func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req validation.TokenRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	account, amount, err := req.Parse()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.deps.DevToken.Mint(account, amount)
	s.writeBalance(w, r, account)
}

// handleApprove lets the ledger custody pull up to amount from account
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req validation.TokenRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	account, amount, err := req.Parse()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.deps.DevToken.Approve(account, s.deps.Engine.CustodyAddress(), amount)
	allowance, err := s.deps.DevToken.Allowance(r.Context(), account, s.deps.Engine.CustodyAddress())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"account":   account.Hex(),
		"spender":   s.deps.Engine.CustodyAddress().Hex(),
		"allowance": allowance.Dec(),
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeBalance(w, r, account)
}

func (s *Server) writeBalance(w http.ResponseWriter, r *http.Request, account common.Address) {
	balance, err := s.deps.DevToken.BalanceOf(r.Context(), account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, BalanceResponse{
		Account: account.Hex(),
		Balance: balance.Dec(),
		Symbol:  s.deps.DevToken.Symbol(),
	})
}
