package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/lockstake-ledger/internal/circuitbreaker"
	"github.com/yourorg/lockstake-ledger/internal/ledger"
	"github.com/yourorg/lockstake-ledger/internal/otel"
	"github.com/yourorg/lockstake-ledger/internal/security"
	"github.com/yourorg/lockstake-ledger/internal/validation"
)

// Administrative calls name their principal in CallerHeader and prove it with
// a signature over the request in ProofHeader
const (
	CallerHeader = "X-Caller"
	ProofHeader  = "X-Caller-Proof"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Status string `json:"status"`
	Kind   string `json:"kind,omitempty"`
	Error  string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.WithError(err).Warn("Failed to encode response")
	}
}

// errorResponse returns a formatted error response
func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, statusCode int, errorMsg string) {
	s.log.WithFields(logrus.Fields{
		"path":   r.URL.Path,
		"status": statusCode,
	}).Warn(errorMsg)
	s.writeJSON(w, statusCode, ErrorResponse{Status: "error", Error: errorMsg})
}

// fail maps a ledger error onto its HTTP status
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	otel.RecordError(r.Context(), err)
	status, kind := statusFor(err)
	s.metrics.rejected.WithLabelValues(kind).Inc()

	if status >= http.StatusInternalServerError {
		s.log.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
	} else {
		s.log.WithError(err).WithField("path", r.URL.Path).Debug("Request rejected")
	}
	s.writeJSON(w, status, ErrorResponse{Status: "error", Kind: kind, Error: err.Error()})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, circuitbreaker.ErrOpen):
		return http.StatusServiceUnavailable, "circuit_open"
	case errors.Is(err, ledger.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, ledger.ErrAuthorization):
		return http.StatusForbidden, "authorization"
	case errors.Is(err, ledger.ErrState):
		return http.StatusConflict, "state"
	case errors.Is(err, ledger.ErrCooldown):
		return http.StatusTooManyRequests, "cooldown"
	case errors.Is(err, ledger.ErrSolvency):
		return http.StatusUnprocessableEntity, "solvency"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// decode reads a JSON body into v; an empty body leaves v untouched
func decode(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: invalid request body: %v", ledger.ErrValidation, err)
	}
	return nil
}

func accountParam(r *http.Request) (common.Address, error) {
	return validation.ParseAddress(chi.URLParam(r, "account"))
}

func indexParam(r *http.Request) (int, error) {
	return validation.ParseIndex(chi.URLParam(r, "index"))
}

type callerKey struct{}

// callerFrom returns the principal verified by authenticate
func callerFrom(r *http.Request) common.Address {
	who, _ := r.Context().Value(callerKey{}).(common.Address)
	return who
}

// verifyCaller checks the claimed X-Caller against the signed proof of the
// request
func (s *Server) verifyCaller(r *http.Request, body []byte) (common.Address, error) {
	raw := strings.TrimSpace(r.Header.Get(CallerHeader))
	if raw == "" {
		return common.Address{}, fmt.Errorf("%w: missing %s header", ledger.ErrAuthorization, CallerHeader)
	}
	claimed, err := validation.ParseAddress(raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: invalid %s header", ledger.ErrAuthorization, CallerHeader)
	}
	who, err := security.VerifyRequest(r.Header.Get(ProofHeader), claimed, r.Method, r.URL.Path, body, time.Now(), s.config.ProofMaxAge)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ledger.ErrAuthorization, err)
	}
	return who, nil
}
