package security

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Errors returned by VerifyRequest
var (
	ErrMissingProof   = errors.New("security: missing caller proof")
	ErrProofMalformed = errors.New("security: malformed caller proof")
	ErrProofMismatch  = errors.New("security: caller proof does not match request")
	ErrProofStale     = errors.New("security: caller proof outside the accepted window")
)

// CallerProof binds a caller signature to one HTTP request
type CallerProof struct {
	Method     string `json:"method"`
	Path       string `json:"path"`
	BodyDigest string `json:"body_keccak256"`
	IssuedAt   int64  `json:"issued_at"`
}

func newCallerProof(method, path string, body []byte, issuedAt time.Time) CallerProof {
	return CallerProof{
		Method:     strings.ToUpper(method),
		Path:       path,
		BodyDigest: crypto.Keccak256Hash(body).Hex(),
		IssuedAt:   issuedAt.Unix(),
	}
}

// SignRequest returns the proof header value for a request: the hex encoded
// JSON of a signed envelope over a CallerProof
func (s *Signer) SignRequest(method, path string, body []byte) (string, error) {
	env, err := s.Sign(newCallerProof(method, path, body, s.now()))
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to encode proof: %w", err)
	}
	return hexutil.Encode(raw), nil
}

// VerifyRequest checks a proof header against the request it arrived with and
// returns the signer, which must be caller. Proofs issued more than maxAge
// away from now are refused.
func VerifyRequest(header string, caller common.Address, method, path string, body []byte, now time.Time, maxAge time.Duration) (common.Address, error) {
	if strings.TrimSpace(header) == "" {
		return common.Address{}, ErrMissingProof
	}
	raw, err := hexutil.Decode(strings.TrimSpace(header))
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrProofMalformed, err)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrProofMalformed, err)
	}
	if caller == (common.Address{}) {
		return common.Address{}, ErrWrongSigner
	}
	signer, err := Verify(&env, caller, now)
	if err != nil {
		return common.Address{}, err
	}

	var proof CallerProof
	if err := json.Unmarshal(env.Payload, &proof); err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrProofMalformed, err)
	}
	want := newCallerProof(method, path, body, time.Unix(proof.IssuedAt, 0))
	if proof != want {
		return common.Address{}, ErrProofMismatch
	}
	age := now.Sub(time.Unix(proof.IssuedAt, 0))
	if age < 0 {
		age = -age
	}
	if age > maxAge {
		return common.Address{}, fmt.Errorf("%w: issued %s ago", ErrProofStale, age)
	}
	return signer, nil
}
