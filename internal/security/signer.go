// Package security signs exported ledger data so off-chain observers can check
// that it came from this ledger and was not altered in transit
package security

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

// Errors returned by Verify
var (
	ErrDigestMismatch = errors.New("security: payload digest mismatch")
	ErrWrongSigner    = errors.New("security: signature from unexpected signer")
	ErrExpired        = errors.New("security: signature expired")
)

// Envelope is a payload with its keccak256 digest and an Ethereum-style
// recoverable signature over that digest
type Envelope struct {
	Payload    json.RawMessage `json:"payload"`
	Digest     string          `json:"keccak256"`
	Signature  string          `json:"signature"`
	Signer     string          `json:"signer"`
	SignedAt   int64           `json:"signed_at"`
	ValidUntil int64           `json:"valid_until,omitempty"`
}

// Signer holds the secp256k1 key used to sign export batches
type Signer struct {
	key      *ecdsa.PrivateKey
	address  common.Address
	validity time.Duration
	now      func() time.Time
}

// NewSigner loads a hex private key, or generates a fresh one when hexKey is empty
func NewSigner(hexKey string) (*Signer, error) {
	var (
		key *ecdsa.PrivateKey
		err error
	)
	if hexKey == "" {
		key, err = crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate key: %w", err)
		}
		logrus.Warn("No signing key configured, generated an ephemeral one")
	} else {
		key, err = crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("failed to parse signing key: %w", err)
		}
	}

	s := &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		now:     time.Now,
	}
	logrus.Infof("Batch signer initialized with address %s", s.address.Hex())
	return s, nil
}

// WithValidity bounds how long signatures stay valid; zero means forever
func (s *Signer) WithValidity(d time.Duration) *Signer {
	s.validity = d
	return s
}

// WithClock replaces the wall clock and returns the signer
func (s *Signer) WithClock(now func() time.Time) *Signer {
	s.now = now
	return s
}

// Address returns the Ethereum address of the signing key
func (s *Signer) Address() common.Address {
	return s.address
}

// Sign marshals payload and wraps it in a signed envelope
func (s *Signer) Sign(payload any) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return s.SignBytes(raw)
}

// SignBytes wraps an already encoded JSON payload in a signed envelope
func (s *Signer) SignBytes(raw []byte) (*Envelope, error) {
	digest := crypto.Keccak256Hash(raw)
	sig, err := crypto.Sign(digest.Bytes(), s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign payload: %w", err)
	}

	now := s.now()
	env := &Envelope{
		Payload:   json.RawMessage(raw),
		Digest:    digest.Hex(),
		Signature: hexutil.Encode(sig),
		Signer:    s.address.Hex(),
		SignedAt:  now.Unix(),
	}
	if s.validity > 0 {
		env.ValidUntil = now.Add(s.validity).Unix()
	}
	return env, nil
}

// Verify checks the digest and signature of env and returns the recovered
// signer. When expected is non-zero the signer must match it.
func Verify(env *Envelope, expected common.Address, now time.Time) (common.Address, error) {
	if env == nil {
		return common.Address{}, errors.New("security: nil envelope")
	}
	digest := crypto.Keccak256Hash(env.Payload)
	if digest.Hex() != env.Digest {
		return common.Address{}, ErrDigestMismatch
	}
	if env.ValidUntil != 0 && now.Unix() > env.ValidUntil {
		return common.Address{}, fmt.Errorf("%w at %s", ErrExpired, time.Unix(env.ValidUntil, 0).UTC().Format(time.RFC3339))
	}

	sig, err := hexutil.Decode(env.Signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(sig))
	}
	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}
	signer := crypto.PubkeyToAddress(*pub)

	if signer.Hex() != env.Signer {
		return common.Address{}, ErrWrongSigner
	}
	if expected != (common.Address{}) && signer != expected {
		return common.Address{}, ErrWrongSigner
	}
	return signer, nil
}
