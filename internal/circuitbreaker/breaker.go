// Package circuitbreaker guards the ledger's mutating surface against broken
// solvency bookkeeping: when an audit shows the pool can no longer honor its
// promises, the breaker opens and new mutations are refused until audits are
// clean again.
package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/lockstake-ledger/internal/model"
	"github.com/yourorg/lockstake-ledger/internal/types"
)

// ErrOpen is returned by Allow while the breaker refuses operations
var ErrOpen = errors.New("circuit breaker open: solvency protection engaged")

// State represents the current state of the circuit breaker
type State int

// Circuit breaker states
const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Tripped, no new operations allowed
	StateHalfOpen              // Testing if the ledger has recovered
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Thresholds defines the limits that will trigger the circuit breaker
type Thresholds struct {
	// MinCoverageBps is the minimum TotalFunded/TotalReserved ratio in basis
	// points. 10000 means every reservation must be fully funded.
	MinCoverageBps uint64 `json:"min_coverage_bps"`

	// MaxCustodyDropBps trips the breaker when custody shrinks by more than
	// this fraction between two clean audits. Zero disables the check.
	MaxCustodyDropBps uint64 `json:"max_custody_drop_bps,omitempty"`
}

// CircuitBreaker implements the circuit breaker pattern over ledger audits.
type CircuitBreaker struct {
	// Configuration thresholds for triggering the circuit breaker
	thresholds Thresholds

	// Current state of the circuit breaker (Closed, Open, HalfOpen)
	state State

	// Timestamp of the last circuit trip
	lastTrip time.Time

	// Reason of the last trip
	lastReason string

	// Duration before auto-reset attempt
	resetDelay time.Duration

	// Mutex for thread safety
	mu sync.RWMutex

	// Last audit that passed every check
	lastGood *model.AuditReport

	// Count of consecutive clean audits in HalfOpen state
	successCount int

	// Number of clean audits required to close the circuit
	successThreshold int

	// Event callback for monitoring/alerting
	onTripCallback func(reason string, report model.AuditReport)

	now func() time.Time
}

// New creates a new CircuitBreaker with the provided thresholds
func New(t Thresholds) *CircuitBreaker {
	return &CircuitBreaker{
		thresholds:       t,
		state:            StateClosed,
		resetDelay:       5 * time.Minute,
		successThreshold: 3,
		now:              time.Now,
	}
}

// WithResetDelay sets a custom reset delay and returns the circuit breaker
func (cb *CircuitBreaker) WithResetDelay(delay time.Duration) *CircuitBreaker {
	cb.resetDelay = delay
	return cb
}

// WithSuccessThreshold sets the number of clean audits needed to close the circuit
func (cb *CircuitBreaker) WithSuccessThreshold(threshold int) *CircuitBreaker {
	cb.successThreshold = threshold
	return cb
}

// WithTripCallback sets a callback function that is called when the circuit trips
func (cb *CircuitBreaker) WithTripCallback(callback func(reason string, report model.AuditReport)) *CircuitBreaker {
	cb.onTripCallback = callback
	return cb
}

// WithClock replaces the wall clock and returns the circuit breaker
func (cb *CircuitBreaker) WithClock(now func() time.Time) *CircuitBreaker {
	cb.now = now
	return cb
}

// Allow reports whether a mutating operation may proceed. An open circuit
// moves to half-open once the reset delay has passed.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}
	if cb.now().Sub(cb.lastTrip) > cb.resetDelay {
		cb.state = StateHalfOpen
		cb.successCount = 0
		logrus.Info("Circuit breaker half-open: testing ledger recovery")
		return nil
	}
	return fmt.Errorf("%w: %s", ErrOpen, cb.lastReason)
}

// Check evaluates an audit report. A violation trips the circuit and is
// returned; clean audits count toward closing a half-open circuit.
func (cb *CircuitBreaker) Check(report model.AuditReport) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if reason := cb.violation(&report); reason != "" {
		cb.trip(reason, report)
		return errors.New(reason)
	}

	logrus.Debug("Circuit breaker checks passed")
	good := report
	cb.lastGood = &good

	if cb.state == StateHalfOpen {
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = StateClosed
			cb.successCount = 0
			logrus.Info("Circuit breaker closed: ledger has recovered")
		}
	}
	return nil
}

// violation returns the first broken invariant, or ""
func (cb *CircuitBreaker) violation(r *model.AuditReport) string {
	if r.TotalFunded.Lt(&r.TotalReserved) {
		return fmt.Sprintf("reserved %s exceeds funded %s", r.TotalReserved.Dec(), r.TotalFunded.Dec())
	}
	if !r.TotalReserved.Eq(&r.SumReservations) {
		return fmt.Sprintf("reserved total %s differs from stake reservations %s", r.TotalReserved.Dec(), r.SumReservations.Dec())
	}
	if !r.TotalStaked.Eq(&r.SumPrincipal) {
		return fmt.Sprintf("principal total %s differs from open stakes %s", r.TotalStaked.Dec(), r.SumPrincipal.Dec())
	}
	if !r.TotalCompound.Eq(&r.SumCompound) {
		return fmt.Sprintf("compound total %s differs from pool balances %s", r.TotalCompound.Dec(), r.SumCompound.Dec())
	}

	backing := new(uint256.Int).Add(&r.TotalFunded, &r.TotalStaked)
	backing.Add(backing, &r.TotalCompound)
	if r.CustodyBalance.Lt(backing) {
		return fmt.Sprintf("custody shortfall: holds %s, owes %s", r.CustodyBalance.Dec(), backing.Dec())
	}

	if cb.thresholds.MinCoverageBps > 0 && !r.TotalReserved.IsZero() {
		coverage := coverageBps(&r.TotalFunded, &r.TotalReserved)
		if coverage < cb.thresholds.MinCoverageBps {
			return fmt.Sprintf("reward coverage too low: %d bps (threshold: %d bps)", coverage, cb.thresholds.MinCoverageBps)
		}
	}

	if cb.thresholds.MaxCustodyDropBps > 0 && cb.lastGood != nil && !cb.lastGood.CustodyBalance.IsZero() {
		prev := &cb.lastGood.CustodyBalance
		if r.CustodyBalance.Lt(prev) {
			drop := new(uint256.Int).Sub(prev, &r.CustodyBalance)
			if dropBps := coverageBps(drop, prev); dropBps > cb.thresholds.MaxCustodyDropBps {
				return fmt.Sprintf("custody dropped too fast: %d bps (threshold: %d bps)", dropBps, cb.thresholds.MaxCustodyDropBps)
			}
		}
	}
	return ""
}

// coverageBps returns num/den in basis points, saturating at MaxUint64
func coverageBps(num, den *uint256.Int) uint64 {
	ratio, overflow := new(uint256.Int).MulDivOverflow(num, uint256.NewInt(types.BasisPoints), den)
	if overflow || !ratio.IsUint64() {
		return ^uint64(0)
	}
	return ratio.Uint64()
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// LastReason returns why the circuit last tripped
func (cb *CircuitBreaker) LastReason() string {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.lastReason
}

// Reset forcibly resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.successCount = 0
	logrus.Info("Circuit breaker manually reset to closed state")
}

// LastGoodReport returns the most recent audit that passed every check
func (cb *CircuitBreaker) LastGoodReport() (model.AuditReport, bool) {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	if cb.lastGood == nil {
		return model.AuditReport{}, false
	}
	return *cb.lastGood, true
}

// trip sets the circuit breaker to open state with the current time
func (cb *CircuitBreaker) trip(reason string, report model.AuditReport) {
	cb.state = StateOpen
	cb.lastTrip = cb.now()
	cb.lastReason = reason
	cb.successCount = 0
	logrus.Warnf("Circuit breaker tripped: %s", reason)

	if cb.onTripCallback != nil {
		go cb.onTripCallback(reason, report)
	}
}
