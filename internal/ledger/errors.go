package ledger

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the engine wraps exactly one of these,
// so callers can branch with errors.Is.
var (
	ErrValidation    = errors.New("validation error")
	ErrState         = errors.New("state error")
	ErrSolvency      = errors.New("solvency error")
	ErrAuthorization = errors.New("authorization error")
	ErrCooldown      = errors.New("cooldown error")
)

var (
	ErrZeroAmount     = kindError(ErrValidation, "amount must be positive")
	ErrInvalidPeriod  = kindError(ErrValidation, "period index out of range")
	ErrPeriodInactive = kindError(ErrValidation, "period is not active")
	ErrInvalidIndex   = kindError(ErrValidation, "stake index out of range")
	ErrInvalidRate    = kindError(ErrValidation, "base rate must be positive and within the ceiling")
	ErrAmountTooLarge = kindError(ErrValidation, "amount too large")

	ErrStakeClosed     = kindError(ErrState, "stake is not active")
	ErrNotMatured      = kindError(ErrState, "stake is still locked")
	ErrNothingToClaim  = kindError(ErrState, "no reward accrued")
	ErrNoCompoundPool  = kindError(ErrState, "no compound pool balance")
	ErrReentrant       = kindError(ErrState, "re-entrant call rejected")
	ErrFundsNotOffered = kindError(ErrState, "reward pool has no funds available")

	ErrInsufficientCapacity = kindError(ErrSolvency, "reservation exceeds unreserved reward capacity")
	ErrExcessUnavailable    = kindError(ErrSolvency, "withdrawal exceeds unreserved balance")
	ErrTransferFailed       = kindError(ErrSolvency, "custody transfer failed")

	ErrNotOwner = kindError(ErrAuthorization, "caller is not the ledger owner")

	ErrRateCooldown  = kindError(ErrCooldown, "base rate changed too recently")
	ErrRateUnchanged = kindError(ErrCooldown, "base rate unchanged")
)

func kindError(kind error, msg string) error {
	return fmt.Errorf("ledger: %w: %s", kind, msg)
}

// Kind returns the error kind wrapped by err, or nil if err is not a ledger error
func Kind(err error) error {
	for _, k := range []error{ErrValidation, ErrState, ErrSolvency, ErrAuthorization, ErrCooldown} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
