package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel errors returned by the engine and settlement workflow. Handlers map
// these to HTTP statuses; they are never swallowed.
var (
	ErrInvalidInput            = errors.New("invalid input")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrInsufficientHoldings    = errors.New("insufficient gold holdings")
	ErrPriceDrift              = errors.New("quoted price drifted beyond tolerance")
	ErrKYCRequired             = errors.New("kyc verification required")
	ErrNotFound                = errors.New("not found")
	ErrInvalidStateTransition  = errors.New("invalid transaction state transition")
	ErrPermissionDenied        = errors.New("permission denied")
	ErrPersistenceConflict     = errors.New("persistence conflict")
	ErrRateUnavailable         = errors.New("exchange rate unavailable")
	ErrPriceUnavailable        = errors.New("spot price unavailable")
)

// LimitScope distinguishes daily from lifetime limit violations.
type LimitScope string

const (
	ScopeDaily    LimitScope = "daily"
	ScopeLifetime LimitScope = "lifetime"
)

// LimitExceededError reports which limit was hit and how much headroom
// remains, so the caller can state the specific limiting factor to the user.
type LimitExceededError struct {
	Scope     LimitScope
	Kind      OperationKind
	Remaining decimal.Decimal
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s %s limit exceeded, remaining %s %s",
		e.Scope, e.Kind, e.Remaining.StringFixed(MoneyPrecision), ReferenceCurrency)
}

// IsLimitExceeded reports whether err is a LimitExceededError and returns it.
func IsLimitExceeded(err error) (*LimitExceededError, bool) {
	var le *LimitExceededError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}
