package services

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrMissingField        = errors.New("missing required field")
	ErrInvalidTargetURL    = errors.New("target url must be an absolute http(s) url")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrInvalidBalance      = errors.New("balance must be a finite, non-negative number with at most 2 decimal places")
	ErrAmountPrecision     = errors.New("amount must have at most 2 decimal places")
	ErrInvalidStatus       = errors.New("unknown status")
	ErrInvalidService      = errors.New("invalid service definition")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrServiceInactive     = errors.New("service is not active")
	ErrInsufficientBalance = errors.New("insufficient balance")

	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("admin privileges required")

	ErrServiceNotFound     = errors.New("service not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrProfileNotFound     = errors.New("profile not found")
	ErrInvalidReferralCode = errors.New("referral code not found")

	ErrUnavailable = errors.New("store temporarily unavailable")
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuthorization
	KindNotFound
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	}
	return "unknown"
}

// kinds is searched in order, so more specific sentinels come first.
var kinds = []struct {
	sentinel error
	kind     Kind
}{
	{ErrUnauthenticated, KindAuthorization},
	{ErrForbidden, KindAuthorization},
	{ErrMissingField, KindValidation},
	{ErrInvalidTargetURL, KindValidation},
	{ErrInvalidQuantity, KindValidation},
	{ErrInvalidAmount, KindValidation},
	{ErrInvalidBalance, KindValidation},
	{ErrAmountPrecision, KindValidation},
	{ErrInvalidStatus, KindValidation},
	{ErrInvalidService, KindValidation},
	{ErrInvalidTransition, KindValidation},
	{ErrServiceInactive, KindValidation},
	{ErrInsufficientBalance, KindValidation},
	{ErrServiceNotFound, KindNotFound},
	{ErrOrderNotFound, KindNotFound},
	{ErrTransactionNotFound, KindNotFound},
	{ErrProfileNotFound, KindNotFound},
	{ErrInvalidReferralCode, KindNotFound},
	{ErrUnavailable, KindTransient},
}

// KindOf classifies err by the first entry of kinds found in its chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.kind
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindUnknown
}

// unavailable marks a store or broker failure as retryable while keeping
// the cause in the chain.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
