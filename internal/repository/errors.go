package repository

import "errors"

var (
	ErrServiceNotFound     = errors.New("service not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrProfileNotFound     = errors.New("profile not found")
	ErrCredentialNotFound  = errors.New("api credential not found")

	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrConcurrentUpdate    = errors.New("concurrent update detected")
	ErrMaxRetriesExceeded  = errors.New("max retries exceeded")
	ErrDuplicateProfile    = errors.New("profile already exists")
	ErrDuplicateCode       = errors.New("referral code already taken")

	// ErrStatusChanged is returned by conditional status updates when the row
	// no longer holds the expected status.
	ErrStatusChanged = errors.New("status changed concurrently")
)
