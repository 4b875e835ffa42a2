package accounting

import "errors"

var (
	// ErrQuotaExceeded indicates the user has no questions remaining. Not
	// retryable without new input.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrBlocked indicates the user account is blocked.
	ErrBlocked = errors.New("account blocked")
	// ErrIPBlocked indicates the source IP is blocked.
	ErrIPBlocked = errors.New("ip blocked")
	// ErrNotFound indicates an unknown email or IP.
	ErrNotFound = errors.New("not found")
	// ErrConstraint indicates the store rejected the write (bad foreign key,
	// malformed row).
	ErrConstraint = errors.New("constraint violation")
	// ErrStoreUnavailable indicates the underlying store could not be
	// reached. Retryable by the caller.
	ErrStoreUnavailable = errors.New("store unavailable")
)
