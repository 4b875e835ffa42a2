package payments

import "errors"

var (
	// ErrNotFound indicates an unknown payment id.
	ErrNotFound = errors.New("payment not found")
	// ErrAlreadyResolved indicates the payment was already approved or
	// rejected; resolutions happen exactly once.
	ErrAlreadyResolved = errors.New("payment already resolved")
	// ErrConstraint indicates the store rejected the write.
	ErrConstraint = errors.New("constraint violation")
	// ErrStoreUnavailable indicates the underlying store could not be
	// reached. Retryable.
	ErrStoreUnavailable = errors.New("store unavailable")
)
