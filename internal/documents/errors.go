package documents

import "errors"

var (
	// ErrNotFound indicates an unknown or (for user-facing reads) deleted
	// document.
	ErrNotFound = errors.New("document not found")
	// ErrNotDownloadable indicates the admin document is not published for
	// user download.
	ErrNotDownloadable = errors.New("document not downloadable")
	// ErrInvalidInput indicates a malformed upload.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConstraint indicates the store rejected the write, typically an
	// upload for an email with no users row.
	ErrConstraint = errors.New("constraint violation")
	// ErrStoreUnavailable indicates the underlying store could not be
	// reached. Retryable.
	ErrStoreUnavailable = errors.New("store unavailable")
)
