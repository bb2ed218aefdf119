package errors

import "errors"

// Sentinel errors shared across toolbridge packages. Typed errors wrap them
// so callers can branch with errors.Is.
var (
	// ErrNotFound indicates that a requested tool, provider or credential was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that a name is already registered
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates that arguments or configuration failed validation
	ErrInvalidInput = errors.New("invalid input")

	// ErrClosed indicates use of a connection or cache after it was released
	ErrClosed = errors.New("closed")
)
