package storage

import "errors"

// Storage errors shared by all backends.
var (
	// ErrNotFound is returned when a requested cell or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when creating a cell or appending a record
	// whose key already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict is returned when a transaction lost a lock race and may be retried by the caller.
	ErrConflict = errors.New("conflicting concurrent update")

	// ErrReadOnly is returned when a write is attempted inside View.
	ErrReadOnly = errors.New("read-only transaction")
)
