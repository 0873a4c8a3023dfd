package repositories

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates the attempted write would violate a uniqueness constraint.
	ErrConflict = errors.New("record conflict")
	// ErrUnknownField indicates a relationship change named a set that does not exist.
	ErrUnknownField = errors.New("unknown relationship field")
	// ErrWriteConflict indicates a concurrent transaction touched the same records
	// and this one was aborted. The caller may retry.
	ErrWriteConflict = errors.New("concurrent write conflict")
)
