package scheduler

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when the referenced verse or record does not exist
// or is not owned by the caller. Never retried.
var ErrNotFound = errors.New("not found")

// ValidationError marks malformed input. Detected before any mutation and
// never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// StorageError marks a persistence failure. The operation performed no
// partial write to the authoritative state and is safe to retry with backoff.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }
