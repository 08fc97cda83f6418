package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals that the requested progress record does not exist.
	ErrNotFound = errors.New("progress record not found")
	// ErrInvalidInput is returned for requests rejected before any write.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnavailable marks transient storage failures. Callers may retry.
	ErrUnavailable = errors.New("progress storage unavailable")
)

// StorageError wraps a driver error raised while executing Op.
type StorageError struct {
	Op  string
	Err error
}

// NewStorageError wraps err for op. A nil err yields nil.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is makes every StorageError match ErrUnavailable.
func (e *StorageError) Is(target error) bool {
	return target == ErrUnavailable
}

// Invalid builds an ErrInvalidInput error with a formatted reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
