package document

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable classifies connection-level failures: the store could not be reached.
	ErrUnavailable = errors.New("document store unavailable")
	// ErrInvalidID classifies identifiers that are not 24 hexadecimal characters.
	ErrInvalidID = errors.New("document invalid id")
	// ErrInvalidUpdate classifies update descriptors the store would reject.
	ErrInvalidUpdate = errors.New("document invalid update")
	// ErrInvalidFilter classifies filters the executor cannot evaluate.
	ErrInvalidFilter = errors.New("document invalid filter")
	// ErrDuplicateID classifies inserts that reuse an existing identifier.
	ErrDuplicateID = errors.New("document duplicate id")
	// ErrClosed classifies operations on a closed executor.
	ErrClosed = errors.New("document store closed")
)

func documentError(kind error, message string) error {
	if message == "" {
		return kind
	}
	return fmt.Errorf("%w: %s", kind, message)
}

// IsUnavailable reports whether err is a connection-level failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// Unavailable wraps cause as a connection-level failure.
func Unavailable(cause error) error {
	if cause == nil || errors.Is(cause, ErrUnavailable) {
		return cause
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, cause)
}
