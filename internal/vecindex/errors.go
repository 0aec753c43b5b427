package vecindex

import (
	"errors"
	"fmt"
)

var (
	// ErrZeroVector is returned when a vector is empty or has zero magnitude
	// and therefore cannot be normalized.
	ErrZeroVector = errors.New("vector is empty or has zero magnitude")

	// ErrLengthMismatch is returned when a batch of vectors and a batch of
	// external IDs have different lengths.
	ErrLengthMismatch = errors.New("vectors and external IDs have different lengths")

	// ErrNotImplemented is returned by the external backend for every data
	// operation.
	ErrNotImplemented = errors.New("operation not implemented by this backend")
)

// DimensionMismatchError reports a vector whose dimension does not match the
// backend's configured dimension. This is always a caller bug.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// IndexError wraps a backend I/O or internal failure. The failed operation
// aborts and the backend state is left as before the call where possible.
type IndexError struct {
	Op  string
	Err error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %s: %v", e.Op, e.Err)
}

func (e *IndexError) Unwrap() error {
	return e.Err
}
