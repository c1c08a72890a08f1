package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned when an operation is attempted on a closed engine.
	ErrClosed = errors.New("engine closed")

	// ErrInvalidArgument is returned when an argument is invalid (e.g. k == 0, non-finite values).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDimensionMismatch is returned when a vector does not have the configured dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

// DimensionMismatchError reports the expected and actual dimension.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Unwrap lets errors.Is match ErrDimensionMismatch.
func (e *DimensionMismatchError) Unwrap() error {
	return ErrDimensionMismatch
}
