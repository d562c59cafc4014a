package errors

import (
	"errors"
	"fmt"
)

var (
	// Construction errors
	ErrInvalidDimension = errors.New("invalid vector dimension")
	ErrInvalidParameter = errors.New("invalid parameter")

	// Input errors
	ErrInputMismatch     = errors.New("vectors and ids length mismatch")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrReshape           = errors.New("batch results cannot be reshaped")

	// Persistence errors
	ErrStorage     = errors.New("storage failure")
	ErrCorruptData = errors.New("corrupt snapshot data")

	// Backend errors
	ErrNotImplemented       = errors.New("not implemented")
	ErrUnsupportedIndexType = errors.New("unsupported index type")

	// Registry errors
	ErrIndexExists   = errors.New("index already exists")
	ErrIndexNotFound = errors.New("index not found")
)

// DimensionError reports a vector whose length differs from the index dimension.
// Row is the position of the vector inside its batch, or -1 for a single query.
type DimensionError struct {
	Expected int
	Actual   int
	Row      int
}

func (e *DimensionError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
	}
	return fmt.Sprintf("dimension mismatch at row %d: expected %d, got %d", e.Row, e.Expected, e.Actual)
}

func (e *DimensionError) Is(target error) bool { return target == ErrDimensionMismatch }

// NewDimensionError returns a DimensionError for a single vector.
func NewDimensionError(expected, actual int) error {
	return &DimensionError{Expected: expected, Actual: actual, Row: -1}
}

// IndexError wraps an error with the name of the operation that produced it.
type IndexError struct {
	Op  string
	Err error
}

func (e *IndexError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("index: %v", e.Err)
	}
	return fmt.Sprintf("index: %s: %v", e.Op, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

// Wrap attaches op to err. It returns nil when err is nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &IndexError{Op: op, Err: err}
}

// Storage marks err as an I/O failure while keeping it reachable through errors.Is/As.
func Storage(op string, err error) error {
	return Wrap(op, fmt.Errorf("%w: %w", ErrStorage, err))
}

// Corrupt marks a snapshot decode failure.
func Corrupt(op string, format string, args ...any) error {
	return Wrap(op, fmt.Errorf("%w: %s", ErrCorruptData, fmt.Sprintf(format, args...)))
}
