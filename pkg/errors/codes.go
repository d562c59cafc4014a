package errors

import "errors"

// Stable machine-readable names for the sentinel errors, used on the wire.
const (
	CodeInvalidDimension     = "invalid_dimension"
	CodeInvalidParameter     = "invalid_parameter"
	CodeInputMismatch        = "input_mismatch"
	CodeDimensionMismatch    = "dimension_mismatch"
	CodeReshape              = "reshape"
	CodeStorage              = "storage"
	CodeCorruptData          = "corrupt_data"
	CodeNotImplemented       = "not_implemented"
	CodeUnsupportedIndexType = "unsupported_index_type"
	CodeIndexExists          = "index_exists"
	CodeIndexNotFound        = "index_not_found"
	CodeInternal             = "internal"
)

// checked in order; the first sentinel err matches wins
var codes = []struct {
	code string
	err  error
}{
	{CodeIndexNotFound, ErrIndexNotFound},
	{CodeIndexExists, ErrIndexExists},
	{CodeNotImplemented, ErrNotImplemented},
	{CodeDimensionMismatch, ErrDimensionMismatch},
	{CodeInputMismatch, ErrInputMismatch},
	{CodeInvalidDimension, ErrInvalidDimension},
	{CodeUnsupportedIndexType, ErrUnsupportedIndexType},
	{CodeReshape, ErrReshape},
	{CodeCorruptData, ErrCorruptData},
	{CodeStorage, ErrStorage},
	{CodeInvalidParameter, ErrInvalidParameter},
}

// Code returns the wire name of the sentinel err wraps, or CodeInternal.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// FromCode returns the sentinel named by code, or nil for unknown codes.
func FromCode(code string) error {
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}
