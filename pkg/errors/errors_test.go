package errors

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDimensionErrorMatchesSentinel(t *testing.T) {
	err := NewDimensionError(3, 2)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
	assert.Equal(t, "dimension mismatch: expected 3, got 2", err.Error())

	var de *DimensionError
	assert.True(t, errors.As(err, &de))
	assert.Equal(t, -1, de.Row)

	row := &DimensionError{Expected: 4, Actual: 1, Row: 7}
	assert.Contains(t, row.Error(), "row 7")
}

func TestJoinedDimensionErrors(t *testing.T) {
	err := errors.Join(
		&DimensionError{Expected: 2, Actual: 3, Row: 0},
		&DimensionError{Expected: 2, Actual: 1, Row: 4},
	)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
	assert.False(t, errors.Is(err, ErrInputMismatch))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap("add", nil))

	err := Wrap("add", ErrInputMismatch)
	assert.True(t, errors.Is(err, ErrInputMismatch))
	assert.Equal(t, "index: add: vectors and ids length mismatch", err.Error())

	var ie *IndexError
	assert.True(t, errors.As(err, &ie))
	assert.Equal(t, "add", ie.Op)
}

func TestStorageKeepsCause(t *testing.T) {
	err := Storage("restore", fs.ErrNotExist)
	assert.True(t, errors.Is(err, ErrStorage))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.False(t, errors.Is(err, ErrCorruptData))
}

func TestCorrupt(t *testing.T) {
	err := Corrupt("restore", "unsupported version %d", 9)
	assert.True(t, errors.Is(err, ErrCorruptData))
	assert.Contains(t, err.Error(), "unsupported version 9")
}

func TestCodeRoundTrip(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{Wrap("add", errors.Join(&DimensionError{Expected: 3, Actual: 2, Row: 1})), CodeDimensionMismatch},
		{Wrap("add", ErrInputMismatch), CodeInputMismatch},
		{Storage("save", fs.ErrPermission), CodeStorage},
		{Corrupt("restore", "bad magic"), CodeCorruptData},
		{Wrap("get_index", ErrIndexNotFound), CodeIndexNotFound},
		{Wrap("search", ErrInvalidParameter), CodeInvalidParameter},
		{errors.New("boom"), CodeInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, Code(tt.err), tt.err.Error())
		if tt.code != CodeInternal {
			assert.True(t, errors.Is(tt.err, FromCode(tt.code)), tt.code)
		}
	}
	assert.Nil(t, FromCode(CodeInternal))
	assert.Nil(t, FromCode("bogus"))
}
