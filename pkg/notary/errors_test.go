package notary

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := ErrAlreadyExists.WithMessage("slot x")
	assert.True(t, errors.Is(err, ErrAlreadyExists))
	assert.False(t, errors.Is(err, ErrNotFound))

	wrapped := fmt.Errorf("outer: %w", err)
	assert.True(t, errors.Is(wrapped, ErrAlreadyExists))
	assert.Equal(t, ClassAllocation, ClassOf(wrapped))
}

func TestError_WrapKeepsCause(t *testing.T) {
	cause := errors.New("disk on fire")
	err := ErrClockUnavailable.WithMessage("no time").Wrap(cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrClockUnavailable)
	assert.Equal(t, "RUNTIME/CLOCK_UNAVAILABLE: no time: disk on fire", err.Error())
	// The shared value is never mutated.
	assert.Nil(t, ErrClockUnavailable.Cause)
	assert.Empty(t, ErrClockUnavailable.Message)
}

func TestError_Formatting(t *testing.T) {
	assert.Equal(t, "VALIDATION/SIZE_EXCEEDED", ErrSizeExceeded.Error())
	assert.Equal(t, "VALIDATION/SIZE_EXCEEDED: too big", ErrSizeExceeded.WithMessage("too big").Error())
	assert.Equal(t, "RUNTIME/NOT_FOUND: gone", ErrNotFound.Wrap(errors.New("gone")).Error())
}

func TestError_Class(t *testing.T) {
	cases := map[*Error]string{
		ErrSizeExceeded:     ClassValidation,
		ErrSizeMismatch:     ClassValidation,
		ErrInvalidAuthority: ClassAuthorization,
		ErrTransferRejected: ClassTransfer,
		ErrAlreadyExists:    ClassAllocation,
		ErrClockUnavailable: ClassRuntime,
	}
	for e, want := range cases {
		assert.Equal(t, want, e.Class(), e.Code)
	}
	assert.Empty(t, ClassOf(errors.New("plain")))
	assert.Equal(t, "BARE", (&Error{Code: "BARE"}).Class())
}
