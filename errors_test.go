package scioto

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssertionError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &AssertionError{Invariant: "head < capacity", Cause: cause}
	assert.Contains(t, err.Error(), "head < capacity")
	assert.Contains(t, err.Error(), "boom")
	assert.ErrorIs(t, err, cause)
}

func TestAssertionError_NoCause(t *testing.T) {
	err := &AssertionError{Invariant: "nonzero capacity"}
	assert.Contains(t, err.Error(), "nonzero capacity")
	assert.Nil(t, err.Unwrap())
}

func TestAssertInvariant_PanicsOnFalse(t *testing.T) {
	assert.Panics(t, func() { AssertInvariant(false, "always true") })
	assert.NotPanics(t, func() { AssertInvariant(true, "always true") })
}

func TestSentinelErrors_AreDistinct(t *testing.T) {
	assert.NotErrorIs(t, ErrClosed, ErrNotTerminated)
}
