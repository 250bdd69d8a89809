package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	t.Run("direct code", func(t *testing.T) {
		err := New(CodeNotFound, "missing")
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeInternal))
	})

	t.Run("wrapped by fmt", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", New(CodeInvalidInput, "owner required"))
		assert.True(t, HasCode(err, CodeInvalidInput))
	})

	t.Run("nested domain errors", func(t *testing.T) {
		inner := New(CodeUnavailable, "ledger down")
		outer := Wrap(inner, CodeInternal, "fetch failed")
		assert.True(t, HasCode(outer, CodeInternal))
		assert.True(t, HasCode(outer, CodeUnavailable))
	})

	t.Run("plain error", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
	})
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap(cause, CodeUnavailable, "ledger unreachable")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, CodeUnavailable, CodeOf(err))
	assert.Equal(t, "ledger unreachable", MessageOf(err))
	assert.Equal(t, CodeInternal, CodeOf(cause))
}
