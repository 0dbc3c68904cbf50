package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("sentinel survives wrapping", func(t *testing.T) {
		err := fmt.Errorf("like post: %w", ErrPostNotFound)
		assert.True(t, stderrors.Is(err, ErrPostNotFound))
		assert.Equal(t, CodeNotFound, CodeOf(err))
		assert.Equal(t, "post not found", MessageOf(err))
	})

	t.Run("upstream hides cause", func(t *testing.T) {
		cause := stderrors.New("dial tcp 10.0.0.1:5432: connection refused")
		err := ErrStorage(cause)
		assert.Equal(t, CodeInternal, CodeOf(err))
		assert.Equal(t, "internal server error", MessageOf(err))
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("plain error is unknown", func(t *testing.T) {
		err := stderrors.New("boom")
		assert.Equal(t, CodeUnknown, CodeOf(err))
		assert.Equal(t, "internal server error", MessageOf(err))
	})

	t.Run("different messages do not match", func(t *testing.T) {
		assert.False(t, stderrors.Is(ErrPostNotFound, ErrChannelNotFound))
	})
}
