package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewErrorDefaultsStatusToOK(t *testing.T) {
	t.Parallel()

	err := NewError(ErrRoomIsFull)
	assert.Equal(t, ErrRoomIsFull, err.Code)
	assert.Equal(t, "Room is full.", err.Message)
	assert.Equal(t, http.StatusOK, err.Status)
}

func TestNewErrorKeepsExplicitStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusTooManyRequests, NewError(ErrRateLimitExceeded).Status)
	assert.Equal(t, http.StatusUnauthorized, NewError(ErrUnauthorized).Status)
}

func TestNewErrorFormatsTemplate(t *testing.T) {
	t.Parallel()

	err := NewError(ErrUnsupportedEvent, "room:explode")
	assert.Equal(t, `Unsupported event "room:explode".`, err.Message)
}

func TestNewErrorUnknownCodeFallsBack(t *testing.T) {
	t.Parallel()

	err := NewError(424242)
	assert.Equal(t, ErrUnknown, err.Code)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
}

func TestNewErrorDoesNotMutateTemplate(t *testing.T) {
	t.Parallel()

	_ = NewError(ErrUnsupportedEvent, "first")
	err := NewError(ErrUnsupportedEvent, "second")
	assert.Equal(t, `Unsupported event "second".`, err.Message)
}

func TestIsAndCode(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("joining: %w", NewError(ErrRoomNotFound))
	assert.True(t, errors.Is(wrapped, NewError(ErrRoomNotFound)))
	assert.False(t, errors.Is(wrapped, NewError(ErrRoomIsFull)))

	require.Equal(t, ErrRoomNotFound, Code(wrapped))
	assert.Equal(t, ErrUnknown, Code(errors.New("plain")))
}
