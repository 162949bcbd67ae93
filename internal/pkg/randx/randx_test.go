package randx

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomCode(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{})
	for range 200 {
		code, err := RoomCode()
		require.NoError(t, err)
		require.True(t, IsValidRoomCode(code), "generated code %q must validate", code)
		seen[code] = struct{}{}
	}
	assert.Greater(t, len(seen), 190, "codes should practically never repeat")
}

func TestIsValidRoomCode(t *testing.T) {
	t.Parallel()

	assert.True(t, IsValidRoomCode("aZ09xY"))
	assert.False(t, IsValidRoomCode("aZ09x"))
	assert.False(t, IsValidRoomCode("aZ09xY1"))
	assert.False(t, IsValidRoomCode("aZ-9xY"))
	assert.False(t, IsValidRoomCode(""))
}

func TestGuestID(t *testing.T) {
	t.Parallel()

	id, err := GuestID()
	require.NoError(t, err)
	assert.True(t, IsValidGuestID(id))
	assert.False(t, IsValidGuestID("user_0123456789"))
	assert.False(t, IsValidGuestID("guest_short"))
}

func TestIDsAreUUIDs(t *testing.T) {
	t.Parallel()

	_, err := uuid.Parse(MessageID())
	assert.NoError(t, err)
	_, err = uuid.Parse(StrokeID())
	assert.NoError(t, err)
	assert.NotEqual(t, MessageID(), MessageID())
}
