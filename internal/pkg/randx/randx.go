/*
Package randx generates room codes, guest identities and entity ids.

Room codes and guest suffixes are Base62 strings drawn from crypto/rand; message and
stroke ids are UUID v4.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	// Base62Chars is the alphabet for room codes and guest suffixes.
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the size of Base62Chars.
	Base62Len = int64(len(Base62Chars))

	// RoomCodeLength is the fixed length of a room code.
	RoomCodeLength = 6

	// GuestIDPrefix is the prefix of server-issued guest user ids.
	GuestIDPrefix = "guest_"

	// GuestIDRawLength is the length of the Base62 part of a guest id.
	GuestIDRawLength = 10
)

func base62(length int) (string, error) {
	result := make([]byte, length)

	for i := range length {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %w", err)
		}
		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}

// RoomCode returns a new RoomCodeLength-character Base62 room code.
func RoomCode() (string, error) {
	code, err := base62(RoomCodeLength)
	if err != nil {
		return "", fmt.Errorf("room code: %w", err)
	}
	return code, nil
}

// GuestID returns a new guest user id such as "guest_4fZ0aQ81bC".
func GuestID() (string, error) {
	raw, err := base62(GuestIDRawLength)
	if err != nil {
		return "", fmt.Errorf("guest id: %w", err)
	}
	return GuestIDPrefix + raw, nil
}

// MessageID returns a UUID v4 for a chat message.
func MessageID() string {
	return uuid.New().String()
}

// StrokeID returns a UUID v4 for a drawing stroke.
func StrokeID() string {
	return uuid.New().String()
}

func isBase62(s string) bool {
	for _, char := range s {
		if !strings.ContainsRune(Base62Chars, char) {
			return false
		}
	}
	return true
}

// IsValidRoomCode reports whether code has the room code length and alphabet.
func IsValidRoomCode(code string) bool {
	return len(code) == RoomCodeLength && isBase62(code)
}

// IsValidGuestID reports whether id is a well-formed guest id.
func IsValidGuestID(id string) bool {
	rawID, ok := strings.CutPrefix(id, GuestIDPrefix)
	return ok && len(rawID) == GuestIDRawLength && isBase62(rawID)
}
