/*
Package user defines the identity record of a player.

The same record is issued by the server's session endpoint, embedded in session tokens,
and held by the client store as the signed-in user.
*/
package user

import (
	"regexp"
	"strings"
)

var usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}_\- ]{2,24}$`)

// User is the identity of a player.
type User struct {
	// ID is the unique player identifier (a server-issued guest id).
	ID string `json:"id"`

	// Username is the display name shown to other players.
	Username string `json:"username"`

	// Email is optional contact information; never shown to other players.
	Email string `json:"email"`

	// Avatar is an optional avatar URL.
	Avatar string `json:"avatar"`
}

// NormalizeUsername trims surrounding whitespace and reports whether the result is acceptable.
func NormalizeUsername(name string) (string, bool) {
	name = strings.TrimSpace(name)
	return name, usernamePattern.MatchString(name)
}
