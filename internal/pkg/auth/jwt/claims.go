/*
Package jwt issues and verifies the session tokens that authenticate game sockets.
*/
package jwt

import (
	"github.com/golang-jwt/jwt"

	"masskribbl/internal/app/user"
)

// Payload defines the claims of a session token.
type Payload struct {
	// StandardClaims carries exp, iat and iss.
	jwt.StandardClaims

	// ID is the guest id issued by the session endpoint.
	ID string `json:"id"`

	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// NewPayload builds the claims for u.
func NewPayload(u user.User) *Payload {
	return &Payload{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Avatar:   u.Avatar,
	}
}

// User returns the identity carried by the token.
func (p *Payload) User() user.User {
	return user.User{
		ID:       p.ID,
		Username: p.Username,
		Email:    p.Email,
		Avatar:   p.Avatar,
	}
}
