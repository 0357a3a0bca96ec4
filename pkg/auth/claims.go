package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload is what the caller knows when minting. An empty JTI is
// filled with a fresh uuid.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Admin  bool
	JTI    string
}

// AccessTokenClaims is the JWT body. Admin is a snapshot taken at mint or
// refresh time; the jti names the refresh session in Redis.
type AccessTokenClaims struct {
	UserID uuid.UUID `json:"user_id"`
	Admin  bool      `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// SessionID is the jti, or "" for tokens minted without one.
func (c *AccessTokenClaims) SessionID() string {
	if c == nil {
		return ""
	}
	return c.ID
}
