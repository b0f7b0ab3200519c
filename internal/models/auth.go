package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	Groups   []string `json:"groups,omitempty"`
	jwt.RegisteredClaims
}

// Principal converts the claims into a permission subject. Extra group ids are merged
// after the ones carried by the token.
func (c *JWTClaims) Principal(groupIDs ...string) Principal {
	groups := make([]string, 0, len(c.Groups)+len(groupIDs))
	groups = append(groups, c.Groups...)
	groups = append(groups, groupIDs...)
	return Principal{UserID: c.UserID, Role: c.Role, GroupIDs: groups}
}
