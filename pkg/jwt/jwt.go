package jwt

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Role is the coarse access level carried in a token
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Permission is a single capability granted by a role
type Permission string

const (
	PermissionSendMessages      Permission = "messages:send"
	PermissionReadModerationLog Permission = "moderation_logs:read"
)

var rolePermissions = map[Role][]Permission{
	RoleUser:  {PermissionSendMessages},
	RoleAdmin: {PermissionSendMessages, PermissionReadModerationLog},
}

// JWTClaims represents the claims in a JWT token
type JWTClaims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
	jwt.RegisteredClaims
}

// HasRole reports whether the token carries role. Admins satisfy every role.
func (c *JWTClaims) HasRole(role Role) bool {
	return c.Role == role || c.Role == RoleAdmin
}

// HasPermission reports whether the token's role grants permission
func (c *JWTClaims) HasPermission(permission Permission) bool {
	for _, p := range rolePermissions[c.Role] {
		if p == permission {
			return true
		}
	}
	return false
}
