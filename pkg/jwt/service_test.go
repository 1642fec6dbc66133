package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	svc := NewService("secret", time.Hour)

	token, err := svc.GenerateToken(42, "r@example.com", "")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, RoleUser, claims.Role)
}

func TestValidateRejectsOtherSecret(t *testing.T) {
	token, err := NewService("one", time.Hour).GenerateToken(1, "a@b.c", RoleUser)
	require.NoError(t, err)

	_, err = NewService("two", time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateExpired(t *testing.T) {
	svc := NewService("secret", time.Minute)
	svc.now = func() time.Time { return time.Now().Add(-time.Hour) }

	token, err := svc.GenerateToken(1, "a@b.c", RoleUser)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestRolesAndPermissions(t *testing.T) {
	user := &JWTClaims{Role: RoleUser}
	admin := &JWTClaims{Role: RoleAdmin}

	assert.True(t, user.HasRole(RoleUser))
	assert.False(t, user.HasRole(RoleAdmin))
	assert.True(t, admin.HasRole(RoleUser))
	assert.False(t, user.HasPermission(PermissionReadModerationLog))
	assert.True(t, admin.HasPermission(PermissionReadModerationLog))
}
