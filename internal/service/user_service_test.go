package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"mentorchat/backend/internal/models"
	"mentorchat/backend/internal/store"
	"mentorchat/backend/pkg/jwt"
	"mentorchat/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newUserService(t *testing.T) (*UserService, *jwt.Service) {
	t.Helper()
	dsn := fmt.Sprintf("file:users_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, store.Migrate(db))

	jwtService := jwt.NewService("test-secret", time.Hour)
	return NewUserService(db, jwtService, logger.Discard()), jwtService
}

func TestCreateUserAndLogin(t *testing.T) {
	svc, jwtService := newUserService(t)
	ctx := context.Background()

	user, token, err := svc.CreateUser(ctx, &models.CreateUserRequest{
		Name:     "Ada",
		Email:    " Ada@Example.com ",
		Password: "correct horse",
	})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.NotEqual(t, "correct horse", user.Password)

	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, jwt.RoleUser, claims.Role)

	_, _, err = svc.CreateUser(ctx, &models.CreateUserRequest{Name: "Ada", Email: "ada@example.com", Password: "another one"})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)

	logged, _, err := svc.Login(ctx, &models.LoginRequest{Email: "ADA@example.com", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, logged.ID)
	assert.False(t, logged.LastLogin.IsZero())

	_, _, err = svc.Login(ctx, &models.LoginRequest{Email: "ada@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, &models.LoginRequest{Email: "nobody@example.com", Password: "whatever"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestResolveUsers(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	user, _, err := svc.CreateUser(ctx, &models.CreateUserRequest{Name: "Grace", Email: "grace@example.com", Password: "password123"})
	require.NoError(t, err)

	found, err := svc.ResolveByAddress(ctx, "GRACE@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	byID, err := svc.ResolveByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "grace@example.com", byID.Email)

	_, err = svc.ResolveByAddress(ctx, "unknown@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = svc.ResolveByAddress(ctx, "  ")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = svc.ResolveByID(ctx, 0)
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = svc.GetUserByID(ctx, 9999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
