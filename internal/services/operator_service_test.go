package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazaarly/kernel/backend/internal/config"
	"github.com/bazaarly/kernel/backend/internal/database"
	"github.com/bazaarly/kernel/backend/internal/models"
)

func newOperatorService(t *testing.T) (*OperatorService, *kernelEnv) {
	t.Helper()
	env := newKernelEnv(t)
	return NewOperatorService(env.db, config.Config{JWTSecret: "test-secret"}), env
}

func TestOperatorService_LoginAndToken(t *testing.T) {
	svc, _ := newOperatorService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, "alice", "password123", models.RoleKernelAdmin)
	require.NoError(t, err)

	token, op, err := svc.Login(ctx, "alice", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.NotNil(t, op.LastLogin)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, op.ID, claims.OperatorID)
	assert.Equal(t, models.UserTypeOperator, claims.UserType)
	assert.Equal(t, models.RoleKernelAdmin, claims.Role)

	_, err = svc.ValidateToken(token + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewOperatorService(svc.db, config.Config{JWTSecret: "another-secret"})
	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestOperatorService_ExpiredToken(t *testing.T) {
	svc, _ := newOperatorService(t)
	op, err := svc.Create(context.Background(), "bob", "password123", "")
	require.NoError(t, err)
	assert.Equal(t, models.RoleKernelViewer, op.Role)

	svc.now = func() time.Time { return time.Now().Add(-24 * time.Hour) }
	token, err := svc.IssueToken(op)
	require.NoError(t, err)
	svc.now = time.Now

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestOperatorService_Lockout(t *testing.T) {
	svc, env := newOperatorService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, "carol", "password123", models.RoleKernelAdmin)
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "nobody", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	for i := 0; i < 5; i++ {
		_, _, err = svc.Login(ctx, "carol", "wrongpassword")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	var op models.KernelOperator
	require.NoError(t, env.db.Where("username = ?", "carol").First(&op).Error)
	assert.Equal(t, 5, op.FailedLoginAttempts)
	require.NotNil(t, op.LockedUntil)
	assert.True(t, op.LockedUntil.After(time.Now()))

	_, _, err = svc.Login(ctx, "carol", "password123")
	assert.ErrorIs(t, err, ErrAccountLocked)

	require.NoError(t, svc.ResetPassword(ctx, "carol", "new-password-1"))
	_, _, err = svc.Login(ctx, "carol", "new-password-1")
	assert.NoError(t, err)

	assert.ErrorIs(t, svc.ResetPassword(ctx, "ghost", "password123"), ErrOperatorNotFound)
	assert.ErrorIs(t, svc.ResetPassword(ctx, "carol", "short"), ErrWeakPassword)
}

func TestOperatorService_Bootstrap(t *testing.T) {
	ctx := context.Background()

	t.Run("configured credentials", func(t *testing.T) {
		db := database.OpenMigratedTestDB(t)
		cfg := config.Config{Environment: "production", JWTSecret: "s", Admin: config.AdminConfig{Username: "ops", Password: "password123"}}
		svc := NewOperatorService(db, cfg)

		res, err := svc.Bootstrap(ctx, cfg)
		require.NoError(t, err)
		assert.True(t, res.Created)
		assert.Empty(t, res.GeneratedPassword)

		again, err := svc.Bootstrap(ctx, cfg)
		require.NoError(t, err)
		assert.False(t, again.Created)
	})

	t.Run("production without credentials", func(t *testing.T) {
		db := database.OpenMigratedTestDB(t)
		cfg := config.Config{Environment: "production", JWTSecret: "s"}
		res, err := NewOperatorService(db, cfg).Bootstrap(ctx, cfg)
		require.NoError(t, err)
		assert.False(t, res.Created)
	})

	t.Run("development generates a password", func(t *testing.T) {
		db := database.OpenMigratedTestDB(t)
		cfg := config.Config{Environment: "development", JWTSecret: "s"}
		svc := NewOperatorService(db, cfg)
		res, err := svc.Bootstrap(ctx, cfg)
		require.NoError(t, err)
		require.True(t, res.Created)
		assert.Equal(t, DevOperatorUsername, res.Username)
		assert.NotEmpty(t, res.GeneratedPassword)

		_, op, err := svc.Login(ctx, DevOperatorUsername, res.GeneratedPassword)
		require.NoError(t, err)
		assert.Equal(t, models.RoleKernelAdmin, op.Role)
	})
}
