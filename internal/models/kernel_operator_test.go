package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKernelOperator_Password(t *testing.T) {
	op := &KernelOperator{}
	assert.NoError(t, op.SetPassword("correct horse"))
	assert.NotEqual(t, "correct horse", op.PasswordHash)
	assert.True(t, op.CheckPassword("correct horse"))
	assert.False(t, op.CheckPassword("battery staple"))
}

func TestKernelOperator_IsLocked(t *testing.T) {
	now := time.Now()
	op := &KernelOperator{}
	assert.False(t, op.IsLocked(now))

	until := now.Add(time.Minute)
	op.LockedUntil = &until
	assert.True(t, op.IsLocked(now))
	assert.False(t, op.IsLocked(now.Add(2*time.Minute)))
}
