package database

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsTransientConflict(t *testing.T) {
	assert.False(t, IsTransientConflict(nil))
	assert.False(t, IsTransientConflict(errors.New("UNIQUE constraint failed")))
	assert.True(t, IsTransientConflict(errors.New("database is locked")))
	assert.True(t, IsTransientConflict(errors.New("database table is locked")))
	assert.True(t, IsTransientConflict(errors.New("SQLITE_BUSY: database busy")))
}

func TestWithRetry_SucceedsAfterTransientConflicts(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BackoffBase: time.Millisecond, BackoffMultiplier: 2}

	attempts := 0
	err := policy.WithRetry(func() error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetry_ExhaustsAttempts(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BackoffBase: time.Millisecond, BackoffMultiplier: 2}

	attempts := 0
	err := policy.WithRetry(func() error {
		attempts++
		return errors.New("database is locked")
	})

	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetry_NonTransientErrorFailsImmediately(t *testing.T) {
	policy := DefaultRetryPolicy()

	attempts := 0
	err := policy.WithRetry(func() error {
		attempts++
		return errors.New("NOT NULL constraint failed")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, p.BackoffBase)
	assert.Equal(t, 2, p.BackoffMultiplier)
}
