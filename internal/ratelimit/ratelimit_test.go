package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/launchpad/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilCheckoutLimiterAllows(t *testing.T) {
	limiter := NewCheckoutLimiter(config.Config{}, nil)
	assert.Nil(t, limiter)
	assert.False(t, limiter.Enabled())

	res, err := limiter.AllowUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	token, ok, err := limiter.TryLockTarget(context.Background(), "order", 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, token)
	assert.NoError(t, limiter.ReleaseTarget(context.Background(), "order", 1, token))
}

func TestDefaultBucketTTL(t *testing.T) {
	assert.Equal(t, time.Second, defaultBucketTTL(0, 5))
	assert.Equal(t, 20*time.Second, defaultBucketTTL(0.5, 5))
	assert.Equal(t, time.Second, defaultBucketTTL(100, 1))
}

func TestScriptResultCasting(t *testing.T) {
	assert.Equal(t, int64(1), castToInt(int64(1)))
	assert.Equal(t, int64(3), castToInt(3.9))
	assert.Equal(t, int64(0), castToInt("x"))
	assert.Equal(t, 2.5, castToFloat("2.5"))
	assert.Equal(t, 4.0, castToFloat(int64(4)))
	assert.Equal(t, 0.0, castToFloat(nil))
}

func TestTargetKey(t *testing.T) {
	assert.Equal(t, "checkout:lock:order:42", targetKey(" order ", 42))
}

func TestLockerWithoutRedis(t *testing.T) {
	var locker *Locker
	assert.Nil(t, NewLocker(nil))

	_, ok, err := locker.TryLock(context.Background(), "scheduler:run", time.Minute)
	assert.ErrorIs(t, err, ErrLockUnconfigured)
	assert.False(t, ok)
	assert.NoError(t, locker.Release(context.Background(), "scheduler:run", "t"))
}

func TestLockName(t *testing.T) {
	name, err := lockName(" checkout:lock:order:1 ", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "launchpad:checkout:lock:order:1", name)

	_, err = lockName("  ", time.Second)
	assert.ErrorIs(t, err, ErrInvalidLock)
	_, err = lockName("k", 0)
	assert.ErrorIs(t, err, ErrInvalidLock)
}

func TestTokenBucketWithoutRedis(t *testing.T) {
	var bucket *TokenBucket
	assert.Nil(t, NewTokenBucket(nil))
	_, err := bucket.Allow(context.Background(), "checkout:begin:user:u1", 1, 1)
	assert.ErrorIs(t, err, ErrLimiterUnconfigured)
}
