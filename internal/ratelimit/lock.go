package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// lockNamespace prefixes every key this package writes so a shared redis
// keeps launchpad buckets and leases apart from other tenants.
const lockNamespace = "launchpad:"

// Delete only when the caller still holds the lease.
const compareAndDelete = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var (
	ErrLockUnconfigured = errors.New("lock_unconfigured")
	ErrInvalidLock      = errors.New("invalid_lock")
	// ErrLockLost means the lease expired, or was taken over, before Release.
	ErrLockLost = errors.New("lock_lost")
)

// Locker hands out short leases used to keep checkout begins for one target
// and scheduler ticks across replicas from overlapping. A nil Locker is unconfigured.
type Locker struct {
	client  *redis.Client
	release *redis.Script
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client, release: redis.NewScript(compareAndDelete)}
}

// TryLock returns the lease token and ok=false when someone else holds key.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, ErrLockUnconfigured
	}
	name, err := lockName(key, ttl)
	if err != nil {
		return "", false, err
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, name, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release is a no-op without a token so callers can defer it unconditionally.
func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil || token == "" {
		return nil
	}
	name, err := lockName(key, time.Second)
	if err != nil {
		return err
	}
	deleted, err := l.release.Run(ctx, l.client, []string{name}, token).Int64()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrLockLost
	}
	return nil
}

func lockName(key string, ttl time.Duration) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || ttl <= 0 {
		return "", ErrInvalidLock
	}
	return lockNamespace + key, nil
}
