package kv

import (
	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/launchpad/internal/cart/domain"
)

// Provide picks redis when a client is configured.
func Provide(client *redis.Client) domain.KV {
	if client == nil {
		return NewMemoryKV()
	}
	return NewRedisKV(client)
}
