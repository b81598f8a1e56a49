package kv

import (
	"context"
	"time"

	"github.com/smallbiznis/launchpad/internal/cache"
	"github.com/smallbiznis/launchpad/internal/cart/domain"
)

const defaultMemoryTTL = 24 * time.Hour

type MemoryKV struct {
	items cache.Cache[string, []byte]
	ttl   time.Duration
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{items: cache.NewTTLCache[string, []byte](), ttl: defaultMemoryTTL}
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	value, ok := m.items.Get(key)
	if !ok {
		return nil, domain.ErrMiss
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (m *MemoryKV) Set(_ context.Context, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	m.items.Set(key, stored, m.ttl)
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.items.Delete(key)
	return nil
}
