package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rl1809/patrion/internal/core/domain"
)

// MemoryCache implements the cache port without Redis, for single-process runs.
type MemoryCache struct {
	mu             sync.Mutex
	idempotencyTTL time.Duration
	sectorTTL      time.Duration
	keys           map[string]time.Time
	sectors        []domain.Sector
	sectorsExpire  time.Time
	now            func() time.Time
}

func NewMemoryCache(idempotencyTTL, sectorTTL time.Duration) *MemoryCache {
	return &MemoryCache{
		idempotencyTTL: idempotencyTTL,
		sectorTTL:      sectorTTL,
		keys:           make(map[string]time.Time),
		now:            time.Now,
	}
}

func (c *MemoryCache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, exp := range c.keys {
		if now.After(exp) {
			delete(c.keys, k)
		}
	}
	if _, ok := c.keys[key]; ok {
		return false, nil
	}
	c.keys[key] = now.Add(c.idempotencyTTL)
	return true, nil
}

func (c *MemoryCache) ReleaseIdempotency(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.keys, key)
	return nil
}

func (c *MemoryCache) GetSectors(ctx context.Context) ([]domain.Sector, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sectors == nil || c.now().After(c.sectorsExpire) {
		return nil, false, nil
	}
	out := make([]domain.Sector, len(c.sectors))
	copy(out, c.sectors)
	return out, true, nil
}

func (c *MemoryCache) SetSectors(ctx context.Context, sectors []domain.Sector) error {
	if c.sectorTTL <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sectors = make([]domain.Sector, len(sectors))
	copy(c.sectors, sectors)
	c.sectorsExpire = c.now().Add(c.sectorTTL)
	return nil
}

func (c *MemoryCache) InvalidateSectors(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sectors = nil
	return nil
}
