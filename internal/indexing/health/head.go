package health

import (
	"context"
	"sync"
	"time"
)

// HeadReader reads the chain head.
type HeadReader interface {
	LatestBlock(ctx context.Context) (uint64, error)
}

// HeadCache caches the chain head so frequent health checks do not turn into
// one RPC call each.
type HeadCache struct {
	reader HeadReader
	ttl    time.Duration

	mu       sync.Mutex
	cached   uint64
	cachedAt time.Time
}

// NewHeadCache creates a new head cache with the given TTL.
func NewHeadCache(reader HeadReader, ttl time.Duration) *HeadCache {
	return &HeadCache{
		reader: reader,
		ttl:    ttl,
	}
}

// LatestBlock returns the cached chain head if within TTL, otherwise fetches fresh.
func (c *HeadCache) LatestBlock(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Since(c.cachedAt) < c.ttl && c.cached > 0 {
		return c.cached, nil
	}

	head, err := c.reader.LatestBlock(ctx)
	if err != nil {
		return 0, err
	}
	c.cached = head
	c.cachedAt = time.Now()
	return head, nil
}

// Invalidate clears the cache, forcing the next call to fetch fresh data.
func (c *HeadCache) Invalidate() {
	c.mu.Lock()
	c.cachedAt = time.Time{}
	c.mu.Unlock()
}
