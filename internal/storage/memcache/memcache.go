// Package memcache is the local runtime's storage.Cache: an in-process map
// with per-entry expiry backed by ttlcache.
package memcache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/starford/pathnote/internal/storage"
)

// Cache is an in-process expiring cache. Reads never extend an entry's TTL.
type Cache struct {
	items *ttlcache.Cache[string, string]
	once  sync.Once
}

var _ storage.Cache = (*Cache)(nil)

// New creates a cache and starts its expiry loop. Call Close to stop it.
func New(capacity uint64) *Cache {
	opts := []ttlcache.Option[string, string]{
		ttlcache.WithDisableTouchOnHit[string, string](),
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, string](capacity))
	}
	c := &Cache{items: ttlcache.New[string, string](opts...)}
	go c.items.Start()
	return c
}

// Get returns the live value for key.
func (c *Cache) Get(_ context.Context, key string) (string, bool, error) {
	item := c.items.Get(key)
	if item == nil || item.IsExpired() {
		return "", false, nil
	}
	return item.Value(), true, nil
}

// Put stores value for ttl, replacing any previous entry.
func (c *Cache) Put(_ context.Context, key, value string, ttl time.Duration) error {
	c.items.Set(key, value, ttl)
	return nil
}

// Delete removes key.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.items.Delete(key)
	return nil
}

// Len reports the number of stored entries, including ones not yet swept.
func (c *Cache) Len() int {
	return c.items.Len()
}

// Close stops the expiry loop.
func (c *Cache) Close() error {
	c.once.Do(c.items.Stop)
	return nil
}
