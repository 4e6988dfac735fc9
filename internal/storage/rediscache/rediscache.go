// Package rediscache is the edge runtime's storage.Cache backed by Redis.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/starford/pathnote/internal/storage"
)

// Cache stores entries in Redis under a common key prefix.
type Cache struct {
	client redis.UniversalClient
	prefix string
}

var _ storage.Cache = (*Cache)(nil)

// Options configures a Redis connection.
type Options struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, o Options) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     o.Addr,
		Username: o.Username,
		Password: o.Password,
		DB:       o.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", o.Addr, err)
	}
	return New(client, o.Prefix), nil
}

// New wraps an existing client.
func New(client redis.UniversalClient, prefix string) *Cache {
	return &Cache{client: client, prefix: prefix}
}

// Get returns the value for key. A missing or expired key is a miss.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis: get: %w", err)
	}
	return v, true, nil
}

// Put stores value with ttl, replacing any previous value and expiry.
func (c *Cache) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set: %w", err)
	}
	return nil
}

// Delete removes key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis: del: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client.
func (c *Cache) Close() error {
	return c.client.Close()
}
