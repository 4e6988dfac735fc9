// Package testutil provides shared test helpers for setting up stores and caches.
package testutil

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/starford/pathnote/internal/password"
	"github.com/starford/pathnote/internal/storage"
	"github.com/starford/pathnote/internal/storage/fsblob"
	"github.com/starford/pathnote/internal/storage/memcache"
	"github.com/starford/pathnote/internal/storage/sqlite"
)

// TestStore creates a temporary SQLite note store that is automatically cleaned up.
func TestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	dbFile, err := os.CreateTemp("", "pathnote-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	s, err := sqlite.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestBlobs creates a blob store in a temporary directory.
func TestBlobs(t *testing.T) *fsblob.Store {
	t.Helper()
	b, err := fsblob.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// FastHasher is a bcrypt hasher at the minimum cost.
func FastHasher() password.Hasher {
	return password.NewBcrypt(bcrypt.MinCost)
}

// Put is one recorded Cache.Put call.
type Put struct {
	Key   string
	Value string
	TTL   time.Duration
}

// ErrCacheDown is returned by a RecordingCache with Fail set.
var ErrCacheDown = errors.New("cache unavailable")

// RecordingCache is an in-process cache that records every call and can be
// switched into a failing mode.
type RecordingCache struct {
	inner *memcache.Cache

	mu      sync.Mutex
	puts    []Put
	deletes []string
	fail    bool
}

var _ storage.Cache = (*RecordingCache)(nil)

// NewRecordingCache returns an empty recording cache closed at test cleanup.
func NewRecordingCache(t *testing.T) *RecordingCache {
	t.Helper()
	c := &RecordingCache{inner: memcache.New(0)}
	t.Cleanup(func() { c.inner.Close() })
	return c
}

// SetFail makes every subsequent call return ErrCacheDown.
func (c *RecordingCache) SetFail(fail bool) {
	c.mu.Lock()
	c.fail = fail
	c.mu.Unlock()
}

// Puts returns the recorded Put calls.
func (c *RecordingCache) Puts() []Put {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Put(nil), c.puts...)
}

// Deletes returns the keys passed to Delete.
func (c *RecordingCache) Deletes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.deletes...)
}

// Has reports whether key currently holds a live value.
func (c *RecordingCache) Has(key string) bool {
	_, ok, _ := c.inner.Get(context.Background(), key)
	return ok
}

func (c *RecordingCache) failing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fail
}

func (c *RecordingCache) Get(ctx context.Context, key string) (string, bool, error) {
	if c.failing() {
		return "", false, ErrCacheDown
	}
	return c.inner.Get(ctx, key)
}

func (c *RecordingCache) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	if c.failing() {
		return ErrCacheDown
	}
	c.mu.Lock()
	c.puts = append(c.puts, Put{Key: key, Value: value, TTL: ttl})
	c.mu.Unlock()
	return c.inner.Put(ctx, key, value, ttl)
}

func (c *RecordingCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	c.deletes = append(c.deletes, key)
	c.mu.Unlock()
	if c.failing() {
		return ErrCacheDown
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.inner.Delete(ctx, key)
}

func (c *RecordingCache) Close() error { return nil }
