package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/pathnote/internal/storage"
)

// RunCache runs the Cache contract. advance moves the cache's notion of time
// forward (a real sleep for in-process caches, a fast-forward for fakes).
func RunCache(t *testing.T, newCache func(t *testing.T) storage.Cache, advance func(d time.Duration)) {
	ctx := context.Background()

	t.Run("Miss", func(t *testing.T) {
		c := newCache(t)
		v, ok, err := c.Get(ctx, "note:none")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, v)
	})

	t.Run("PutGet", func(t *testing.T) {
		c := newCache(t)
		require.NoError(t, c.Put(ctx, "note:abc", `{"exists":true}`, time.Minute))
		v, ok, err := c.Get(ctx, "note:abc")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, `{"exists":true}`, v)
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		c := newCache(t)
		require.NoError(t, c.Put(ctx, "k", "one", time.Minute))
		require.NoError(t, c.Put(ctx, "k", "two", time.Minute))
		v, ok, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "two", v)
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		c := newCache(t)
		require.NoError(t, c.Put(ctx, "k", "v", time.Minute))
		require.NoError(t, c.Delete(ctx, "k"))
		require.NoError(t, c.Delete(ctx, "k"))
		require.NoError(t, c.Delete(ctx, "never-existed"))
		_, ok, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Expiry", func(t *testing.T) {
		c := newCache(t)
		require.NoError(t, c.Put(ctx, "short", "v", 100*time.Millisecond))
		require.NoError(t, c.Put(ctx, "long", "v", time.Hour))
		advance(300 * time.Millisecond)

		_, ok, err := c.Get(ctx, "short")
		require.NoError(t, err)
		assert.False(t, ok, "entry should expire after its TTL")

		_, ok, err = c.Get(ctx, "long")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("PutResetsTTL", func(t *testing.T) {
		c := newCache(t)
		require.NoError(t, c.Put(ctx, "k", "v", 100*time.Millisecond))
		require.NoError(t, c.Put(ctx, "k", "v", time.Hour))
		advance(300 * time.Millisecond)

		_, ok, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("GetDoesNotExtendTTL", func(t *testing.T) {
		c := newCache(t)
		require.NoError(t, c.Put(ctx, "k", "v", 400*time.Millisecond))
		advance(250 * time.Millisecond)
		_, ok, err := c.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)

		advance(250 * time.Millisecond)
		_, ok, err = c.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok, "a hit must not re-arm the TTL")
	})
}
