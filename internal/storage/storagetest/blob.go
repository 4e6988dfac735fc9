package storagetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/pathnote/internal/models"
	"github.com/starford/pathnote/internal/storage"
)

// RunBlobStore runs the BlobStore contract against stores built by newStore.
func RunBlobStore(t *testing.T, newStore func(t *testing.T) storage.BlobStore) {
	ctx := context.Background()

	t.Run("PutGet", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "exports/notes-1.json", []byte(`{"version":1}`)))
		got, err := s.Get(ctx, "exports/notes-1.json")
		require.NoError(t, err)
		assert.Equal(t, `{"version":1}`, string(got))
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "k", []byte("one")))
		require.NoError(t, s.Put(ctx, "k", []byte("two")))
		got, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "two", string(got))
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "backups/none.json")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "k", []byte("v")))
		require.NoError(t, s.Delete(ctx, "k"))
		require.NoError(t, s.Delete(ctx, "k"))
		_, err := s.Get(ctx, "k")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("ListPrefix", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "exports/b.json", []byte("bb")))
		require.NoError(t, s.Put(ctx, "exports/a.json", []byte("a")))
		require.NoError(t, s.Put(ctx, "backups/c.json", []byte("ccc")))

		got, err := s.List(ctx, "exports/")
		require.NoError(t, err)
		assert.Equal(t, []models.BlobInfo{
			{Key: "exports/a.json", Size: 1},
			{Key: "exports/b.json", Size: 2},
		}, got)

		all, err := s.List(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)

		none, err := s.List(ctx, "missing/")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("UnsafeKeysRoundTrip", func(t *testing.T) {
		s := newStore(t)
		keys := []string{
			"../escape.json",
			"a/../../b",
			".hidden",
			"weird name?&#.json",
			"nested//double",
		}
		for _, k := range keys {
			require.NoError(t, s.Put(ctx, k, []byte(k)), k)
		}
		for _, k := range keys {
			got, err := s.Get(ctx, k)
			require.NoError(t, err, k)
			assert.Equal(t, k, string(got))
		}

		listed, err := s.List(ctx, "")
		require.NoError(t, err)
		var listedKeys []string
		for _, b := range listed {
			listedKeys = append(listedKeys, b.Key)
		}
		assert.ElementsMatch(t, keys, listedKeys, "logical keys are preserved")
	})
}
