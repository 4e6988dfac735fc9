// Package storagetest holds the contract tests every storage adapter must pass.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/pathnote/internal/apperr"
	"github.com/starford/pathnote/internal/models"
	"github.com/starford/pathnote/internal/storage"
)

// past is far enough back that any store-stamped updated_at sorts after it.
var past = time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

// RunNoteStore runs the NoteStore contract against stores built by newStore.
// Each subtest gets a fresh, empty store.
func RunNoteStore(t *testing.T, newStore func(t *testing.T) storage.NoteStore) {
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "nope")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("InsertAndGet", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, models.Note{Path: "abc", Content: "<p>hello</p>"}))

		n, err := s.Get(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, "abc", n.Path)
		assert.Equal(t, "<p>hello</p>", n.Content)
		assert.False(t, n.IsLocked)
		assert.Equal(t, models.LockNone, n.LockType)
		assert.Empty(t, n.PasswordHash)
		assert.Zero(t, n.ViewCount)
		assert.False(t, n.CreatedAt.IsZero())
		assert.True(t, n.UpdatedAt.Equal(n.CreatedAt), "updated_at defaults to created_at")
	})

	t.Run("InsertKeepsGivenFields", func(t *testing.T) {
		s := newStore(t)
		in := models.Note{Path: "kept", Content: "x", ViewCount: 7, CreatedAt: past, UpdatedAt: past.Add(time.Hour)}
		in.SetLock(models.Lock{Type: models.LockWrite, PasswordHash: "hash"})
		require.NoError(t, s.Insert(ctx, in))

		n, err := s.Get(ctx, "kept")
		require.NoError(t, err)
		assert.True(t, n.IsLocked)
		assert.Equal(t, models.LockWrite, n.LockType)
		assert.Equal(t, "hash", n.PasswordHash)
		assert.EqualValues(t, 7, n.ViewCount)
		assert.True(t, n.CreatedAt.Equal(past))
		assert.True(t, n.UpdatedAt.Equal(past.Add(time.Hour)))
	})

	t.Run("InsertDuplicate", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, models.Note{Path: "dup", Content: "a"}))
		err := s.Insert(ctx, models.Note{Path: "dup", Content: "b"})
		require.ErrorIs(t, err, apperr.ErrAlreadyExists)

		n, err := s.Get(ctx, "dup")
		require.NoError(t, err)
		assert.Equal(t, "a", n.Content)
	})

	t.Run("UpdateContentKeepsLock", func(t *testing.T) {
		s := newStore(t)
		in := models.Note{Path: "p", Content: "v1", CreatedAt: past}
		in.SetLock(models.Lock{Type: models.LockRead, PasswordHash: "h"})
		require.NoError(t, s.Insert(ctx, in))

		require.NoError(t, s.Update(ctx, "p", models.NoteUpdate{Content: strPtr("v2")}))

		n, err := s.Get(ctx, "p")
		require.NoError(t, err)
		assert.Equal(t, "v2", n.Content)
		assert.Equal(t, models.LockRead, n.LockType)
		assert.Equal(t, "h", n.PasswordHash)
		assert.True(t, n.UpdatedAt.After(past), "store stamps updated_at")
		assert.True(t, n.CreatedAt.Equal(past))
	})

	t.Run("UpdateLockKeepsContent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, models.Note{Path: "p", Content: "body", CreatedAt: past}))

		require.NoError(t, s.Update(ctx, "p", models.NoteUpdate{Lock: &models.Lock{Type: models.LockWrite, PasswordHash: "h"}}))
		n, err := s.Get(ctx, "p")
		require.NoError(t, err)
		assert.Equal(t, "body", n.Content)
		assert.True(t, n.IsLocked)
		assert.Equal(t, models.LockWrite, n.LockType)

		require.NoError(t, s.Update(ctx, "p", models.NoteUpdate{Lock: &models.Lock{}}))
		n, err = s.Get(ctx, "p")
		require.NoError(t, err)
		assert.False(t, n.IsLocked)
		assert.Equal(t, models.LockNone, n.LockType)
		assert.Empty(t, n.PasswordHash)
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		s := newStore(t)
		err := s.Update(ctx, "ghost", models.NoteUpdate{Content: strPtr("x")})
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("IncrementViews", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, models.Note{Path: "v", Content: "x", CreatedAt: past}))
		for i := 0; i < 3; i++ {
			require.NoError(t, s.IncrementViews(ctx, "v"))
		}
		n, err := s.Get(ctx, "v")
		require.NoError(t, err)
		assert.EqualValues(t, 3, n.ViewCount)
		assert.True(t, n.UpdatedAt.Equal(past), "view increments leave updated_at alone")

		require.ErrorIs(t, s.IncrementViews(ctx, "ghost"), storage.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, models.Note{Path: "bye", Content: "x"}))

		changed, err := s.Delete(ctx, "bye")
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = s.Delete(ctx, "bye")
		require.NoError(t, err)
		assert.False(t, changed)

		_, err = s.Get(ctx, "bye")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("ListOrderAndPagination", func(t *testing.T) {
		s := newStore(t)
		for i, p := range []string{"a", "b", "c"} {
			ts := past.Add(time.Duration(i) * time.Minute)
			require.NoError(t, s.Insert(ctx, models.Note{Path: p, Content: p, CreatedAt: ts, UpdatedAt: ts}))
		}

		notes, err := s.List(ctx, storage.ListOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "b", "a"}, paths(notes))

		// Touching "a" moves it to the front.
		require.NoError(t, s.Update(ctx, "a", models.NoteUpdate{Content: strPtr("a2")}))
		notes, err = s.List(ctx, storage.ListOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c", "b"}, paths(notes))

		notes, err = s.List(ctx, storage.ListOptions{Limit: 1, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"c"}, paths(notes))

		notes, err = s.List(ctx, storage.ListOptions{Sort: storage.SortCreated})
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "b", "a"}, paths(notes))

		notes, err = s.List(ctx, storage.ListOptions{Sort: storage.SortPath})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, paths(notes))
	})

	t.Run("ListAndCountQuery", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, models.Note{Path: "groceries", Content: "milk and eggs"}))
		require.NoError(t, s.Insert(ctx, models.Note{Path: "todo", Content: "Buy MILK"}))
		require.NoError(t, s.Insert(ctx, models.Note{Path: "rate", Content: "100% done"}))
		require.NoError(t, s.Insert(ctx, models.Note{Path: "other", Content: "nothing"}))

		notes, err := s.List(ctx, storage.ListOptions{Query: "milk", Sort: storage.SortPath})
		require.NoError(t, err)
		assert.Equal(t, []string{"groceries", "todo"}, paths(notes))

		notes, err = s.List(ctx, storage.ListOptions{Query: "groc"})
		require.NoError(t, err)
		assert.Equal(t, []string{"groceries"}, paths(notes))

		notes, err = s.List(ctx, storage.ListOptions{Query: "0%"})
		require.NoError(t, err)
		assert.Equal(t, []string{"rate"}, paths(notes), "wildcards in the query are literal")

		total, err := s.Count(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, 4, total)

		total, err = s.Count(ctx, "milk")
		require.NoError(t, err)
		assert.Equal(t, 2, total)
	})

	t.Run("LatestBlank", func(t *testing.T) {
		s := newStore(t)
		_, err := s.LatestBlank(ctx)
		require.ErrorIs(t, err, storage.ErrNotFound)

		require.NoError(t, s.Insert(ctx, models.Note{Path: "old", CreatedAt: past}))
		require.NoError(t, s.Insert(ctx, models.Note{Path: "new", Content: "  ", CreatedAt: past.Add(time.Hour)}))
		require.NoError(t, s.Insert(ctx, models.Note{Path: "full", Content: "x", CreatedAt: past.Add(2 * time.Hour)}))

		n, err := s.LatestBlank(ctx)
		require.NoError(t, err)
		assert.Equal(t, "new", n.Path)
	})

	t.Run("AuditLog", func(t *testing.T) {
		s := newStore(t)
		logs, err := s.ListLogs(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, logs)

		for i, action := range []string{models.ActionLogin, models.ActionDelete, models.ActionExport} {
			require.NoError(t, s.AppendLog(ctx, models.AdminLogEntry{
				ID:         action + "-id",
				Action:     action,
				TargetPath: "abc",
				CreatedAt:  past.Add(time.Duration(i) * time.Second),
			}))
		}

		logs, err = s.ListLogs(ctx, 2)
		require.NoError(t, err)
		require.Len(t, logs, 2)
		assert.Equal(t, models.ActionExport, logs[0].Action)
		assert.Equal(t, models.ActionDelete, logs[1].Action)
		assert.Equal(t, "abc", logs[0].TargetPath)
	})

	t.Run("AuditLogSameTimestamp", func(t *testing.T) {
		s := newStore(t)
		for _, id := range []string{"zz-first", "aa-second", "mm-third"} {
			require.NoError(t, s.AppendLog(ctx, models.AdminLogEntry{
				ID:        id,
				Action:    models.ActionUpdate,
				CreatedAt: past,
			}))
		}

		logs, err := s.ListLogs(ctx, 10)
		require.NoError(t, err)
		require.Len(t, logs, 3)
		assert.Equal(t, []string{"mm-third", "aa-second", "zz-first"},
			[]string{logs[0].ID, logs[1].ID, logs[2].ID})
	})

	t.Run("Ping", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Ping(ctx))
	})
}

func paths(notes []models.Note) []string {
	out := make([]string, len(notes))
	for i, n := range notes {
		out[i] = n.Path
	}
	return out
}
