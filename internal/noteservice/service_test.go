package noteservice

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/pathnote/internal/apperr"
	"github.com/starford/pathnote/internal/models"
	"github.com/starford/pathnote/internal/notepath"
	"github.com/starford/pathnote/internal/storage"
	"github.com/starford/pathnote/internal/storage/sqlite"
	"github.com/starford/pathnote/internal/testutil"
)

type recordedEvent struct{ kind, path string }

type eventLog struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (e *eventLog) PublishNoteEvent(kind, path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, recordedEvent{kind, path})
}

type testEnv struct {
	svc    *Service
	store  *sqlite.Store
	cache  *testutil.RecordingCache
	events *eventLog
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:  testutil.TestStore(t),
		cache:  testutil.NewRecordingCache(t),
		events: &eventLog{},
	}
	env.svc = New(env.store, env.cache,
		WithHasher(testutil.FastHasher()),
		WithPublisher(env.events),
	)
	return env
}

// read performs a Get and waits for its background increment.
func (e *testEnv) read(t *testing.T, path string) *NoteView {
	t.Helper()
	v, err := e.svc.Get(context.Background(), path)
	if err != nil {
		t.Fatalf("Get(%s): %v", path, err)
	}
	e.wait(t)
	return v
}

func (e *testEnv) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.svc.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func (e *testEnv) stored(t *testing.T, path string) *models.Note {
	t.Helper()
	n, err := e.store.Get(context.Background(), path)
	if err != nil {
		t.Fatalf("store.Get(%s): %v", path, err)
	}
	return n
}

func (e *testEnv) insert(t *testing.T, n models.Note) {
	t.Helper()
	if err := e.store.Insert(context.Background(), n); err != nil {
		t.Fatalf("Insert(%s): %v", n.Path, err)
	}
}

func (e *testEnv) lock(t *testing.T, path string, typ models.LockType, pw string) {
	t.Helper()
	if err := e.svc.Lock(context.Background(), path, LockRequest{Type: typ, Password: pw}); err != nil {
		t.Fatalf("Lock(%s): %v", path, err)
	}
}

func TestGetMissing(t *testing.T) {
	env := newTestEnv(t)
	v := env.read(t, "nothing")
	if v.Exists || v.Path != "nothing" {
		t.Fatalf("view = %+v", v)
	}
	if len(env.cache.Puts()) != 0 {
		t.Error("missing notes must not be cached")
	}
}

func TestSaveThenRead(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.Save(ctx, "abc", "hello", "")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !res.Created {
		t.Error("first save should create the note")
	}

	v := env.read(t, "abc")
	if !v.Exists || v.Content == nil || *v.Content != "hello" || v.IsLocked || v.ViewCount != 1 {
		t.Fatalf("view = %+v", v)
	}
	if got := env.stored(t, "abc").ViewCount; got != 1 {
		t.Errorf("stored view_count = %d, want 1", got)
	}
}

func TestCacheGatedByViewCount(t *testing.T) {
	env := newTestEnv(t)
	env.insert(t, models.Note{Path: "pop", Content: "x"})

	env.read(t, "pop") // stored 0
	env.read(t, "pop") // stored 1
	if n := len(env.cache.Puts()); n != 0 {
		t.Fatalf("puts after two reads = %d, want 0", n)
	}

	env.read(t, "pop") // stored 2
	puts := env.cache.Puts()
	if len(puts) != 1 {
		t.Fatalf("puts after third read = %d, want 1", len(puts))
	}
	if puts[0].Key != "note:pop" || puts[0].TTL != 360*time.Second {
		t.Errorf("put = %+v", puts[0])
	}
}

// The cache TTL is the view count times three minutes, clamped to
// between five minutes and one day.
func TestCacheTTL(t *testing.T) {
	tests := []struct {
		views int64
		want  time.Duration
	}{
		{2, 360 * time.Second},
		{1, 300 * time.Second},
		{5, 900 * time.Second},
		{480, 86400 * time.Second},
		{481, 86400 * time.Second},
		{1 << 62, 86400 * time.Second},
	}
	for _, tt := range tests {
		if got := CacheTTL(tt.views); got != tt.want {
			t.Errorf("CacheTTL(%d) = %v, want %v", tt.views, got, tt.want)
		}
	}

	prev := CacheTTL(2)
	for v := int64(3); v < 1000; v++ {
		cur := CacheTTL(v)
		if cur < prev {
			t.Fatalf("CacheTTL(%d) = %v < CacheTTL(%d) = %v", v, cur, v-1, prev)
		}
		prev = cur
	}
}

func TestCacheHitSkipsStoreAndCountsView(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.insert(t, models.Note{Path: "hot", Content: "cached", ViewCount: 10})

	env.read(t, "hot")
	if !env.cache.Has("note:hot") {
		t.Fatal("expected a cache entry")
	}

	// A direct store write bypasses invalidation, so a hit still serves
	// the cached snapshot.
	changed := "changed"
	if err := env.store.Update(ctx, "hot", models.NoteUpdate{Content: &changed}); err != nil {
		t.Fatal(err)
	}
	v := env.read(t, "hot")
	if *v.Content != "cached" {
		t.Errorf("content = %q, want cached snapshot", *v.Content)
	}
	if n := len(env.cache.Puts()); n != 1 {
		t.Errorf("puts = %d, want 1 (hits never re-arm)", n)
	}
	if got := env.stored(t, "hot").ViewCount; got != 12 {
		t.Errorf("stored view_count = %d, want 12", got)
	}
}

func TestWritesInvalidateCache(t *testing.T) {
	ctx := context.Background()
	mutations := map[string]func(env *testEnv) error{
		"save": func(env *testEnv) error {
			_, err := env.svc.Save(ctx, "p", "new content", "")
			return err
		},
		"lock": func(env *testEnv) error {
			return env.svc.Lock(ctx, "p", LockRequest{Type: models.LockWrite, Password: "pw"})
		},
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t)
			env.insert(t, models.Note{Path: "p", Content: "old", ViewCount: 5})
			env.read(t, "p")
			if !env.cache.Has("note:p") {
				t.Fatal("expected cache entry before mutation")
			}
			if err := mutate(env); err != nil {
				t.Fatalf("mutate: %v", err)
			}
			if env.cache.Has("note:p") {
				t.Fatal("cache entry survived the mutation")
			}
			v := env.read(t, "p")
			if name == "save" && *v.Content != "new content" {
				t.Errorf("content = %q", *v.Content)
			}
			if name == "lock" && (!v.IsLocked || v.LockType != models.LockWrite) {
				t.Errorf("view = %+v", v)
			}
		})
	}
}

func TestRemoveLockInvalidatesCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.insert(t, models.Note{Path: "w", Content: "body", ViewCount: 4})
	env.lock(t, "w", models.LockWrite, "pw")
	env.read(t, "w")
	if !env.cache.Has("note:w") {
		t.Fatal("write-locked note should be cached")
	}
	if err := env.svc.RemoveLock(ctx, "w", "pw"); err != nil {
		t.Fatalf("RemoveLock: %v", err)
	}
	if env.cache.Has("note:w") {
		t.Fatal("cache entry survived RemoveLock")
	}
}

func TestInvalidateSurvivesCanceledRequest(t *testing.T) {
	env := newTestEnv(t)
	key := CacheKey("gone")
	if err := env.cache.Put(context.Background(), key, "{}", time.Minute); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	env.svc.Invalidate(ctx, "gone")

	if env.cache.Has(key) {
		t.Error("cache entry survived invalidation on a canceled request")
	}
}

func TestBlankFirstSaveRejected(t *testing.T) {
	env := newTestEnv(t)
	for _, body := range []string{"", "   ", "\n\t"} {
		_, err := env.svc.Save(context.Background(), "blank", body, "")
		if !errors.Is(err, apperr.ErrEmptyContent) {
			t.Fatalf("Save(%q) = %v, want ErrEmptyContent", body, err)
		}
	}
	if _, err := env.store.Get(context.Background(), "blank"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("row created by blank save: %v", err)
	}
}

func TestBlankSaveToExistingNoteAllowed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.svc.Save(ctx, "clear", "text", ""); err != nil {
		t.Fatal(err)
	}
	res, err := env.svc.Save(ctx, "clear", "", "")
	if err != nil {
		t.Fatalf("Save(empty) on existing note: %v", err)
	}
	if res.Created {
		t.Error("second save must not report creation")
	}
	if c := env.stored(t, "clear").Content; c != "" {
		t.Errorf("content = %q", c)
	}
}

func TestSaveSanitizesContent(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.svc.Save(context.Background(), "xss", `<p onclick="x()">hi</p><script>bad()</script>`, ""); err != nil {
		t.Fatal(err)
	}
	if c := env.stored(t, "xss").Content; c != "<p>hi</p>" {
		t.Errorf("stored content = %q", c)
	}
}

// Read-locked notes are served without content and never cached.
func TestReadLockHidesContent(t *testing.T) {
	env := newTestEnv(t)
	env.insert(t, models.Note{Path: "abc", Content: "secret", ViewCount: 50})
	env.lock(t, "abc", models.LockRead, "p1")

	for range 3 {
		v := env.read(t, "abc")
		if !v.Exists || !v.RequiresPassword || v.LockType != models.LockRead || v.Content != nil {
			t.Fatalf("view = %+v", v)
		}
		raw, _ := json.Marshal(v)
		if strings.Contains(string(raw), "content") || strings.Contains(string(raw), "secret") {
			t.Fatalf("challenge leaks content: %s", raw)
		}
	}
	if n := len(env.cache.Puts()); n != 0 {
		t.Errorf("read-locked note cached %d times", n)
	}
	if got := env.stored(t, "abc").ViewCount; got != 50 {
		t.Errorf("challenge reads counted views: %d", got)
	}
}

func TestUnlockWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.insert(t, models.Note{Path: "abc", Content: "secret", ViewCount: 9})
	env.lock(t, "abc", models.LockRead, "p1")

	_, err := env.svc.Unlock(context.Background(), "abc", "nope")
	if !errors.Is(err, apperr.ErrInvalidPassword) {
		t.Fatalf("Unlock = %v, want ErrInvalidPassword", err)
	}
	_, err = env.svc.Unlock(context.Background(), "abc", "")
	if !errors.Is(err, apperr.ErrPasswordRequired) {
		t.Fatalf("Unlock(empty) = %v, want ErrPasswordRequired", err)
	}
	if n := env.stored(t, "abc"); !n.IsLocked || n.LockType != models.LockRead {
		t.Errorf("lock changed: %+v", n)
	}
	if n := len(env.cache.Puts()); n != 0 {
		t.Errorf("puts = %d, want 0", n)
	}
}

func TestUnlockReturnsContentWithoutCaching(t *testing.T) {
	env := newTestEnv(t)
	env.insert(t, models.Note{Path: "abc", Content: "secret", ViewCount: 9})
	env.lock(t, "abc", models.LockRead, "p1")

	v, err := env.svc.Unlock(context.Background(), "abc", "p1")
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	env.wait(t)
	if v.Content == nil || *v.Content != "secret" || v.ViewCount != 10 {
		t.Fatalf("view = %+v", v)
	}
	if n := len(env.cache.Puts()); n != 0 {
		t.Errorf("unlock cached the note")
	}
	if got := env.stored(t, "abc").ViewCount; got != 10 {
		t.Errorf("stored view_count = %d, want 10", got)
	}
}

func TestUnlockUnlockedNote(t *testing.T) {
	env := newTestEnv(t)
	env.insert(t, models.Note{Path: "open", Content: "x"})
	if _, err := env.svc.Unlock(context.Background(), "open", "pw"); !errors.Is(err, apperr.ErrNotLocked) {
		t.Fatalf("err = %v, want ErrNotLocked", err)
	}
}

func TestRepeatedSaveAndReadTTL(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var ttlAtFive time.Duration
	for i := range 10 {
		if _, err := env.svc.Save(ctx, "abc", "rev "+string(rune('a'+i)), ""); err != nil {
			t.Fatalf("Save #%d: %v", i, err)
		}
		before := env.stored(t, "abc").ViewCount
		putsBefore := len(env.cache.Puts())
		env.read(t, "abc")
		puts := env.cache.Puts()
		if before < MinCacheView {
			if len(puts) != putsBefore {
				t.Fatalf("read with view_count=%d populated the cache", before)
			}
			continue
		}
		if len(puts) != putsBefore+1 {
			t.Fatalf("read with view_count=%d did not populate the cache", before)
		}
		if before == 5 {
			ttlAtFive = puts[len(puts)-1].TTL
		}
	}
	if ttlAtFive != 900*time.Second {
		t.Errorf("TTL at view_count=5 = %v, want 900s", ttlAtFive)
	}
}

func TestRemoveLockRestoresPublicRead(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.svc.Save(ctx, "abc", "hello", ""); err != nil {
		t.Fatal(err)
	}
	env.lock(t, "abc", models.LockRead, "p1")

	if err := env.svc.RemoveLock(ctx, "abc", "p1"); err != nil {
		t.Fatalf("RemoveLock: %v", err)
	}
	v := env.read(t, "abc")
	if v.RequiresPassword || v.IsLocked || v.Content == nil || *v.Content != "hello" {
		t.Fatalf("view = %+v", v)
	}
	if n := env.stored(t, "abc"); n.LockType != models.LockNone || n.PasswordHash != "" {
		t.Errorf("lock columns not cleared: %+v", n)
	}
}

func TestRemoveLockErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.insert(t, models.Note{Path: "open", Content: "x"})
	if err := env.svc.RemoveLock(ctx, "open", "pw"); !errors.Is(err, apperr.ErrNotLocked) {
		t.Errorf("unlocked note: %v", err)
	}
	env.lock(t, "open", models.LockWrite, "pw")
	if err := env.svc.RemoveLock(ctx, "open", "bad"); !errors.Is(err, apperr.ErrInvalidPassword) {
		t.Errorf("wrong password: %v", err)
	}
	if !env.stored(t, "open").IsLocked {
		t.Error("lock removed despite wrong password")
	}
	if err := env.svc.RemoveLock(ctx, "ghost", "pw"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing note: %v", err)
	}
}

func TestWriteLockedNoteIsCachedWithContent(t *testing.T) {
	env := newTestEnv(t)
	env.insert(t, models.Note{Path: "pub", Content: "public text", ViewCount: 3})
	env.lock(t, "pub", models.LockWrite, "pw")

	v := env.read(t, "pub")
	if v.RequiresPassword || v.Content == nil || *v.Content != "public text" {
		t.Fatalf("view = %+v", v)
	}
	puts := env.cache.Puts()
	if len(puts) != 1 || !strings.Contains(puts[0].Value, "public text") {
		t.Fatalf("puts = %+v", puts)
	}
}

func TestSaveToLockedNoteRequiresPassword(t *testing.T) {
	ctx := context.Background()
	for _, typ := range []models.LockType{models.LockWrite, models.LockRead} {
		t.Run(string(typ), func(t *testing.T) {
			env := newTestEnv(t)
			env.insert(t, models.Note{Path: "l", Content: "orig"})
			env.lock(t, "l", typ, "pw")

			if _, err := env.svc.Save(ctx, "l", "new", ""); !errors.Is(err, apperr.ErrPasswordRequired) {
				t.Errorf("no password: %v", err)
			}
			if _, err := env.svc.Save(ctx, "l", "new", "bad"); !errors.Is(err, apperr.ErrInvalidPassword) {
				t.Errorf("wrong password: %v", err)
			}
			if c := env.stored(t, "l").Content; c != "orig" {
				t.Fatalf("content changed by rejected save: %q", c)
			}
			if _, err := env.svc.Save(ctx, "l", "new", "pw"); err != nil {
				t.Fatalf("right password: %v", err)
			}
			n := env.stored(t, "l")
			if n.Content != "new" || n.LockType != typ {
				t.Errorf("note = %+v", n)
			}
		})
	}
}

func TestLockValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.insert(t, models.Note{Path: "n", Content: "x"})

	if err := env.svc.Lock(ctx, "n", LockRequest{Type: "admin", Password: "pw"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("bad type: %v", err)
	}
	if err := env.svc.Lock(ctx, "n", LockRequest{Type: models.LockRead}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("no password: %v", err)
	}
	if err := env.svc.Lock(ctx, "ghost", LockRequest{Type: models.LockRead, Password: "pw"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing note: %v", err)
	}
	if n := env.stored(t, "n"); n.IsLocked {
		t.Errorf("note locked by rejected request: %+v", n)
	}
}

func TestRelockRequiresCurrentPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.insert(t, models.Note{Path: "n", Content: "x"})
	env.lock(t, "n", models.LockWrite, "old")

	err := env.svc.Lock(ctx, "n", LockRequest{Type: models.LockRead, Password: "new"})
	if !errors.Is(err, apperr.ErrPasswordRequired) {
		t.Fatalf("relock without current password: %v", err)
	}
	err = env.svc.Lock(ctx, "n", LockRequest{Type: models.LockRead, Password: "new", CurrentPassword: "old"})
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	if _, err := env.svc.Unlock(ctx, "n", "new"); err != nil {
		t.Errorf("unlock with new password: %v", err)
	}
	if _, err := env.svc.Unlock(ctx, "n", "old"); !errors.Is(err, apperr.ErrInvalidPassword) {
		t.Errorf("old password still works: %v", err)
	}
}

func TestLockColumnsStayConsistent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.insert(t, models.Note{Path: "n", Content: "x"})

	check := func(step string) {
		n := env.stored(t, "n")
		locked := n.IsLocked
		if locked != (n.LockType != models.LockNone) || locked != (n.PasswordHash != "") {
			t.Fatalf("%s: inconsistent lock columns %+v", step, n)
		}
	}
	check("initial")
	env.lock(t, "n", models.LockRead, "pw")
	check("lock")
	if _, err := env.svc.Save(ctx, "n", "y", "pw"); err != nil {
		t.Fatal(err)
	}
	check("save")
	if err := env.svc.RemoveLock(ctx, "n", "pw"); err != nil {
		t.Fatal(err)
	}
	check("remove")
}

func TestCacheFailuresDegrade(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.insert(t, models.Note{Path: "n", Content: "x", ViewCount: 7})
	env.cache.SetFail(true)

	v := env.read(t, "n")
	if v.Content == nil || *v.Content != "x" {
		t.Fatalf("view = %+v", v)
	}
	if _, err := env.svc.Save(ctx, "n", "y", ""); err != nil {
		t.Fatalf("Save with cache down: %v", err)
	}
	if c := env.stored(t, "n").Content; c != "y" {
		t.Errorf("content = %q", c)
	}
}

func TestUndecodableCacheEntryIsAMiss(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.insert(t, models.Note{Path: "n", Content: "from store"})
	if err := env.cache.Put(ctx, "note:n", "{not json", time.Minute); err != nil {
		t.Fatal(err)
	}
	v := env.read(t, "n")
	if v.Content == nil || *v.Content != "from store" {
		t.Fatalf("view = %+v", v)
	}
}

func TestInvalidPathRejectedBeforeStorage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, p := range []string{"", "admin", "API", "has space", strings.Repeat("x", 21)} {
		if _, err := env.svc.Get(ctx, p); !errors.Is(err, apperr.ErrInvalidPath) {
			t.Errorf("Get(%q) = %v", p, err)
		}
		if _, err := env.svc.Save(ctx, p, "content", ""); !errors.Is(err, apperr.ErrInvalidPath) {
			t.Errorf("Save(%q) = %v", p, err)
		}
	}
	if n, _ := env.store.Count(ctx, ""); n != 0 {
		t.Errorf("rows = %d, want 0", n)
	}
	if len(env.cache.Deletes()) != 0 {
		t.Error("cache touched by rejected requests")
	}
}

func TestResolveRootReusesNewestBlank(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	env.insert(t, models.Note{Path: "older", Content: "", CreatedAt: base})
	env.insert(t, models.Note{Path: "newer", Content: "  ", CreatedAt: base.Add(time.Hour)})
	env.insert(t, models.Note{Path: "full", Content: "text", CreatedAt: base.Add(2 * time.Hour)})

	p, err := env.svc.ResolveRoot(ctx)
	if err != nil {
		t.Fatalf("ResolveRoot: %v", err)
	}
	if p != "newer" {
		t.Errorf("ResolveRoot = %q, want newer", p)
	}
}

func TestResolveRootGeneratesFreshPath(t *testing.T) {
	env := newTestEnv(t)
	env.svc = New(env.store, env.cache, WithPathRules(notepath.Rules{MinLength: 6, MaxLength: 8}))
	env.insert(t, models.Note{Path: "full", Content: "text"})

	p, err := env.svc.ResolveRoot(context.Background())
	if err != nil {
		t.Fatalf("ResolveRoot: %v", err)
	}
	if len(p) < 6 || len(p) > 8 || strings.ToLower(p) != p {
		t.Errorf("path = %q", p)
	}
	if _, err := env.store.Get(context.Background(), p); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("generated path %q already exists", p)
	}
}

func TestEventsPublished(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.svc.Save(ctx, "ev", "a", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.Save(ctx, "ev", "b", ""); err != nil {
		t.Fatal(err)
	}
	env.lock(t, "ev", models.LockWrite, "pw")
	if err := env.svc.RemoveLock(ctx, "ev", "pw"); err != nil {
		t.Fatal(err)
	}

	want := []recordedEvent{
		{EventCreated, "ev"}, {EventUpdated, "ev"}, {EventLocked, "ev"}, {EventUnlocked, "ev"},
	}
	env.events.mu.Lock()
	defer env.events.mu.Unlock()
	if len(env.events.events) != len(want) {
		t.Fatalf("events = %+v", env.events.events)
	}
	for i := range want {
		if env.events.events[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, env.events.events[i], want[i])
		}
	}
}
