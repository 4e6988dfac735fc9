package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/pathnote/internal/adminservice"
	"github.com/starford/pathnote/internal/apperr"
	"github.com/starford/pathnote/internal/auth"
	"github.com/starford/pathnote/internal/models"
	"github.com/starford/pathnote/internal/noteservice"
	"github.com/starford/pathnote/internal/sse"
	"github.com/starford/pathnote/internal/storage/sqlite"
	"github.com/starford/pathnote/internal/testutil"
)

type testEnv struct {
	store  *sqlite.Store
	notes  *noteservice.Service
	admin  *adminservice.Service
	broker *sse.Broker
	router http.Handler
}

type envOption func(*Deps)

func withLimiter(l *RateLimiter) envOption { return func(d *Deps) { d.Limiter = l } }

func withReady(f ReadyFunc) envOption { return func(d *Deps) { d.Ready = f } }

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	env := &testEnv{store: testutil.TestStore(t)}
	env.broker = sse.NewBroker(time.Millisecond, sse.WithHeartbeat(time.Hour))
	t.Cleanup(env.broker.Close)

	env.notes = noteservice.New(env.store, testutil.NewRecordingCache(t),
		noteservice.WithHasher(testutil.FastHasher()),
		noteservice.WithPublisher(env.broker),
	)
	env.admin = adminservice.New(env.store, testutil.TestBlobs(t), env.notes,
		auth.NewTokens([]byte("test-secret"), time.Hour),
		adminservice.WithCredentials(auth.Credentials{Username: "admin", Password: "s3cret"}),
		adminservice.WithHasher(testutil.FastHasher()),
		adminservice.WithPublisher(env.broker),
	)
	d := Deps{Notes: env.notes, Admin: env.admin, Events: env.broker}
	for _, o := range opts {
		o(&d)
	}
	env.router = NewRouter(d)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = env.notes.Wait(ctx)
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, target string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/admin/login", LoginRequest{Username: "admin", Password: "s3cret"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", w.Code, w.Body.String())
	}
	var sess adminservice.Session
	decode(t, w, &sess)
	return sess.Token
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, want, w.Body.String())
	}
}

func TestRootRedirectsToFreshPath(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/", nil, "")
	wantStatus(t, w, http.StatusFound)

	loc := strings.TrimPrefix(w.Header().Get("Location"), "/")
	if err := env.notes.Rules().Validate(loc); err != nil {
		t.Errorf("redirect target %q is not a valid path: %v", loc, err)
	}
}

func TestRootReusesBlankNote(t *testing.T) {
	env := newTestEnv(t)
	if err := env.store.Insert(context.Background(), models.Note{Path: "blank"}); err != nil {
		t.Fatal(err)
	}
	w := env.do(t, http.MethodGet, "/", nil, "")
	wantStatus(t, w, http.StatusFound)
	if got := w.Header().Get("Location"); got != "/blank" {
		t.Errorf("Location = %q", got)
	}
}

func TestEditorPage(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/hello", nil, "")
	wantStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), "/api/note/hello") {
		t.Error("page does not reference the note API")
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}

	tests := []struct {
		target string
		want   int
	}{
		{"/static", http.StatusNotFound},
		{"/Admin", http.StatusNotFound},
		{"/bad.path", http.StatusBadRequest},
		{"/" + strings.Repeat("a", 21), http.StatusBadRequest},
	}
	for _, tt := range tests {
		if w := env.do(t, http.MethodGet, tt.target, nil, ""); w.Code != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.target, w.Code, tt.want)
		}
	}
}

func TestNoteSaveAndRead(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/note/fresh", nil, "")
	wantStatus(t, w, http.StatusOK)
	var missing noteservice.NoteView
	decode(t, w, &missing)
	if missing.Exists || missing.Path != "fresh" {
		t.Errorf("missing view = %+v", missing)
	}

	w = env.do(t, http.MethodPost, "/api/note/fresh", SaveNoteRequest{Content: "   "}, "")
	wantStatus(t, w, http.StatusBadRequest)

	w = env.do(t, http.MethodPost, "/api/note/fresh", SaveNoteRequest{Content: "<p>hi</p>"}, "")
	wantStatus(t, w, http.StatusCreated)

	w = env.do(t, http.MethodPost, "/api/note/fresh", SaveNoteRequest{Content: "<p>hello</p>"}, "")
	wantStatus(t, w, http.StatusOK)

	w = env.do(t, http.MethodGet, "/api/note/fresh", nil, "")
	wantStatus(t, w, http.StatusOK)
	var v noteservice.NoteView
	decode(t, w, &v)
	if !v.Exists || v.Content == nil || *v.Content != "<p>hello</p>" {
		t.Errorf("view = %+v", v)
	}
}

func TestInvalidNotePath(t *testing.T) {
	env := newTestEnv(t)
	for _, target := range []string{"/api/note/a.b", "/api/note/api", "/api/note/" + strings.Repeat("x", 21)} {
		w := env.do(t, http.MethodGet, target, nil, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("GET %s = %d, want 400", target, w.Code)
		}
	}
	w := env.do(t, http.MethodPost, "/api/note/a.b", SaveNoteRequest{Content: "x"}, "")
	wantStatus(t, w, http.StatusBadRequest)
}

func TestMalformedBody(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/note/abc", strings.NewReader("{"))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	wantStatus(t, w, http.StatusBadRequest)
}

func TestLockLifecycle(t *testing.T) {
	env := newTestEnv(t)
	wantStatus(t, env.do(t, http.MethodPost, "/api/note/secret", SaveNoteRequest{Content: "<p>top</p>"}, ""), http.StatusCreated)

	w := env.do(t, http.MethodPost, "/api/note/secret/lock", LockNoteRequest{LockType: models.LockRead}, "")
	wantStatus(t, w, http.StatusBadRequest)

	w = env.do(t, http.MethodPost, "/api/note/secret/lock", LockNoteRequest{LockType: models.LockRead, Password: "pw"}, "")
	wantStatus(t, w, http.StatusOK)

	w = env.do(t, http.MethodGet, "/api/note/secret", nil, "")
	wantStatus(t, w, http.StatusOK)
	var challenge noteservice.NoteView
	decode(t, w, &challenge)
	if !challenge.RequiresPassword || challenge.Content != nil {
		t.Errorf("challenge = %+v", challenge)
	}

	wantStatus(t, env.do(t, http.MethodPost, "/api/note/secret/unlock", PasswordRequest{}, ""), http.StatusForbidden)
	wantStatus(t, env.do(t, http.MethodPost, "/api/note/secret/unlock", PasswordRequest{Password: "no"}, ""), http.StatusForbidden)

	w = env.do(t, http.MethodPost, "/api/note/secret/unlock", PasswordRequest{Password: "pw"}, "")
	wantStatus(t, w, http.StatusOK)
	var unlocked noteservice.NoteView
	decode(t, w, &unlocked)
	if unlocked.Content == nil || *unlocked.Content != "<p>top</p>" {
		t.Errorf("unlocked = %+v", unlocked)
	}

	wantStatus(t, env.do(t, http.MethodPost, "/api/note/secret", SaveNoteRequest{Content: "x"}, ""), http.StatusForbidden)
	wantStatus(t, env.do(t, http.MethodPost, "/api/note/secret", SaveNoteRequest{Content: "x", Password: "pw"}, ""), http.StatusOK)

	wantStatus(t, env.do(t, http.MethodDelete, "/api/note/secret/lock", PasswordRequest{Password: "no"}, ""), http.StatusForbidden)
	wantStatus(t, env.do(t, http.MethodDelete, "/api/note/secret/lock", PasswordRequest{Password: "pw"}, ""), http.StatusOK)
	wantStatus(t, env.do(t, http.MethodDelete, "/api/note/secret/lock", PasswordRequest{Password: "pw"}, ""), http.StatusBadRequest)

	wantStatus(t, env.do(t, http.MethodPost, "/api/note/nothere/lock", LockNoteRequest{LockType: models.LockWrite, Password: "pw"}, ""), http.StatusNotFound)
}

func TestAdminRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	wantStatus(t, env.do(t, http.MethodGet, "/admin/notes", nil, ""), http.StatusUnauthorized)
	wantStatus(t, env.do(t, http.MethodGet, "/admin/notes", nil, "garbage"), http.StatusUnauthorized)
	wantStatus(t, env.do(t, http.MethodPost, "/admin/login", LoginRequest{Username: "admin", Password: "x"}, ""), http.StatusUnauthorized)
}

func TestAdminNoteManagement(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	w := env.do(t, http.MethodPost, "/admin/notes", adminservice.NoteInput{Path: "made", Content: "<p>by admin</p>"}, token)
	wantStatus(t, w, http.StatusCreated)
	wantStatus(t, env.do(t, http.MethodPost, "/admin/notes", adminservice.NoteInput{Path: "made"}, token), http.StatusConflict)

	w = env.do(t, http.MethodGet, "/admin/notes?q=admin", nil, token)
	wantStatus(t, w, http.StatusOK)
	var list adminservice.NoteList
	decode(t, w, &list)
	if list.Total != 1 || list.Notes[0].Path != "made" {
		t.Errorf("list = %+v", list)
	}

	body := "<p>edited</p>"
	w = env.do(t, http.MethodPut, "/admin/notes/made", adminservice.UpdateInput{Content: &body}, token)
	wantStatus(t, w, http.StatusOK)

	w = env.do(t, http.MethodGet, "/admin/notes/made", nil, token)
	wantStatus(t, w, http.StatusOK)
	var n models.Note
	decode(t, w, &n)
	if n.Content != body {
		t.Errorf("content = %q", n.Content)
	}
	if strings.Contains(w.Body.String(), "password_hash") {
		t.Error("admin note response leaks the password hash field")
	}

	wantStatus(t, env.do(t, http.MethodDelete, "/admin/notes/made", nil, token), http.StatusNoContent)
	wantStatus(t, env.do(t, http.MethodDelete, "/admin/notes/made", nil, token), http.StatusNotFound)

	w = env.do(t, http.MethodPost, "/admin/notes/bulk-delete", BulkDeleteRequest{Paths: []string{"gone"}}, token)
	wantStatus(t, w, http.StatusOK)
	var bulk adminservice.BulkDeleteResult
	decode(t, w, &bulk)
	if bulk.Deleted != 0 || len(bulk.Missing) != 1 {
		t.Errorf("bulk = %+v", bulk)
	}

	w = env.do(t, http.MethodGet, "/admin/logs?limit=10", nil, token)
	wantStatus(t, w, http.StatusOK)
	var logs struct {
		Logs []models.AdminLogEntry `json:"logs"`
	}
	decode(t, w, &logs)
	if len(logs.Logs) < 4 {
		t.Errorf("logs = %+v", logs.Logs)
	}
}

func TestExportBlobsAndImport(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	wantStatus(t, env.do(t, http.MethodPost, "/api/note/alpha", SaveNoteRequest{Content: "<p>a</p>"}, ""), http.StatusCreated)

	w := env.do(t, http.MethodGet, "/admin/export", nil, token)
	wantStatus(t, w, http.StatusOK)
	key := w.Header().Get("X-Blob-Key")
	if !strings.HasPrefix(key, "exports/notes-") {
		t.Fatalf("X-Blob-Key = %q", key)
	}
	etag := w.Header().Get("ETag")
	exported := w.Body.Bytes()

	w = env.do(t, http.MethodGet, "/admin/blobs?prefix=exports/", nil, token)
	wantStatus(t, w, http.StatusOK)
	var blobs struct {
		Blobs []models.BlobInfo `json:"blobs"`
	}
	decode(t, w, &blobs)
	if len(blobs.Blobs) != 1 || blobs.Blobs[0].Key != key {
		t.Fatalf("blobs = %+v", blobs.Blobs)
	}

	w = env.do(t, http.MethodGet, "/admin/blobs/"+key, nil, token)
	wantStatus(t, w, http.StatusOK)
	if !bytes.Equal(w.Body.Bytes(), exported) {
		t.Error("downloaded blob differs from the export")
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/blobs/"+key, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	wantStatus(t, w, http.StatusNotModified)

	wantStatus(t, env.do(t, http.MethodGet, "/admin/blobs/exports/..%2Fsecret", nil, token), http.StatusBadRequest)
	wantStatus(t, env.do(t, http.MethodGet, "/admin/blobs/other/x.json", nil, token), http.StatusNotFound)

	req = httptest.NewRequest(http.MethodPost, "/admin/import", bytes.NewReader(exported))
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	wantStatus(t, w, http.StatusOK)
	var res adminservice.ImportResult
	decode(t, w, &res)
	if res.Skipped != 1 || res.Imported != 0 {
		t.Errorf("import = %+v", res)
	}

	wantStatus(t, env.do(t, http.MethodPost, "/admin/backup", nil, token), http.StatusCreated)
}

func TestLoginRateLimited(t *testing.T) {
	env := newTestEnv(t, withLimiter(NewRateLimiter(1, 2)))
	bad := LoginRequest{Username: "admin", Password: "wrong"}
	wantStatus(t, env.do(t, http.MethodPost, "/admin/login", bad, ""), http.StatusUnauthorized)
	wantStatus(t, env.do(t, http.MethodPost, "/admin/login", bad, ""), http.StatusUnauthorized)

	w := env.do(t, http.MethodPost, "/admin/login", bad, "")
	wantStatus(t, w, http.StatusTooManyRequests)
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	// Reads are not limited.
	wantStatus(t, env.do(t, http.MethodGet, "/api/note/abc", nil, ""), http.StatusOK)
}

func TestRateLimiterPerClient(t *testing.T) {
	l := NewRateLimiter(60, 1)
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	if !l.Allow("a") || l.Allow("a") {
		t.Fatal("burst of one not enforced")
	}
	if !l.Allow("b") {
		t.Error("clients share a bucket")
	}
	now = now.Add(time.Second)
	if !l.Allow("a") {
		t.Error("bucket did not refill")
	}
	now = now.Add(time.Hour)
	l.Allow("c")
	if _, ok := l.clients["b"]; ok {
		t.Error("idle client not swept")
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, withReady(func(context.Context) error { return errors.New("db down") }))
	wantStatus(t, env.do(t, http.MethodGet, "/api/health/live", nil, ""), http.StatusOK)
	wantStatus(t, env.do(t, http.MethodGet, "/api/health/ready", nil, ""), http.StatusServiceUnavailable)

	ok := newTestEnv(t, withReady(func(ctx context.Context) error { return nil }))
	wantStatus(t, ok.do(t, http.MethodGet, "/api/health/ready", nil, ""), http.StatusOK)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/api/note/abc", nil, "")

	w := env.do(t, http.MethodGet, "/api/metrics", nil, "")
	wantStatus(t, w, http.StatusOK)
	for _, name := range []string{"pathnote_http_request_duration_seconds", "pathnote_cache_fills_total"} {
		if !strings.Contains(w.Body.String(), name) {
			t.Errorf("metrics output lacks %s", name)
		}
	}
}

func TestAdminEventsStream(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/admin/events", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	for env.broker.ClientCount() == 0 {
		select {
		case <-ctx.Done():
			t.Fatal("client never subscribed")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if _, err := env.notes.Save(context.Background(), "streamed", "<p>x</p>", ""); err != nil {
		t.Fatal(err)
	}

	want := fmt.Sprintf("event: %s", noteservice.EventCreated)
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if sc.Text() == want {
			return
		}
	}
	t.Fatalf("stream ended without %q: %v", want, sc.Err())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.ErrInvalidPath, http.StatusBadRequest},
		{fmt.Errorf("%w: bad", apperr.ErrInvalidInput), http.StatusBadRequest},
		{apperr.ErrEmptyContent, http.StatusBadRequest},
		{apperr.ErrNotLocked, http.StatusBadRequest},
		{apperr.ErrPasswordRequired, http.StatusForbidden},
		{apperr.ErrInvalidPassword, http.StatusForbidden},
		{apperr.ErrUnauthorized, http.StatusUnauthorized},
		{apperr.ErrNotFound, http.StatusNotFound},
		{apperr.ErrAlreadyExists, http.StatusConflict},
		{apperr.ErrPathExhausted, http.StatusInternalServerError},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		got, msg := statusFor(tt.err)
		if got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
		if got == http.StatusInternalServerError && tt.err.Error() == "disk on fire" && msg != "internal error" {
			t.Errorf("internal error leaked: %q", msg)
		}
	}
}
