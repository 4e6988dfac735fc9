package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/pathnote/internal/models"
	"github.com/starford/pathnote/internal/storage"
	"github.com/starford/pathnote/internal/storage/storagetest"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	f, err := os.CreateTemp("", "pathnote-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	s, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNoteStoreContract(t *testing.T) {
	storagetest.RunNoteStore(t, func(t *testing.T) storage.NoteStore {
		return testStore(t)
	})
}

func TestSchemaCreation(t *testing.T) {
	s := testStore(t)
	var count int
	if err := s.conn.QueryRow(`SELECT count(*) FROM notes`).Scan(&count); err != nil {
		t.Fatalf("notes table missing: %v", err)
	}
	if err := s.conn.QueryRow(`SELECT count(*) FROM admin_logs`).Scan(&count); err != nil {
		t.Fatalf("admin_logs table missing: %v", err)
	}
}

func TestSchemaRejectsHalfLockedRow(t *testing.T) {
	s := testStore(t)
	_, err := s.conn.Exec(`INSERT INTO notes (path, content, is_locked, lock_type, password_hash, view_count, created_at, updated_at)
		VALUES ('bad', '', 1, 'read', NULL, 0, 0, 0)`)
	if err == nil {
		t.Fatal("expected CHECK constraint to reject a lock without a hash")
	}
}

func TestUpdateUsesStoreClock(t *testing.T) {
	s := testStore(t)
	fixed := time.Date(2031, 5, 6, 7, 8, 9, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	ctx := context.Background()

	if err := s.Insert(ctx, models.Note{Path: "clock", Content: "a", CreatedAt: fixed.Add(-time.Hour)}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	content := "b"
	if err := s.Update(ctx, "clock", models.NoteUpdate{Content: &content}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	n, err := s.Get(ctx, "clock")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !n.UpdatedAt.Equal(fixed) {
		t.Errorf("updated_at = %v, want %v", n.UpdatedAt, fixed)
	}
}

func TestReopenKeepsData(t *testing.T) {
	f, err := os.CreateTemp("", "pathnote-reopen-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	defer os.Remove(f.Name())
	ctx := context.Background()

	s, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Insert(ctx, models.Note{Path: "persist", Content: "still here"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	s.Close()

	s, err = Open(f.Name())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	n, err := s.Get(ctx, "persist")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if n.Content != "still here" {
		t.Errorf("content = %q", n.Content)
	}
}

func TestWithConnParams(t *testing.T) {
	tests := []struct {
		dsn, want string
	}{
		{"notes.db", "notes.db?" + connParams},
		{"file:notes.db?mode=rwc", "file:notes.db?mode=rwc&" + connParams},
	}
	for _, tt := range tests {
		if got := withConnParams(tt.dsn); got != tt.want {
			t.Errorf("withConnParams(%q) = %q, want %q", tt.dsn, got, tt.want)
		}
	}
}

func TestOpen_DSNWithQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.db")
	s, err := Open("file:" + path + "?mode=rwc")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	var mode string
	if err := s.conn.QueryRow(`PRAGMA journal_mode`).Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
	if err := s.Insert(context.Background(), models.Note{Path: "abc", Content: "x"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file not created at %s: %v", path, err)
	}
}
