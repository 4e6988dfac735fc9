// Package sqlite implements storage.NoteStore on a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/pathnote/internal/storage"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	path          TEXT PRIMARY KEY,
	content       TEXT NOT NULL DEFAULT '',
	is_locked     INTEGER NOT NULL DEFAULT 0,
	lock_type     TEXT CHECK (lock_type IN ('read', 'write')),
	password_hash TEXT,
	view_count    INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL,
	CHECK (
		(is_locked = 0 AND lock_type IS NULL AND password_hash IS NULL) OR
		(is_locked = 1 AND lock_type IS NOT NULL AND password_hash IS NOT NULL)
	)
);

CREATE INDEX IF NOT EXISTS idx_notes_updated_at ON notes(updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_notes_created_at ON notes(created_at DESC);

CREATE TABLE IF NOT EXISTS admin_logs (
	id          TEXT PRIMARY KEY,
	action      TEXT NOT NULL,
	target_path TEXT NOT NULL DEFAULT '',
	details     TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_admin_logs_created_at ON admin_logs(created_at DESC);
`

// Store is a SQLite-backed note store.
type Store struct {
	conn *sql.DB
	now  func() time.Time
}

var _ storage.NoteStore = (*Store)(nil)

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*Store, error) {
	conn, err := sql.Open("sqlite3", withConnParams(dsn))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Store{conn: conn, now: time.Now}, nil
}

const connParams = "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// withConnParams appends the connection parameters to dsn, keeping any
// query string it already carries.
func withConnParams(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + connParams
	}
	return dsn + "?" + connParams
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}
