// Package postgres implements storage.NoteStore on PostgreSQL through the
// pgx database/sql driver. It is the relational store of the edge runtime
// (managed/serverless Postgres).
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/starford/pathnote/internal/storage"
	"github.com/starford/pathnote/internal/storage/postgres/migrations"
)

// Store is a PostgreSQL-backed note store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ storage.NoteStore = (*Store)(nil)

// gooseUp is a seam for tests.
var gooseUp = func(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// Open connects to dsn, verifies the connection and applies migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if err := gooseUp(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return New(db), nil
}

// New wraps an existing connection pool. The schema must already exist.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
