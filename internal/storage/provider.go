// Package storage defines the adapter contracts shared by both runtimes.
//
// Every contract has a local implementation (SQLite, in-process map,
// filesystem) and an edge implementation (PostgreSQL, Redis, S3-compatible
// object storage). Services depend only on these interfaces; the concrete
// pair is chosen once at startup.
package storage

import (
	"context"
	"time"

	"github.com/starford/pathnote/internal/apperr"
	"github.com/starford/pathnote/internal/models"
)

// ErrNotFound is returned by Get-style lookups when the key is absent.
var ErrNotFound = apperr.ErrNotFound

// Sort orders for ListOptions.
const (
	SortUpdated = "updated_at" // newest update first (default)
	SortCreated = "created_at" // newest creation first
	SortPath    = "path"       // alphabetical
)

// ListOptions filters and paginates NoteStore.List.
type ListOptions struct {
	// Query is a case-insensitive substring matched against path and content.
	Query  string
	Limit  int
	Offset int
	Sort   string
}

// NoteStore is the durable, authoritative note table.
type NoteStore interface {
	// Get returns the note at path or ErrNotFound.
	Get(ctx context.Context, path string) (*models.Note, error)
	// Insert creates a note. Zero timestamps are set by the store.
	// Returns apperr.ErrAlreadyExists when the path is taken.
	Insert(ctx context.Context, n models.Note) error
	// Update applies a partial update and stamps updated_at.
	// Returns ErrNotFound when no row matches.
	Update(ctx context.Context, path string, u models.NoteUpdate) error
	// IncrementViews atomically adds one to view_count without touching updated_at.
	IncrementViews(ctx context.Context, path string) error
	// Delete removes the note and reports whether a row was removed.
	Delete(ctx context.Context, path string) (bool, error)
	// List returns notes ordered by opts.Sort (updated_at descending by default).
	List(ctx context.Context, opts ListOptions) ([]models.Note, error)
	// Count returns the number of notes matching query (all notes when empty).
	Count(ctx context.Context, query string) (int, error)
	// LatestBlank returns the most recently created note with empty content, or ErrNotFound.
	LatestBlank(ctx context.Context) (*models.Note, error)
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	Close() error

	AuditLog
}

// AuditLog is the append-only admin action log kept next to the notes.
type AuditLog interface {
	AppendLog(ctx context.Context, e models.AdminLogEntry) error
	// ListLogs returns the newest entries first.
	ListLogs(ctx context.Context, limit int) ([]models.AdminLogEntry, error)
}

// Cache is a best-effort key/value cache with per-entry expiry.
// Callers treat every error as a miss.
type Cache interface {
	// Get returns the value and true on a hit, "" and false on a miss.
	Get(ctx context.Context, key string) (string, bool, error)
	// Put stores value under key, replacing any existing value and TTL.
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	Close() error
}

// BlobStore holds export and backup artifacts.
type BlobStore interface {
	// Put stores data under key, replacing existing content.
	Put(ctx context.Context, key string, data []byte) error
	// Get returns the content at key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns every object whose key starts with prefix, sorted by key.
	List(ctx context.Context, prefix string) ([]models.BlobInfo, error)
}

// DefaultListLimit is used when ListOptions.Limit is not positive.
const DefaultListLimit = 50

// MaxListLimit caps ListOptions.Limit.
const MaxListLimit = 1000

// Normalize clamps pagination and fills in the default sort.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	if o.Limit > MaxListLimit {
		o.Limit = MaxListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	switch o.Sort {
	case SortCreated, SortPath:
	default:
		o.Sort = SortUpdated
	}
	return o
}
