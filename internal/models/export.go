package models

import "time"

// ExportVersion is the current export/backup document format version.
const ExportVersion = 1

// ExportedNote is a note as written to export and backup documents.
// Unlike Note it carries the password hash so locks survive a round trip.
type ExportedNote struct {
	Path         string    `json:"path"`
	Content      string    `json:"content"`
	IsLocked     bool      `json:"is_locked"`
	LockType     LockType  `json:"lock_type,omitempty"`
	PasswordHash string    `json:"password_hash,omitempty"`
	ViewCount    int64     `json:"view_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ExportDocument is the persisted export/backup format.
// Exports set ExportedAt, backups set CreatedAt.
type ExportDocument struct {
	Version    int            `json:"version"`
	ExportedAt *time.Time     `json:"exported_at,omitempty"`
	CreatedAt  *time.Time     `json:"created_at,omitempty"`
	Notes      []ExportedNote `json:"notes"`
}

// ExportNote converts n for inclusion in an export document.
func ExportNote(n Note) ExportedNote {
	return ExportedNote{
		Path:         n.Path,
		Content:      n.Content,
		IsLocked:     n.IsLocked,
		LockType:     n.LockType,
		PasswordHash: n.PasswordHash,
		ViewCount:    n.ViewCount,
		CreatedAt:    n.CreatedAt,
		UpdatedAt:    n.UpdatedAt,
	}
}

// Note converts an exported note back into a Note. An inconsistent lock
// triple (locked without a hash, or with an unknown type) is imported unlocked.
func (e ExportedNote) Note() Note {
	n := Note{
		Path:      e.Path,
		Content:   e.Content,
		ViewCount: e.ViewCount,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
	if e.IsLocked && e.LockType.Valid() && e.PasswordHash != "" {
		n.SetLock(Lock{Type: e.LockType, PasswordHash: e.PasswordHash})
	}
	if n.ViewCount < 0 {
		n.ViewCount = 0
	}
	return n
}
