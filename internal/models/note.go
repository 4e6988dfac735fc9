// Package models defines the domain types for pathnote.
package models

import "time"

// LockType is the kind of password protection applied to a note.
type LockType string

// Lock types.
const (
	LockNone  LockType = ""
	LockRead  LockType = "read"  // password required to view or edit
	LockWrite LockType = "write" // viewable by anyone, password required to edit
)

// Valid reports whether t names a real lock type.
func (t LockType) Valid() bool {
	return t == LockRead || t == LockWrite
}

// Lock is the lock state of a note. The zero value means unlocked.
// Type and PasswordHash are always set or cleared together.
type Lock struct {
	Type         LockType
	PasswordHash string
}

// Locked reports whether the lock is active.
func (l Lock) Locked() bool {
	return l.Type != LockNone
}

// Note is the sole durable entity: a rich-text document addressed by path.
type Note struct {
	Path         string    `json:"path"`
	Content      string    `json:"content"`
	IsLocked     bool      `json:"is_locked"`
	LockType     LockType  `json:"lock_type,omitempty"`
	PasswordHash string    `json:"-"`
	ViewCount    int64     `json:"view_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Lock returns the note's lock state.
func (n *Note) Lock() Lock {
	if !n.IsLocked {
		return Lock{}
	}
	return Lock{Type: n.LockType, PasswordHash: n.PasswordHash}
}

// SetLock applies l to the note, keeping the lock columns consistent.
func (n *Note) SetLock(l Lock) {
	n.IsLocked = l.Locked()
	n.LockType = l.Type
	n.PasswordHash = l.PasswordHash
	if !n.IsLocked {
		n.LockType = LockNone
		n.PasswordHash = ""
	}
}

// NoteUpdate is a partial update. Nil fields keep their stored value.
type NoteUpdate struct {
	Content *string
	Lock    *Lock
}

// AdminLogEntry is an append-only record of an administrative action.
type AdminLogEntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	TargetPath string    `json:"target_path,omitempty"`
	Details    string    `json:"details,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Admin log actions.
const (
	ActionLogin  = "login"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionImport = "import"
	ActionExport = "export"
	ActionBackup = "backup"
)

// BlobInfo describes one object in the blob store.
type BlobInfo struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
}
