package adminservice

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/pathnote/internal/apperr"
	"github.com/starford/pathnote/internal/content"
	"github.com/starford/pathnote/internal/models"
	"github.com/starford/pathnote/internal/noteservice"
	"github.com/starford/pathnote/internal/storage"
)

const excerptLength = 120

// NoteSummary is one row of the admin note listing.
type NoteSummary struct {
	Path      string          `json:"path"`
	Excerpt   string          `json:"excerpt"`
	Size      int             `json:"size"`
	IsLocked  bool            `json:"is_locked"`
	LockType  models.LockType `json:"lock_type,omitempty"`
	ViewCount int64           `json:"view_count"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ListQuery selects a page of notes. Page is 1-based.
type ListQuery struct {
	Query string
	Page  int
	Limit int
	Sort  string
}

// NoteList is a page of notes plus the total matching count.
type NoteList struct {
	Notes []NoteSummary `json:"notes"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// List returns a page of notes, optionally filtered by a substring query.
func (s *Service) List(ctx context.Context, q ListQuery) (*NoteList, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	opts := storage.ListOptions{Query: q.Query, Limit: q.Limit, Sort: q.Sort}.Normalize()
	opts.Offset = (q.Page - 1) * opts.Limit

	rows, err := s.notes.List(ctx, opts)
	if err != nil {
		return nil, err
	}
	total, err := s.notes.Count(ctx, q.Query)
	if err != nil {
		return nil, err
	}
	items := make([]NoteSummary, len(rows))
	for i, n := range rows {
		items[i] = NoteSummary{
			Path:      n.Path,
			Excerpt:   content.Excerpt(n.Content, excerptLength),
			Size:      len(n.Content),
			IsLocked:  n.IsLocked,
			LockType:  n.LockType,
			ViewCount: n.ViewCount,
			CreatedAt: n.CreatedAt,
			UpdatedAt: n.UpdatedAt,
		}
	}
	return &NoteList{Notes: items, Total: total, Page: q.Page, Limit: opts.Limit}, nil
}

// Get returns a note straight from the store, including read-locked content.
func (s *Service) Get(ctx context.Context, path string) (*models.Note, error) {
	return s.notes.Get(ctx, path)
}

// LockInput sets a lock from the admin panel. An empty Type removes the lock.
type LockInput struct {
	Type     models.LockType `json:"lock_type"`
	Password string          `json:"password"`
}

// NoteInput creates a note.
type NoteInput struct {
	Path    string     `json:"path"`
	Content string     `json:"content"`
	Lock    *LockInput `json:"lock,omitempty"`
}

// Create inserts a new note. Unlike the public save path, empty content is
// allowed. Returns apperr.ErrAlreadyExists when the path is taken.
func (s *Service) Create(ctx context.Context, in NoteInput) (*models.Note, error) {
	if err := s.rules.Validate(in.Path); err != nil {
		return nil, err
	}
	clean, err := content.Sanitize(in.Content)
	if err != nil {
		return nil, invalidInput("unparseable content")
	}
	n := models.Note{Path: in.Path, Content: clean}
	if in.Lock != nil {
		lock, err := s.buildLock(*in.Lock)
		if err != nil {
			return nil, err
		}
		n.SetLock(lock)
	}
	if err := s.notes.Insert(ctx, n); err != nil {
		return nil, err
	}
	s.mutated(ctx, "create", noteservice.EventCreated, in.Path)
	s.audit(ctx, models.ActionCreate, in.Path, "")
	return s.notes.Get(ctx, in.Path)
}

// UpdateInput is a partial admin update. Nil fields are left unchanged.
type UpdateInput struct {
	Content *string    `json:"content,omitempty"`
	Lock    *LockInput `json:"lock,omitempty"`
}

// Update applies a partial update without any password check.
func (s *Service) Update(ctx context.Context, path string, in UpdateInput) (*models.Note, error) {
	if in.Content == nil && in.Lock == nil {
		return nil, invalidInput("nothing to update")
	}
	var u models.NoteUpdate
	if in.Content != nil {
		clean, err := content.Sanitize(*in.Content)
		if err != nil {
			return nil, invalidInput("unparseable content")
		}
		u.Content = &clean
	}
	if in.Lock != nil {
		lock, err := s.buildLock(*in.Lock)
		if err != nil {
			return nil, err
		}
		u.Lock = &lock
	}
	if err := s.notes.Update(ctx, path, u); err != nil {
		return nil, err
	}
	s.mutated(ctx, "update", noteservice.EventUpdated, path)
	s.audit(ctx, models.ActionUpdate, path, updateDetails(in))
	return s.notes.Get(ctx, path)
}

func updateDetails(in UpdateInput) string {
	switch {
	case in.Content != nil && in.Lock != nil:
		return "content,lock"
	case in.Lock != nil:
		return "lock"
	default:
		return "content"
	}
}

// Delete removes a note. Returns apperr.ErrNotFound when it does not exist.
func (s *Service) Delete(ctx context.Context, path string) error {
	removed, err := s.notes.Delete(ctx, path)
	if err != nil {
		return err
	}
	if !removed {
		return apperr.ErrNotFound
	}
	s.mutated(ctx, "delete", noteservice.EventDeleted, path)
	s.audit(ctx, models.ActionDelete, path, "")
	return nil
}

// BulkDeleteResult reports a bulk delete.
type BulkDeleteResult struct {
	Deleted int      `json:"deleted"`
	Missing []string `json:"missing"`
}

// BulkDelete removes every listed path, one at a time. A store failure
// stops the run and returns the partial result with the error.
func (s *Service) BulkDelete(ctx context.Context, paths []string) (*BulkDeleteResult, error) {
	if len(paths) == 0 {
		return nil, invalidInput("paths must not be empty")
	}
	res := &BulkDeleteResult{Missing: []string{}}
	for _, p := range paths {
		removed, err := s.notes.Delete(ctx, p)
		if err != nil {
			return res, err
		}
		if !removed {
			res.Missing = append(res.Missing, p)
			continue
		}
		res.Deleted++
		s.mutated(ctx, "delete", noteservice.EventDeleted, p)
	}
	s.audit(ctx, models.ActionDelete, "", fmt.Sprintf("bulk deleted=%d missing=%d", res.Deleted, len(res.Missing)))
	return res, nil
}

func (s *Service) buildLock(in LockInput) (models.Lock, error) {
	if in.Type == models.LockNone {
		return models.Lock{}, nil
	}
	if !in.Type.Valid() {
		return models.Lock{}, invalidInput("lock_type must be read or write")
	}
	if in.Password == "" {
		return models.Lock{}, invalidInput("password is required to lock a note")
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return models.Lock{}, err
	}
	return models.Lock{Type: in.Type, PasswordHash: hash}, nil
}
