package noteservice

import (
	"context"
	"errors"
	"fmt"

	"github.com/starford/pathnote/internal/apperr"
	"github.com/starford/pathnote/internal/content"
	"github.com/starford/pathnote/internal/metrics"
	"github.com/starford/pathnote/internal/models"
	"github.com/starford/pathnote/internal/storage"
)

// SaveResult reports what a save did.
type SaveResult struct {
	Path    string `json:"path"`
	Created bool   `json:"created"`
}

// Save stores content at path, creating the note on first non-blank save.
// Saving to a locked note of either lock type requires its password.
// The cache entry is deleted after the store write.
func (s *Service) Save(ctx context.Context, path, body, pw string) (_ *SaveResult, err error) {
	ctx, span := s.startSpan(ctx, "Save", path)
	defer func() { endSpan(span, err) }()

	if err := s.rules.Validate(path); err != nil {
		return nil, err
	}
	clean, err := content.Sanitize(body)
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable content", apperr.ErrInvalidInput)
	}

	n, err := s.notes.Get(ctx, path)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if content.IsBlank(clean) {
			return nil, apperr.ErrEmptyContent
		}
		err = s.notes.Insert(ctx, models.Note{Path: path, Content: clean})
		if errors.Is(err, apperr.ErrAlreadyExists) {
			// Lost a creation race; apply the save to the winner's row.
			if n, err = s.notes.Get(ctx, path); err != nil {
				return nil, err
			}
			return s.update(ctx, n, clean, pw)
		}
		if err != nil {
			return nil, err
		}
		metrics.NoteWrites.WithLabelValues("save").Inc()
		s.Invalidate(ctx, path)
		s.events.PublishNoteEvent(EventCreated, path)
		return &SaveResult{Path: path, Created: true}, nil
	case err != nil:
		return nil, err
	}
	return s.update(ctx, n, clean, pw)
}

func (s *Service) update(ctx context.Context, n *models.Note, clean, pw string) (*SaveResult, error) {
	if n.IsLocked {
		if err := s.checkPassword(n, pw); err != nil {
			return nil, err
		}
	}
	if err := s.notes.Update(ctx, n.Path, models.NoteUpdate{Content: &clean}); err != nil {
		return nil, err
	}
	metrics.NoteWrites.WithLabelValues("save").Inc()
	s.Invalidate(ctx, n.Path)
	s.events.PublishNoteEvent(EventUpdated, n.Path)
	return &SaveResult{Path: n.Path}, nil
}

// LockRequest establishes or changes the lock of a note.
type LockRequest struct {
	Type     models.LockType
	Password string
	// CurrentPassword must match the existing lock when the note is
	// already locked.
	CurrentPassword string
}

// Lock sets the lock of an existing note and invalidates its cache entry.
func (s *Service) Lock(ctx context.Context, path string, req LockRequest) (err error) {
	ctx, span := s.startSpan(ctx, "Lock", path)
	defer func() { endSpan(span, err) }()

	if err := s.rules.Validate(path); err != nil {
		return err
	}
	if !req.Type.Valid() {
		return fmt.Errorf("%w: lock_type must be read or write", apperr.ErrInvalidInput)
	}
	if req.Password == "" {
		return fmt.Errorf("%w: password is required", apperr.ErrInvalidInput)
	}

	n, err := s.notes.Get(ctx, path)
	if err != nil {
		return err
	}
	if n.IsLocked {
		if err := s.checkPassword(n, req.CurrentPassword); err != nil {
			return err
		}
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return err
	}
	lock := models.Lock{Type: req.Type, PasswordHash: hash}
	if err := s.notes.Update(ctx, path, models.NoteUpdate{Lock: &lock}); err != nil {
		return err
	}
	metrics.NoteWrites.WithLabelValues("lock").Inc()
	s.Invalidate(ctx, path)
	s.events.PublishNoteEvent(EventLocked, path)
	return nil
}

// RemoveLock clears the lock of a note after verifying its password and
// invalidates the cache entry.
func (s *Service) RemoveLock(ctx context.Context, path, pw string) (err error) {
	ctx, span := s.startSpan(ctx, "RemoveLock", path)
	defer func() { endSpan(span, err) }()

	if err := s.rules.Validate(path); err != nil {
		return err
	}
	n, err := s.notes.Get(ctx, path)
	if err != nil {
		return err
	}
	if !n.IsLocked {
		return apperr.ErrNotLocked
	}
	if err := s.checkPassword(n, pw); err != nil {
		return err
	}
	if err := s.notes.Update(ctx, path, models.NoteUpdate{Lock: &models.Lock{}}); err != nil {
		return err
	}
	metrics.NoteWrites.WithLabelValues("unlock").Inc()
	s.Invalidate(ctx, path)
	s.events.PublishNoteEvent(EventUnlocked, path)
	return nil
}
