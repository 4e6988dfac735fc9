package noteservice

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/starford/pathnote/internal/apperr"
	"github.com/starford/pathnote/internal/metrics"
	"github.com/starford/pathnote/internal/models"
	"github.com/starford/pathnote/internal/storage"
)

// Get returns the public view of path.
//
// A cached view is returned as is and the view count is bumped in the
// background without re-arming the entry. On a miss the store is consulted;
// a readable note is cached only when its stored view count is at least
// MinCacheView. Read-locked notes are never cached and never carry content.
func (s *Service) Get(ctx context.Context, path string) (_ *NoteView, err error) {
	ctx, span := s.startSpan(ctx, "Get", path)
	defer func() { endSpan(span, err) }()

	if err := s.rules.Validate(path); err != nil {
		return nil, err
	}

	if v, ok := s.cachedView(ctx, path); ok {
		s.incrementViews(ctx, path)
		return v, nil
	}

	n, err := s.notes.Get(ctx, path)
	if errors.Is(err, storage.ErrNotFound) {
		return missingView(path), nil
	}
	if err != nil {
		return nil, err
	}

	if n.IsLocked && n.LockType == models.LockRead {
		return challengeView(n), nil
	}

	s.incrementViews(ctx, path)
	v := readableView(n, n.ViewCount+1)
	if n.ViewCount >= MinCacheView {
		s.fillCache(ctx, v, CacheTTL(n.ViewCount))
	}
	return v, nil
}

// Unlock verifies the password of a locked note and returns its full view.
// The result is never cached.
func (s *Service) Unlock(ctx context.Context, path, pw string) (_ *NoteView, err error) {
	ctx, span := s.startSpan(ctx, "Unlock", path)
	defer func() { endSpan(span, err) }()

	if err := s.rules.Validate(path); err != nil {
		return nil, err
	}
	n, err := s.notes.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	if !n.IsLocked {
		return nil, apperr.ErrNotLocked
	}
	if err := s.checkPassword(n, pw); err != nil {
		return nil, err
	}

	s.incrementViews(ctx, path)
	return readableView(n, n.ViewCount+1), nil
}

// ResolveRoot picks the path the root URL redirects to: the newest blank
// note if there is one, otherwise a fresh random path.
func (s *Service) ResolveRoot(ctx context.Context) (string, error) {
	n, err := s.notes.LatestBlank(ctx)
	if err == nil {
		return n.Path, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}
	return s.rules.Allocate(ctx, func(ctx context.Context, path string) (bool, error) {
		_, err := s.notes.Get(ctx, path)
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return err == nil, err
	})
}

func (s *Service) cachedView(ctx context.Context, path string) (*NoteView, bool) {
	raw, ok, err := s.cache.Get(ctx, CacheKey(path))
	if err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		metrics.CacheErrors.WithLabelValues("get").Inc()
		s.log.Warn("cache read failed, falling back to store",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return nil, false
	}
	if !ok {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	var v NoteView
	if err := json.Unmarshal([]byte(raw), &v); err != nil || !v.Exists || v.Content == nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		s.log.Warn("discarding undecodable cache entry", slog.String("path", path))
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return &v, true
}

func (s *Service) fillCache(ctx context.Context, v *NoteView, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.log.Error("encode note view", slog.String("path", v.Path), slog.String("error", err.Error()))
		return
	}
	if err := s.cache.Put(ctx, CacheKey(v.Path), string(raw), ttl); err != nil {
		metrics.CacheErrors.WithLabelValues("put").Inc()
		s.log.Warn("cache fill failed",
			slog.String("path", v.Path),
			slog.String("error", err.Error()))
		return
	}
	metrics.CacheFills.Inc()
}

func (s *Service) checkPassword(n *models.Note, pw string) error {
	if pw == "" {
		return apperr.ErrPasswordRequired
	}
	if !s.hasher.Verify(n.PasswordHash, pw) {
		return apperr.ErrInvalidPassword
	}
	return nil
}
