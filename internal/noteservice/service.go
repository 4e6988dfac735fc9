// Package noteservice implements the public note operations on top of the
// storage adapters: read-through caching gated by popularity, write
// invalidation, lock transitions and path allocation.
package noteservice

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/starford/pathnote/internal/metrics"
	"github.com/starford/pathnote/internal/notepath"
	"github.com/starford/pathnote/internal/password"
	"github.com/starford/pathnote/internal/storage"
)

// Note event kinds passed to the Publisher.
const (
	EventCreated  = "note.created"
	EventUpdated  = "note.updated"
	EventDeleted  = "note.deleted"
	EventLocked   = "note.locked"
	EventUnlocked = "note.unlocked"
)

// Publisher receives a notification after every successful note mutation.
type Publisher interface {
	PublishNoteEvent(kind, path string)
}

type nopPublisher struct{}

func (nopPublisher) PublishNoteEvent(string, string) {}

// Service coordinates the note store and the cache.
type Service struct {
	notes     storage.NoteStore
	cache     storage.Cache
	hasher    password.Hasher
	rules     notepath.Rules
	log       *slog.Logger
	events    Publisher
	tracer    trace.Tracer
	bgTimeout time.Duration

	pending sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithHasher sets the lock password hasher.
func WithHasher(h password.Hasher) Option {
	return func(s *Service) { s.hasher = h }
}

// WithPathRules sets the path validation and generation rules.
func WithPathRules(r notepath.Rules) Option {
	return func(s *Service) { s.rules = r }
}

// WithLogger sets the logger used for degraded cache and background errors.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithPublisher sets the receiver of note mutation events.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithBackgroundTimeout bounds each detached view-count increment.
func WithBackgroundTimeout(d time.Duration) Option {
	return func(s *Service) { s.bgTimeout = d }
}

// New creates a note service over the given store and cache.
func New(notes storage.NoteStore, cache storage.Cache, opts ...Option) *Service {
	s := &Service{
		notes:     notes,
		cache:     cache,
		hasher:    password.NewBcrypt(0),
		rules:     notepath.DefaultRules(),
		log:       slog.Default(),
		events:    nopPublisher{},
		tracer:    otel.Tracer("github.com/starford/pathnote/internal/noteservice"),
		bgTimeout: 5 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Rules returns the path rules in effect.
func (s *Service) Rules() notepath.Rules { return s.rules }

// Wait blocks until every background view increment has finished or ctx
// is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Invalidate deletes the cache entry for path. Failures are logged and
// counted, never returned.
func (s *Service) Invalidate(ctx context.Context, path string) {
	// Detached from cancellation: the entry must go even after the caller
	// hangs up.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.bgTimeout)
	defer cancel()
	if err := s.cache.Delete(ctx, CacheKey(path)); err != nil {
		metrics.CacheErrors.WithLabelValues("delete").Inc()
		s.log.Warn("cache invalidation failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return
	}
	metrics.CacheInvalidations.Inc()
}

// incrementViews bumps the view count on a detached goroutine so the
// response never waits on it.
func (s *Service) incrementViews(ctx context.Context, path string) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.bgTimeout)
		defer cancel()
		if err := s.notes.IncrementViews(ctx, path); err != nil {
			metrics.ViewIncrementFailures.Inc()
			s.log.Warn("view count increment failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
	}()
}

func (s *Service) startSpan(ctx context.Context, name, path string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "noteservice."+name, trace.WithAttributes(attribute.String("note.path", path)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
