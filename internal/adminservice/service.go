// Package adminservice implements the administrative operations: login,
// note management that bypasses the read cache, bulk export/import, backups
// and the audit log.
package adminservice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starford/pathnote/internal/apperr"
	"github.com/starford/pathnote/internal/auth"
	"github.com/starford/pathnote/internal/metrics"
	"github.com/starford/pathnote/internal/models"
	"github.com/starford/pathnote/internal/notepath"
	"github.com/starford/pathnote/internal/password"
	"github.com/starford/pathnote/internal/storage"
)

// Invalidator drops the cached view of a path. *noteservice.Service
// satisfies it.
type Invalidator interface {
	Invalidate(ctx context.Context, path string)
}

// Publisher receives note mutation events.
type Publisher interface {
	PublishNoteEvent(kind, path string)
}

type nopPublisher struct{}

func (nopPublisher) PublishNoteEvent(string, string) {}

// Service is the admin panel backend.
type Service struct {
	notes  storage.NoteStore
	blobs  storage.BlobStore
	cache  Invalidator
	tokens *auth.Tokens
	creds  auth.Credentials
	hasher password.Hasher
	rules  notepath.Rules
	events Publisher
	log    *slog.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures a Service.
type Option func(*Service)

// WithCredentials sets the admin username and password checked by Login.
func WithCredentials(c auth.Credentials) Option {
	return func(s *Service) { s.creds = c }
}

// WithHasher sets the hasher used when the admin sets a note lock.
func WithHasher(h password.Hasher) Option {
	return func(s *Service) { s.hasher = h }
}

// WithPathRules sets the rules admin-created paths must satisfy.
func WithPathRules(r notepath.Rules) Option {
	return func(s *Service) { s.rules = r }
}

// WithPublisher sets the receiver of note mutation events.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// New creates an admin service. tokens signs and verifies sessions.
func New(notes storage.NoteStore, blobs storage.BlobStore, cache Invalidator, tokens *auth.Tokens, opts ...Option) *Service {
	s := &Service{
		notes:  notes,
		blobs:  blobs,
		cache:  cache,
		tokens: tokens,
		hasher: password.NewBcrypt(0),
		rules:  notepath.DefaultRules(),
		events: nopPublisher{},
		log:    slog.Default(),
		now:    time.Now,
		newID:  newLogID,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Session is a successful login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login checks the admin credentials and issues a bearer token.
func (s *Service) Login(ctx context.Context, username, pw string) (*Session, error) {
	if err := s.creds.Check(username, pw); err != nil {
		s.log.Warn("admin login rejected", slog.String("username", username))
		return nil, err
	}
	token, exp, err := s.tokens.Issue(username)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, models.ActionLogin, "", "user="+username)
	return &Session{Token: token, ExpiresAt: exp}, nil
}

// Authenticate verifies a bearer token.
func (s *Service) Authenticate(token string) (*auth.Claims, error) {
	if token == "" {
		return nil, apperr.ErrUnauthorized
	}
	return s.tokens.Verify(token)
}

// Logs returns the newest audit entries.
func (s *Service) Logs(ctx context.Context, limit int) ([]models.AdminLogEntry, error) {
	return s.notes.ListLogs(ctx, limit)
}

// Stats summarizes the note table for dashboards.
func (s *Service) Stats(ctx context.Context) (any, error) {
	total, err := s.notes.Count(ctx, "")
	if err != nil {
		return nil, err
	}
	return map[string]int{"notes": total}, nil
}

// audit appends a log entry. A failing audit write is logged and does not
// fail the action it records.
func (s *Service) audit(ctx context.Context, action, path, details string) {
	err := s.notes.AppendLog(ctx, models.AdminLogEntry{
		ID:         s.newID(),
		Action:     action,
		TargetPath: path,
		Details:    details,
		CreatedAt:  s.now().UTC(),
	})
	if err != nil {
		s.log.Error("append admin log",
			slog.String("action", action),
			slog.String("error", err.Error()))
	}
}

// mutated counts the write under op, invalidates the cached view and
// publishes kind.
func (s *Service) mutated(ctx context.Context, op, kind, path string) {
	metrics.NoteWrites.WithLabelValues(op).Inc()
	s.cache.Invalidate(ctx, path)
	s.events.PublishNoteEvent(kind, path)
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", apperr.ErrInvalidInput, fmt.Sprintf(format, args...))
}

// newLogID returns a time-ordered UUIDv7 so log IDs sort by creation.
func newLogID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
