package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/pathnote/internal/adminservice"
	"github.com/starford/pathnote/internal/metrics"
	"github.com/starford/pathnote/internal/noteservice"
)

// ReadyFunc reports whether the note store is reachable.
type ReadyFunc func(ctx context.Context) error

// Deps are the collaborators the router mounts.
type Deps struct {
	Notes *noteservice.Service
	Admin *adminservice.Service
	// Ready backs /api/health/ready. Nil always reports ready.
	Ready ReadyFunc
	// Events is mounted at GET /admin/events when non-nil.
	Events http.Handler
	// Limiter gates login and password-checking routes when non-nil.
	Limiter *RateLimiter
}

// NewRouter creates the chi router serving every pathnote route.
func NewRouter(d Deps) chi.Router {
	nh := NewNoteHandler(d.Notes)
	ah := NewAdminHandler(d.Admin)
	ph := NewPageHandler(d.Notes.Rules())

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(Instrument)

	r.Get("/", nh.Root)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health/live", live)
		r.Get("/health/ready", ready(d.Ready))
		r.Method(http.MethodGet, "/metrics", metrics.Handler())

		r.Route("/note/{path}", func(r chi.Router) {
			r.Get("/", nh.GetNote)
			r.Post("/", nh.SaveNote)
			r.With(limited(d.Limiter, "unlock")).Post("/unlock", nh.UnlockNote)
			r.With(limited(d.Limiter, "lock")).Post("/lock", nh.LockNote)
			r.With(limited(d.Limiter, "lock")).Delete("/lock", nh.RemoveLock)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.With(limited(d.Limiter, "login")).Post("/login", ah.Login)

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(d.Admin))

			r.Get("/notes", ah.ListNotes)
			r.Post("/notes", ah.CreateNote)
			r.Post("/notes/bulk-delete", ah.BulkDelete)
			r.Get("/notes/{path}", ah.GetNote)
			r.Put("/notes/{path}", ah.UpdateNote)
			r.Delete("/notes/{path}", ah.DeleteNote)

			r.Get("/export", ah.Export)
			r.Post("/import", ah.Import)
			r.Post("/backup", ah.Backup)
			r.Get("/blobs", ah.ListBlobs)
			r.Get("/blobs/*", ah.GetBlob)
			r.Get("/logs", ah.Logs)
			r.Get("/stats", ah.Stats)

			if d.Events != nil {
				r.Method(http.MethodGet, "/events", d.Events)
			}
		})
	})

	r.Get("/{path}", ph.Editor)

	return r
}

func live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func ready(check ReadyFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				slog.Warn("readiness check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
