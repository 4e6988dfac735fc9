package api

import (
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/pathnote/internal/notepath"
)

//go:embed templates/*.html
var templateFS embed.FS

var editorTemplate = template.Must(template.ParseFS(templateFS, "templates/editor.html"))

type editorPage struct {
	Path    string
	NoteURL string
}

// PageHandler serves the editor page shell for GET /{path}. The editor
// itself loads the note through the JSON API.
type PageHandler struct {
	rules notepath.Rules
}

// NewPageHandler creates a PageHandler that validates paths with rules.
func NewPageHandler(rules notepath.Rules) *PageHandler {
	return &PageHandler{rules: rules}
}

// Editor handles GET /{path}: 404 for reserved words, 400 for malformed
// paths.
func (h *PageHandler) Editor(w http.ResponseWriter, r *http.Request) {
	p := chi.URLParam(r, "path")
	if h.rules.IsReserved(p) {
		http.NotFound(w, r)
		return
	}
	if err := h.rules.Validate(p); err != nil {
		http.Error(w, errors.Unwrap(err).Error()+": "+p, http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := editorTemplate.Execute(w, editorPage{Path: p, NoteURL: "/api/note/" + p}); err != nil {
		slog.Error("render editor", slog.String("path", p), slog.String("error", err.Error()))
	}
}
