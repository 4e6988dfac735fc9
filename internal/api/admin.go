package api

import (
	"io"
	"net/http"
	"path"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/pathnote/internal/adminservice"
	"github.com/starford/pathnote/internal/checksum"
)

const maxImportBytes = 64 << 20

// LoginRequest is the body of POST /admin/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// BulkDeleteRequest is the body of POST /admin/notes/bulk-delete.
type BulkDeleteRequest struct {
	Paths []string `json:"paths" validate:"required"`
}

// AdminHandler serves the /admin routes.
type AdminHandler struct {
	svc *adminservice.Service
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(svc *adminservice.Service) *AdminHandler {
	return &AdminHandler{svc: svc}
}

// Login handles POST /admin/login.
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// ListNotes handles GET /admin/notes?q=&page=&limit=&sort=.
func (h *AdminHandler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	list, err := h.svc.List(r.Context(), adminservice.ListQuery{
		Query: q.Get("q"),
		Page:  page,
		Limit: limit,
		Sort:  q.Get("sort"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// CreateNote handles POST /admin/notes.
func (h *AdminHandler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req adminservice.NoteInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	n, err := h.svc.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// GetNote handles GET /admin/notes/{path}.
func (h *AdminHandler) GetNote(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Get(r.Context(), chi.URLParam(r, "path"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// UpdateNote handles PUT /admin/notes/{path}.
func (h *AdminHandler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var req adminservice.UpdateInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	n, err := h.svc.Update(r.Context(), chi.URLParam(r, "path"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// DeleteNote handles DELETE /admin/notes/{path}.
func (h *AdminHandler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "path")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BulkDelete handles POST /admin/notes/bulk-delete.
func (h *AdminHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var req BulkDeleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.svc.BulkDelete(r.Context(), req.Paths)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Export handles GET /admin/export. The document is stored under exports/
// and returned as a download.
func (h *AdminHandler) Export(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Export(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("X-Blob-Key", a.Key)
	writeDownload(w, r, path.Base(a.Key), a.Data)
}

// Import handles POST /admin/import?overwrite=.
func (h *AdminHandler) Import(w http.ResponseWriter, r *http.Request) {
	overwrite, _ := strconv.ParseBool(r.URL.Query().Get("overwrite"))
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("import document too large"))
		return
	}
	res, err := h.svc.Import(r.Context(), data, overwrite)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Backup handles POST /admin/backup.
func (h *AdminHandler) Backup(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Backup(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// Logs handles GET /admin/logs?limit=.
func (h *AdminHandler) Logs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := h.svc.Logs(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

// Stats handles GET /admin/stats.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// writeDownload sends data as a JSON attachment with checksum headers and
// honours If-None-Match.
func writeDownload(w http.ResponseWriter, r *http.Request, filename string, data []byte) {
	w.Header().Set("ETag", checksum.ETag(data))
	w.Header().Set(checksum.Header, checksum.Sum(data))
	if checksum.Matches(r.Header.Get("If-None-Match"), data) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
