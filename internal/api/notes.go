package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/pathnote/internal/models"
	"github.com/starford/pathnote/internal/noteservice"
)

// SaveNoteRequest is the body of POST /api/note/{path}.
type SaveNoteRequest struct {
	Content  string `json:"content" example:"<p>Hello</p>"`
	Password string `json:"password,omitempty"`
}

// PasswordRequest carries the password of a locked note.
type PasswordRequest struct {
	Password string `json:"password" validate:"required"`
}

// LockNoteRequest is the body of POST /api/note/{path}/lock.
type LockNoteRequest struct {
	LockType        models.LockType `json:"lock_type" example:"read" validate:"required"`
	Password        string          `json:"password" validate:"required"`
	CurrentPassword string          `json:"current_password,omitempty"`
}

// LockStateResponse reports the lock state after a lock change.
type LockStateResponse struct {
	Path     string          `json:"path"`
	IsLocked bool            `json:"is_locked"`
	LockType models.LockType `json:"lock_type,omitempty"`
}

// NoteHandler serves the public note routes.
type NoteHandler struct {
	svc *noteservice.Service
}

// NewNoteHandler creates a NoteHandler.
func NewNoteHandler(svc *noteservice.Service) *NoteHandler {
	return &NoteHandler{svc: svc}
}

// Root handles GET /: redirect to the newest blank note or a fresh path.
func (h *NoteHandler) Root(w http.ResponseWriter, r *http.Request) {
	path, err := h.svc.ResolveRoot(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	http.Redirect(w, r, "/"+path, http.StatusFound)
}

// GetNote handles GET /api/note/{path}.
//
//	@Summary		Read a note, or the lock challenge of a read-locked note
//	@Tags			notes
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	noteservice.NoteView
//	@Failure		400		{object}	errResponse
//	@Router			/note/{path} [get]
func (h *NoteHandler) GetNote(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Get(r.Context(), chi.URLParam(r, "path"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// SaveNote handles POST /api/note/{path}.
//
//	@Summary		Save note content, creating the note on first non-blank save
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string			true	"Note path"
//	@Param			body	body		SaveNoteRequest	true	"Content and password of a locked note"
//	@Success		200		{object}	noteservice.SaveResult
//	@Success		201		{object}	noteservice.SaveResult
//	@Failure		400		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Router			/note/{path} [post]
func (h *NoteHandler) SaveNote(w http.ResponseWriter, r *http.Request) {
	var req SaveNoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.svc.Save(r.Context(), chi.URLParam(r, "path"), req.Content, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

// UnlockNote handles POST /api/note/{path}/unlock.
//
//	@Summary		Read the content of a locked note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string			true	"Note path"
//	@Param			body	body		PasswordRequest	true	"Note password"
//	@Success		200		{object}	noteservice.NoteView
//	@Failure		403		{object}	errResponse
//	@Router			/note/{path}/unlock [post]
func (h *NoteHandler) UnlockNote(w http.ResponseWriter, r *http.Request) {
	var req PasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	v, err := h.svc.Unlock(r.Context(), chi.URLParam(r, "path"), req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// LockNote handles POST /api/note/{path}/lock.
func (h *NoteHandler) LockNote(w http.ResponseWriter, r *http.Request) {
	var req LockNoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	path := chi.URLParam(r, "path")
	err := h.svc.Lock(r.Context(), path, noteservice.LockRequest{
		Type:            req.LockType,
		Password:        req.Password,
		CurrentPassword: req.CurrentPassword,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LockStateResponse{Path: path, IsLocked: true, LockType: req.LockType})
}

// RemoveLock handles DELETE /api/note/{path}/lock.
func (h *NoteHandler) RemoveLock(w http.ResponseWriter, r *http.Request) {
	var req PasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	path := chi.URLParam(r, "path")
	if err := h.svc.RemoveLock(r.Context(), path, req.Password); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LockStateResponse{Path: path})
}
