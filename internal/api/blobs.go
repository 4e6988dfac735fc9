package api

import (
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/pathnote/internal/apperr"
)

// blobKey extracts the blob key from the wildcard of /admin/blobs/*.
// Keys are plain slash-separated names; traversal segments and absolute
// keys are rejected.
func blobKey(r *http.Request) (string, error) {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	key, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("%w: malformed key", apperr.ErrInvalidInput)
	}
	if key == "" {
		return "", fmt.Errorf("%w: key is required", apperr.ErrInvalidInput)
	}
	if strings.Contains(key, `\`) || path.Clean("/"+key) != "/"+key {
		return "", fmt.Errorf("%w: invalid key %q", apperr.ErrInvalidInput, key)
	}
	return key, nil
}

// ListBlobs handles GET /admin/blobs?prefix=.
func (h *AdminHandler) ListBlobs(w http.ResponseWriter, r *http.Request) {
	blobs, err := h.svc.ListBlobs(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"blobs": blobs})
}

// GetBlob handles GET /admin/blobs/*.
func (h *AdminHandler) GetBlob(w http.ResponseWriter, r *http.Request) {
	key, err := blobKey(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := h.svc.GetBlob(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeDownload(w, r, path.Base(key), data)
}
