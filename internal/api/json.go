package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/starford/pathnote/internal/apperr"
)

const maxBodyBytes = 10 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// decodeJSON reads a size-limited JSON body into v. An empty body leaves v
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: invalid JSON body", apperr.ErrInvalidInput)
	}
	return nil
}

// statusFor maps a service error to its HTTP status and client message.
// Unknown errors map to 500 with an opaque message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperr.ErrInvalidPath),
		errors.Is(err, apperr.ErrInvalidInput),
		errors.Is(err, apperr.ErrEmptyContent),
		errors.Is(err, apperr.ErrNotLocked):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, apperr.ErrPasswordRequired),
		errors.Is(err, apperr.ErrInvalidPassword):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, apperr.ErrUnauthorized):
		return http.StatusUnauthorized, apperr.ErrUnauthorized.Error()
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, apperr.ErrNotFound.Error()
	case errors.Is(err, apperr.ErrAlreadyExists):
		return http.StatusConflict, err.Error()
	case errors.Is(err, apperr.ErrPathExhausted):
		return http.StatusInternalServerError, apperr.ErrPathExhausted.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// writeError answers with the mapped status. Server errors are logged.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	}
	writeJSON(w, status, errorBody(strings.TrimSpace(msg)))
}
