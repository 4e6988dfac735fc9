package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	ErrInvalidPath      = errors.New("invalid path")
	ErrInvalidInput     = errors.New("invalid input")
	ErrEmptyContent     = errors.New("content is empty")
	ErrNotLocked        = errors.New("note is not locked")
	ErrPasswordRequired = errors.New("password required")
	ErrInvalidPassword  = errors.New("invalid password")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrPathExhausted    = errors.New("could not allocate a free path")
)
