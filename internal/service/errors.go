package service

import "github.com/pkg/errors"

// Error kinds for the whole write/read path. Services wrap these with a
// human-readable detail; transport maps the cause to an HTTP status.
var (
	ErrInvalid      = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
)
