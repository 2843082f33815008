package models

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrUnknownTaskKind = errors.New("unknown task kind")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInternalServer  = errors.New("internal server error")
)
