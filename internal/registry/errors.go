package registry

import "errors"

var (
	ErrNotFound     = errors.New("room not found")
	ErrUnauthorized = errors.New("invalid host token")
	ErrConflict     = errors.New("room already exists")
)
