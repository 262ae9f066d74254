package repository

import "errors"

var (
	// ErrNotFound indicates an entity was not located.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates an entity with the same key already exists.
	ErrConflict = errors.New("repository: conflict")
)
