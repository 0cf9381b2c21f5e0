package database

import "errors"

var (
	// ErrNotFound means the referenced item, reactable or user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden means the caller is not allowed to touch the entity.
	ErrForbidden = errors.New("forbidden")
)
