package repository

import "errors"

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict is returned when a write collides with a unique constraint.
	ErrConflict = errors.New("repository: conflict")
	// ErrValueTooLong is returned when a value exceeds its column width.
	ErrValueTooLong = errors.New("repository: value too long")
)
