package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when a repository or run is not stored.
	ErrNotFound = errors.New("not found")

	// ErrLocked is returned when another run holds the output directory.
	ErrLocked = errors.New("output directory is locked by another run")
)
