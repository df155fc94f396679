// Package storage defines the error taxonomy shared by the persistence
// gateway and the services built on top of it.
package storage

import "errors"

var (
	// ErrNotFound means the referenced row does not exist or is not owned
	// by the caller.
	ErrNotFound = errors.New("storage: not found")

	// ErrDuplicate means a unique constraint was violated.
	ErrDuplicate = errors.New("storage: duplicate")
)
