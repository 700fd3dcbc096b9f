package router

import "github.com/pkg/errors"

var (
	// ErrDuplicateRoute is returned when a (method, pattern) pair is
	// registered twice.
	ErrDuplicateRoute = errors.New("route already registered")

	// ErrInvalidPattern is returned for patterns that do not start with a
	// slash or contain malformed placeholders.
	ErrInvalidPattern = errors.New("invalid route pattern")
)
