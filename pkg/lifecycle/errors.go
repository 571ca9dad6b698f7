package lifecycle

import "errors"

// Lifecycle errors.
var (
	// ErrNestedContextConflict is returned when an ancestor or descendant
	// container already hosts a device context.
	ErrNestedContextConflict = errors.New("nested device context")

	// ErrContextExists is returned when the container already hosts a
	// device context.
	ErrContextExists = errors.New("device context already exists")

	// ErrNoContext is returned when no enclosing device context exists.
	ErrNoContext = errors.New("no enclosing device context")

	// ErrContextDestroyed is returned for operations on a torn-down context.
	ErrContextDestroyed = errors.New("device context destroyed")

	// ErrNotAttached is returned when an unattached consumer tries to bind.
	ErrNotAttached = errors.New("consumer not attached")

	// ErrReentrantApply is returned when Apply is called while applying.
	ErrReentrantApply = errors.New("apply called reentrantly")
)
