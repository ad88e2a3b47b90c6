package prunable

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrContainerNotFound is returned when the container (bucket, directory) does not exist.
	ErrContainerNotFound = errors.New("container not found")

	// ErrAccessDenied is returned when the credentials lack permission for the operation.
	ErrAccessDenied = errors.New("access denied")
)

// ObjectError wraps a store error with the operation and key it happened on.
type ObjectError struct {
	Op  string
	Key string
	Err error
}

func (e *ObjectError) Error() string {
	return fmt.Sprintf("storage: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *ObjectError) Unwrap() error {
	return e.Err
}
