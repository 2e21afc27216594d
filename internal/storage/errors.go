package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates no metadata record exists for a key.
	ErrNotFound = errors.New("recording not found")

	// ErrCorrupt indicates a metadata record could not be decoded.
	ErrCorrupt = errors.New("corrupt metadata record")

	// ErrConflict indicates the destination key of a rename is taken.
	ErrConflict = errors.New("recording name already exists")

	// ErrInvalidName indicates a key that cannot be used as a file stem.
	ErrInvalidName = errors.New("invalid recording name")
)

// IOError wraps a filesystem failure with the operation and path involved.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func ioErr(op, path string, err error) error {
	return &IOError{Op: op, Path: path, Err: err}
}
