package storage

import (
	"errors"
	"fmt"
)

// Error taxonomy of the event store. Callers classify with errors.Is; the
// store never recovers locally, since silent data loss is worse than a
// failed operation.
var (
	// ErrStorageIO marks a durable-store read/write failure. Fatal to the
	// current operation; prior committed state is untouched.
	ErrStorageIO = errors.New("storage I/O failure")

	// ErrDuplicateFlight is returned when registering an already-known
	// flight identifier.
	ErrDuplicateFlight = errors.New("flight already registered")

	// ErrNotFound is returned for an unknown flight or chunk reference.
	ErrNotFound = errors.New("flight not found")

	// ErrNoData is returned for a valid flight that has no recorded events
	// (or has never recorded the requested field).
	ErrNoData = errors.New("no recorded data")

	// ErrInvalidState is returned when an operation is attempted in the
	// wrong pipeline phase, e.g. recording an event after export started.
	ErrInvalidState = errors.New("operation not valid in current flight state")
)

// ioErr wraps a driver error so errors.Is(err, ErrStorageIO) holds while the
// underlying cause stays visible.
func ioErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrStorageIO, err)
}
