package kvstore

import "errors"

// Sentinel errors returned by the façade, mirroring the errno-style codes
// of the engine this package wraps. Callers classify with errors.Is.
var (
	// ErrBadParam indicates a configuration or argument violation (errno 22).
	ErrBadParam = errors.New("kvstore: bad param")

	// ErrInvalidArg indicates a key too long, buffer too small, or a value
	// requested when not found.
	ErrInvalidArg = errors.New("kvstore: invalid arg")

	// ErrNoMemory indicates allocation failure (errno 12).
	ErrNoMemory = errors.New("kvstore: no memory")

	// ErrStorageFailure indicates an underlying engine or io error.
	ErrStorageFailure = errors.New("kvstore: storage failure")

	// ErrInvalidState indicates a subsystem handle came back nil during
	// mount (e.g. trunk create/mount returned null).
	ErrInvalidState = errors.New("kvstore: invalid state")
)
