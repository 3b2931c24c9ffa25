package engine

import "errors"

// Sentinel errors returned by the engine. Callers classify with errors.Is.
var (
	// ErrCorrupt indicates the backing file is damaged beyond repair.
	ErrCorrupt = errors.New("engine: corrupt")

	// ErrIncompatible indicates a format or configuration mismatch against
	// an existing file.
	ErrIncompatible = errors.New("engine: incompatible")

	// ErrBusy indicates a writer is active or lock contention occurred.
	ErrBusy = errors.New("engine: busy")

	// ErrFull indicates slot capacity has been exhausted.
	ErrFull = errors.New("engine: full")

	// ErrClosed indicates the store or writer has already been closed.
	ErrClosed = errors.New("engine: closed")

	// ErrWriteback indicates a durability flush failed during commit.
	ErrWriteback = errors.New("engine: writeback failed")

	// ErrInvalidInput indicates invalid arguments were supplied.
	ErrInvalidInput = errors.New("engine: invalid input")
)
