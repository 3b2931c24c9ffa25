package engine

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// ptr returns a pointer to data[off], for the narrow set of call sites that
// need atomic access to a field inside the mmap'd region (the seqlock
// generation counter). Every other field is read/written through
// encoding/binary so this stays the only unsafe usage in the package.
func ptr(data []byte, off int) unsafe.Pointer {
	return unsafe.Pointer(&data[off])
}

// msyncRange flushes [off, off+n) of the mmap'd region to disk.
func msyncRange(data []byte, off, n int) error {
	if off+n > len(data) {
		n = len(data) - off
	}

	return unix.Msync(data[off:off+n], unix.MS_SYNC)
}
