package engine

import (
	"encoding/binary"
	"sync/atomic"
)

// readHeader decodes the current on-disk header. Callers must hold s.mu
// (read or write) so the snapshot is internally consistent.
func (s *Store) readHeader() header {
	return decodeHeader(s.data[:headerSize])
}

// writeHeaderLocked bumps the seqlock generation, writes h, and recomputes
// the CRC. Caller must hold s.mu for writing and must have already applied
// all slot/bucket mutations for this commit.
func (s *Store) writeHeaderLocked(h *header) {
	gen := atomic.LoadUint64((*uint64)(headerField(s.data, offGeneration)))
	h.Generation = (gen | 1) + 1 // next even value: closes the odd window opened by bumpGenerationOdd

	buf := encodeHeader(h)
	copy(s.data[:headerSize], buf)

	if s.writeback == WritebackSync {
		_ = msyncRange(s.data, 0, headerSize)
	}
}

// bumpGenerationOdd marks the header as "writer in progress" by making the
// generation odd, without touching any other field. Paired with
// writeHeaderLocked, which restores an even generation.
func (s *Store) bumpGenerationOdd() {
	off := offGeneration
	gen := binary.LittleEndian.Uint64(s.data[off:])
	binary.LittleEndian.PutUint64(s.data[off:], gen+1)
}

// headerField returns a pointer to the 8 bytes at off within data, for use
// with sync/atomic. Only valid for 8-byte-aligned offsets within the mmap
// region, which offGeneration is (mmap base is page-aligned).
func headerField(data []byte, off int) *uint64 {
	return (*uint64)(ptr(data, off))
}
