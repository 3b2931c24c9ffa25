package engine

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"syscall"
)

// Store is a mounted, mmap-backed key-value engine instance.
//
// Read methods are safe for concurrent use by multiple goroutines. Only one
// Writer may be active at a time, enforced in-process by mu and
// cross-process by an advisory flock on path+".lock".
type Store struct {
	mu sync.RWMutex

	fd       int
	data     []byte
	fileSize int64
	path     string

	physicalKeySize int
	valueCap        int
	slotSize        int
	slotCapacity    uint64
	slotsOffset     uint64
	bucketsOffset   uint64
	bucketCount     uint64

	compare        Compare
	hashFn         Hash
	writeback      WritebackMode
	disableLocking bool
	trunk          TrunkParams

	alloc         *allocator
	order         []uint64 // slot ids, sorted by physical key via compare
	slotHighwater uint64   // one past the highest slot id in use; Reclaim lowers it

	activeWriter *Writer
	closed       bool

	stats Stats
}

func (s *Store) slotOffset(id uint64) uint64 {
	return s.slotsOffset + id*uint64(s.slotSize)
}

func (s *Store) slotLive(id uint64) bool {
	off := s.slotOffset(id)
	return s.data[off]&1 == 1
}

func (s *Store) slotMsgLen(id uint64) uint32 {
	off := s.slotOffset(id)
	return binary.LittleEndian.Uint32(s.data[off+4 : off+8])
}

func (s *Store) slotKey(id uint64) []byte {
	off := s.slotOffset(id) + 8
	return s.data[off : off+uint64(s.physicalKeySize)]
}

func (s *Store) slotMsg(id uint64) []byte {
	off := s.slotOffset(id) + 8 + uint64(s.physicalKeySize)
	n := s.slotMsgLen(id)
	return s.data[off : off+uint64(n)]
}

func (s *Store) writeSlot(id uint64, key, msg []byte, live bool) {
	off := s.slotOffset(id)

	meta := s.data[off : off+8]
	if live {
		meta[0] = 1
	} else {
		meta[0] = 0
	}

	meta[1], meta[2], meta[3] = 0, 0, 0
	binary.LittleEndian.PutUint32(meta[4:8], uint32(len(msg)))

	keyRegion := s.data[off+8 : off+8+uint64(s.physicalKeySize)]
	for i := range keyRegion {
		keyRegion[i] = 0
	}

	copy(keyRegion, key)

	valRegion := s.data[off+8+uint64(s.physicalKeySize) : off+8+uint64(s.physicalKeySize)+uint64(s.valueCap)]
	for i := range valRegion {
		valRegion[i] = 0
	}

	copy(valRegion, msg)
}

// bucketOffset returns the byte offset of bucket i.
func (s *Store) bucketOffset(i uint64) uint64 {
	return s.bucketsOffset + i*16
}

func (s *Store) bucketHash(i uint64) uint64 {
	off := s.bucketOffset(i)
	return binary.LittleEndian.Uint64(s.data[off : off+8])
}

func (s *Store) bucketSlotPlusOne(i uint64) uint64 {
	off := s.bucketOffset(i)
	return binary.LittleEndian.Uint64(s.data[off+8 : off+16])
}

func (s *Store) setBucket(i uint64, hash, slotPlusOne uint64) {
	off := s.bucketOffset(i)
	binary.LittleEndian.PutUint64(s.data[off:off+8], hash)
	binary.LittleEndian.PutUint64(s.data[off+8:off+16], slotPlusOne)
}

// findSlot probes the bucket table for key, returning its slot id if found.
func (s *Store) findSlot(key []byte) (uint64, bool) {
	hash := s.hashFn(key)
	idx := hash & (s.bucketCount - 1)

	for probes := uint64(0); probes < s.bucketCount; probes++ {
		slotPlusOne := s.bucketSlotPlusOne(idx)

		switch slotPlusOne {
		case bucketEmpty:
			return 0, false
		case bucketTombstone:
			// keep probing
		default:
			slotID := slotPlusOne - 1
			if s.bucketHash(idx) == hash && s.slotLive(slotID) && bytesEqual(s.slotKey(slotID), key) {
				return slotID, true
			}
		}

		idx = (idx + 1) & (s.bucketCount - 1)
	}

	return 0, false
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

// insertBucket places slotID's key into the bucket table. Caller guarantees
// the key is not already present.
func (s *Store) insertBucket(key []byte, slotID uint64) {
	hash := s.hashFn(key)
	idx := hash & (s.bucketCount - 1)

	for {
		slotPlusOne := s.bucketSlotPlusOne(idx)
		if slotPlusOne == bucketEmpty || slotPlusOne == bucketTombstone {
			s.setBucket(idx, hash, slotID+1)
			return
		}

		idx = (idx + 1) & (s.bucketCount - 1)
	}
}

// removeBucket tombstones the bucket entry referencing slotID.
func (s *Store) removeBucket(key []byte, slotID uint64) {
	hash := s.hashFn(key)
	idx := hash & (s.bucketCount - 1)

	for probes := uint64(0); probes < s.bucketCount; probes++ {
		slotPlusOne := s.bucketSlotPlusOne(idx)
		if slotPlusOne == slotID+1 {
			s.setBucket(idx, 0, bucketTombstone)
			return
		}

		if slotPlusOne == bucketEmpty {
			return
		}

		idx = (idx + 1) & (s.bucketCount - 1)
	}
}

// orderInsert inserts slotID into the sorted range index.
func (s *Store) orderInsert(id uint64) {
	key := s.slotKey(id)

	i := sort.Search(len(s.order), func(i int) bool {
		return s.compare(s.slotKey(s.order[i]), key) >= 0
	})

	s.order = append(s.order, 0)
	copy(s.order[i+1:], s.order[i:])
	s.order[i] = id
}

// orderRemove removes slotID from the sorted range index.
func (s *Store) orderRemove(id uint64) {
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// Close unmaps and closes the backing file. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	if s.activeWriter != nil {
		return ErrBusy
	}

	s.closed = true

	var err error

	if s.data != nil {
		if uerr := syscall.Munmap(s.data); uerr != nil {
			err = fmt.Errorf("munmap: %w", uerr)
		}

		s.data = nil
	}

	if cerr := syscall.Close(s.fd); cerr != nil && err == nil {
		err = fmt.Errorf("close: %w", cerr)
	}

	return err
}

// Len returns the number of live entries.
func (s *Store) Len() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrClosed
	}

	return len(s.order), nil
}

// Get retrieves the message for an exact physical key.
func (s *Store) Get(key []byte) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false, ErrClosed
	}

	if len(key) != s.physicalKeySize {
		s.stats.recordError()
		return nil, false, fmt.Errorf("key length %d != %d: %w", len(key), s.physicalKeySize, ErrInvalidInput)
	}

	id, found := s.findSlot(key)
	if !found {
		s.stats.recordLookup(false)
		return nil, false, nil
	}

	s.stats.recordLookup(true)

	msg := s.slotMsg(id)
	out := make([]byte, len(msg))
	copy(out, msg)

	return out, true, nil
}

// BeginWrite starts a new write session. Only one writer may be active at a
// time, enforced in-process by activeWriter and cross-process by an
// advisory flock acquired here.
func (s *Store) BeginWrite() (*Writer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	if s.activeWriter != nil {
		s.stats.recordError()
		return nil, ErrBusy
	}

	var lock *writerLock

	if !s.disableLocking {
		l, err := tryAcquireWriterLock(s.path)
		if err != nil {
			return nil, err
		}

		lock = l
	}

	w := &Writer{store: s, lock: lock, ops: make(map[string]*bufferedOp)}
	s.activeWriter = w

	return w, nil
}

// Reclaim compacts the slot array by dropping tombstoned slots and
// rewriting live ones contiguously, freeing their slot ids back to the
// allocator's highwater mark. It is the facade's knob for the spec's
// reclaim_threshold; unlike a real trunk this runs synchronously and
// holds the writer lock for its duration.
func (s *Store) Reclaim() error {
	w, err := s.BeginWrite()
	if err != nil {
		return err
	}

	defer func() { _ = w.Close() }()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.bumpGenerationOdd()

	live := make([]uint64, len(s.order))
	copy(live, s.order)

	sort.Slice(live, func(i, j int) bool { return live[i] < live[j] })

	next := uint64(0)

	for i := range s.bucketCount {
		s.setBucket(i, 0, bucketEmpty)
	}

	newOrder := make([]uint64, 0, len(live))

	for _, id := range live {
		if id != next {
			key := append([]byte(nil), s.slotKey(id)...)
			msg := append([]byte(nil), s.slotMsg(id)...)
			s.writeSlot(next, key, msg, true)
		}

		s.insertBucket(s.slotKey(next), next)
		newOrder = append(newOrder, next)
		next++
	}

	sort.Slice(newOrder, func(i, j int) bool {
		return s.compare(s.slotKey(newOrder[i]), s.slotKey(newOrder[j])) < 0
	})

	s.order = newOrder
	s.alloc = newAllocator()
	s.slotHighwater = next

	hdr := s.readHeader()
	hdr.SlotHighwater = next
	hdr.LiveCount = uint64(len(newOrder))
	s.writeHeaderLocked(&hdr)

	return nil
}
