package engine

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"syscall"
)

const maxPhysicalKeySize = 512

const maxValueCap = 1 << 20

const maxSlotCapacity = uint64(100_000_000)

// Open opens or creates an engine file at cfg.Path. The second return value
// reports whether a new file was created.
func Open(cfg Config) (*Store, bool, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, false, err
	}

	fd, err := syscall.Open(cfg.Path, syscall.O_RDWR, 0)
	if err != nil {
		if !errors.Is(err, syscall.ENOENT) {
			return nil, false, fmt.Errorf("open file: %w", err)
		}

		s, cerr := createNew(cfg)

		return s, true, cerr
	}

	var stat syscall.Stat_t

	if statErr := syscall.Fstat(fd, &stat); statErr != nil {
		_ = syscall.Close(fd)
		return nil, false, fmt.Errorf("stat file: %w", statErr)
	}

	if stat.Size == 0 {
		_ = syscall.Close(fd)

		s, cerr := createNew(cfg)

		return s, true, cerr
	}

	if stat.Size < headerSize {
		_ = syscall.Close(fd)
		return nil, false, fmt.Errorf("file size %d smaller than header: %w", stat.Size, ErrCorrupt)
	}

	buf := make([]byte, headerSize)

	n, err := syscall.Pread(fd, buf, 0)
	if err != nil || n != headerSize {
		_ = syscall.Close(fd)
		return nil, false, ErrCorrupt
	}

	s, err := validateAndMount(fd, buf, stat.Size, cfg)
	if err != nil {
		_ = syscall.Close(fd)
		return nil, false, err
	}

	return s, false, nil
}

func validateConfig(cfg Config) error {
	if cfg.Path == "" {
		return fmt.Errorf("path is required: %w", ErrInvalidInput)
	}

	if cfg.PhysicalKeySize < 1 || cfg.PhysicalKeySize > maxPhysicalKeySize {
		return fmt.Errorf("physical_key_size %d out of range: %w", cfg.PhysicalKeySize, ErrInvalidInput)
	}

	if cfg.ValueCap < 0 || cfg.ValueCap > maxValueCap {
		return fmt.Errorf("value_cap %d out of range: %w", cfg.ValueCap, ErrInvalidInput)
	}

	if cfg.SlotCapacity < 1 || cfg.SlotCapacity > maxSlotCapacity {
		return fmt.Errorf("slot_capacity %d out of range: %w", cfg.SlotCapacity, ErrInvalidInput)
	}

	if cfg.Compare == nil {
		return fmt.Errorf("compare is required: %w", ErrInvalidInput)
	}

	return nil
}

func createNew(cfg Config) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if dir == "" {
		dir = "."
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}

	randBytes := make([]byte, 8)
	_, _ = rand.Read(randBytes)
	tmpPath := fmt.Sprintf("%s.tmp.%x", cfg.Path, randBytes)

	fd, err := syscall.Open(tmpPath, syscall.O_RDWR|syscall.O_CREAT|syscall.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	h := newHeader(uint32(cfg.PhysicalKeySize), uint32(cfg.ValueCap), cfg.SlotCapacity, cfg.Trunk)

	fileSize := int64(h.BucketsOffset + h.BucketCount*16)

	if err := syscall.Ftruncate(fd, fileSize); err != nil {
		_ = syscall.Close(fd)
		_ = syscall.Unlink(tmpPath)

		return nil, fmt.Errorf("ftruncate: %w", err)
	}

	headerBuf := encodeHeader(&h)

	if _, err := syscall.Pwrite(fd, headerBuf, 0); err != nil {
		_ = syscall.Close(fd)
		_ = syscall.Unlink(tmpPath)

		return nil, fmt.Errorf("write header: %w", err)
	}

	if err := syscall.Fsync(fd); err != nil {
		_ = syscall.Close(fd)
		_ = syscall.Unlink(tmpPath)

		return nil, fmt.Errorf("fsync: %w", err)
	}

	_ = syscall.Close(fd)

	if err := syscall.Rename(tmpPath, cfg.Path); err != nil {
		_ = syscall.Unlink(tmpPath)
		return nil, fmt.Errorf("rename: %w", err)
	}

	fd, err = syscall.Open(cfg.Path, syscall.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("reopen after create: %w", err)
	}

	return mmapStore(fd, fileSize, &h, cfg)
}

func validateAndMount(fd int, buf []byte, size int64, cfg Config) (*Store, error) {
	if !bytes.Equal(buf[offMagic:offMagic+4], []byte(magic)) {
		return nil, fmt.Errorf("bad magic %q: %w", buf[offMagic:offMagic+4], ErrIncompatible)
	}

	if v := binary.LittleEndian.Uint32(buf[offVersion:]); v != formatVersion {
		return nil, fmt.Errorf("format version %d != %d: %w", v, formatVersion, ErrIncompatible)
	}

	if !validateHeaderCRC(buf) {
		return nil, fmt.Errorf("header CRC mismatch: %w", ErrCorrupt)
	}

	if hasReservedBytesSet(buf) {
		return nil, fmt.Errorf("reserved bytes non-zero: %w", ErrIncompatible)
	}

	h := decodeHeader(buf)

	if int(h.PhysicalKeySize) != cfg.PhysicalKeySize {
		return nil, fmt.Errorf("physical_key_size mismatch: file has %d, want %d: %w", h.PhysicalKeySize, cfg.PhysicalKeySize, ErrIncompatible)
	}

	if int(h.ValueCap) != cfg.ValueCap {
		return nil, fmt.Errorf("value_cap mismatch: file has %d, want %d: %w", h.ValueCap, cfg.ValueCap, ErrIncompatible)
	}

	if h.SlotCapacity != cfg.SlotCapacity {
		return nil, fmt.Errorf("slot_capacity mismatch: file has %d, want %d: %w", h.SlotCapacity, cfg.SlotCapacity, ErrIncompatible)
	}

	expectedSlotSize := computeSlotSize(h.PhysicalKeySize, h.ValueCap)
	if h.SlotSize != expectedSlotSize {
		return nil, fmt.Errorf("slot_size mismatch: file has %d, want %d: %w", h.SlotSize, expectedSlotSize, ErrCorrupt)
	}

	if h.SlotsOffset != headerSize {
		return nil, fmt.Errorf("slots_offset %d != header_size: %w", h.SlotsOffset, ErrCorrupt)
	}

	expectedBucketsOffset := h.SlotsOffset + h.SlotCapacity*uint64(h.SlotSize)
	if h.BucketsOffset != expectedBucketsOffset {
		return nil, fmt.Errorf("buckets_offset mismatch: %w", ErrCorrupt)
	}

	expectedSize := int64(h.BucketsOffset + h.BucketCount*16)
	if size < expectedSize {
		return nil, fmt.Errorf("file size %d < expected %d: %w", size, expectedSize, ErrCorrupt)
	}

	if h.BucketCount < 2 || (h.BucketCount&(h.BucketCount-1)) != 0 {
		return nil, fmt.Errorf("bucket_count %d not a power of two: %w", h.BucketCount, ErrCorrupt)
	}

	if h.SlotHighwater > h.SlotCapacity {
		return nil, fmt.Errorf("slot_highwater %d > slot_capacity %d: %w", h.SlotHighwater, h.SlotCapacity, ErrCorrupt)
	}

	if h.LiveCount > h.SlotHighwater {
		return nil, fmt.Errorf("live_count %d > slot_highwater %d: %w", h.LiveCount, h.SlotHighwater, ErrCorrupt)
	}

	return mmapStore(fd, size, &h, cfg)
}

func mmapStore(fd int, size int64, h *header, cfg Config) (*Store, error) {
	data, err := syscall.Mmap(fd, 0, int(size), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		_ = syscall.Close(fd)
		return nil, fmt.Errorf("mmap: %w", err)
	}

	hashFn := cfg.Hash
	if hashFn == nil {
		hashFn = fnv1a64
	}

	s := &Store{
		fd:              fd,
		data:            data,
		fileSize:        size,
		path:            cfg.Path,
		physicalKeySize: int(h.PhysicalKeySize),
		valueCap:        int(h.ValueCap),
		slotSize:        int(h.SlotSize),
		slotCapacity:    h.SlotCapacity,
		slotsOffset:     h.SlotsOffset,
		bucketsOffset:   h.BucketsOffset,
		bucketCount:     h.BucketCount,
		compare:         cfg.Compare,
		hashFn:          hashFn,
		writeback:       cfg.Writeback,
		disableLocking:  cfg.DisableLocking,
		trunk:           cfg.Trunk,
		alloc:           newAllocator(),
	}

	s.rebuildIndices(h.SlotHighwater)

	return s, nil
}

// rebuildIndices scans the slot array and reconstructs the in-memory range
// index and free-slot list. The bucket (point-lookup) index lives on disk
// and needs no rebuild; order and allocator are intentionally in-memory
// only (see DESIGN.md).
func (s *Store) rebuildIndices(highwater uint64) {
	order := make([]uint64, 0, highwater)

	for id := uint64(0); id < highwater; id++ {
		if s.slotLive(id) {
			order = append(order, id)
		} else {
			s.alloc.release(id)
		}
	}

	sort.Slice(order, func(i, j int) bool {
		return s.compare(s.slotKey(order[i]), s.slotKey(order[j])) < 0
	})

	s.order = order
	s.slotHighwater = highwater
}
