package engine

import (
	"encoding/binary"
	"hash/crc32"
)

// KVE1 on-disk file format.
//
// The header is a fixed 256-byte region followed by a slot array and a
// hash-bucket index, mirroring the layout shape of a seqlock-protected
// mmap'd cache: readers validate a CRC-checked, even-generation snapshot
// of the header before trusting any derived offsets.
const (
	magic           = "KVE1"
	formatVersion   = 1
	headerSize      = 256
	hashAlgFNV1a64  = 1
	bucketEmpty     = 0
	bucketTombstone = ^uint64(0)
)

// Header field offsets (bytes from file start).
const (
	offMagic               = 0x000 // [4]byte
	offVersion              = 0x004 // uint32
	offHeaderSize           = 0x008 // uint32
	offPhysicalKeySize      = 0x00C // uint32
	offValueCap             = 0x010 // uint32
	offSlotSize             = 0x014 // uint32
	offHashAlg              = 0x018 // uint32
	offFlags                = 0x01C // uint32
	offSlotCapacity         = 0x020 // uint64
	offSlotHighwater        = 0x028 // uint64
	offLiveCount            = 0x030 // uint64
	offUserVersion          = 0x038 // uint64
	offGeneration           = 0x040 // uint64 (seqlock, even = stable)
	offBucketCount          = 0x048 // uint64
	offBucketUsed           = 0x050 // uint64
	offBucketTombstones     = 0x058 // uint64
	offSlotsOffset          = 0x060 // uint64
	offBucketsOffset        = 0x068 // uint64
	offFanout               = 0x070 // uint32
	offMaxBranchesPerNode   = 0x074 // uint32
	offRoughCountHeight     = 0x078 // uint32
	offReservedPad          = 0x07C // uint32
	offReclaimThreshold     = 0x080 // uint64
	offHeaderCRC32C         = 0x088 // uint32
	offReservedStart        = 0x08C // reserved bytes through headerSize
)

const flagOrderedKeys = 1 << 0

// header is the in-memory decoding of the 256-byte on-disk header.
type header struct {
	PhysicalKeySize   uint32
	ValueCap          uint32
	SlotSize          uint32
	Flags             uint32
	SlotCapacity      uint64
	SlotHighwater     uint64
	LiveCount         uint64
	UserVersion       uint64
	Generation        uint64
	BucketCount       uint64
	BucketUsed        uint64
	BucketTombstones  uint64
	SlotsOffset       uint64
	BucketsOffset     uint64
	Fanout            uint32
	MaxBranchesPerNode uint32
	RoughCountHeight  uint32
	ReclaimThreshold  uint64
}

func encodeHeader(h *header) []byte {
	buf := make([]byte, headerSize)

	copy(buf[offMagic:], magic)
	binary.LittleEndian.PutUint32(buf[offVersion:], formatVersion)
	binary.LittleEndian.PutUint32(buf[offHeaderSize:], headerSize)
	binary.LittleEndian.PutUint32(buf[offPhysicalKeySize:], h.PhysicalKeySize)
	binary.LittleEndian.PutUint32(buf[offValueCap:], h.ValueCap)
	binary.LittleEndian.PutUint32(buf[offSlotSize:], h.SlotSize)
	binary.LittleEndian.PutUint32(buf[offHashAlg:], hashAlgFNV1a64)
	binary.LittleEndian.PutUint32(buf[offFlags:], h.Flags)

	binary.LittleEndian.PutUint64(buf[offSlotCapacity:], h.SlotCapacity)
	binary.LittleEndian.PutUint64(buf[offSlotHighwater:], h.SlotHighwater)
	binary.LittleEndian.PutUint64(buf[offLiveCount:], h.LiveCount)
	binary.LittleEndian.PutUint64(buf[offUserVersion:], h.UserVersion)
	binary.LittleEndian.PutUint64(buf[offGeneration:], h.Generation)
	binary.LittleEndian.PutUint64(buf[offBucketCount:], h.BucketCount)
	binary.LittleEndian.PutUint64(buf[offBucketUsed:], h.BucketUsed)
	binary.LittleEndian.PutUint64(buf[offBucketTombstones:], h.BucketTombstones)
	binary.LittleEndian.PutUint64(buf[offSlotsOffset:], h.SlotsOffset)
	binary.LittleEndian.PutUint64(buf[offBucketsOffset:], h.BucketsOffset)

	binary.LittleEndian.PutUint32(buf[offFanout:], h.Fanout)
	binary.LittleEndian.PutUint32(buf[offMaxBranchesPerNode:], h.MaxBranchesPerNode)
	binary.LittleEndian.PutUint32(buf[offRoughCountHeight:], h.RoughCountHeight)
	binary.LittleEndian.PutUint64(buf[offReclaimThreshold:], h.ReclaimThreshold)

	crc := computeHeaderCRC(buf)
	binary.LittleEndian.PutUint32(buf[offHeaderCRC32C:], crc)

	return buf
}

func decodeHeader(buf []byte) header {
	var h header

	h.PhysicalKeySize = binary.LittleEndian.Uint32(buf[offPhysicalKeySize:])
	h.ValueCap = binary.LittleEndian.Uint32(buf[offValueCap:])
	h.SlotSize = binary.LittleEndian.Uint32(buf[offSlotSize:])
	h.Flags = binary.LittleEndian.Uint32(buf[offFlags:])

	h.SlotCapacity = binary.LittleEndian.Uint64(buf[offSlotCapacity:])
	h.SlotHighwater = binary.LittleEndian.Uint64(buf[offSlotHighwater:])
	h.LiveCount = binary.LittleEndian.Uint64(buf[offLiveCount:])
	h.UserVersion = binary.LittleEndian.Uint64(buf[offUserVersion:])
	h.Generation = binary.LittleEndian.Uint64(buf[offGeneration:])
	h.BucketCount = binary.LittleEndian.Uint64(buf[offBucketCount:])
	h.BucketUsed = binary.LittleEndian.Uint64(buf[offBucketUsed:])
	h.BucketTombstones = binary.LittleEndian.Uint64(buf[offBucketTombstones:])
	h.SlotsOffset = binary.LittleEndian.Uint64(buf[offSlotsOffset:])
	h.BucketsOffset = binary.LittleEndian.Uint64(buf[offBucketsOffset:])

	h.Fanout = binary.LittleEndian.Uint32(buf[offFanout:])
	h.MaxBranchesPerNode = binary.LittleEndian.Uint32(buf[offMaxBranchesPerNode:])
	h.RoughCountHeight = binary.LittleEndian.Uint32(buf[offRoughCountHeight:])
	h.ReclaimThreshold = binary.LittleEndian.Uint64(buf[offReclaimThreshold:])

	return h
}

// computeHeaderCRC computes CRC32-C over the header with the generation and
// crc fields themselves zeroed, so a torn read of only those fields during a
// commit cannot be mistaken for corruption.
func computeHeaderCRC(buf []byte) uint32 {
	tmp := make([]byte, headerSize)
	copy(tmp, buf)

	for i := offGeneration; i < offGeneration+8; i++ {
		tmp[i] = 0
	}

	for i := offHeaderCRC32C; i < offHeaderCRC32C+4; i++ {
		tmp[i] = 0
	}

	return crc32.Checksum(tmp, crc32.MakeTable(crc32.Castagnoli))
}

func validateHeaderCRC(buf []byte) bool {
	stored := binary.LittleEndian.Uint32(buf[offHeaderCRC32C:])
	return stored == computeHeaderCRC(buf)
}

func hasReservedBytesSet(buf []byte) bool {
	for i := offReservedStart; i < headerSize; i++ {
		if buf[i] != 0 {
			return true
		}
	}

	return false
}

// computeSlotSize returns align8(meta(8) + key + value) for the given
// physical key size and message value capacity.
func computeSlotSize(physicalKeySize, valueCap uint32) uint32 {
	unaligned := uint64(8) + uint64(physicalKeySize) + uint64(valueCap)
	return align8(unaligned)
}

func align8(x uint64) uint32 {
	return uint32((x + 7) &^ 7)
}

// computeBucketCount returns the smallest power of two strictly greater than
// slotCapacity/loadFactor, and always strictly greater than slotCapacity so
// the table always retains at least one EMPTY bucket.
func computeBucketCount(slotCapacity uint64) uint64 {
	const loadFactor = 0.75

	needed := uint64(float64(slotCapacity)/loadFactor) + 1
	if needed <= slotCapacity {
		needed = slotCapacity + 1
	}

	return nextPow2(needed)
}

func nextPow2(x uint64) uint64 {
	if x < 2 {
		return 2
	}

	x--
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	x |= x >> 32

	return x + 1
}

func newHeader(physicalKeySize, valueCap uint32, slotCapacity uint64, params TrunkParams) header {
	slotSize := computeSlotSize(physicalKeySize, valueCap)
	bucketCount := computeBucketCount(slotCapacity)
	slotsOffset := uint64(headerSize)
	bucketsOffset := slotsOffset + slotCapacity*uint64(slotSize)

	return header{
		PhysicalKeySize:    physicalKeySize,
		ValueCap:           valueCap,
		SlotSize:           slotSize,
		SlotCapacity:       slotCapacity,
		SlotsOffset:        slotsOffset,
		BucketsOffset:      bucketsOffset,
		BucketCount:        bucketCount,
		UserVersion:        params.UserVersion,
		Fanout:             params.Fanout,
		MaxBranchesPerNode: params.MaxBranchesPerNode,
		RoughCountHeight:   params.RoughCountHeight,
		ReclaimThreshold:   params.ReclaimThreshold,
	}
}
