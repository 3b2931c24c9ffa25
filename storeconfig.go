package kvstore

import "math"

const (
	defaultPageSize              = 4096
	defaultExtentSizeMultiplier  = 128
	defaultIOPerms               = 0o755
	defaultAsyncQueueDepth       = 256
	defaultBTreeRoughCountHeight = 1
	defaultFilterIndexSize       = 256
	defaultFilterRemainderSize   = 6
	defaultMemtableCapacity      = 24 * 1024 * 1024
	defaultFanout                = 8
	defaultMaxBranchesPerNode    = 24
)

// ioFlags mirrors the O_RDWR|O_CREAT default from SPEC_FULL.md without
// importing a platform-specific syscall package at the façade layer. The
// lifecycle does not pass it on: the engine opens its file with its own
// fixed flags.
type ioFlags int

const defaultIOFlags ioFlags = ioFlagsReadWrite | ioFlagsCreate

const (
	ioFlagsReadWrite ioFlags = 1 << iota
	ioFlagsCreate
)

// StoreConfig collects every tunable for Create/Open. The lifecycle derives
// a single engine.Config from it (file path, sizing, writeback mode, trunk
// parameters); the remaining fields are not consumed by the engine.
// Zero-valued fields are replaced by the
// defaults documented in SPEC_FULL.md §4.4.1 when the store opens.
type StoreConfig struct {
	Filename string
	CacheSize uint64
	DiskSize  uint64

	PageSize   uint32
	ExtentSize uint64

	IOFlags ioFlags
	IOPerms uint32

	AsyncQueueDepth uint32

	MemtableCapacity   uint64
	Fanout             uint32
	MaxBranchesPerNode uint32

	BTreeRoughCountHeight uint32
	FilterIndexSize       uint32
	FilterRemainderSize   uint32
	ReclaimThreshold      uint64

	UseLog   bool
	UseStats bool

	UseShmem bool

	App *AppDataConfig
}

// applyDefaults fills every zero-valued tunable with its documented
// default. Called once by Create/Open before any validation.
func (c *StoreConfig) applyDefaults() {
	if c.PageSize == 0 {
		c.PageSize = defaultPageSize
	}

	if c.ExtentSize == 0 {
		c.ExtentSize = defaultExtentSizeMultiplier * uint64(c.PageSize)
	}

	if c.IOFlags == 0 {
		c.IOFlags = defaultIOFlags
	}

	if c.IOPerms == 0 {
		c.IOPerms = defaultIOPerms
	}

	if c.AsyncQueueDepth == 0 {
		c.AsyncQueueDepth = defaultAsyncQueueDepth
	}

	if c.BTreeRoughCountHeight == 0 {
		c.BTreeRoughCountHeight = defaultBTreeRoughCountHeight
	}

	if c.FilterIndexSize == 0 {
		c.FilterIndexSize = defaultFilterIndexSize
	}

	if c.FilterRemainderSize == 0 {
		c.FilterRemainderSize = defaultFilterRemainderSize
	}

	if c.MemtableCapacity == 0 {
		c.MemtableCapacity = defaultMemtableCapacity
	}

	if c.Fanout == 0 {
		c.Fanout = defaultFanout
	}

	if c.MaxBranchesPerNode == 0 {
		c.MaxBranchesPerNode = defaultMaxBranchesPerNode
	}

	if c.ReclaimThreshold == 0 {
		c.ReclaimThreshold = math.MaxUint64
	}
}

// validate checks the required, non-defaultable fields.
func (c *StoreConfig) validate() error {
	if c.Filename == "" || c.CacheSize == 0 || c.DiskSize == 0 {
		return ErrBadParam
	}

	if c.App == nil {
		return ErrBadParam
	}

	if c.PageSize == 0 || c.PageSize&(c.PageSize-1) != 0 {
		return ErrBadParam
	}

	if c.ExtentSize < uint64(c.PageSize) {
		return ErrBadParam
	}

	return nil
}
