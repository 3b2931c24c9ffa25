package engine

// WritebackMode controls durability guarantees for Writer.Commit.
type WritebackMode int

const (
	// WritebackNone provides no durability guarantees: fast, crash may lose
	// the last commit.
	WritebackNone WritebackMode = iota

	// WritebackSync msyncs modified ranges before Commit returns.
	WritebackSync
)

// TrunkParams are the branching/compaction knobs the real trunk (B-tree)
// would use. The engine records them in the header of a newly created file
// but does not build a branching structure from them, and Open does not
// compare them against an existing file's values -- see DESIGN.md for the
// rationale (Non-goal: LSM/B-tree internals).
type TrunkParams struct {
	UserVersion        uint64
	Fanout             uint32
	MaxBranchesPerNode uint32
	RoughCountHeight   uint32
	ReclaimThreshold   uint64
}

// Compare returns <0, 0, >0 comparing two physical (fixed-width) keys.
// Used to keep the in-memory range index ordered.
type Compare func(a, b []byte) int

// Hash returns the bucket-table hash of a physical (fixed-width) key. When
// Config.Hash is nil, Open falls back to the package's own FNV-1a64
// (hash.go) -- the façade always supplies its shim's hash instead, which
// strips the physical header before hashing so two logical keys that
// compare equal always hash equal regardless of padding (SPEC_FULL.md §9).
type Hash func(key []byte) uint64

// Config configures Open. All fields describe the physical (fixed-width)
// world; the facade is responsible for translating logical keys before
// calling into the engine.
type Config struct {
	Path string

	PhysicalKeySize int
	ValueCap        int
	SlotCapacity    uint64

	Compare Compare
	Hash    Hash

	Writeback      WritebackMode
	DisableLocking bool

	Trunk TrunkParams
}
