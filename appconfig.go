package kvstore

import "bytes"

// CompareFunc orders two logical keys, returning <0, 0, >0.
type CompareFunc func(a, b []byte) int

// HashFunc hashes a logical key.
type HashFunc func(key []byte) uint64

// MergePartialFunc folds an Update's delta into the key's existing stored
// value at write time, returning the value actually persisted (still
// tagged Update). DefaultConfig's MergePartial keeps the old value
// unchanged, which is moot in practice since DefaultConfig also sets
// DisallowUpdate.
type MergePartialFunc func(key, existing, delta []byte) []byte

// MergeFinalFunc resolves the partial(s) accumulated under a key into the
// value a Lookup or iterator Current ultimately returns. This port merges
// eagerly on every Update (one partial per key), so MergeFinal always sees
// a single-element slice; the signature still takes a slice to match the
// capability bundle's general (stack-then-resolve) merge contract.
type MergeFinalFunc func(key []byte, partials [][]byte) []byte

// KeyToStringFunc renders a logical key for diagnostics.
type KeyToStringFunc func(key []byte) string

// MessageToStringFunc renders a decoded message value for diagnostics.
type MessageToStringFunc func(value []byte) string

// AppDataConfig is the application-supplied capability set defining key and
// value semantics. It is immutable after the store it's attached to opens
// and must outlive that store (the shim only borrows it).
type AppDataConfig struct {
	KeySize int

	MinKey []byte
	MaxKey []byte

	KeyCompare       CompareFunc
	KeyHash          HashFunc
	MergePartial     MergePartialFunc
	MergeFinal       MergeFinalFunc
	KeyToString      KeyToStringFunc
	MessageToString  MessageToStringFunc

	// DisallowUpdate makes Update fail with ErrInvalidArg at encode time
	// instead of silently inserting a message whose merge callbacks are
	// never consulted. DefaultConfig sets this (§6.4's blind-mutation-free
	// policy); custom configs default to allowing Update.
	DisallowUpdate bool
}

// Validate checks the invariants from the data model: key_size bounds,
// non-empty min/max keys within key_size, and min_key < max_key under the
// configured comparator.
func (c *AppDataConfig) Validate() error {
	if c.KeySize < MinLogicalKey || c.KeySize > MaxLogicalKey {
		return ErrBadParam
	}

	if len(c.MinKey) == 0 || len(c.MinKey) > c.KeySize {
		return ErrBadParam
	}

	if len(c.MaxKey) == 0 || len(c.MaxKey) > c.KeySize {
		return ErrBadParam
	}

	if c.KeyCompare == nil || c.KeyHash == nil || c.MergePartial == nil ||
		c.MergeFinal == nil || c.KeyToString == nil || c.MessageToString == nil {
		return ErrBadParam
	}

	if c.KeyCompare(c.MinKey, c.MaxKey) >= 0 {
		return ErrBadParam
	}

	return nil
}

// bytesCompare is the comparator used by DefaultConfig: plain lexicographic
// byte ordering, the same semantics as bytes.Compare.
func bytesCompare(a, b []byte) int {
	return bytes.Compare(a, b)
}
