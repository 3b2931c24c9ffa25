package kvstore

import (
	"fmt"
	"hash/fnv"
)

// DefaultConfig builds an AppDataConfig for plain byte-keyed stores: a
// lexicographic comparator, a 32-bit FNV-1a hash, a minimum key of a single
// 0x00 byte (the smallest non-empty key), a maximum key of all-0xFF bytes,
// and no-op merge callbacks (old value is always kept). Update is rejected
// at encode time (§6.4's blind-mutation-free policy) — see DESIGN.md.
func DefaultConfig(keySize int) *AppDataConfig {
	maxKey := make([]byte, keySize)
	for i := range maxKey {
		maxKey[i] = 0xFF
	}

	return &AppDataConfig{
		KeySize: keySize,
		MinKey:  []byte{0x00},
		MaxKey:  maxKey,

		KeyCompare: bytesCompare,
		KeyHash:    fnv1a32,

		MergePartial: func(_, existing, _ []byte) []byte { return existing },
		MergeFinal: func(_ []byte, partials [][]byte) []byte {
			if len(partials) == 0 {
				return nil
			}

			return partials[0]
		},

		KeyToString:     func(key []byte) string { return fmt.Sprintf("%q", key) },
		MessageToString: func(value []byte) string { return fmt.Sprintf("%q", value) },

		DisallowUpdate: true,
	}
}

func fnv1a32(key []byte) uint64 {
	h := fnv.New32a()
	_, _ = h.Write(key)

	return uint64(h.Sum32())
}
