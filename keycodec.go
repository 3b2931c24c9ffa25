package kvstore

const (
	// MaxLogicalKey is the global ceiling on a logical key's length: the
	// key header is a single length byte, so it cannot address more.
	MaxLogicalKey = 255

	// MinLogicalKey is the floor a store's key_size must satisfy, leaving
	// room for the engine's internal sentinels.
	MinLogicalKey = 8

	keyHeaderSize = 1
)

// encodeKey writes the length-prefixed, zero-padded physical form of
// logicalKey into out. len(out) must equal physicalKeySize exactly and
// len(logicalKey) must not exceed physicalKeySize-1.
//
// The padding bytes beyond the length prefix are always zeroed so that
// byte-level comparisons of two encoded keys never compare stale bytes
// left over from a previous occupant of the buffer.
func encodeKey(out, logicalKey []byte) error {
	if len(logicalKey) > len(out)-keyHeaderSize {
		return ErrInvalidArg
	}

	for i := range out {
		out[i] = 0
	}

	out[0] = byte(len(logicalKey))
	copy(out[keyHeaderSize:], logicalKey)

	return nil
}

// decodeKey returns the logical slice embedded in an encoded physical key.
// The caller must not retain the result past the lifetime of encoded; it
// is a view, not a copy.
func decodeKey(encoded []byte) []byte {
	n := int(encoded[0])
	return encoded[keyHeaderSize : keyHeaderSize+n]
}
