package kvstore

// shim is the data-config decorator (C3): it wraps an AppDataConfig, whose
// callbacks expect logical (variable-length) keys, and presents a
// fixed-width physical key world to the engine. Every physical-key
// callback strips the one-byte length header before forwarding to the
// app's callback.
//
// shim borrows the AppDataConfig; the caller is responsible for keeping it
// alive for at least the store's lifetime.
type shim struct {
	app *AppDataConfig

	physicalKeySize int
	minKeyEncoded   []byte
	maxKeyEncoded   []byte
}

func newShim(app *AppDataConfig) (*shim, error) {
	if app == nil {
		return nil, ErrBadParam
	}

	if err := app.Validate(); err != nil {
		return nil, err
	}

	physicalKeySize := app.KeySize + keyHeaderSize

	minEnc := make([]byte, physicalKeySize)
	if err := encodeKey(minEnc, app.MinKey); err != nil {
		return nil, ErrBadParam
	}

	maxEnc := make([]byte, physicalKeySize)
	if err := encodeKey(maxEnc, app.MaxKey); err != nil {
		return nil, ErrBadParam
	}

	return &shim{
		app:             app,
		physicalKeySize: physicalKeySize,
		minKeyEncoded:   minEnc,
		maxKeyEncoded:   maxEnc,
	}, nil
}

// compare trampolines the engine's physical-key comparisons to the app's
// logical comparator. Matches engine.Compare's signature directly.
func (s *shim) compare(a, b []byte) int {
	return s.app.KeyCompare(decodeKey(a), decodeKey(b))
}

// hash strips the header before hashing. This resolves the open question
// in SPEC_FULL.md/§9 in favor of the recommended behavior: the app's hash
// callback never sees physical header bytes, so two logical keys that
// compare equal always hash equal regardless of padding.
func (s *shim) hash(physicalKey []byte) uint64 {
	return s.app.KeyHash(decodeKey(physicalKey))
}

func (s *shim) keyToString(physicalKey []byte) string {
	return s.app.KeyToString(decodeKey(physicalKey))
}

func (s *shim) mergePartial(physicalKey, existing, delta []byte) []byte {
	return s.app.MergePartial(decodeKey(physicalKey), existing, delta)
}

func (s *shim) mergeFinal(physicalKey []byte, partials [][]byte) []byte {
	return s.app.MergeFinal(decodeKey(physicalKey), partials)
}

// messageToString passes through unchanged: it operates on a message value,
// not a key, so there is no header to strip.
func (s *shim) messageToString(value []byte) string {
	return s.app.MessageToString(value)
}
