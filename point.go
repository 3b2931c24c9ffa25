package kvstore

import "fmt"

// validateKeyLength enforces key.len <= AppDataConfig.KeySize (§4.6 step 1).
// §4.6 step 2 (validate_key_in_range against the shim's min/max sentinels,
// debug builds only) is not implemented: this port has no debug-build
// variant to gate it behind, and the range check would just re-derive what
// KeyCompare already guarantees once the key reaches the engine.
func (s *Store) validateKeyLength(key []byte) error {
	if len(key) > s.cfg.App.KeySize {
		return ErrInvalidArg
	}

	return nil
}

// Insert builds an Insert message for value and forwards to putMessage.
func (s *Store) Insert(key, value []byte) error {
	s.assertRegistered()

	if err := s.validateKeyLength(key); err != nil {
		return err
	}

	physKey := make([]byte, s.shim.physicalKeySize)
	if err := encodeKey(physKey, key); err != nil {
		return ErrInvalidArg
	}

	return s.putMessage(physKey, msgInsert, value)
}

// Delete removes key outright (§4.6, P6/P8). Unlike Insert/Update it does
// not stage a tagged message for the engine's Put path: it calls the
// engine's real Delete, which tombstones the bucket entry, drops the slot
// from the order index, and marks the slot dead with its value cleared. A
// delete-tagged
// message is never written to a live slot, so a later Lookup or iterator
// pass can never observe the key again.
func (s *Store) Delete(key []byte) error {
	s.assertRegistered()

	if err := s.validateKeyLength(key); err != nil {
		return err
	}

	physKey := make([]byte, s.shim.physicalKeySize)
	if err := encodeKey(physKey, key); err != nil {
		return ErrInvalidArg
	}

	w, err := s.eng.BeginWrite()
	if err != nil {
		return translateEngineErr(err)
	}

	if err := w.Delete(physKey); err != nil {
		_ = w.Close()
		return translateEngineErr(err)
	}

	if err := w.Commit(); err != nil {
		return fmt.Errorf("%w (key=%s)", translateEngineErr(err), s.shim.keyToString(physKey))
	}

	return nil
}

// Update folds delta into the key's existing stored value via the app's
// merge_partial callback (C3) rather than blindly overwriting it, and
// stores the merged result tagged Update so a later Lookup resolves it
// through merge_final (§4.6, §9). Rejected at encode time when the store's
// AppDataConfig disallows blind mutation (§6.4).
func (s *Store) Update(key, delta []byte) error {
	s.assertRegistered()

	if s.cfg.App.DisallowUpdate {
		return ErrInvalidArg
	}

	if err := s.validateKeyLength(key); err != nil {
		return err
	}

	physKey := make([]byte, s.shim.physicalKeySize)
	if err := encodeKey(physKey, key); err != nil {
		return ErrInvalidArg
	}

	var existing []byte

	raw, found, err := s.eng.Get(physKey)
	if err != nil {
		return translateEngineErr(err)
	}

	if found && classifyMessage(raw) != msgDelete {
		existing, _ = decodeMessage(raw)
	}

	merged := s.shim.mergePartial(physKey, existing, delta)

	return s.putMessage(physKey, msgUpdate, merged)
}

// putMessage encodes typ/value into a tagged message and commits it via
// the engine's Put path. Shared by Insert and Update (already-merged
// value); Delete never goes through here, see Delete above.
func (s *Store) putMessage(physKey []byte, typ MessageType, value []byte) error {
	msgBuf := make([]byte, msgHeaderSize+len(value))

	n, err := encodeMessage(msgBuf, typ, value)
	if err != nil {
		return ErrInvalidArg
	}

	w, err := s.eng.BeginWrite()
	if err != nil {
		return translateEngineErr(err)
	}

	if err := w.Put(physKey, msgBuf[:n]); err != nil {
		_ = w.Close()
		return translateEngineErr(err)
	}

	if err := w.Commit(); err != nil {
		return fmt.Errorf("%w (key=%s value=%s)", translateEngineErr(err), s.shim.keyToString(physKey), s.shim.messageToString(value))
	}

	return nil
}

// LookupResult is a caller-owned, reusable buffer that Lookup fills in.
// It mirrors the merge-accumulator contract: Value()'s slice is valid
// until the next Lookup or Deinit. The buffer always holds the resolved
// logical value -- already passed through merge_final for an Update-tagged
// entry -- never the raw encoded message.
type LookupResult struct {
	buf     []byte
	msgType MessageType
	found   bool
}

// NewLookupResult binds a caller-owned scratch buffer (possibly of length
// 0) to a new LookupResult. The result may be reused across many lookups.
func NewLookupResult(buf []byte) *LookupResult {
	return &LookupResult{buf: buf}
}

// Deinit releases any engine-side overflow allocation. In this Go port
// there is none to release explicitly (the backing array is garbage
// collected), but Deinit still clears the result so a stale Value() after
// Deinit cannot be mistaken for a live lookup.
func (r *LookupResult) Deinit() {
	r.buf = nil
	r.found = false
}

// Found reports whether the most recent Lookup matched a key.
func (r *LookupResult) Found() bool {
	return r.found
}

// Value returns the logical value slice from the most recent Lookup.
// Returns ErrInvalidArg when the lookup found nothing.
func (r *LookupResult) Value() ([]byte, error) {
	if !r.found {
		return nil, ErrInvalidArg
	}

	return r.buf, nil
}

// Lookup looks up key, filling result in place. result.buf grows as
// needed to hold the resolved value; the grown backing array is kept for
// reuse by later lookups.
func (s *Store) Lookup(key []byte, result *LookupResult) error {
	s.assertRegistered()

	if err := s.validateKeyLength(key); err != nil {
		return err
	}

	physKey := make([]byte, s.shim.physicalKeySize)
	if err := encodeKey(physKey, key); err != nil {
		return ErrInvalidArg
	}

	msg, found, err := s.eng.Get(physKey)
	if err != nil {
		return translateEngineErr(err)
	}

	if !found {
		result.found = false
		return nil
	}

	msgType := classifyMessage(msg)

	// Delete never leaves a live slot behind (see Delete above), but a
	// resolved delete-tagged message is still treated as a miss rather
	// than trusted as a value -- belt-and-suspenders against a future
	// writer path that stages a Delete message instead of calling
	// Writer.Delete directly.
	if msgType == msgDelete {
		result.found = false
		return nil
	}

	value, err := decodeMessage(msg)
	if err != nil {
		return err
	}

	if msgType == msgUpdate {
		value = s.shim.mergeFinal(physKey, [][]byte{value})
	}

	if cap(result.buf) < len(value) {
		result.buf = make([]byte, len(value))
	} else {
		result.buf = result.buf[:len(value)]
	}

	copy(result.buf, value)

	result.msgType = msgType
	result.found = true

	return nil
}
