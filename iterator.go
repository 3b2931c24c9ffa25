package kvstore

import "github.com/calvinalkan/kvstore/internal/engine"

// Iterator walks live entries in ascending logical-key order. Not
// thread-safe and not clonable; owned exclusively by the caller that
// created it.
type Iterator struct {
	store *Store
	eng   *engine.Iterator
}

// NewIterator starts an iterator positioned at the first entry with a
// logical key >= start. A nil start begins at the first live entry
// (iterate from -infinity, per §4.7).
func (s *Store) NewIterator(start []byte) (*Iterator, error) {
	s.assertRegistered()

	var startPhys []byte

	if start != nil {
		if err := s.validateKeyLength(start); err != nil {
			return nil, err
		}

		startPhys = make([]byte, s.shim.physicalKeySize)
		if err := encodeKey(startPhys, start); err != nil {
			return nil, ErrInvalidArg
		}
	}

	it, err := s.eng.NewIterator(startPhys)
	if err != nil {
		return nil, translateEngineErr(err)
	}

	return &Iterator{store: s, eng: it}, nil
}

// Valid reports whether Current returns a usable entry.
func (it *Iterator) Valid() bool {
	return it.eng.Valid()
}

// Next advances to the following entry. Calling Next when !Valid() is a
// programming error (§4.7).
func (it *Iterator) Next() {
	if !it.Valid() {
		panic("kvstore: Iterator.Next called on invalid iterator")
	}

	it.eng.Next()
}

// Current returns the logical key and the resolved value at the
// iterator's position. An Update-tagged entry is resolved through
// merge_final before being returned, the same as Lookup. If the entry was
// deleted after NewIterator, Current returns nil, nil and the iterator
// becomes invalid (end of range).
func (it *Iterator) Current() (key, value []byte) {
	physKey, msg := it.eng.Current()
	if physKey == nil {
		return nil, nil
	}

	key = decodeKey(physKey)

	value, _ = decodeMessage(msg)

	if classifyMessage(msg) == msgUpdate {
		value = it.store.shim.mergeFinal(physKey, [][]byte{value})
	}

	return key, value
}

// Status returns the last cached engine status.
func (it *Iterator) Status() error {
	return translateEngineErrOrNil(it.eng.Err())
}

func translateEngineErrOrNil(err error) error {
	if err == nil {
		return nil
	}

	return translateEngineErr(err)
}

// Close releases the iterator.
func (it *Iterator) Close() error {
	return it.eng.Close()
}
