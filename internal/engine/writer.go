package engine

// bufferedOp is a single staged mutation, keyed by physical key bytes.
// Later calls to Put/Delete for the same key overwrite earlier ones:
// within one Writer, last write wins.
type bufferedOp struct {
	key      []byte
	msg      []byte // nil for a delete
	isDelete bool
}

// Writer buffers Put/Delete calls in memory and applies them atomically on
// Commit. Only one Writer may be open against a Store at a time.
type Writer struct {
	store *Store
	lock  *writerLock
	ops   map[string]*bufferedOp

	done bool
}

// Put stages an insert-or-update of key -> msg. Key must be exactly the
// store's physical key size.
func (w *Writer) Put(key, msg []byte) error {
	if w.done {
		return ErrClosed
	}

	if len(key) != w.store.physicalKeySize {
		return ErrInvalidInput
	}

	if len(msg) > w.store.valueCap {
		return ErrInvalidInput
	}

	keyCopy := append([]byte(nil), key...)
	msgCopy := append([]byte(nil), msg...)

	w.ops[string(key)] = &bufferedOp{key: keyCopy, msg: msgCopy}

	return nil
}

// Delete stages removal of key. It is not an error to delete a key that
// does not exist; Commit is a no-op for it.
func (w *Writer) Delete(key []byte) error {
	if w.done {
		return ErrClosed
	}

	if len(key) != w.store.physicalKeySize {
		return ErrInvalidInput
	}

	keyCopy := append([]byte(nil), key...)

	w.ops[string(key)] = &bufferedOp{key: keyCopy, isDelete: true}

	return nil
}

// Commit applies all staged operations atomically: the seqlock generation
// goes odd for the duration of the in-place mutations and back to even (+2)
// once every slot, bucket, and order-index change is visible.
func (w *Writer) Commit() error {
	if w.done {
		return ErrClosed
	}

	s := w.store

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := w.checkCapacityLocked(); err != nil {
		s.stats.recordError()
		w.abortLocked()
		return err
	}

	s.bumpGenerationOdd()

	for _, op := range w.ops {
		if op.isDelete {
			w.applyDeleteLocked(op)
		} else {
			w.applyPutLocked(op)
		}
	}

	h := s.readHeader()
	h.SlotHighwater = s.slotHighwater
	h.LiveCount = uint64(len(s.order))
	s.writeHeaderLocked(&h)

	w.finishLocked()

	return nil
}

// checkCapacityLocked rejects the whole batch if it would need more slots
// than the store has room for, so Commit never applies a partial batch.
func (w *Writer) checkCapacityLocked() error {
	s := w.store

	newKeys := 0

	for _, op := range w.ops {
		if op.isDelete {
			continue
		}

		if _, found := s.findSlot(op.key); !found {
			newKeys++
		}
	}

	if newKeys == 0 {
		return nil
	}

	available := s.slotCapacity - uint64(len(s.order))
	if uint64(newKeys) > available {
		return ErrFull
	}

	return nil
}

func (w *Writer) applyPutLocked(op *bufferedOp) {
	s := w.store

	if id, found := s.findSlot(op.key); found {
		s.writeSlot(id, op.key, op.msg, true)
		s.stats.recordInsert()

		return
	}

	id, ok := s.alloc.acquire()
	if !ok {
		id = s.slotHighwater
		s.slotHighwater++
	}

	s.writeSlot(id, op.key, op.msg, true)
	s.insertBucket(op.key, id)
	s.orderInsert(id)
	s.stats.recordInsert()
}

func (w *Writer) applyDeleteLocked(op *bufferedOp) {
	s := w.store

	id, found := s.findSlot(op.key)
	if !found {
		return
	}

	s.removeBucket(op.key, id)
	s.orderRemove(id)
	s.writeSlot(id, op.key, nil, false)
	s.alloc.track(id)
	s.alloc.release(id)
	s.stats.recordDelete()
}

// abortLocked discards all staged operations without applying them.
func (w *Writer) abortLocked() {
	w.finishLocked()
}

func (w *Writer) finishLocked() {
	w.done = true
	w.store.activeWriter = nil

	if w.lock != nil {
		w.lock.release()
	}
}

// Close aborts the writer if Commit was never called, releasing the writer
// slot and any cross-process lock. Safe to call after Commit (no-op).
func (w *Writer) Close() error {
	if w.done {
		return nil
	}

	w.store.mu.Lock()
	defer w.store.mu.Unlock()

	w.abortLocked()

	return nil
}
