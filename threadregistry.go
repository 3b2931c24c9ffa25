package kvstore

import (
	"fmt"
	"sync"
)

// MaxRegisteredThreads is the compile-time ceiling on concurrently
// registered callers, standing in for the task system's MAX_THREADS.
// Exceeding it is a programming error (panic), matching the spec's
// "fatal programming error (assert)" language for this condition.
const MaxRegisteredThreads = 128

// scratchSize is the size of the per-thread scratch buffer register hands
// out, standing in for trunk_scratch_size().
const scratchSize = 4096

type threadRegistry struct {
	mu      sync.Mutex
	scratch map[int64][]byte
}

func newThreadRegistry() *threadRegistry {
	return &threadRegistry{scratch: make(map[int64][]byte)}
}

// register attaches a scratch buffer to id. Calling register twice for the
// same id is a no-op (idempotent registration of the owning thread).
func (r *threadRegistry) register(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.scratch[id]; ok {
		return nil
	}

	if len(r.scratch) >= MaxRegisteredThreads {
		panic(fmt.Sprintf("kvstore: MAX_THREADS (%d) exceeded", MaxRegisteredThreads))
	}

	r.scratch[id] = make([]byte, scratchSize)

	return nil
}

// deregister releases id's scratch buffer. Per SPEC_FULL.md this is
// documented, not fatal, if skipped: failing to deregister simply leaks
// the buffer until the store closes.
func (r *threadRegistry) deregister(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.scratch, id)
}

// registered reports whether id has been registered.
func (r *threadRegistry) registered(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.scratch[id]

	return ok
}
