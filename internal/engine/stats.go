package engine

import "sync/atomic"

// Stats holds atomic insertion/lookup counters, reset independently.
type Stats struct {
	inserts    atomic.Uint64
	deletes    atomic.Uint64
	lookupHit  atomic.Uint64
	lookupMiss atomic.Uint64
	errors     atomic.Uint64
}

func (s *Stats) recordInsert() { s.inserts.Add(1) }
func (s *Stats) recordDelete() { s.deletes.Add(1) }
func (s *Stats) recordError()  { s.errors.Add(1) }

func (s *Stats) recordLookup(hit bool) {
	if hit {
		s.lookupHit.Add(1)
	} else {
		s.lookupMiss.Add(1)
	}
}

// Snapshot is a point-in-time copy of Stats, safe to print or compare.
type Snapshot struct {
	Inserts    uint64
	Deletes    uint64
	LookupHit  uint64
	LookupMiss uint64
	Errors     uint64
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Inserts:    s.inserts.Load(),
		Deletes:    s.deletes.Load(),
		LookupHit:  s.lookupHit.Load(),
		LookupMiss: s.lookupMiss.Load(),
		Errors:     s.errors.Load(),
	}
}

func (s *Stats) Reset() {
	s.inserts.Store(0)
	s.deletes.Store(0)
	s.lookupHit.Store(0)
	s.lookupMiss.Store(0)
	s.errors.Store(0)
}

// Stats returns a snapshot of the store's counters.
func (s *Store) Stats() Snapshot {
	return s.stats.Snapshot()
}

// ResetStats zeroes the store's counters.
func (s *Store) ResetStats() {
	s.stats.Reset()
}
