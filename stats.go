package kvstore

import (
	"fmt"
	"io"
)

// StatsPrintInsertion writes insert/delete/error counters to w.
func (s *Store) StatsPrintInsertion(w io.Writer) {
	snap := s.eng.Stats()
	fmt.Fprintf(w, "inserts=%d deletes=%d errors=%d\n", snap.Inserts, snap.Deletes, snap.Errors)
}

// StatsPrintLookup writes lookup hit/miss counters to w.
func (s *Store) StatsPrintLookup(w io.Writer) {
	snap := s.eng.Stats()
	fmt.Fprintf(w, "lookup_hit=%d lookup_miss=%d\n", snap.LookupHit, snap.LookupMiss)
}

// StatsReset zeroes every counter.
func (s *Store) StatsReset() {
	s.eng.ResetStats()
}
