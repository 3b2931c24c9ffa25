package kvstore

import (
	"bytes"
	"strings"
	"testing"
)

func Test_Stats_TrackInsertDeleteAndLookups(t *testing.T) {
	cfg := testStoreConfig(t, 16)

	s, err := Create(cfg)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer s.Close()

	if err := s.Insert([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := s.Delete([]byte("a")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	result := NewLookupResult(nil)
	defer result.Deinit()

	_ = s.Lookup([]byte("a"), result)
	_ = s.Lookup([]byte("missing"), result)

	var buf bytes.Buffer
	s.StatsPrintInsertion(&buf)

	out := buf.String()
	if !strings.Contains(out, "inserts=1") || !strings.Contains(out, "deletes=1") {
		t.Fatalf("expected insertion stats to report 1 insert and 1 delete, got %q", out)
	}

	buf.Reset()
	s.StatsPrintLookup(&buf)

	out = buf.String()
	if !strings.Contains(out, "lookup_hit=0") || !strings.Contains(out, "lookup_miss=2") {
		t.Fatalf("expected 0 hits and 2 misses (key was deleted before either lookup), got %q", out)
	}

	s.StatsReset()

	buf.Reset()
	s.StatsPrintInsertion(&buf)

	if !strings.Contains(buf.String(), "inserts=0") {
		t.Fatalf("expected StatsReset to zero counters, got %q", buf.String())
	}
}
