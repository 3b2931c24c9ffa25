package kvstore

import (
	"path/filepath"
	"strconv"
	"testing"
)

// counterAppConfig builds an AppDataConfig whose merge callbacks treat the
// stored value as a running integer counter: MergePartial adds the delta
// to whatever is already stored, MergeFinal just unwraps the (always
// single) accumulated partial.
func counterAppConfig(keySize int) *AppDataConfig {
	cfg := DefaultConfig(keySize)
	cfg.DisallowUpdate = false

	cfg.MergePartial = func(_, existing, delta []byte) []byte {
		total := 0
		if len(existing) > 0 {
			total, _ = strconv.Atoi(string(existing))
		}

		n, _ := strconv.Atoi(string(delta))

		return []byte(strconv.Itoa(total + n))
	}

	cfg.MergeFinal = func(_ []byte, partials [][]byte) []byte {
		if len(partials) == 0 {
			return nil
		}

		return partials[0]
	}

	return cfg
}

func Test_LookupResult_ReusesBackingArrayAcrossLookups(t *testing.T) {
	cfg := testStoreConfig(t, 16)

	s, err := Create(cfg)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer s.Close()

	if err := s.Insert([]byte("short"), []byte("ab")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := s.Insert([]byte("long"), []byte("a much longer value than before")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	result := NewLookupResult(make([]byte, 0, 4))
	defer result.Deinit()

	if err := s.Lookup([]byte("short"), result); err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	v1, _ := result.Value()
	if string(v1) != "ab" {
		t.Fatalf("expected ab, got %q", v1)
	}

	if err := s.Lookup([]byte("long"), result); err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	v2, _ := result.Value()
	if string(v2) != "a much longer value than before" {
		t.Fatalf("expected the long value, got %q", v2)
	}
}

func Test_Deinit_ClearsFoundState(t *testing.T) {
	cfg := testStoreConfig(t, 16)

	s, err := Create(cfg)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer s.Close()

	if err := s.Insert([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	result := NewLookupResult(nil)

	if err := s.Lookup([]byte("k"), result); err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	if !result.Found() {
		t.Fatal("expected to find k")
	}

	result.Deinit()

	if result.Found() {
		t.Fatal("expected Deinit to clear found state")
	}
}

func Test_Delete_NonexistentKeyIsNotAnError(t *testing.T) {
	cfg := testStoreConfig(t, 16)

	s, err := Create(cfg)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer s.Close()

	if err := s.Delete([]byte("missing")); err != nil {
		t.Fatalf("expected deleting a nonexistent key to succeed, got %v", err)
	}
}

func Test_Delete_RemovesKeyFromIteration(t *testing.T) {
	cfg := testStoreConfig(t, 16)

	s, err := Create(cfg)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer s.Close()

	for _, k := range []string{"alpha", "bravo", "charlie"} {
		if err := s.Insert([]byte(k), []byte(k)); err != nil {
			t.Fatalf("Insert(%q) failed: %v", k, err)
		}
	}

	if err := s.Delete([]byte("bravo")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	it, err := s.NewIterator(nil)
	if err != nil {
		t.Fatalf("NewIterator failed: %v", err)
	}
	defer it.Close()

	var got []string
	for it.Valid() {
		k, _ := it.Current()
		got = append(got, string(k))
		it.Next()
	}

	want := []string{"alpha", "charlie"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func Test_Update_MergesPartialAndResolvesFinalOnLookup(t *testing.T) {
	cfg := &StoreConfig{
		Filename:  filepath.Join(t.TempDir(), "store.kve"),
		CacheSize: 1 << 20,
		DiskSize:  1 << 20,
		App:       counterAppConfig(16),
	}

	s, err := Create(cfg)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer s.Close()

	if err := s.Insert([]byte("counter"), []byte("10")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := s.Update([]byte("counter"), []byte("5")); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if err := s.Update([]byte("counter"), []byte("2")); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	result := NewLookupResult(nil)
	defer result.Deinit()

	if err := s.Lookup([]byte("counter"), result); err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	if !result.Found() {
		t.Fatal("expected to find counter")
	}

	v, _ := result.Value()
	if string(v) != "17" {
		t.Fatalf("expected merge_partial to fold deltas into 10+5+2=17, got %q", v)
	}
}

func Test_Update_OnMissingKeyMergesAgainstEmptyExisting(t *testing.T) {
	cfg := &StoreConfig{
		Filename:  filepath.Join(t.TempDir(), "store.kve"),
		CacheSize: 1 << 20,
		DiskSize:  1 << 20,
		App:       counterAppConfig(16),
	}

	s, err := Create(cfg)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer s.Close()

	if err := s.Update([]byte("fresh"), []byte("4")); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	result := NewLookupResult(nil)
	defer result.Deinit()

	if err := s.Lookup([]byte("fresh"), result); err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	v, _ := result.Value()
	if string(v) != "4" {
		t.Fatalf("expected merge_partial against no prior value to yield 4, got %q", v)
	}
}
