package engine_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/kvstore/internal/engine"
)

func compareBytes(a, b []byte) int {
	return bytes.Compare(a, b)
}

func physKey(size int, s string) []byte {
	out := make([]byte, size)
	copy(out, s)
	return out
}

func testConfig(t *testing.T, keySize, valueCap int, slotCapacity uint64) engine.Config {
	t.Helper()

	return engine.Config{
		Path:            filepath.Join(t.TempDir(), "store.kve"),
		PhysicalKeySize: keySize,
		ValueCap:        valueCap,
		SlotCapacity:    slotCapacity,
		Compare:         compareBytes,
	}
}

func Test_Open_CreatesNewFile(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, 8, 32, 16)

	s, created, err := engine.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if !created {
		t.Fatal("expected created=true for a fresh path")
	}

	n, err := s.Len()
	if err != nil {
		t.Fatalf("Len failed: %v", err)
	}

	if n != 0 {
		t.Fatalf("expected Len=0 on a fresh store, got %d", n)
	}
}

func Test_Open_RejectsBadConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, 8, 32, 16)
	cfg.Compare = nil

	_, _, err := engine.Open(cfg)
	if err == nil {
		t.Fatal("expected an error for a nil Compare")
	}
}

func Test_PutGetDelete_Roundtrip(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, 8, 32, 16)

	s, _, err := engine.Open(cfg)
	require.NoError(t, err, "Open should succeed")
	defer s.Close()

	w, err := s.BeginWrite()
	require.NoError(t, err, "BeginWrite should succeed")

	k := physKey(8, "alpha")

	require.NoError(t, w.Put(k, []byte("value-1")), "Put should buffer")
	require.NoError(t, w.Commit(), "Commit should succeed")

	msg, found, err := s.Get(k)
	require.NoError(t, err, "Get should succeed")
	require.True(t, found, "expected to find the committed key")
	require.Equal(t, "value-1", string(msg))

	w2, err := s.BeginWrite()
	require.NoError(t, err, "BeginWrite should succeed")
	require.NoError(t, w2.Delete(k), "Delete should buffer")
	require.NoError(t, w2.Commit(), "Commit should succeed")

	_, found, err = s.Get(k)
	require.NoError(t, err, "Get should succeed")
	require.False(t, found, "expected key to be gone after delete")
}

func Test_Put_OverwritesExistingKey(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, 8, 32, 16)

	s, _, err := engine.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	k := physKey(8, "beta")

	w, _ := s.BeginWrite()
	_ = w.Put(k, []byte("first"))
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	w2, _ := s.BeginWrite()
	_ = w2.Put(k, []byte("second"))
	if err := w2.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	msg, found, err := s.Get(k)
	if err != nil || !found {
		t.Fatalf("Get failed: found=%v err=%v", found, err)
	}

	if string(msg) != "second" {
		t.Fatalf("expected second, got %q", msg)
	}

	n, _ := s.Len()
	if n != 1 {
		t.Fatalf("expected a single live entry after overwrite, got %d", n)
	}
}

func Test_Commit_LastWriteWinsWithinOneWriter(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, 8, 32, 16)

	s, _, err := engine.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	k := physKey(8, "gamma")

	w, _ := s.BeginWrite()
	_ = w.Put(k, []byte("one"))
	_ = w.Put(k, []byte("two"))
	_ = w.Delete(k)
	_ = w.Put(k, []byte("three"))

	if err := w.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	msg, found, _ := s.Get(k)
	if !found || string(msg) != "three" {
		t.Fatalf("expected three, got found=%v msg=%q", found, msg)
	}
}

func Test_BeginWrite_RejectsSecondConcurrentWriter(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, 8, 32, 16)

	s, _, err := engine.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	w, err := s.BeginWrite()
	if err != nil {
		t.Fatalf("BeginWrite failed: %v", err)
	}

	_, err = s.BeginWrite()
	if err == nil {
		t.Fatal("expected the second BeginWrite to fail while one is active")
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	w2, err := s.BeginWrite()
	if err != nil {
		t.Fatalf("BeginWrite after close should succeed: %v", err)
	}

	_ = w2.Close()
}

func Test_Commit_RejectsBatchExceedingCapacity(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, 8, 32, 2)

	s, _, err := engine.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	w, _ := s.BeginWrite()
	_ = w.Put(physKey(8, "k1"), []byte("v1"))
	_ = w.Put(physKey(8, "k2"), []byte("v2"))
	_ = w.Put(physKey(8, "k3"), []byte("v3"))

	err = w.Commit()
	if err == nil {
		t.Fatal("expected Commit to reject a batch that overflows slot_capacity")
	}

	n, _ := s.Len()
	if n != 0 {
		t.Fatalf("expected no partial commit, Len=%d", n)
	}

	w2, err := s.BeginWrite()
	if err != nil {
		t.Fatalf("BeginWrite after a rejected commit should succeed: %v", err)
	}
	_ = w2.Close()
}

func Test_Reopen_PersistsDataAndRebuildsIndices(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "store.kve")

	cfg := engine.Config{
		Path:            path,
		PhysicalKeySize: 8,
		ValueCap:        32,
		SlotCapacity:    16,
		Compare:         compareBytes,
	}

	s, _, err := engine.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	w, _ := s.BeginWrite()
	_ = w.Put(physKey(8, "aaa"), []byte("1"))
	_ = w.Put(physKey(8, "bbb"), []byte("2"))
	_ = w.Put(physKey(8, "ccc"), []byte("3"))
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	w2, _ := s.BeginWrite()
	_ = w2.Delete(physKey(8, "bbb"))
	if err := w2.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s2, created, err := engine.Open(cfg)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	if created {
		t.Fatal("expected created=false when reopening an existing file")
	}

	n, _ := s2.Len()
	if n != 2 {
		t.Fatalf("expected 2 live entries after reopen, got %d", n)
	}

	_, found, err := s2.Get(physKey(8, "bbb"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found {
		t.Fatal("deleted key should not reappear after reopen")
	}

	msg, found, err := s2.Get(physKey(8, "aaa"))
	if err != nil || !found || string(msg) != "1" {
		t.Fatalf("expected aaa=1, got found=%v msg=%q err=%v", found, msg, err)
	}

	w3, err := s2.BeginWrite()
	if err != nil {
		t.Fatalf("BeginWrite after reopen failed: %v", err)
	}

	if err := w3.Put(physKey(8, "ddd"), []byte("4")); err != nil {
		t.Fatalf("Put reused slot should succeed: %v", err)
	}

	if err := w3.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	n, _ = s2.Len()
	if n != 3 {
		t.Fatalf("expected 3 live entries, got %d", n)
	}
}

func Test_Open_RejectsIncompatibleConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "store.kve")

	cfg := engine.Config{Path: path, PhysicalKeySize: 8, ValueCap: 32, SlotCapacity: 16, Compare: compareBytes}

	s, _, err := engine.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	badCfg := cfg
	badCfg.PhysicalKeySize = 16

	_, _, err = engine.Open(badCfg)
	if err == nil {
		t.Fatal("expected ErrIncompatible when physical_key_size changes across reopen")
	}
}

func Test_Iterator_OrdersByCompareAndHonorsStart(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, 8, 32, 16)

	s, _, err := engine.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	w, _ := s.BeginWrite()
	for _, k := range []string{"charlie", "alpha", "delta", "bravo"} {
		_ = w.Put(physKey(8, k), []byte(k))
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	it, err := s.NewIterator(nil)
	if err != nil {
		t.Fatalf("NewIterator failed: %v", err)
	}
	defer it.Close()

	var got []string
	for it.Valid() {
		_, msg := it.Current()
		got = append(got, string(msg))
		it.Next()
	}

	want := []string{"alpha", "bravo", "charlie", "delta"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("scan order mismatch (-want +got):\n%s", diff)
	}

	it2, err := s.NewIterator(physKey(8, "bravo"))
	if err != nil {
		t.Fatalf("NewIterator failed: %v", err)
	}
	defer it2.Close()

	_, msg := it2.Current()
	if string(msg) != "bravo" {
		t.Fatalf("expected scan from bravo to start at bravo, got %q", msg)
	}
}

func Test_Iterator_SnapshotsAtCreation(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, 8, 32, 16)

	s, _, err := engine.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	w, _ := s.BeginWrite()
	_ = w.Put(physKey(8, "a"), []byte("1"))
	_ = w.Put(physKey(8, "b"), []byte("2"))
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	it, err := s.NewIterator(nil)
	if err != nil {
		t.Fatalf("NewIterator failed: %v", err)
	}
	defer it.Close()

	w2, _ := s.BeginWrite()
	_ = w2.Delete(physKey(8, "b"))
	_ = w2.Put(physKey(8, "c"), []byte("3"))
	if err := w2.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	var got []string
	for it.Valid() {
		_, msg := it.Current()
		if msg != nil {
			got = append(got, string(msg))
		}
		it.Next()
	}

	if len(got) != 1 || got[0] != "1" {
		t.Fatalf("expected only the pre-snapshot live entry [1], got %v", got)
	}
}

func Test_Reclaim_CompactsAndPreservesLiveEntries(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, 8, 32, 16)

	s, _, err := engine.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	w, _ := s.BeginWrite()
	for _, k := range []string{"a", "b", "c", "d"} {
		_ = w.Put(physKey(8, k), []byte(k))
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	w2, _ := s.BeginWrite()
	_ = w2.Delete(physKey(8, "b"))
	_ = w2.Delete(physKey(8, "c"))
	if err := w2.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if err := s.Reclaim(); err != nil {
		t.Fatalf("Reclaim failed: %v", err)
	}

	n, _ := s.Len()
	if n != 2 {
		t.Fatalf("expected 2 live entries post-reclaim, got %d", n)
	}

	for _, k := range []string{"a", "d"} {
		msg, found, err := s.Get(physKey(8, k))
		if err != nil || !found || string(msg) != k {
			t.Fatalf("expected %s to survive reclaim, found=%v msg=%q err=%v", k, found, msg, err)
		}
	}

	w3, err := s.BeginWrite()
	if err != nil {
		t.Fatalf("BeginWrite after reclaim failed: %v", err)
	}

	for _, k := range []string{"e", "f"} {
		if err := w3.Put(physKey(8, k), []byte(k)); err != nil {
			t.Fatalf("Put after reclaim failed: %v", err)
		}
	}

	if err := w3.Commit(); err != nil {
		t.Fatalf("Commit after reclaim failed: %v", err)
	}

	n, _ = s.Len()
	if n != 4 {
		t.Fatalf("expected 4 live entries after post-reclaim inserts, got %d", n)
	}
}

func Test_Close_FailsWhileWriterActive(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, 8, 32, 16)

	s, _, err := engine.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	w, err := s.BeginWrite()
	if err != nil {
		t.Fatalf("BeginWrite failed: %v", err)
	}

	if err := s.Close(); err == nil {
		t.Fatal("expected Close to refuse while a writer is active")
	}

	_ = w.Close()

	if err := s.Close(); err != nil {
		t.Fatalf("Close after writer abort failed: %v", err)
	}
}

func Test_Get_RejectsWrongKeyLength(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, 8, 32, 16)

	s, _, err := engine.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	_, _, err = s.Get([]byte("short"))
	if err == nil {
		t.Fatal("expected an error for a key shorter than physical_key_size")
	}
}

func Test_Config_Hash_IsConsultedInsteadOfDefault(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, 8, 32, 16)

	var calls int

	cfg.Hash = func(key []byte) uint64 {
		calls++
		// Degenerate on purpose: every key collides into bucket 0, forcing
		// the linear-probe path to do the real work. Put/Get/Delete must
		// still behave correctly with every key hashing identically.
		return 0
	}

	s, _, err := engine.Open(cfg)
	require.NoError(t, err, "Open should succeed")
	defer s.Close()

	w, err := s.BeginWrite()
	require.NoError(t, err, "BeginWrite should succeed")

	for _, k := range []string{"one", "two", "three"} {
		require.NoError(t, w.Put(physKey(8, k), []byte(k)), "Put should buffer")
	}
	require.NoError(t, w.Commit(), "Commit should succeed")

	if calls == 0 {
		t.Fatal("expected Config.Hash to be consulted by the bucket index")
	}

	for _, k := range []string{"one", "two", "three"} {
		msg, found, err := s.Get(physKey(8, k))
		require.NoError(t, err, "Get should succeed")
		require.True(t, found, "expected to find %q despite colliding hashes", k)
		require.Equal(t, k, string(msg))
	}

	w2, err := s.BeginWrite()
	require.NoError(t, err, "BeginWrite should succeed")
	require.NoError(t, w2.Delete(physKey(8, "two")), "Delete should buffer")
	require.NoError(t, w2.Commit(), "Commit should succeed")

	_, found, err := s.Get(physKey(8, "two"))
	require.NoError(t, err, "Get should succeed")
	require.False(t, found, "expected two to be gone after delete")

	_, found, err = s.Get(physKey(8, "one"))
	require.NoError(t, err, "Get should succeed")
	require.True(t, found, "expected one to survive deleting a colliding neighbor")
}

func Test_Stats_RecordsErrorsOnInvalidOperations(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, 8, 32, 16)

	s, _, err := engine.Open(cfg)
	require.NoError(t, err, "Open should succeed")
	defer s.Close()

	_, _, _ = s.Get([]byte("short"))

	w, err := s.BeginWrite()
	require.NoError(t, err, "BeginWrite should succeed")
	defer func() { _ = w.Close() }()

	_, err = s.BeginWrite()
	if err == nil {
		t.Fatal("expected the second concurrent BeginWrite to fail")
	}

	snap := s.Stats()
	if snap.Errors < 2 {
		t.Fatalf("expected at least 2 recorded errors, got %d", snap.Errors)
	}
}
