package kvstore

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func Test_Iterator_WalksInAscendingLogicalOrder(t *testing.T) {
	cfg := testStoreConfig(t, 16)

	s, err := Create(cfg)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer s.Close()

	for _, k := range []string{"delta", "alpha", "charlie", "bravo"} {
		if err := s.Insert([]byte(k), []byte(k)); err != nil {
			t.Fatalf("Insert(%q) failed: %v", k, err)
		}
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

	want := []string{"alpha", "bravo", "charlie", "delta"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("scan order mismatch (-want +got):\n%s", diff)
	}

	if err := it.Status(); err != nil {
		t.Fatalf("expected a clean Status, got %v", err)
	}
}

func Test_Iterator_StartKeyBound(t *testing.T) {
	cfg := testStoreConfig(t, 16)

	s, err := Create(cfg)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer s.Close()

	for _, k := range []string{"a", "b", "c", "d"} {
		if err := s.Insert([]byte(k), []byte(k)); err != nil {
			t.Fatalf("Insert(%q) failed: %v", k, err)
		}
	}

	it, err := s.NewIterator([]byte("c"))
	if err != nil {
		t.Fatalf("NewIterator failed: %v", err)
	}
	defer it.Close()

	k, _ := it.Current()
	if string(k) != "c" {
		t.Fatalf("expected the first entry >= \"c\" to be c, got %q", k)
	}

	it.Next()

	k, _ = it.Current()
	if string(k) != "d" {
		t.Fatalf("expected d next, got %q", k)
	}

	it.Next()

	if it.Valid() {
		t.Fatal("expected the iterator to be exhausted after d")
	}
}

func Test_Iterator_NextOnInvalidPanics(t *testing.T) {
	cfg := testStoreConfig(t, 16)

	s, err := Create(cfg)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer s.Close()

	it, err := s.NewIterator(nil)
	if err != nil {
		t.Fatalf("NewIterator failed: %v", err)
	}
	defer it.Close()

	if it.Valid() {
		t.Fatal("expected an empty store to yield an immediately-invalid iterator")
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected Next on an invalid iterator to panic")
		}
	}()

	it.Next()
}
