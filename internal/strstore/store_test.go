package strstore

import (
	"bytes"
	"path/filepath"
	"testing"

	"pwdedup/internal/errs"
)

func TestStoreAndGetRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	s, err := Init(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Deinit()

	h1, err := s.Store([]byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	h2, err := s.Store([]byte("world"))
	if err != nil {
		t.Fatal(err)
	}

	if got := s.Get(h1); string(got) != "hello" {
		t.Fatalf("got %q, want hello", got)
	}
	if got := s.Get(h2); string(got) != "world" {
		t.Fatalf("got %q, want world", got)
	}
}

func TestStoreRejectsRecordTooLarge(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	s, err := Init(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Deinit()

	// Exactly SlabBytes-1 is accepted.
	ok := bytes.Repeat([]byte("a"), int(SlabBytes)-1)
	if _, err := s.Store(ok); err != nil {
		t.Fatalf("expected SlabBytes-1 record to be accepted, got %v", err)
	}

	// SlabBytes is rejected with TooLarge (it needs len+1 bytes including
	// the trailing newline, which can never fit a fresh slab).
	tooBig := bytes.Repeat([]byte("b"), int(SlabBytes))
	_, err = s.Store(tooBig)
	if err == nil {
		t.Fatal("expected TooLarge error")
	}
	if errs.KindOf(err) != errs.TooLarge {
		t.Fatalf("got kind %v, want TooLarge", errs.KindOf(err))
	}
}

func TestStoreGrowsNewSlabWhenTailIsFull(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	s, err := Init(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Deinit()

	// Fill the first slab to near capacity, then force a rollover.
	big := bytes.Repeat([]byte("c"), int(SlabBytes)-2)
	h1, err := s.Store(big)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := s.Store([]byte("rolled-over"))
	if err != nil {
		t.Fatal(err)
	}
	if h1.SlabIndex == h2.SlabIndex {
		t.Fatalf("expected rollover record to land in a new slab")
	}
	if string(s.Get(h2)) != "rolled-over" {
		t.Fatalf("got %q", s.Get(h2))
	}
}

func TestDumpWritesNewlineDelimitedDistinctRecords(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	s, err := Init(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Deinit()

	for _, rec := range []string{"a", "b", "c"} {
		if _, err := s.Store([]byte(rec)); err != nil {
			t.Fatal(err)
		}
	}

	var buf bytes.Buffer
	if err := s.Dump(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "a\nb\nc\n" {
		t.Fatalf("got %q", buf.String())
	}
}
