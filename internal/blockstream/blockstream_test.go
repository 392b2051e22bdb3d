package blockstream

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"

	"pwdedup/internal/errs"
)

func writeTempFile(t *testing.T, dir, name string, contents []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func drainAll(t *testing.T, it *Iterator) [][]byte {
	t.Helper()
	var out [][]byte
	for {
		b, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if b == nil {
			return out
		}
		cp := append([]byte(nil), b.Text...)
		out = append(out, cp)
		if err := b.Unmap(); err != nil {
			t.Fatalf("Unmap: %v", err)
		}
	}
}

func TestNewRejectsUnalignedSizeHint(t *testing.T) {
	_, err := New([]string{"/dev/null"}, int64(unix.Getpagesize())+1)
	if err == nil {
		t.Fatal("expected BadSizeHintAlignment error")
	}
	if errs.KindOf(err) != errs.BadSizeHintAlignment {
		t.Fatalf("got kind %v, want BadSizeHintAlignment", errs.KindOf(err))
	}
}

func TestSingleSmallFileYieldsOneBlock(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "a.txt", []byte("a\nb\na\n"))

	it, err := New([]string{path}, int64(unix.Getpagesize()))
	if err != nil {
		t.Fatal(err)
	}
	blocks := drainAll(t, it)
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
	if !bytes.Equal(blocks[0], []byte("a\nb\na\n")) {
		t.Fatalf("got %q", blocks[0])
	}
}

func TestMultipleFilesPreserveListOrder(t *testing.T) {
	dir := t.TempDir()
	p1 := writeTempFile(t, dir, "1.txt", []byte("a\nb\n"))
	p2 := writeTempFile(t, dir, "2.txt", []byte("c\n"))

	it, err := New([]string{p1, p2}, int64(unix.Getpagesize()))
	if err != nil {
		t.Fatal(err)
	}
	blocks := drainAll(t, it)
	var all []byte
	for _, b := range blocks {
		all = append(all, b...)
	}
	if string(all) != "a\nb\nc\n" {
		t.Fatalf("got %q", all)
	}
}

func TestMissingTrailingNewlineIsIncludedInFinalBlock(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "a.txt", []byte("a\nb"))

	it, err := New([]string{path}, int64(unix.Getpagesize()))
	if err != nil {
		t.Fatal(err)
	}
	blocks := drainAll(t, it)
	var all []byte
	for _, b := range blocks {
		all = append(all, b...)
	}
	if string(all) != "a\nb" {
		t.Fatalf("got %q", all)
	}
}

func TestEmptyFileYieldsNoBlocks(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "empty.txt", nil)

	it, err := New([]string{path}, int64(unix.Getpagesize()))
	if err != nil {
		t.Fatal(err)
	}
	blocks := drainAll(t, it)
	if len(blocks) != 0 {
		t.Fatalf("got %d blocks, want 0", len(blocks))
	}
}

func TestLineLongerThanSizeHintWidensBlock(t *testing.T) {
	dir := t.TempDir()
	page := unix.Getpagesize()
	sizeHint := int64(page)

	long := bytes.Repeat([]byte("x"), int(sizeHint)*3)
	contents := append(append([]byte{}, long...), '\n')
	contents = append(contents, []byte("short\n")...)
	path := writeTempFile(t, dir, "long.txt", contents)

	it, err := New([]string{path}, sizeHint)
	if err != nil {
		t.Fatal(err)
	}
	blocks := drainAll(t, it)
	var all []byte
	for _, b := range blocks {
		all = append(all, b...)
	}
	if !bytes.Equal(all, contents) {
		t.Fatalf("widened scan did not preserve bytes: got %d bytes, want %d", len(all), len(contents))
	}
}

func TestBlocksAreSafeForConcurrentPull(t *testing.T) {
	dir := t.TempDir()
	page := unix.Getpagesize()
	var contents []byte
	for i := 0; i < 5000; i++ {
		contents = append(contents, []byte("line-of-reasonable-length-for-testing\n")...)
	}
	path := writeTempFile(t, dir, "big.txt", contents)

	it, err := New([]string{path}, int64(page))
	if err != nil {
		t.Fatal(err)
	}

	type res struct {
		n   int
		err error
	}
	results := make(chan res, 8)
	for i := 0; i < 8; i++ {
		go func() {
			n := 0
			for {
				b, err := it.Next()
				if err != nil {
					results <- res{err: err}
					return
				}
				if b == nil {
					results <- res{n: n}
					return
				}
				n += bytes.Count(b.Text, []byte("\n"))
				if uerr := b.Unmap(); uerr != nil {
					results <- res{err: uerr}
					return
				}
			}
		}()
	}

	total := 0
	for i := 0; i < 8; i++ {
		r := <-results
		if r.err != nil {
			t.Fatalf("worker error: %v", r.err)
		}
		total += r.n
	}
	if total != 5000 {
		t.Fatalf("got %d lines across workers, want 5000", total)
	}
}
