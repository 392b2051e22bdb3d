// Package strstore implements the append-only string store: a paged,
// bump-allocated, file-backed region that owns the canonical bytes of every
// distinct record and addresses them by a compact 64-bit Handle.
package strstore

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"pwdedup/internal/errs"
)

// SlabBytes is the fixed, page-aligned size of every backing slab: 64 OS
// pages, matching the reference implementation this store is modeled on.
var SlabBytes = int64(64 * unix.Getpagesize())

// Handle addresses a record's bytes: which slab, and the byte offset within
// it where the record starts. Handles are stable for the life of the
// process.
type Handle struct {
	SlabIndex  uint32
	ByteOffset uint32
}

type slab struct {
	file *os.File
	data []byte // mmap'd, length SlabBytes
	used int64
}

// Store owns a directory of slab files and the in-memory mappings over
// them. New slabs are appended, under mu, when the tail slab cannot fit
// the next record.
type Store struct {
	mu    sync.Mutex
	dir   string
	slabs []*slab
}

// Init ensures dir exists (creating intermediate directories as needed) and
// returns a Store that owns it exclusively.
func Init(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.New(errs.OpenFailed, "strstore.Init", err)
	}
	return &Store{dir: dir}, nil
}

// Store appends bytes followed by '\n' to the tail slab, growing the store
// with a fresh slab first if necessary, and returns a Handle identifying
// the start of the record.
func (s *Store) Store(bytes_ []byte) (Handle, error) {
	need := int64(len(bytes_)) + 1
	if need > SlabBytes {
		return Handle{}, errs.New(errs.TooLarge, "strstore.Store",
			fmt.Errorf("record of %d bytes exceeds slab capacity %d", len(bytes_), SlabBytes-1))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tail := s.tailLocked()
	if tail == nil || tail.used+need > SlabBytes {
		var err error
		tail, err = s.growLocked()
		if err != nil {
			return Handle{}, err
		}
	}

	off := tail.used
	copy(tail.data[off:], bytes_)
	tail.data[off+int64(len(bytes_))] = '\n'
	tail.used += need

	return Handle{
		SlabIndex:  uint32(len(s.slabs) - 1),
		ByteOffset: uint32(off),
	}, nil
}

// Get returns the bytes starting at handle's offset and ending at (but not
// including) the next '\n' in its slab.
func (s *Store) Get(h Handle) []byte {
	s.mu.Lock()
	sl := s.slabs[h.SlabIndex]
	s.mu.Unlock()

	data := sl.data
	off := int(h.ByteOffset)
	end := bytes.IndexByte(data[off:], '\n')
	if end < 0 {
		// Invariant violation: every stored record is newline-terminated.
		// Fall back to the live tail to avoid a panic on a racing reader.
		end = len(data) - off
	}
	return data[off : off+end]
}

// Dump writes slab.bytes[0:used] of every slab, in order, to w. Because
// every record was terminated with '\n' at store time, the result is a
// valid newline-delimited file whose records are exactly the distinct
// records inserted.
func (s *Store) Dump(w io.Writer) error {
	s.mu.Lock()
	slabs := make([]*slab, len(s.slabs))
	copy(slabs, s.slabs)
	s.mu.Unlock()

	bw := bufio.NewWriterSize(w, 4<<20)
	for _, sl := range slabs {
		if _, err := bw.Write(sl.data[:sl.used]); err != nil {
			return errs.New(errs.OpenFailed, "strstore.Dump", err)
		}
	}
	return bw.Flush()
}

// Deinit unmaps and closes every slab and removes the store's directory
// tree. It is not safe to use the Store after calling Deinit.
func (s *Store) Deinit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for _, sl := range s.slabs {
		if err := unix.Munmap(sl.data); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := sl.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.slabs = nil
	if err := os.RemoveAll(s.dir); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return errs.New(errs.MapFailed, "strstore.Deinit", firstErr)
	}
	return nil
}

func (s *Store) tailLocked() *slab {
	if len(s.slabs) == 0 {
		return nil
	}
	return s.slabs[len(s.slabs)-1]
}

// growLocked creates a new slab file, truncates it to SlabBytes, maps it
// shared read/write, and appends it to the slab list. Caller holds s.mu.
func (s *Store) growLocked() (*slab, error) {
	idx := len(s.slabs)
	path := filepath.Join(s.dir, fmt.Sprintf("%012d", idx))

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, errs.New(errs.OpenFailed, "strstore.growLocked", err)
	}
	if err := f.Truncate(SlabBytes); err != nil {
		_ = f.Close()
		return nil, errs.New(errs.MapFailed, "strstore.growLocked", err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(SlabBytes), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, errs.New(errs.MapFailed, "strstore.growLocked", err)
	}

	sl := &slab{file: f, data: data}
	s.slabs = append(s.slabs, sl)
	return sl, nil
}
