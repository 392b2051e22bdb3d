// Package blockstream turns a list of input file paths into a single,
// thread-safe stream of memory-mapped, line-aligned byte ranges ("blocks")
// that parallel workers can pull from one at a time.
//
// Each file is scanned once up front with size_hint-sized positioned reads
// (ReadAt into a heap buffer, not memory mappings) to find newline
// boundaries; the resulting ranges are then mapped lazily, one per call to
// Iterator.Next, so that only the blocks actually in flight are resident in
// the address space at once.
package blockstream

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"pwdedup/internal/errs"
)

// byteRange is a line-aligned [offset, offset+length) span within a file.
type byteRange struct {
	offset int64
	length int64
}

// Block is a read-only mapping over a line-aligned sub-range of an input
// file. Text is the sub-slice of the mapping containing whole records only;
// Unmap releases the underlying mapping and must be called exactly once by
// the worker that consumed the block.
type Block struct {
	mapping []byte
	Text    []byte
}

// Unmap releases the block's mapping. Failing to call it leaks virtual
// address space only; it does not corrupt any other block or the store.
func (b *Block) Unmap() error {
	if b.mapping == nil {
		return nil
	}
	err := unix.Munmap(b.mapping)
	b.mapping = nil
	b.Text = nil
	return err
}

// Iterator hands out Blocks in file-listed order, and in increasing offset
// within a file, under a single mutex. Concurrent callers may observe
// adjacent blocks in any interleaving, but never the same block twice.
type Iterator struct {
	mu        sync.Mutex
	paths     []string
	nextPath  int
	sizeHint  int64
	pageSize  int64
	curFile   *os.File
	curRanges []byteRange
	curIdx    int
}

// New constructs an Iterator over paths in initial state. sizeHint must be a
// whole multiple of the system page size.
func New(paths []string, sizeHint int64) (*Iterator, error) {
	pageSize := int64(unix.Getpagesize())
	if sizeHint <= 0 || sizeHint%pageSize != 0 {
		return nil, errs.New(errs.BadSizeHintAlignment, "blockstream.New",
			fmt.Errorf("size_hint %d is not a multiple of the page size %d", sizeHint, pageSize))
	}
	return &Iterator{
		paths:    paths,
		sizeHint: sizeHint,
		pageSize: pageSize,
	}, nil
}

// Next returns the next block in the stream, or (nil, nil) once every path
// has been fully consumed. It is safe to call concurrently from many
// worker goroutines.
func (it *Iterator) Next() (*Block, error) {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.nextLocked()
}

func (it *Iterator) nextLocked() (*Block, error) {
	for {
		if it.curFile != nil && it.curIdx < len(it.curRanges) {
			rg := it.curRanges[it.curIdx]
			it.curIdx++
			return it.mapRange(it.curFile, rg)
		}

		// Exhausted (or never opened) the current file; close it and move on.
		if it.curFile != nil {
			_ = it.curFile.Close()
			it.curFile = nil
			it.curRanges = nil
			it.curIdx = 0
		}

		if it.nextPath >= len(it.paths) {
			return nil, nil
		}
		path := it.paths[it.nextPath]
		it.nextPath++

		f, err := os.Open(path)
		if err != nil {
			return nil, errs.New(errs.OpenFailed, "blockstream.Next", err)
		}
		ranges, err := scanRanges(f, it.sizeHint)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		it.curFile = f
		it.curRanges = ranges
		it.curIdx = 0
	}
}

// mapRange maps the page-aligned superset of rg and exposes Text as the
// exact [rg.offset, rg.offset+rg.length) window within that mapping.
func (it *Iterator) mapRange(f *os.File, rg byteRange) (*Block, error) {
	offDiff := rg.offset % it.pageSize
	mapStart := rg.offset - offDiff
	mapLen := offDiff + rg.length
	if mapLen == 0 {
		return &Block{}, nil
	}

	mapping, err := unix.Mmap(int(f.Fd()), mapStart, int(mapLen), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, errs.New(errs.MapFailed, "blockstream.mapRange", err)
	}
	return &Block{
		mapping: mapping,
		Text:    mapping[offDiff : offDiff+rg.length],
	}, nil
}

// scanRanges walks f once using size_hint-sized probe reads (f.ReadAt; the
// scan does not map the file), choosing the last newline within size_hint
// bytes of each block's start as that block's end. Cut points are therefore
// relative to the previous block's end, not to size_hint-aligned file
// offsets. A line longer than size_hint widens its block to contain the
// whole line rather than failing (the canonical policy per the design
// notes on long lines).
func scanRanges(f *os.File, sizeHint int64) ([]byteRange, error) {
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, errs.New(errs.OpenFailed, "blockstream.scanRanges", err)
	}
	if size == 0 {
		return nil, nil
	}

	var ranges []byteRange
	var start int64
	for start < size {
		probeLen := sizeHint
		if start+probeLen > size {
			probeLen = size - start
		}
		end, err := lastNewlineBoundary(f, start, probeLen, size)
		if err != nil {
			return nil, err
		}
		if end <= start {
			// lastNewlineBoundary has already widened to EOF when no newline
			// exists; a non-advancing result is treated as running to EOF.
			end = size
		}
		ranges = append(ranges, byteRange{offset: start, length: end - start})
		start = end
	}
	return ranges, nil
}

// lastNewlineBoundary returns the offset just past the last '\n' within
// [start, start+probeLen), widening the probe in size_hint-sized steps if no
// newline is found, until EOF is reached (at which point the whole remainder
// is treated as one final, possibly non-newline-terminated, block).
func lastNewlineBoundary(f *os.File, start, probeLen, size int64) (int64, error) {
	probeLen0 := probeLen
	for {
		buf := make([]byte, probeLen)
		n, err := f.ReadAt(buf, start)
		if err != nil && n == 0 {
			return 0, errs.New(errs.OpenFailed, "blockstream.lastNewlineBoundary", err)
		}
		buf = buf[:n]
		if i := bytes.LastIndexByte(buf, '\n'); i >= 0 {
			return start + int64(i) + 1, nil
		}
		if start+int64(n) >= size {
			// Reached EOF without a newline: this block is the whole
			// remainder of the file (its final line lacks a trailing \n).
			return size, nil
		}
		// Widen the probe and try again; a single line exceeds size_hint.
		if probeLen0 == 0 {
			probeLen0 = 1
		}
		probeLen += probeLen0
		if start+probeLen > size {
			probeLen = size - start
		}
	}
}
