// Package shardset implements the sharded concurrent set: a fixed-width
// array of mutex-protected hash chains over (hash, store handle) pairs,
// providing at-most-once insertion semantics for parallel workers.
package shardset

import (
	"sync"
	"sync/atomic"

	"github.com/zeebo/xxh3"

	"pwdedup/internal/strstore"
)

// Width is the number of chains in the set: 2^20, fixed at construction per
// the reference design.
const Width = 1 << 20

type entry struct {
	hash   uint32
	handle strstore.Handle
}

type chain struct {
	mu      sync.Mutex
	entries []entry
}

// Set decides, for each record, whether it is novel (storing it) or a
// duplicate (doing nothing observable). It holds a non-owning reference to
// a Store with a lifetime at least as long as the Set.
type Set struct {
	chains  [Width]chain
	store   *strstore.Store
	counter atomic.Int64
}

// New constructs a Set backed by store. store must outlive the Set.
func New(store *strstore.Store) *Set {
	return &Set{store: store}
}

// Count returns the number of distinct records inserted so far. Safe to
// call concurrently with Add; used for progress reporting and, once all
// workers have joined, for the run's final distinct count.
func (s *Set) Count() int64 {
	return s.counter.Load()
}

// Hash returns the 32-bit dispersal hash of a record's bytes: the low 32
// bits of xxh3, a fast non-cryptographic hash. Equal bytes always produce
// equal hashes.
func Hash(record []byte) uint32 {
	return uint32(xxh3.Hash(record))
}

// Add inserts record if it has not been seen before. It returns true if
// the record was novel (and is now owned by the store), false if it was a
// duplicate.
func (s *Set) Add(record []byte) (bool, error) {
	h := Hash(record)
	c := &s.chains[h%Width]

	c.mu.Lock()
	for _, e := range c.entries {
		if e.hash != h {
			continue
		}
		if recordsEqual(s.store.Get(e.handle), record) {
			c.mu.Unlock()
			return false, nil
		}
	}

	handle, err := s.store.Store(record)
	if err != nil {
		c.mu.Unlock()
		return false, err
	}
	c.entries = append(c.entries, entry{hash: h, handle: handle})
	c.mu.Unlock()

	s.counter.Add(1)
	return true, nil
}

func recordsEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
