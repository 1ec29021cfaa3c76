// Package mvcc implements the multi-version storage used by the MVCC
// timestamp-ordering discipline: a per-key chain of versions, each
// carrying the id of the writer that created it and the highest id of
// any reader that has observed it, guarded by one mutex per key.
package mvcc

import (
	"sync"

	"ccengine/pkg/txn"
)

// Version is one entry in a key's version chain. VersionID is the
// writer transaction's id; MaxReadID is the highest reader id that
// has observed this version.
type Version struct {
	Value     txn.Value
	VersionID uint64
	MaxReadID uint64
	next      *Version
}

type chain struct {
	mu   sync.Mutex
	head *Version // highest VersionID first
}

// Storage is a keyed map from Key to a version chain. Per spec, the
// chain is never empty after Init: Init seeds every key in [0, n)
// with a single version written by transaction id 0.
type Storage struct {
	latch sync.Mutex // guards creation of new chains
	data  map[txn.Key]*chain
}

// New returns an empty MVCC Storage.
func New() *Storage {
	return &Storage{data: make(map[txn.Key]*chain)}
}

// Init seeds keys [0, n) with an initial version (value 0, version id
// 0, max read id 0).
func (s *Storage) Init(n uint64) {
	for k := uint64(0); k < n; k++ {
		s.chainFor(k).head = &Version{Value: 0, VersionID: 0, MaxReadID: 0}
	}
}

func (s *Storage) chainFor(key txn.Key) *chain {
	s.latch.Lock()
	defer s.latch.Unlock()
	c, ok := s.data[key]
	if !ok {
		c = &chain{}
		s.data[key] = c
	}
	return c
}

// Lock acquires the per-key mutex protecting key's version chain.
// Callers must pair it with Unlock.
func (s *Storage) Lock(key txn.Key) { s.chainFor(key).mu.Lock() }

// Unlock releases the per-key mutex acquired by Lock.
func (s *Storage) Unlock(key txn.Key) { s.chainFor(key).mu.Unlock() }

// Read returns the value of the version with the greatest VersionID
// <= readerID, bumping that version's MaxReadID to readerID if it is
// higher. Reports false if no version is visible to readerID (or the
// key has never been written). Callers must hold Lock(key).
func (s *Storage) Read(key txn.Key, readerID uint64) (txn.Value, bool) {
	c := s.chainFor(key)
	var best *Version
	for v := c.head; v != nil; v = v.next {
		if v.VersionID <= readerID && (best == nil || v.VersionID > best.VersionID) {
			best = v
		}
	}
	if best == nil {
		return 0, false
	}
	if readerID > best.MaxReadID {
		best.MaxReadID = readerID
	}
	return best.Value, true
}

// CheckWrite reports whether writerID may install a new version on
// key: true iff no version on the chain has MaxReadID greater than
// writerID. Callers must hold Lock(key).
func (s *Storage) CheckWrite(key txn.Key, writerID uint64) bool {
	c := s.chainFor(key)
	for v := c.head; v != nil; v = v.next {
		if v.MaxReadID > writerID {
			return false
		}
	}
	return true
}

// Write prepends a new version onto key's chain. Callers must hold
// Lock(key) and must only call Write after a passing CheckWrite.
func (s *Storage) Write(key txn.Key, value txn.Value, writerID uint64) {
	c := s.chainFor(key)
	c.head = &Version{Value: value, VersionID: writerID, next: c.head}
}

// Compact removes old versions that no remaining reader can see.
// lowWatermark is the lowest id of any still-active transaction. It is
// never invoked automatically by a scheduler; a caller opts into it.
//
// Only each chain's newest version w is considered: when
// w.VersionID <= lowWatermark and w.MaxReadID < lowWatermark, every
// version older than w is removed, because any reader that can still
// appear has an id >= lowWatermark >= w.VersionID and so sees w. A
// chain whose newest version fails either condition is left whole,
// even where an older version already hides the ones beneath it.
func (s *Storage) Compact(lowWatermark uint64) {
	s.latch.Lock()
	chains := make([]*chain, 0, len(s.data))
	for _, c := range s.data {
		chains = append(chains, c)
	}
	s.latch.Unlock()

	for _, c := range chains {
		c.mu.Lock()
		if c.head == nil || c.head.next == nil {
			c.mu.Unlock()
			continue
		}
		if c.head.MaxReadID >= lowWatermark || c.head.VersionID > lowWatermark {
			// a reader with an id below the newest VersionID may
			// still need an older version; the chain is left whole.
			c.mu.Unlock()
			continue
		}
		// head is the newest and already dominates everything older.
		c.head.next = nil
		c.mu.Unlock()
	}
}
