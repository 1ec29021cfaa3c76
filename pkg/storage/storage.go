// Package storage implements the single-version key/value store used
// by the SERIAL, Locking A/B, OCC, and P-OCC disciplines: a value plus
// an auxiliary last-write wall-clock timestamp per key, consulted only
// by OCC/P-OCC validation.
package storage

import (
	"sync"
	"time"

	"ccengine/pkg/txn"
)

type record struct {
	value     txn.Value
	timestamp time.Time
}

// Storage is a keyed map from Key to (value, last-write timestamp),
// guarded by a single mutex. Under SERIAL/Locking/OCC, writes are
// confined to the scheduler goroutine; under P-OCC, validating workers
// apply writes concurrently, but only for transactions whose key sets
// passed the active-set overlap check. The mutex makes Read and Write
// safe to call from any goroutine regardless of that discipline-level
// confinement.
type Storage struct {
	mu   sync.RWMutex
	data map[txn.Key]record
}

// New returns an empty Storage.
func New() *Storage {
	return &Storage{data: make(map[txn.Key]record)}
}

// Init pre-populates keys [0, n) with value 0, matching the original
// InitStorage's million-key warm-up.
func (s *Storage) Init(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for k := uint64(0); k < n; k++ {
		s.data[k] = record{value: 0, timestamp: now}
	}
}

// Read returns the value stored at key and whether it exists.
func (s *Storage) Read(key txn.Key) (txn.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.data[key]
	if !ok {
		return 0, false
	}
	return r.value, true
}

// Write stores value at key, stamping the last-write timestamp with
// the current wall-clock time.
func (s *Storage) Write(key txn.Key, value txn.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = record{value: value, timestamp: time.Now()}
}

// Timestamp returns the last-write wall-clock time for key, or the
// zero Time if the key has never been written. Used only by OCC/P-OCC
// validation.
func (s *Storage) Timestamp(key txn.Key) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data[key].timestamp
}
