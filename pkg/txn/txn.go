// Package txn defines the Transaction object shared by every
// concurrency-control discipline the engine supports.
package txn

import (
	"fmt"
	"sync"
	"time"
)

// Key and Value are opaque to the engine; Key identifies a record,
// Value is whatever payload the transaction logic chooses to store.
type Key = uint64
type Value = int64

// Status is one of the five states a Txn can be in during its life.
type Status int

const (
	Incomplete Status = iota
	CompletedCommit
	CompletedAbort
	Committed
	Aborted
)

func (s Status) String() string {
	switch s {
	case Incomplete:
		return "INCOMPLETE"
	case CompletedCommit:
		return "COMPLETED_COMMIT"
	case CompletedAbort:
		return "COMPLETED_ABORT"
	case Committed:
		return "COMMITTED"
	case Aborted:
		return "ABORTED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Logic is the transaction's program body. Run may only call Read on
// keys in ReadSet/WriteSet and Write on keys in WriteSet, and must
// terminate by calling txn.Commit() or txn.Abort().
type Logic interface {
	Run(t *Txn)
}

// LogicFunc adapts a plain function to Logic.
type LogicFunc func(t *Txn)

func (f LogicFunc) Run(t *Txn) { f(t) }

// Txn carries a transaction's declared key sets, its buffered reads
// and writes, and its execution status. Callers fix ReadSet/WriteSet
// before submission; the engine assigns ID and StartTime.
type Txn struct {
	mu sync.Mutex

	ID       uint64
	ReadSet  map[Key]struct{}
	WriteSet map[Key]struct{}

	reads  map[Key]Value
	writes map[Key]Value

	status    Status
	StartTime time.Time

	Logic Logic
}

// New builds a Txn over the given read and write sets. The returned
// Txn is not yet submitted: it carries no ID until the engine assigns
// one on admission.
func New(readSet, writeSet []Key, logic Logic) *Txn {
	t := &Txn{
		ReadSet:  make(map[Key]struct{}, len(readSet)),
		WriteSet: make(map[Key]struct{}, len(writeSet)),
		Logic:    logic,
	}
	for _, k := range readSet {
		t.ReadSet[k] = struct{}{}
	}
	for _, k := range writeSet {
		t.WriteSet[k] = struct{}{}
	}
	return t
}

// CheckReadWriteSets dies (panics) if a key is declared in both the
// read set and the write set. This mirrors the original assignment's
// contract: declare a key as writable only, even if you intend to
// read it back through Read (Write buffers the value into reads_ too).
func (t *Txn) CheckReadWriteSets() {
	for k := range t.WriteSet {
		if _, ok := t.ReadSet[k]; ok {
			panic(fmt.Sprintf("txn: overlapping read/write sets on key %d", k))
		}
	}
}

// Status returns the Txn's current execution status.
func (t *Txn) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// setStatus is used by Commit/Abort and, through SetStatus, by the
// engine to transition status. It is unexported: only the Txn's own logic (via
// Commit/Abort) and the engine may move status forward.
func (t *Txn) setStatus(s Status) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

// SetStatus is used by the engine to force a terminal/incomplete
// status transition (e.g. INCOMPLETE on restart, COMMITTED/ABORTED
// once the scheduler has decided the final outcome).
func (t *Txn) SetStatus(s Status) { t.setStatus(s) }

// Read is used inside Logic.Run to read a key declared in ReadSet or
// WriteSet. It panics if key was not declared, mirroring the
// original's DIE("Invalid read..."). Reads have no effect once the
// txn has already completed.
func (t *Txn) Read(key Key) (Value, bool) {
	if _, ok := t.ReadSet[key]; !ok {
		if _, ok := t.WriteSet[key]; !ok {
			panic(fmt.Sprintf("txn: invalid read of key %d (not in read/write set)", key))
		}
	}
	if t.Status() != Incomplete {
		return 0, false
	}
	v, ok := t.reads[key]
	return v, ok
}

// Write buffers a value for key, to be applied to storage on commit.
// It also updates the in-memory read view, so that a subsequent Read
// of the same key inside the same Run observes the write. Panics if
// key was not declared in WriteSet.
func (t *Txn) Write(key Key, value Value) {
	if _, ok := t.WriteSet[key]; !ok {
		panic(fmt.Sprintf("txn: invalid write to key %d (not in write set)", key))
	}
	if t.Status() != Incomplete {
		return
	}
	if t.writes == nil {
		t.writes = make(map[Key]Value, len(t.WriteSet))
	}
	if t.reads == nil {
		t.reads = make(map[Key]Value, len(t.ReadSet)+len(t.WriteSet))
	}
	t.writes[key] = value
	t.reads[key] = value
}

// Commit declares the transaction's intent to commit by moving it from
// INCOMPLETE to COMPLETED_COMMIT. It does not by itself make the
// transaction durable: the engine alone transitions COMPLETED_COMMIT ->
// (validated/locked) -> COMMITTED.
func (t *Txn) Commit() { t.setStatus(CompletedCommit) }

// Abort declares the transaction's intent to abort.
func (t *Txn) Abort() { t.setStatus(CompletedAbort) }

// Writes returns a copy of the buffered write set, for the engine's
// write-apply step.
func (t *Txn) Writes() map[Key]Value {
	if t.writes == nil {
		return nil
	}
	out := make(map[Key]Value, len(t.writes))
	for k, v := range t.writes {
		out[k] = v
	}
	return out
}

// seedRead is used by the engine to populate a value read from
// storage before Logic.Run executes, independent of the Write path.
func (t *Txn) seedRead(key Key, value Value) {
	if t.reads == nil {
		t.reads = make(map[Key]Value, len(t.ReadSet)+len(t.WriteSet))
	}
	t.reads[key] = value
}

// SeedRead is the exported form of seedRead, used by pkg/engine's
// read phases across all six disciplines.
func (t *Txn) SeedRead(key Key, value Value) { t.seedRead(key, value) }

// ResetForRestart clears reads/writes and status, in place, so the
// same Txn object can be resubmitted with a fresh ID. ReadSet,
// WriteSet and Logic — fixed by the caller — are preserved.
func (t *Txn) ResetForRestart() {
	t.mu.Lock()
	t.status = Incomplete
	t.mu.Unlock()
	t.reads = nil
	t.writes = nil
}
