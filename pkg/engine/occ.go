package engine

import (
	"ccengine/internal/log"
	"ccengine/pkg/txn"
)

// runOCC executes every admitted transaction's body optimistically, on
// a worker, with no locking at all, then validates it serially on the
// scheduler goroutine: a transaction commits only if no key in its
// read or write set was last written after its own start time. A
// transaction that fails validation is restarted from scratch with a
// fresh id, exactly as if it had just been submitted again.
func (p *Processor) runOCC() {
	for {
		select {
		case <-p.stop:
			return
		case t := <-p.requests:
			p.dispatchOCC(t)
		case t := <-p.completed:
			p.validateOCC(t)
		}
	}
}

// dispatchOCC hands t to the worker pool from its own goroutine, for
// the same reason dispatchLocking does: the scheduler goroutine is the
// sole reader of p.completed, so it must never block trying to push
// onto a full pool queue.
func (p *Processor) dispatchOCC(t *txn.Txn) {
	go p.pool.Submit(func() error {
		p.readPhaseSV(t)
		t.Logic.Run(t)
		p.completed <- t
		return nil
	})
}

func (p *Processor) validateOCC(t *txn.Txn) {
	if t.Status() == txn.CompletedAbort {
		t.SetStatus(txn.Aborted)
		p.observeAbort()
		p.results <- t
		return
	}
	if t.Status() != txn.CompletedCommit {
		log.Inst.Fatalf("engine: txn %d left Run() in status %v", t.ID, t.Status())
	}

	if !p.occValidLocked(t) {
		p.restart(t)
		return
	}
	p.applyWritesSV(t)
	t.SetStatus(txn.Committed)
	p.observeCommit(t)
	p.results <- t
}

// occValidLocked reports whether every key t touched is unchanged
// since t started. validateOCC calls it from the scheduler goroutine,
// so its check-then-apply sequence is race-free even though
// storage.Storage's own mutex only protects individual calls;
// finishParallelOCC calls it from workers and pairs it with the
// active-set overlap check.
func (p *Processor) occValidLocked(t *txn.Txn) bool {
	for _, k := range unionKeys(t.ReadSet, t.WriteSet) {
		if p.sv.Timestamp(k).After(t.StartTime) {
			return false
		}
	}
	return true
}

// runParallelOCC dispatches every admitted transaction straight to a
// worker, which runs the body AND validates AND applies writes itself
// against a snapshot of the currently-validating active set, with no
// scheduler-side serialization step at all. A transaction whose
// snapshot contains another still-validating transaction restarts if
// their key sets overlap, and otherwise validates alongside it; the
// transaction that entered validation first never sees the later one.
func (p *Processor) runParallelOCC() {
	for {
		select {
		case <-p.stop:
			return
		case t := <-p.requests:
			p.dispatchParallelOCC(t)
		}
	}
}

func (p *Processor) dispatchParallelOCC(t *txn.Txn) {
	p.pool.Submit(func() error {
		p.readPhaseSV(t)
		t.Logic.Run(t)
		p.finishParallelOCC(t)
		return nil
	})
}

func (p *Processor) finishParallelOCC(t *txn.Txn) {
	if t.Status() == txn.CompletedAbort {
		t.SetStatus(txn.Aborted)
		p.observeAbort()
		p.results <- t
		return
	}
	if t.Status() != txn.CompletedCommit {
		log.Inst.Fatalf("engine: txn %d left Run() in status %v", t.ID, t.Status())
	}

	p.activeMu.Lock()
	snapshot := make([]*txn.Txn, 0, len(p.active))
	for _, other := range p.active {
		snapshot = append(snapshot, other)
	}
	p.active[t.ID] = t
	p.activeMu.Unlock()

	valid := p.occValidLocked(t) && !p.conflictsWithActive(t, snapshot)

	if valid {
		p.applyWritesSV(t)
	}

	p.activeMu.Lock()
	delete(p.active, t.ID)
	p.activeMu.Unlock()

	if !valid {
		p.restart(t)
		return
	}
	t.SetStatus(txn.Committed)
	p.observeCommit(t)
	p.results <- t
}

// conflictsWithActive reports whether t conflicts with any transaction
// in the active-set snapshot taken when t entered validation: every
// other transaction in that snapshot has finished its body and is
// either still validating or still applying its writes, so per spec §4.4 t
// must check against all three overlaps, not just two of them:
//
//   - other.WriteSet ∩ t.ReadSet  — t may have read a value other is
//     about to overwrite (or just did).
//   - other.WriteSet ∩ t.WriteSet — the classic write-write conflict.
//   - other.ReadSet ∩ t.WriteSet  — t is about to overwrite a value
//     other has already read, which other's own validation may not
//     catch if other validates first against a snapshot that predates
//     t's write.
//
// The snapshot is taken with every transaction still in the active set
// at that instant, regardless of which one started first: spec.md's
// "for every transaction t in the snapshot" check is unconditional, so
// no start-time filter is applied here.
func (p *Processor) conflictsWithActive(t *txn.Txn, active []*txn.Txn) bool {
	for _, other := range active {
		if other.ID == t.ID {
			continue
		}
		if keySetsOverlap(other.WriteSet, t.ReadSet) {
			return true
		}
		if keySetsOverlap(other.WriteSet, t.WriteSet) {
			return true
		}
		if keySetsOverlap(other.ReadSet, t.WriteSet) {
			return true
		}
	}
	return false
}

func keySetsOverlap(a, b map[txn.Key]struct{}) bool {
	small, big := a, b
	if len(big) < len(small) {
		small, big = big, small
	}
	for k := range small {
		if _, ok := big[k]; ok {
			return true
		}
	}
	return false
}
