package engine

import (
	"ccengine/internal/log"
	"ccengine/pkg/txn"
)

// runLocking drives both Locking disciplines (exclusive-only and
// shared/exclusive): which one depends only on which lock.Manager
// implementation New built. The lock table itself is touched only
// from this goroutine, so admitting a request, releasing a finished
// transaction's locks, and dispatching newly-ready transactions to the
// worker pool never race each other.
func (p *Processor) runLocking() {
	for {
		select {
		case <-p.stop:
			return
		case t := <-p.requests:
			p.lockingAdmit(t)
		case t := <-p.completed:
			p.lockingFinish(t)
		}
	}
}

// lockingAdmit requests every lock t needs, in a fixed global key
// order (sortedKeys), read set before write set.
//
// A transaction that touches only one key total is left queued inside
// the lock manager when blocked: there is nothing else it could be
// waiting on, so it is simply dispatched later, when lockingFinish's
// Release calls report it as newly ready.
//
// A transaction that touches more than one key is a deadlock risk the
// moment it blocks while already holding another key's lock: two such
// transactions can each hold the lock the other is waiting for.
// Following the original scheduler's policy, as soon as a multi-key
// transaction blocks on any request, every lock it already acquired
// (including the one it just queued behind) is released immediately
// and the transaction restarts from scratch with a fresh id — it
// never holds more than one outstanding wait at a time.
func (p *Processor) lockingAdmit(t *txn.Txn) {
	multiKey := len(t.ReadSet) + len(t.WriteSet) > 1

	acquired := make([]txn.Key, 0, len(t.ReadSet) + len(t.WriteSet))
	blocked := false

	for _, k := range sortedKeys(t.ReadSet) {
		acquired = append(acquired, k)
		if !p.locks.ReadLock(t, k) {
			blocked = true
			if multiKey {
				break
			}
		}
	}

	if !blocked {
		for _, k := range sortedKeys(t.WriteSet) {
			acquired = append(acquired, k)
			if !p.locks.WriteLock(t, k) {
				blocked = true
				if multiKey {
					break
				}
			}
		}
	}

	switch {
	case !blocked:
		p.dispatchLocking(t)
	case multiKey:
		for _, k := range acquired {
			for _, ready := range p.locks.Release(t, k) {
				p.dispatchLocking(ready)
			}
		}
		p.restart(t)
	}
}

// dispatchLocking hands t to the worker pool. The Submit call itself
// runs on its own goroutine, not inline: this function is only ever
// called from the scheduler goroutine, which is also the sole reader
// of p.completed — a worker's pool queue filling up while every worker
// is itself blocked trying to push onto a full p.completed would
// otherwise deadlock the scheduler against its own consumer.
func (p *Processor) dispatchLocking(t *txn.Txn) {
	go p.pool.Submit(func() error {
		p.readPhaseSV(t)
		t.Logic.Run(t)
		p.completed <- t
		return nil
	})
}

// lockingFinish applies a transaction's writes (if it committed),
// settles its terminal status, and releases every lock it held,
// dispatching any transaction that Release reports as now fully
// granted.
func (p *Processor) lockingFinish(t *txn.Txn) {
	switch t.Status() {
	case txn.CompletedCommit:
		p.applyWritesSV(t)
		t.SetStatus(txn.Committed)
		p.observeCommit(t)
	case txn.CompletedAbort:
		t.SetStatus(txn.Aborted)
		p.observeAbort()
	default:
		log.Inst.Fatalf("engine: txn %d left Run() in status %v", t.ID, t.Status())
	}

	for _, k := range unionKeys(t.ReadSet, t.WriteSet) {
		for _, ready := range p.locks.Release(t, k) {
			p.dispatchLocking(ready)
		}
	}
	p.results <- t
}
