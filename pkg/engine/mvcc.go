package engine

import (
	"ccengine/internal/log"
	"ccengine/pkg/txn"
)

// runMVCC dispatches each admitted transaction to its own worker: read
// phase, body, then a write phase that locks every written key (in a
// fixed global order, to avoid deadlocking against another
// transaction's write phase), validates each one against the readers
// it has already served, and either installs new versions or
// restarts.
func (p *Processor) runMVCC() {
	for {
		select {
		case <-p.stop:
			return
		case t := <-p.requests:
			p.dispatchMVCC(t)
		}
	}
}

func (p *Processor) dispatchMVCC(t *txn.Txn) {
	p.pool.Submit(func() error {
		p.mvccReadPhase(t)
		t.Logic.Run(t)
		p.finishMVCC(t)
		return nil
	})
}

func (p *Processor) mvccReadPhase(t *txn.Txn) {
	for _, k := range unionKeys(t.ReadSet, t.WriteSet) {
		p.mv.Lock(k)
		if v, ok := p.mv.Read(k, t.ID); ok {
			t.SeedRead(k, v)
		}
		p.mv.Unlock(k)
	}
}

func (p *Processor) finishMVCC(t *txn.Txn) {
	if t.Status() == txn.CompletedAbort {
		t.SetStatus(txn.Aborted)
		p.observeAbort()
		p.results <- t
		return
	}
	if t.Status() != txn.CompletedCommit {
		log.Inst.Fatalf("engine: txn %d left Run() in status %v", t.ID, t.Status())
	}

	writeKeys := sortedKeys(t.WriteSet)
	for _, k := range writeKeys {
		p.mv.Lock(k)
	}

	valid := true
	for _, k := range writeKeys {
		if !p.mv.CheckWrite(k, t.ID) {
			valid = false
			break
		}
	}

	if valid {
		writes := t.Writes()
		for _, k := range writeKeys {
			p.mv.Write(k, writes[k], t.ID)
		}
	}

	for _, k := range writeKeys {
		p.mv.Unlock(k)
	}

	if !valid {
		p.restart(t)
		return
	}
	t.SetStatus(txn.Committed)
	p.observeCommit(t)
	p.results <- t
}
