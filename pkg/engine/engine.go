// Package engine implements TxnProcessor: the admission point and the
// six scheduler control loops (one per concurrency-control discipline)
// that drive transactions from submission through to a terminal
// COMMITTED or ABORTED status.
//
// Every discipline shares the same external shape: Submit hands a Txn
// to the processor, which assigns it a monotonically increasing id
// and queues it; Result blocks for the next completed Txn. What
// differs between disciplines is entirely internal: which storage
// backend is used, whether a lock manager mediates access, and how
// many passes a transaction's body runs before it is allowed to
// commit.
package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/atomic"

	"ccengine/internal/log"
	"ccengine/pkg/lock"
	"ccengine/pkg/metrics"
	"ccengine/pkg/mvcc"
	"ccengine/pkg/pool"
	"ccengine/pkg/storage"
	"ccengine/pkg/txn"
)

// Mode selects which concurrency-control discipline a Processor runs.
type Mode int

const (
	Serial Mode = iota
	LockingExclusiveOnly
	Locking
	OCC
	ParallelOCC
	MVCC
)

func (m Mode) String() string {
	switch m {
	case Serial:
		return "SERIAL"
	case LockingExclusiveOnly:
		return "LOCKING_A"
	case Locking:
		return "LOCKING_B"
	case OCC:
		return "OCC"
	case ParallelOCC:
		return "P-OCC"
	case MVCC:
		return "MVCC"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

const (
	defaultQueueDepth = 4096
	defaultWorkers    = 8
)

// Options configures a Processor at construction time.
type Options struct {
	Workers    int
	KeySpace   uint64
	QueueDepth int
	Metrics    *metrics.Metrics
}

// Processor is the engine's scheduler and storage backend for a
// single concurrency-control discipline. It is started running: New
// launches the scheduler goroutine (and, for every mode but SERIAL,
// relies on the worker pool it also owns) immediately.
type Processor struct {
	mode Mode

	nextID *atomic.Uint64

	requests  chan *txn.Txn
	completed chan *txn.Txn
	results   chan *txn.Txn

	pool *pool.Pool

	sv    *storage.Storage
	mv    *mvcc.Storage
	locks lock.Manager

	active   map[uint64]*txn.Txn
	activeMu sync.Mutex

	metrics *metrics.Metrics

	stop chan struct{}
	done chan struct{}
}

// New constructs and starts a Processor for the given discipline.
func New(mode Mode, opts Options) *Processor {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = defaultQueueDepth
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}

	p := &Processor{
		mode:      mode,
		nextID:    atomic.NewUint64(0),
		requests:  make(chan *txn.Txn, opts.QueueDepth),
		completed: make(chan *txn.Txn, opts.QueueDepth),
		results:   make(chan *txn.Txn, opts.QueueDepth),
		pool:      pool.New(opts.Workers, opts.QueueDepth),
		metrics:   opts.Metrics,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	switch mode {
	case MVCC:
		p.mv = mvcc.New()
		if opts.KeySpace > 0 {
			p.mv.Init(opts.KeySpace)
		}
	default:
		p.sv = storage.New()
		if opts.KeySpace > 0 {
			p.sv.Init(opts.KeySpace)
		}
	}

	switch mode {
	case LockingExclusiveOnly:
		p.locks = lock.NewManagerA()
	case Locking:
		p.locks = lock.NewManagerB()
	case ParallelOCC:
		p.active = make(map[uint64]*txn.Txn)
	}

	go p.run()
	return p
}

// Submit assigns t a fresh id and admits it to the processor. Submit
// also re-admits a restarted transaction: callers never need to call
// it twice for the same logical attempt.
func (p *Processor) Submit(t *txn.Txn) {
	t.CheckReadWriteSets()
	t.ID = p.nextID.Inc()
	t.StartTime = time.Now()
	t.SetStatus(txn.Incomplete)
	p.requests <- t
}

// Result blocks until the next transaction reaches a terminal status
// (COMMITTED or ABORTED) and returns it.
func (p *Processor) Result() *txn.Txn {
	return <-p.results
}

// Results exposes the result channel directly, so a caller that also
// needs to watch a context or a timer can select over both rather
// than blocking exclusively on Result.
func (p *Processor) Results() <-chan *txn.Txn {
	return p.results
}

// Shutdown stops the scheduler loop and drains the worker pool,
// returning any errors the pool's tasks reported.
func (p *Processor) Shutdown() error {
	close(p.stop)
	<-p.done
	return p.pool.Shutdown()
}

func (p *Processor) run() {
	defer close(p.done)
	switch p.mode {
	case Serial:
		p.runSerial()
	case LockingExclusiveOnly, Locking:
		p.runLocking()
	case OCC:
		p.runOCC()
	case ParallelOCC:
		p.runParallelOCC()
	case MVCC:
		p.runMVCC()
	default:
		log.Inst.Fatalf("engine: unknown mode %v", p.mode)
	}
}

// restart resubmits t with a fresh id after a validation or lock
// failure. The actual send onto the request queue happens on its own
// goroutine rather than inline: runOCC's validation step calls restart
// from the scheduler goroutine itself, the same goroutine that alone
// drains the request queue, so a direct blocking send here could
// deadlock the scheduler against its own backlog once the queue fills.
func (p *Processor) restart(t *txn.Txn) {
	p.metrics.Restarted.WithLabelValues(p.mode.String()).Inc()
	t.ResetForRestart()
	go p.Submit(t)
}

func (p *Processor) observeCommit(t *txn.Txn) {
	p.metrics.Committed.WithLabelValues(p.mode.String()).Inc()
	p.metrics.CommitLatencySec.WithLabelValues(p.mode.String()).Observe(time.Since(t.StartTime).Seconds())
}

func (p *Processor) observeAbort() {
	p.metrics.Aborted.WithLabelValues(p.mode.String()).Inc()
}

// readPhaseSV seeds t's reads from the single-version store for every
// key in ReadSet and WriteSet.
func (p *Processor) readPhaseSV(t *txn.Txn) {
	for k := range t.ReadSet {
		if v, ok := p.sv.Read(k); ok {
			t.SeedRead(k, v)
		}
	}
	for k := range t.WriteSet {
		if v, ok := p.sv.Read(k); ok {
			t.SeedRead(k, v)
		}
	}
}

func (p *Processor) applyWritesSV(t *txn.Txn) {
	for k, v := range t.Writes() {
		p.sv.Write(k, v)
	}
}

// finishSV applies writes and transitions to the terminal status for
// SERIAL, which runs a single attempt of a transaction's body with no
// validation step (Locking settles its transactions in lockingFinish).
// It must only be called once t.Logic.Run has already set
// COMPLETED_COMMIT or COMPLETED_ABORT.
func (p *Processor) finishSV(t *txn.Txn) {
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
	p.results <- t
}

// sortedKeys returns a set's keys in ascending order, establishing a
// total lock-acquisition order shared by every transaction regardless
// of Go's randomized map iteration. MVCC's write-phase locking relies
// on this: two transactions that both acquire every key in the same
// global order can never deadlock against each other.
func sortedKeys(set map[txn.Key]struct{}) []txn.Key {
	keys := make([]txn.Key, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// unionKeys returns the sorted union of two key sets.
func unionKeys(a, b map[txn.Key]struct{}) []txn.Key {
	set := make(map[txn.Key]struct{}, len(a)+len(b))
	for k := range a {
		set[k] = struct{}{}
	}
	for k := range b {
		set[k] = struct{}{}
	}
	return sortedKeys(set)
}
