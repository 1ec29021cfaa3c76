// Package lock implements the two lock manager disciplines used by
// the Locking A (exclusive-only) and Locking B (shared/exclusive)
// schedulers: per-key FIFO request queues and a remaining_waits
// counter per blocked transaction.
//
// Per spec §5, the lock table is mutated only by the scheduler
// thread: workers never call into the lock manager. Release reports
// the transactions its call newly makes ready (remaining_waits
// reaching zero) directly to the caller, so the scheduler can dispatch
// them at once without polling a shared ready queue.
package lock

import (
	"sync"

	"ccengine/pkg/txn"
)

// Mode describes the current lock state of a key.
type Mode int

const (
	Unlocked Mode = iota
	Shared
	Exclusive
)

// Manager is the interface common to lock manager modes A and B.
type Manager interface {
	// ReadLock enqueues a request for key on behalf of t and reports
	// whether it was granted immediately.
	ReadLock(t *txn.Txn, key txn.Key) bool
	// WriteLock enqueues an exclusive request for key on behalf of t
	// and reports whether it was granted immediately.
	WriteLock(t *txn.Txn, key txn.Key) bool
	// Release erases t's request (granted or still queued) on key,
	// advancing the queue, and returns any transactions whose last
	// blocking request was just granted as a result.
	Release(t *txn.Txn, key txn.Key) []*txn.Txn
	// Status reports the current lock mode of key and its owner(s).
	Status(key txn.Key) (Mode, []*txn.Txn)
}

type request struct {
	txn  *txn.Txn
	mode Mode
}

type base struct {
	mu             sync.Mutex
	queues         map[txn.Key][]request
	remainingWaits map[uint64]int
}

func newBase() base {
	return base{
		queues:         make(map[txn.Key][]request),
		remainingWaits: make(map[uint64]int),
	}
}

// tryResolve decrements t's remaining_waits counter, if it has one,
// and reports whether that reached zero (t is now fully granted).
// Must be called with mu held.
func (b *base) tryResolve(t *txn.Txn) bool {
	n, ok := b.remainingWaits[t.ID]
	if !ok {
		return false
	}
	n--
	if n <= 0 {
		delete(b.remainingWaits, t.ID)
		return true
	}
	b.remainingWaits[t.ID] = n
	return false
}

func indexOf(q []request, t *txn.Txn) int {
	for i, r := range q {
		if r.txn == t {
			return i
		}
	}
	return -1
}

// ManagerA implements lock manager mode A: exclusive-only locking.
// Both ReadLock and WriteLock enqueue an EXCLUSIVE request; a request
// is granted iff it lands at the head of the queue.
type ManagerA struct {
	base
}

// NewManagerA returns an empty mode-A lock manager.
func NewManagerA() *ManagerA {
	return &ManagerA{base: newBase()}
}

func (m *ManagerA) ReadLock(t *txn.Txn, key txn.Key) bool {
	return m.WriteLock(t, key)
}

func (m *ManagerA) WriteLock(t *txn.Txn, key txn.Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queues[key]
	granted := len(q) == 0
	m.queues[key] = append(q, request{txn: t, mode: Exclusive})
	if !granted {
		m.remainingWaits[t.ID]++
	}
	return granted
}

func (m *ManagerA) Release(t *txn.Txn, key txn.Key) []*txn.Txn {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queues[key]
	idx := indexOf(q, t)
	if idx == -1 {
		return nil
	}
	wasHead := idx == 0
	q = append(q[:idx:idx], q[idx+1:]...)
	m.queues[key] = q

	if wasHead && len(q) > 0 && m.tryResolve(q[0].txn) {
		return []*txn.Txn{q[0].txn}
	}
	return nil
}

func (m *ManagerA) Status(key txn.Key) (Mode, []*txn.Txn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queues[key]
	if len(q) == 0 {
		return Unlocked, nil
	}
	return Exclusive, []*txn.Txn{q[0].txn}
}

// ManagerB implements lock manager mode B: shared and exclusive
// locking, with SHARED requests able to join a lock held (or being
// acquired) entirely by other SHARED requests.
type ManagerB struct {
	base
	exclusiveWaiting map[txn.Key]int
}

// NewManagerB returns an empty mode-B lock manager.
func NewManagerB() *ManagerB {
	return &ManagerB{base: newBase(), exclusiveWaiting: make(map[txn.Key]int)}
}

func (m *ManagerB) statusAndOwnersLocked(key txn.Key) (Mode, []*txn.Txn) {
	q := m.queues[key]
	if len(q) == 0 {
		return Unlocked, nil
	}
	mode := Exclusive
	var owners []*txn.Txn
	for _, r := range q {
		if r.mode == Exclusive && mode == Shared {
			break
		}
		owners = append(owners, r.txn)
		mode = r.mode
		if mode == Exclusive {
			break
		}
	}
	return mode, owners
}

func (m *ManagerB) addLock(mode Mode, t *txn.Txn, key txn.Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	status, _ := m.statusAndOwnersLocked(key)
	m.queues[key] = append(m.queues[key], request{txn: t, mode: mode})

	granted := status == Unlocked
	if mode == Shared {
		granted = granted || m.exclusiveWaiting[key] == 0
	} else {
		m.exclusiveWaiting[key]++
	}
	if !granted {
		m.remainingWaits[t.ID]++
	}
	return granted
}

func (m *ManagerB) ReadLock(t *txn.Txn, key txn.Key) bool {
	return m.addLock(Shared, t, key)
}

func (m *ManagerB) WriteLock(t *txn.Txn, key txn.Key) bool {
	return m.addLock(Exclusive, t, key)
}

func (m *ManagerB) Release(t *txn.Txn, key txn.Key) []*txn.Txn {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queues[key]
	idx := indexOf(q, t)
	if idx == -1 {
		return nil
	}
	removedMode := q[idx].mode
	q = append(q[:idx:idx], q[idx+1:]...)
	m.queues[key] = q
	if removedMode == Exclusive {
		m.exclusiveWaiting[key]--
	}

	_, owners := m.statusAndOwnersLocked(key)
	var ready []*txn.Txn
	for _, o := range owners {
		if m.tryResolve(o) {
			ready = append(ready, o)
		}
	}
	return ready
}

func (m *ManagerB) Status(key txn.Key) (Mode, []*txn.Txn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusAndOwnersLocked(key)
}
