package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ccengine/pkg/txn"
	"ccengine/pkg/workload"
)

var allModes = []Mode{Serial, LockingExclusiveOnly, Locking, OCC, ParallelOCC, MVCC}

func newTestProcessor(t *testing.T, mode Mode) *Processor {
	p := New(mode, Options{Workers: 4, KeySpace: 1000, QueueDepth: 64})
	t.Cleanup(func() { _ = p.Shutdown() })
	return p
}

func awaitResult(t *testing.T, p *Processor) *txn.Txn {
	t.Helper()
	select {
	case r := <-p.Results():
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a result")
		return nil
	}
}

func TestNoopCommitsUnderEveryMode(t *testing.T) {
	for _, mode := range allModes {
		mode := mode
		t.Run(mode.String(), func(t *testing.T) {
			p := newTestProcessor(t, mode)
			p.Submit(workload.NewNoop())
			r := awaitResult(t, p)
			require.Equal(t, txn.Committed, r.Status())
		})
	}
}

func TestPutThenExpectUnderEveryMode(t *testing.T) {
	for _, mode := range allModes {
		mode := mode
		t.Run(mode.String(), func(t *testing.T) {
			p := newTestProcessor(t, mode)

			p.Submit(workload.NewPut(map[txn.Key]txn.Value{5: 77}))
			put := awaitResult(t, p)
			require.Equal(t, txn.Committed, put.Status())

			p.Submit(workload.NewExpect(map[txn.Key]txn.Value{5: 77}))
			expect := awaitResult(t, p)
			require.Equal(t, txn.Committed, expect.Status())
		})
	}
}

func TestExpectAgainstFreshlyInitializedStoreSeesZero(t *testing.T) {
	for _, mode := range allModes {
		mode := mode
		t.Run(mode.String(), func(t *testing.T) {
			p := newTestProcessor(t, mode)
			p.Submit(workload.NewExpect(map[txn.Key]txn.Value{42: 0}))
			r := awaitResult(t, p)
			require.Equal(t, txn.Committed, r.Status())
		})
	}
}

func TestIDsAreMonotonicAndUniqueAcrossRestarts(t *testing.T) {
	p := newTestProcessor(t, MVCC)

	const n = 50
	for i := 0; i < n; i++ {
		p.Submit(workload.NewRMW(nil, []txn.Key{1}, 1))
	}

	seen := make(map[uint64]bool)
	var lastID uint64
	for i := 0; i < n; i++ {
		r := awaitResult(t, p)
		require.False(t, seen[r.ID], "transaction id %d seen twice", r.ID)
		seen[r.ID] = true
		require.Greater(t, r.ID, lastID)
		lastID = r.ID
	}
}

func TestConcurrentRMWConvergesToExpectedTotalUnderEveryMode(t *testing.T) {
	for _, mode := range allModes {
		mode := mode
		t.Run(mode.String(), func(t *testing.T) {
			p := newTestProcessor(t, mode)

			const n = 100
			for i := 0; i < n; i++ {
				p.Submit(workload.NewRMW(nil, []txn.Key{0}, 1))
			}

			committed := 0
			for i := 0; i < n; i++ {
				r := awaitResult(t, p)
				require.Equal(t, txn.Committed, r.Status())
				committed++
			}
			require.Equal(t, n, committed)

			p.Submit(workload.NewExpect(map[txn.Key]txn.Value{0: txn.Value(committed)}))
			r := awaitResult(t, p)
			require.Equal(t, txn.Committed, r.Status(), "final counter value must equal the number of committed increments")
		})
	}
}

func TestLockingBAdmitsManyReadersConcurrently(t *testing.T) {
	p := newTestProcessor(t, Locking)

	p.Submit(workload.NewPut(map[txn.Key]txn.Value{9: 123}))
	put := awaitResult(t, p)
	require.Equal(t, txn.Committed, put.Status())

	const readers = 10
	for i := 0; i < readers; i++ {
		p.Submit(workload.NewExpect(map[txn.Key]txn.Value{9: 123}))
	}
	for i := 0; i < readers; i++ {
		r := awaitResult(t, p)
		require.Equal(t, txn.Committed, r.Status())
	}
}

func TestLockingExcludesConcurrentWriters(t *testing.T) {
	for _, mode := range []Mode{LockingExclusiveOnly, Locking} {
		mode := mode
		t.Run(mode.String(), func(t *testing.T) {
			p := newTestProcessor(t, mode)

			const writers = 20
			for i := 0; i < writers; i++ {
				p.Submit(workload.NewRMW(nil, []txn.Key{3}, 1))
			}
			for i := 0; i < writers; i++ {
				r := awaitResult(t, p)
				require.Equal(t, txn.Committed, r.Status())
			}

			p.Submit(workload.NewExpect(map[txn.Key]txn.Value{3: writers}))
			r := awaitResult(t, p)
			require.Equal(t, txn.Committed, r.Status())
		})
	}
}

// TestMultiKeyLockingReleasesAndRestartsInsteadOfDeadlocking is the
// spec's literal read_set={1,2}, write_set={3} boundary case: two
// transactions contending for an overlapping multi-key footprint in
// opposite orders must never wait on each other forever. Both must
// eventually commit under either Locking discipline.
func TestMultiKeyLockingReleasesAndRestartsInsteadOfDeadlocking(t *testing.T) {
	for _, mode := range []Mode{LockingExclusiveOnly, Locking} {
		mode := mode
		t.Run(mode.String(), func(t *testing.T) {
			p := newTestProcessor(t, mode)

			const rounds = 25
			for i := 0; i < rounds; i++ {
				p.Submit(workload.NewRMW([]txn.Key{1, 2}, []txn.Key{3}, 1))
				p.Submit(workload.NewRMW([]txn.Key{3}, []txn.Key{1, 2}, 1))
			}
			for i := 0; i < 2*rounds; i++ {
				r := awaitResult(t, p)
				require.Equal(t, txn.Committed, r.Status())
			}
		})
	}
}
