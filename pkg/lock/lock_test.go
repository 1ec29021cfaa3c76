package lock

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ccengine/pkg/txn"
)

func mkTxn(id uint64) *txn.Txn {
	t := txn.New(nil, nil, nil)
	t.ID = id
	return t
}

func TestManagerAGrantsOnlyOneWriterAtATime(t *testing.T) {
	m := NewManagerA()
	t1, t2 := mkTxn(1), mkTxn(2)

	require.True(t, m.WriteLock(t1, 10))
	require.False(t, m.WriteLock(t2, 10), "second writer must queue behind the first")

	mode, owners := m.Status(10)
	require.Equal(t, Exclusive, mode)
	require.Equal(t, []*txn.Txn{t1}, owners)

	ready := m.Release(t1, 10)
	require.Equal(t, []*txn.Txn{t2}, ready)

	mode, owners = m.Status(10)
	require.Equal(t, Exclusive, mode)
	require.Equal(t, []*txn.Txn{t2}, owners)
}

func TestManagerAReadLockIsAlsoExclusive(t *testing.T) {
	m := NewManagerA()
	t1, t2 := mkTxn(1), mkTxn(2)

	require.True(t, m.ReadLock(t1, 10))
	require.False(t, m.ReadLock(t2, 10))
}

func TestManagerBAllowsConcurrentReaders(t *testing.T) {
	m := NewManagerB()
	t1, t2 := mkTxn(1), mkTxn(2)

	require.True(t, m.ReadLock(t1, 10))
	require.True(t, m.ReadLock(t2, 10))

	mode, owners := m.Status(10)
	require.Equal(t, Shared, mode)
	require.ElementsMatch(t, []*txn.Txn{t1, t2}, owners)
}

func TestManagerBWriterWaitsForReadersAndBlocksNewReaders(t *testing.T) {
	m := NewManagerB()
	reader, writer, laterReader := mkTxn(1), mkTxn(2), mkTxn(3)

	require.True(t, m.ReadLock(reader, 10))
	require.False(t, m.WriteLock(writer, 10), "writer must wait for the existing reader")
	require.False(t, m.ReadLock(laterReader, 10), "a reader arriving after a waiting writer must not jump the queue")

	ready := m.Release(reader, 10)
	require.Equal(t, []*txn.Txn{writer}, ready)

	ready = m.Release(writer, 10)
	require.Equal(t, []*txn.Txn{laterReader}, ready)
}

func TestManagerBReleaseOfNonHolderIsNoop(t *testing.T) {
	m := NewManagerB()
	other := mkTxn(1)

	ready := m.Release(other, 10)
	require.Nil(t, ready)
}

func TestManagerBOneWriterTenReaders(t *testing.T) {
	m := NewManagerB()
	writer := mkTxn(1)
	require.True(t, m.WriteLock(writer, 10))

	readers := make([]*txn.Txn, 10)
	for i := range readers {
		readers[i] = mkTxn(uint64(i + 2))
		require.False(t, m.ReadLock(readers[i], 10), "readers must all queue behind the writer")
	}

	ready := m.Release(writer, 10)
	require.ElementsMatch(t, readers, ready, "releasing the writer must admit every queued reader at once")

	mode, owners := m.Status(10)
	require.Equal(t, Shared, mode)
	require.ElementsMatch(t, readers, owners)
}
