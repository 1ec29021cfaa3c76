package workload

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ccengine/pkg/txn"
)

func TestHashKeyIsWithinRange(t *testing.T) {
	for _, id := range []string{"a", "b", "user:42", ""} {
		k := HashKey(id, 1000)
		require.Less(t, k, txn.Key(1000))
	}
}

func TestHashKeyIsDeterministic(t *testing.T) {
	require.Equal(t, HashKey("same", 1000), HashKey("same", 1000))
}

func TestUniformStaysInRange(t *testing.T) {
	g := NewUniform(37, 1)
	for i := 0; i < 1000; i++ {
		require.Less(t, g.Next(), txn.Key(37))
	}
}

func TestZipfianStaysInRange(t *testing.T) {
	g := NewZipfian(37, 1, 1.2, 1)
	for i := 0; i < 1000; i++ {
		require.Less(t, g.Next(), txn.Key(37))
	}
}

func TestNewNoopCommits(t *testing.T) {
	noop := NewNoop()
	noop.ID = 1
	noop.Logic.Run(noop)
	require.Equal(t, txn.CompletedCommit, noop.Status())
}

func TestNewPutThenExpectRoundTrips(t *testing.T) {
	put := NewPut(map[txn.Key]txn.Value{1: 10, 2: 20})
	put.ID = 1
	for k := range put.WriteSet {
		v, _ := put.Read(k) // seed nothing: exercises the zero-value path
		_ = v
	}
	put.Logic.Run(put)
	require.Equal(t, txn.CompletedCommit, put.Status())

	expect := NewExpect(map[txn.Key]txn.Value{1: 10, 2: 20})
	expect.ID = 2
	expect.SeedRead(1, 10)
	expect.SeedRead(2, 20)
	expect.Logic.Run(expect)
	require.Equal(t, txn.CompletedCommit, expect.Status())
}

func TestNewExpectAbortsOnMismatch(t *testing.T) {
	expect := NewExpect(map[txn.Key]txn.Value{1: 10})
	expect.ID = 1
	expect.SeedRead(1, 999)
	expect.Logic.Run(expect)
	require.Equal(t, txn.CompletedAbort, expect.Status())
}

func TestNewRMWIncrementsEveryWriteKeyOnly(t *testing.T) {
	rmw := NewRMW([]txn.Key{9}, []txn.Key{1, 2}, 5)
	rmw.ID = 1
	rmw.SeedRead(9, 1000)
	rmw.SeedRead(1, 100)
	rmw.SeedRead(2, 200)
	rmw.Logic.Run(rmw)

	require.Equal(t, txn.CompletedCommit, rmw.Status())
	writes := rmw.Writes()
	require.EqualValues(t, 105, writes[1])
	require.EqualValues(t, 205, writes[2])
	_, writtenReadKey := writes[9]
	require.False(t, writtenReadKey, "a read-only key must never appear in the write buffer")
}
