package pool

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubmitRunsEveryTask(t *testing.T) {
	p := New(4, 8)
	var count int64

	const n = 200
	for i := 0; i < n; i++ {
		p.Submit(func() error {
			atomic.AddInt64(&count, 1)
			return nil
		})
	}

	require.NoError(t, p.Shutdown())
	require.EqualValues(t, n, atomic.LoadInt64(&count))
}

func TestShutdownAggregatesTaskErrors(t *testing.T) {
	p := New(2, 4)
	errA := errors.New("task a failed")
	errB := errors.New("task b failed")

	p.Submit(func() error { return errA })
	p.Submit(func() error { return errB })
	p.Submit(func() error { return nil })

	err := p.Shutdown()
	require.Error(t, err)
	require.ErrorIs(t, err, errA)
	require.ErrorIs(t, err, errB)
}

func TestActiveFlagFalseAfterShutdown(t *testing.T) {
	p := New(1, 1)
	require.True(t, p.Active())
	require.NoError(t, p.Shutdown())
	require.False(t, p.Active())
}
