package jobs

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPoolValidation(t *testing.T) {
	_, err := NewPool(0, 4)
	assert.ErrorIs(t, err, ErrNoWorkers)

	_, err = NewPool(-1, 4)
	assert.ErrorIs(t, err, ErrNoWorkers)

	_, err = NewPool(2, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)
}

func TestPoolRunsTasks(t *testing.T) {
	pool, err := NewPool(4, 16)
	require.NoError(t, err)

	var ran, completed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		pool.Submit(Task{
			Name: "count",
			OnStart: func() error {
				ran.Add(1)
				return nil
			},
			OnComplete: func() {
				completed.Add(1)
				wg.Done()
			},
		})
	}
	wg.Wait()

	assert.Equal(t, int32(32), ran.Load())
	assert.Equal(t, int32(32), completed.Load())
	require.NoError(t, pool.Shutdown())
}

func TestPoolReportsFailure(t *testing.T) {
	pool, err := NewPool(1, 1)
	require.NoError(t, err)

	boom := errors.New("boom")
	var wg sync.WaitGroup
	var got error
	var completed bool

	wg.Add(1)
	pool.Submit(Task{
		Name:    "failing",
		OnStart: func() error { return boom },
		OnComplete: func() {
			completed = true
		},
		OnFailure: func(err error) {
			got = err
			wg.Done()
		},
	})
	wg.Wait()

	assert.ErrorIs(t, got, boom)
	assert.False(t, completed, "OnComplete must not run after a failure")
	require.NoError(t, pool.Shutdown())
}

func TestPoolShutdownDrainsQueue(t *testing.T) {
	pool, err := NewPool(2, 8)
	require.NoError(t, err)

	var ran atomic.Int32
	for i := 0; i < 8; i++ {
		pool.Submit(Task{
			Name:    "drain",
			OnStart: func() error { ran.Add(1); return nil },
		})
	}
	require.NoError(t, pool.Shutdown())
	assert.Equal(t, int32(8), ran.Load())
}

func TestPoolSubmitAfterShutdownIsDropped(t *testing.T) {
	pool, err := NewPool(2, 4)
	require.NoError(t, err)
	require.NoError(t, pool.Shutdown())

	// Neither submission path may panic or run once the pool is down.
	var ran atomic.Int32
	late := Task{Name: "late", OnStart: func() error { ran.Add(1); return nil }}
	pool.Submit(late)
	pool.SubmitNonBlocking(late)

	require.NoError(t, pool.Shutdown(), "repeated shutdown must be a no-op")
	assert.Equal(t, int32(0), ran.Load())
}
