package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingQueueFIFO(t *testing.T) {
	q := NewRingQueue[int](4)
	assert.True(t, q.IsEmpty())

	for i := 1; i <= 4; i++ {
		require.NoError(t, q.Enqueue(i))
	}
	assert.True(t, q.IsFull())
	assert.Equal(t, 4, q.Len())

	for i := 1; i <= 4; i++ {
		v, err := q.Dequeue()
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.True(t, q.IsEmpty())
}

func TestRingQueueFullAndEmptyErrors(t *testing.T) {
	q := NewRingQueue[string](1)

	_, err := q.Dequeue()
	assert.ErrorIs(t, err, ErrQueueEmpty)
	_, err = q.Peek()
	assert.ErrorIs(t, err, ErrQueueEmpty)

	require.NoError(t, q.Enqueue("a"))
	assert.ErrorIs(t, q.Enqueue("b"), ErrQueueFull)

	v, err := q.Peek()
	require.NoError(t, err)
	assert.Equal(t, "a", v)
	assert.Equal(t, 1, q.Len())
}

func TestRingQueueWrapAround(t *testing.T) {
	q := NewRingQueue[int](3)
	for i := 0; i < 10; i++ {
		if q.IsFull() {
			_, err := q.Dequeue()
			require.NoError(t, err)
		}
		require.NoError(t, q.Enqueue(i))
	}
	// The last three survive, oldest first.
	var got []int
	q.Each(func(v int) { got = append(got, v) })
	assert.Equal(t, []int{7, 8, 9}, got)
}

func TestRingQueueEachOrder(t *testing.T) {
	q := NewRingQueue[float64](5)
	require.NoError(t, q.Enqueue(1.5))
	require.NoError(t, q.Enqueue(2.5))
	require.NoError(t, q.Enqueue(3.5))

	sum := 0.0
	q.Each(func(v float64) { sum += v })
	assert.Equal(t, 7.5, sum)
}
