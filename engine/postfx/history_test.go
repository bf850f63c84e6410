package postfx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccumulationFirstUpdateResets(t *testing.T) {
	s := NewAccumulationState(2)
	assert.Equal(t, InvalidFrameIndex, s.LastFrameIndex())

	slot, reset := s.Update(0)
	assert.True(t, reset)
	assert.Equal(t, uint32(0), slot)
}

func TestAccumulationConsecutiveFramesKeepHistory(t *testing.T) {
	s := NewAccumulationState(2)
	s.Update(10)

	slot, reset := s.Update(11)
	assert.False(t, reset)
	assert.Equal(t, uint32(1), slot)

	slot, reset = s.Update(12)
	assert.False(t, reset)
	assert.Equal(t, uint32(0), slot)
}

func TestAccumulationDiscontinuitiesReset(t *testing.T) {
	cases := []struct {
		name string
		next uint64
	}{
		{"gap", 15},
		{"repeat", 10},
		{"decrease", 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewAccumulationState(2)
			s.Update(10)
			_, reset := s.Update(tc.next)
			assert.True(t, reset)

			// The state self-heals: the successor of the bad index is clean.
			_, reset = s.Update(tc.next + 1)
			assert.False(t, reset)
		})
	}
}

func TestAccumulationSlotSelection(t *testing.T) {
	s := NewAccumulationState(3)
	for frame := uint64(0); frame < 9; frame++ {
		slot, _ := s.Update(frame)
		assert.Equal(t, uint32(frame%3), slot)
	}
}

func TestAccumulationPeek(t *testing.T) {
	s := NewAccumulationState(2)
	write, read := s.Peek(4)
	assert.Equal(t, uint32(0), write)
	assert.Equal(t, uint32(1), read)

	write, read = s.Peek(5)
	assert.Equal(t, uint32(1), write)
	assert.Equal(t, uint32(0), read)

	// Peek never advances the state.
	assert.Equal(t, InvalidFrameIndex, s.LastFrameIndex())
}

func TestAccumulationInvalidate(t *testing.T) {
	s := NewAccumulationState(2)
	s.Update(0)
	s.Update(1)

	s.Invalidate()
	_, reset := s.Update(2)
	assert.True(t, reset)
}

func TestAccumulationZeroBufferCountDefaultsToTwo(t *testing.T) {
	s := NewAccumulationState(0)
	assert.Equal(t, uint32(2), s.BufferCount())
}
