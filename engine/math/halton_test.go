package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaltonBase2(t *testing.T) {
	assert.Equal(t, float32(0), Halton(0, 2))
	assert.Equal(t, float32(0.5), Halton(1, 2))
	assert.Equal(t, float32(0.25), Halton(2, 2))
	assert.Equal(t, float32(0.75), Halton(3, 2))
	assert.Equal(t, float32(0.125), Halton(4, 2))
}

func TestHaltonBase3(t *testing.T) {
	assert.InDelta(t, 1.0/3.0, Halton(1, 3), 1e-6)
	assert.InDelta(t, 2.0/3.0, Halton(2, 3), 1e-6)
	assert.InDelta(t, 1.0/9.0, Halton(3, 3), 1e-6)
}

func TestHaltonRange(t *testing.T) {
	for i := uint32(0); i < 1000; i++ {
		for _, base := range []uint32{2, 3, 5} {
			v := Halton(i, base)
			assert.GreaterOrEqual(t, v, float32(0))
			assert.Less(t, v, float32(1))
		}
	}
}

func TestHalton23JitterRange(t *testing.T) {
	for frame := uint64(0); frame < 256; frame++ {
		j := Halton23Jitter(frame)
		assert.GreaterOrEqual(t, j.X, float32(-0.5))
		assert.Less(t, j.X, float32(0.5))
		assert.GreaterOrEqual(t, j.Y, float32(-0.5))
		assert.Less(t, j.Y, float32(0.5))
	}
}

func TestHalton23JitterCycles(t *testing.T) {
	for frame := uint64(0); frame < JitterSequenceLength; frame++ {
		assert.Equal(t, Halton23Jitter(frame), Halton23Jitter(frame+JitterSequenceLength))
	}
}

func TestHalton23JitterDistinctWithinCycle(t *testing.T) {
	seen := map[Vec2]bool{}
	for frame := uint64(0); frame < JitterSequenceLength; frame++ {
		j := Halton23Jitter(frame)
		assert.False(t, seen[j], "jitter offset repeats within one cycle at frame %d", frame)
		seen[j] = true
	}
}
