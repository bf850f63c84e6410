package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFullMipCount(t *testing.T) {
	assert.Equal(t, uint32(0), FullMipCount(0, 100))
	assert.Equal(t, uint32(0), FullMipCount(100, 0))
	assert.Equal(t, uint32(1), FullMipCount(1, 1))
	assert.Equal(t, uint32(2), FullMipCount(2, 1))
	assert.Equal(t, uint32(9), FullMipCount(256, 256))
	assert.Equal(t, uint32(11), FullMipCount(1024, 512))
	assert.Equal(t, uint32(11), FullMipCount(1920, 1080))
}

func TestMipDimension(t *testing.T) {
	assert.Equal(t, uint32(1024), MipDimension(1024, 0))
	assert.Equal(t, uint32(512), MipDimension(1024, 1))
	assert.Equal(t, uint32(1), MipDimension(1024, 10))
	// Never collapses to zero.
	assert.Equal(t, uint32(1), MipDimension(1024, 20))
	assert.Equal(t, uint32(1), MipDimension(3, 5))
	// Odd dimensions floor.
	assert.Equal(t, uint32(960), MipDimension(1920, 1))
	assert.Equal(t, uint32(540), MipDimension(1080, 1))
	assert.Equal(t, uint32(135), MipDimension(1080, 3))
}

func TestClampAndSaturate(t *testing.T) {
	assert.Equal(t, 5, Clamp(7, 0, 5))
	assert.Equal(t, 0, Clamp(-3, 0, 5))
	assert.Equal(t, 3, Clamp(3, 0, 5))
	assert.Equal(t, float32(1), Saturate(4.2))
	assert.Equal(t, float32(0), Saturate(-0.1))
	assert.Equal(t, float32(0.25), Saturate(0.25))
}

func TestLerp(t *testing.T) {
	assert.Equal(t, float32(2), Lerp(2, 8, 0))
	assert.Equal(t, float32(8), Lerp(2, 8, 1))
	assert.Equal(t, float32(5), Lerp(2, 8, 0.5))
}
