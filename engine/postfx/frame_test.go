package postfx

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureFlagHas(t *testing.T) {
	flags := FeatureBicubicFilter | FeatureYCoCgColorSpace
	assert.True(t, flags.Has(FeatureBicubicFilter))
	assert.True(t, flags.Has(FeatureYCoCgColorSpace))
	assert.False(t, flags.Has(FeatureReversedDepth))
	assert.False(t, FeatureNone.Has(FeatureBicubicFilter))
}

func TestPackConstantsLittleEndian(t *testing.T) {
	type block struct {
		A float32
		B uint32
	}
	data := packConstants(&block{A: 1.5, B: 0x01020304})
	require.Len(t, data, 8)

	assert.Equal(t, math.Float32bits(1.5), binary.LittleEndian.Uint32(data[0:4]))
	assert.Equal(t, uint32(0x01020304), binary.LittleEndian.Uint32(data[4:8]))
}

func TestCameraAttribsBlockSize(t *testing.T) {
	// Two 4x4 matrices, one float4, two float2 and four scalars: the HLSL
	// constant block is 176 bytes and the Go mirror must match it exactly.
	data := packConstants(&CameraAttribs{})
	assert.Len(t, data, 176)
}
