package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPQEncodeBounds(t *testing.T) {
	assert.Equal(t, float32(0), PQEncode(0))
	assert.Equal(t, float32(0), PQEncode(-1))
	assert.InDelta(t, 1.0, PQEncode(PQMaxLuminance), 1e-5)

	// Monotonic over the working range.
	prev := float32(-1)
	for _, x := range []float32{0, 0.001, 0.01, 0.1, 0.5, 1, 5, 20, 80, PQMaxLuminance} {
		e := PQEncode(x)
		assert.Greater(t, e, prev, "PQEncode must be strictly increasing at %v", x)
		assert.GreaterOrEqual(t, e, float32(0))
		assert.LessOrEqual(t, e, float32(1))
		prev = e
	}
}

func TestPQRoundTrip(t *testing.T) {
	for _, x := range []float32{0, 0.0005, 0.02, 0.18, 1, 4.2, 33.3, 99, PQMaxLuminance} {
		back := PQDecode(PQEncode(x))
		assert.InDelta(t, x, back, float64(x)*1e-4+1e-5, "round trip at %v", x)
	}
}

func TestPQDecodeBounds(t *testing.T) {
	assert.Equal(t, float32(0), PQDecode(0))
	assert.Equal(t, float32(0), PQDecode(-0.5))
	assert.InDelta(t, PQMaxLuminance, PQDecode(1), 1e-2)
}

func TestYCoCgRoundTripExact(t *testing.T) {
	// Power-of-two coefficients make the transform exactly reversible for
	// values that are themselves exact in binary floating point.
	colors := []Vec3{
		{X: 0, Y: 0, Z: 0},
		{X: 1, Y: 1, Z: 1},
		{X: 1, Y: 0, Z: 0},
		{X: 0, Y: 1, Z: 0},
		{X: 0, Y: 0, Z: 1},
		{X: 0.5, Y: 0.25, Z: 0.125},
		{X: 4, Y: 2, Z: 8},
	}
	for _, c := range colors {
		assert.Equal(t, c, YCoCgToRGB(RGBToYCoCg(c)), "round trip of %v", c)
	}
}

func TestYCoCgLumaOfGray(t *testing.T) {
	// Gray maps to pure luma with zero chroma.
	g := RGBToYCoCg(Vec3{X: 0.5, Y: 0.5, Z: 0.5})
	assert.Equal(t, float32(0.5), g.X)
	assert.Equal(t, float32(0), g.Y)
	assert.Equal(t, float32(0), g.Z)
}

func TestPQVec3MatchesScalar(t *testing.T) {
	c := Vec3{X: 0.1, Y: 2, Z: 50}
	e := PQEncodeVec3(c)
	assert.Equal(t, PQEncode(c.X), e.X)
	assert.Equal(t, PQEncode(c.Y), e.Y)
	assert.Equal(t, PQEncode(c.Z), e.Z)
	d := PQDecodeVec3(e)
	assert.InDelta(t, c.X, d.X, 1e-4)
	assert.InDelta(t, c.Y, d.Y, 1e-3)
	assert.InDelta(t, c.Z, d.Z, 1e-2)
}
