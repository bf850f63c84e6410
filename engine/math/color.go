package math

import m "math"

// Temporal accumulation blends HDR color in a tone-compressed, decorrelated
// encoding so variance clipping stays well conditioned near extreme
// brightness. The compression is the SMPTE ST.2084 perceptual quantizer over
// a fixed normalization range; chroma decorrelation is the reversible YCoCg
// transform. Encode and decode round-trip exactly up to floating point noise,
// so history never drifts when a pixel is clipped and written back.

const (
	pqM1 = 2610.0 / 16384.0
	pqM2 = 2523.0 / 4096.0 * 128.0
	pqC1 = 3424.0 / 4096.0
	pqC2 = 2413.0 / 4096.0 * 32.0
	pqC3 = 2392.0 / 4096.0 * 32.0

	// PQMaxLuminance is the linear value mapped to an encoded 1.0. HDR scene
	// color above it clips in the encoded domain.
	PQMaxLuminance = 100.0
)

// PQEncode compresses a non-negative linear HDR value into [0, 1].
func PQEncode(x float32) float32 {
	if x <= 0 {
		return 0
	}
	p := m.Pow(float64(x)/PQMaxLuminance, pqM1)
	return float32(m.Pow((pqC1+pqC2*p)/(1.0+pqC3*p), pqM2))
}

// PQDecode inverts PQEncode.
func PQDecode(n float32) float32 {
	if n <= 0 {
		return 0
	}
	p := m.Pow(float64(n), 1.0/pqM2)
	num := p - pqC1
	if num < 0 {
		num = 0
	}
	return float32(PQMaxLuminance * m.Pow(num/(pqC2-pqC3*p), 1.0/pqM1))
}

// PQEncodeVec3 applies PQEncode per channel.
func PQEncodeVec3(c Vec3) Vec3 {
	return Vec3{X: PQEncode(c.X), Y: PQEncode(c.Y), Z: PQEncode(c.Z)}
}

// PQDecodeVec3 applies PQDecode per channel.
func PQDecodeVec3(c Vec3) Vec3 {
	return Vec3{X: PQDecode(c.X), Y: PQDecode(c.Y), Z: PQDecode(c.Z)}
}

// RGBToYCoCg converts RGB to the YCoCg decorrelated space. The transform
// uses only power-of-two coefficients, so it is exactly reversible.
func RGBToYCoCg(c Vec3) Vec3 {
	return Vec3{
		X: c.X*0.25 + c.Y*0.5 + c.Z*0.25,
		Y: c.X*0.5 - c.Z*0.5,
		Z: -c.X*0.25 + c.Y*0.5 - c.Z*0.25,
	}
}

// YCoCgToRGB inverts RGBToYCoCg.
func YCoCgToRGB(c Vec3) Vec3 {
	return Vec3{
		X: c.X + c.Y - c.Z,
		Y: c.X + c.Z,
		Z: c.X - c.Y - c.Z,
	}
}
