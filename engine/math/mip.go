package math

import "github.com/chewxy/math32"

// FullMipCount returns the number of mip levels in a complete chain for a
// texture of the given dimensions, including the base level.
func FullMipCount(width, height uint32) uint32 {
	if width == 0 || height == 0 {
		return 0
	}
	largest := width
	if height > largest {
		largest = height
	}
	return uint32(math32.Floor(math32.Log2(float32(largest)))) + 1
}

// MipDimension returns a texture dimension at the given mip level, never
// dropping below one texel.
func MipDimension(base uint32, level uint32) uint32 {
	d := base >> level
	if d == 0 {
		return 1
	}
	return d
}
