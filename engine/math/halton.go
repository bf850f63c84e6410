package math

// Halton returns element `index` of the Halton low-discrepancy sequence for
// the given base, in [0, 1).
func Halton(index uint32, base uint32) float32 {
	f := float32(1.0)
	r := float32(0.0)
	i := index
	for i > 0 {
		f /= float32(base)
		r += f * float32(i%base)
		i /= base
	}
	return r
}

// JitterSequenceLength is the number of sub-pixel jitter offsets cycled by
// the temporal effects before the pattern repeats.
const JitterSequenceLength = 16

// Halton23Jitter returns the sub-pixel jitter offset for a frame index, in
// [-0.5, 0.5) on both axes, cycling every JitterSequenceLength frames. The
// sequence starts at index 1 since Halton(0) is always the degenerate origin.
func Halton23Jitter(frameIndex uint64) Vec2 {
	idx := uint32(frameIndex%JitterSequenceLength) + 1
	return Vec2{
		X: Halton(idx, 2) - 0.5,
		Y: Halton(idx, 3) - 0.5,
	}
}
