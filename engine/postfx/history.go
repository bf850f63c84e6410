package postfx

// InvalidFrameIndex marks an accumulation state that has never seen a frame.
const InvalidFrameIndex = ^uint64(0)

// AccumulationState is the temporal bookkeeping shared by TAA, the SSAO
// denoiser, SSR and the DOF CoC history. It tracks which physical buffer of
// a ping-pong set is written this frame and whether history is trustworthy.
//
// The buffer selection invariant is explicit and testable:
//
//	activeSlot = frameIndex % bufferCount
//
// so the slot written last frame is automatically the read-only history slot
// this frame (for the usual bufferCount of 2).
type AccumulationState struct {
	lastFrameIndex uint64
	bufferCount    uint32
}

func NewAccumulationState(bufferCount uint32) *AccumulationState {
	if bufferCount == 0 {
		bufferCount = 2
	}
	return &AccumulationState{
		lastFrameIndex: InvalidFrameIndex,
		bufferCount:    bufferCount,
	}
}

// Update advances the state to frameIndex and returns the slot to write this
// frame plus whether history must be discarded. History resets when the
// state is uninitialized or when frameIndex is not the direct successor of
// the last processed frame; decreasing and repeated indices are treated as
// discontinuities rather than errors, so a misbehaving host self-heals into
// a cold start instead of ghosting.
func (s *AccumulationState) Update(frameIndex uint64) (slot uint32, reset bool) {
	reset = s.lastFrameIndex == InvalidFrameIndex || s.lastFrameIndex+1 != frameIndex
	s.lastFrameIndex = frameIndex
	return uint32(frameIndex % uint64(s.bufferCount)), reset
}

// Peek returns the slots for frameIndex without advancing the state.
func (s *AccumulationState) Peek(frameIndex uint64) (write uint32, read uint32) {
	write = uint32(frameIndex % uint64(s.bufferCount))
	read = uint32((frameIndex + uint64(s.bufferCount) - 1) % uint64(s.bufferCount))
	return write, read
}

// Invalidate forces the next Update to report a reset.
func (s *AccumulationState) Invalidate() {
	s.lastFrameIndex = InvalidFrameIndex
}

// LastFrameIndex returns the most recently processed frame index, or
// InvalidFrameIndex before the first Update.
func (s *AccumulationState) LastFrameIndex() uint64 {
	return s.lastFrameIndex
}

// BufferCount returns the size of the ping-pong set.
func (s *AccumulationState) BufferCount() uint32 {
	return s.bufferCount
}
