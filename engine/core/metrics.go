package core

import "github.com/spaghettifunk/lumen/engine/containers"

const frameAverageCount = 30

// FrameMetrics keeps a rolling average of frame times for the host render
// loop. Explicitly owned by the caller, one instance per renderer.
type FrameMetrics struct {
	msTimes            *containers.RingQueue[float64]
	msAvg              float64
	frames             int32
	accumulatedFrameMS float64
	fps                float64
}

func NewFrameMetrics() *FrameMetrics {
	return &FrameMetrics{
		msTimes: containers.NewRingQueue[float64](frameAverageCount),
	}
}

func (m *FrameMetrics) Update(frameElapsedTime float64) {
	frameMS := frameElapsedTime * 1000.0

	// Rolling window of the last N frame times.
	if m.msTimes.IsFull() {
		m.msTimes.Dequeue()
	}
	m.msTimes.Enqueue(frameMS)

	total := 0.0
	m.msTimes.Each(func(ms float64) { total += ms })
	m.msAvg = total / float64(m.msTimes.Len())

	// Calculate frames per second.
	m.accumulatedFrameMS += frameMS
	if m.accumulatedFrameMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
	}
	m.frames++
}

func (m *FrameMetrics) FPS() float64 {
	return m.fps
}

func (m *FrameMetrics) FrameTimeAvg() float64 {
	return m.msAvg
}
