package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameMetricsRollingAverage(t *testing.T) {
	m := NewFrameMetrics()

	// Constant 16ms frames settle on a 16ms average.
	for i := 0; i < 10; i++ {
		m.Update(0.016)
	}
	assert.InDelta(t, 16.0, m.FrameTimeAvg(), 1e-9)
}

func TestFrameMetricsWindowForgetsOldFrames(t *testing.T) {
	m := NewFrameMetrics()

	// One slow frame followed by enough fast frames to push it out of the
	// 30-sample window.
	m.Update(0.100)
	for i := 0; i < 30; i++ {
		m.Update(0.010)
	}
	assert.InDelta(t, 10.0, m.FrameTimeAvg(), 1e-9)
}

func TestFrameMetricsFPS(t *testing.T) {
	m := NewFrameMetrics()
	assert.Equal(t, 0.0, m.FPS())

	// 60 frames of ~16.7ms cross the one-second boundary.
	for i := 0; i < 61; i++ {
		m.Update(1.0 / 60.0)
	}
	assert.Greater(t, m.FPS(), 55.0)
	assert.Less(t, m.FPS(), 65.0)
}
