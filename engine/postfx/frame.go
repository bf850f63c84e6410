package postfx

import (
	"bytes"
	"encoding/binary"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
)

// FrameDescriptor identifies the current frame for every effect. Index must
// increase by exactly one between frames for temporal history to survive;
// any other sequence is detected as a discontinuity and resets accumulation.
type FrameDescriptor struct {
	Index  uint64
	Width  uint32
	Height uint32
	// Dimensions of the final output; differ from Width/Height when an
	// upscaler sits between the effects and the swapchain.
	OutputWidth  uint32
	OutputHeight uint32
}

// FeatureFlag selects shader variants. A render technique is keyed by its
// flag combination, so variants coexist in the cache.
type FeatureFlag uint32

const (
	FeatureNone               FeatureFlag = 0
	FeatureReversedDepth      FeatureFlag = 1 << 0
	FeatureHalfPrecisionDepth FeatureFlag = 1 << 1
	FeatureGaussWeighting     FeatureFlag = 1 << 2
	FeatureBicubicFilter      FeatureFlag = 1 << 3
	FeatureYCoCgColorSpace    FeatureFlag = 1 << 4
	FeatureAsyncCreation      FeatureFlag = 1 << 5
)

func (f FeatureFlag) Has(flag FeatureFlag) bool {
	return f&flag != 0
}

// CameraAttribs is the GPU-visible camera constant block. Field order and
// padding must match the CameraAttribs struct in postfx_camera.hlsl.
type CameraAttribs struct {
	ViewProj     math.Mat4
	ViewProjInv  math.Mat4
	Position     math.Vec4
	Jitter       math.Vec2
	ViewportSize math.Vec2
	NearPlane    float32
	FarPlane     float32
	Padding      [2]float32
}

// packConstants serializes a POD constant block to the little-endian byte
// layout the GPU expects. The value must contain only fixed-size fields.
func packConstants(v interface{}) []byte {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		core.LogFatal("constant block not serializable: %v", err)
	}
	return buf.Bytes()
}
