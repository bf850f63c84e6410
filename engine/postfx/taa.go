package postfx

import (
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// TAA resource identifiers.
const (
	taaResColorInput ResourceID = iota
	taaResTransientCount

	taaResConstants
	taaResAccum0
	taaResAccum1
	taaResCount
)

// The resolve technique is keyed per ping-pong slot since its history and
// output bindings differ by frame parity.
const (
	taaTechResolveSlot0 TechniqueKind = iota
	taaTechResolveSlot1
)

// TemporalAntiAliasingAttribs are the host-tunable TAA parameters.
type TemporalAntiAliasingAttribs struct {
	// Weight of the current frame in steady state; 1.0 is "no history".
	BlendFactor float32
	// Variance clipping aggressiveness; larger admits more history.
	VarianceGamma float32
	// Extra current-frame weight added per texel of screen motion.
	MotionWeight float32
}

func DefaultTemporalAntiAliasingAttribs() TemporalAntiAliasingAttribs {
	return TemporalAntiAliasingAttribs{
		BlendFactor:   0.1,
		VarianceGamma: 1.0,
		MotionWeight:  0.05,
	}
}

// TemporalAntiAliasingRenderAttributes carries the per-frame Execute inputs.
type TemporalAntiAliasingRenderAttributes struct {
	Context  renderer.CommandContext
	PostFX   *PostFXContext
	ColorSRV renderer.TextureView
	Attribs  *TemporalAntiAliasingAttribs
}

type taaConstants struct {
	Alpha         float32
	VarianceGamma float32
	MotionWeight  float32
	UseBicubic    uint32
	UseYCoCg      uint32
}

// TemporalAntiAliasing accumulates jittered frames into a ping-pong history
// pair. The write slot is frameIndex % 2; a frame-index discontinuity makes
// the resolve write the current frame unblended (alpha = 1).
type TemporalAntiAliasing struct {
	device     renderer.Device
	registry   *ResourceRegistry
	techniques *TechniqueCache

	width, height uint32
	flags         FeatureFlag
	prepared      bool

	accumulation *AccumulationState
	lastSlot     uint32
	lastConsts   taaConstants
	haveConsts   bool
}

func NewTemporalAntiAliasing() *TemporalAntiAliasing {
	return &TemporalAntiAliasing{
		registry:     NewResourceRegistry(uint32(taaResCount), taaResTransientCount),
		techniques:   NewTechniqueCache(),
		accumulation: NewAccumulationState(2),
	}
}

// PrepareResources sizes the two accumulation buffers. O(1) when
// (width, height, flags) are unchanged. A resize discards history.
func (t *TemporalAntiAliasing) PrepareResources(device renderer.Device, postFX *PostFXContext, flags FeatureFlag) {
	core.AssertNotNil(device, "device")
	core.AssertNotNil(postFX, "postFX")

	frame := postFX.FrameDesc()
	if t.prepared && frame.Width == t.width && frame.Height == t.height && flags == t.flags {
		return
	}

	t.device = device
	t.width, t.height = frame.Width, frame.Height
	t.flags = flags
	t.prepared = true
	t.accumulation.Invalidate()

	for _, id := range []ResourceID{taaResAccum0, taaResAccum1} {
		t.registry.Insert(id, device.CreateTexture(metadata.TextureDescriptor{
			Name: "TAA::Accumulation", Width: frame.Width, Height: frame.Height,
			MipLevels: 1, Format: metadata.FormatRGBA16Float,
			BindFlags: metadata.BindShaderResource | metadata.BindUnorderedAccess,
		}))
	}
	if t.registry.Buffer(taaResConstants) == nil {
		t.registry.Insert(taaResConstants, device.CreateBuffer(metadata.BufferDescriptor{
			Name: "TAA::Constants",
			Size: uint64(len(packConstants(&taaConstants{}))),
			BindFlags: metadata.BindConstantBuffer,
			Usage:     metadata.UsageDynamic,
		}))
	}

	t.techniques.ReleaseSRBs()
	t.haveConsts = false
}

// Execute resolves the current frame against history. History blending
// happens in PQ-compressed (optionally YCoCg-decorrelated) space with
// variance clipping; the constants carry the base alpha and the motion
// weight, and the shader raises alpha per pixel with the motion magnitude.
func (t *TemporalAntiAliasing) Execute(attribs *TemporalAntiAliasingRenderAttributes) {
	core.AssertNotNil(attribs, "attribs")
	core.AssertNotNil(attribs.Context, "attribs.Context")
	core.AssertNotNil(attribs.PostFX, "attribs.PostFX")
	core.AssertNotNil(attribs.ColorSRV, "attribs.ColorSRV")
	core.AssertNotNil(attribs.Attribs, "attribs.Attribs")
	core.Assert(t.prepared, "Execute before PrepareResources")

	ctx := attribs.Context
	t.registry.InsertBorrowed(taaResColorInput, attribs.ColorSRV)

	slot, reset := t.accumulation.Update(attribs.PostFX.FrameDesc().Index)
	t.lastSlot = slot

	consts := taaConstants{
		Alpha:         math.Clamp(attribs.Attribs.BlendFactor, 0, 1),
		VarianceGamma: attribs.Attribs.VarianceGamma,
		MotionWeight:  math.Clamp(attribs.Attribs.MotionWeight, 0, 1),
	}
	if reset {
		consts.Alpha = 1.0
	}
	if t.flags.Has(FeatureBicubicFilter) {
		consts.UseBicubic = 1
	}
	if t.flags.Has(FeatureYCoCgColorSpace) {
		consts.UseYCoCg = 1
	}
	if !t.haveConsts || consts != t.lastConsts {
		ctx.UpdateBuffer(t.registry.Buffer(taaResConstants), packConstants(&consts))
		t.lastConsts = consts
		t.haveConsts = true
	}

	write := taaResAccum0 + ResourceID(slot)
	read := taaResAccum0 + ResourceID(1-slot)

	kind := taaTechResolveSlot0 + TechniqueKind(slot)
	tech := t.techniques.GetOrCreate(TechniqueKey{Kind: kind, Flags: t.flags})
	if !tech.IsInitializedPSO() {
		tech.InitializePSO(t.device, metadata.PipelineDescriptor{
			Name:          "TAA::Resolve",
			ComputeShader: "taa_resolve_cs.hlsl",
		})
	}
	if !tech.IsInitializedSRB() {
		srb := tech.InitializeSRB()
		srb.SetTexture("g_History", t.registry.Texture(read).SRV(), metadata.SamplerLinearClamp)
		srb.SetTexture("g_Output", t.registry.Texture(write).UAV(0), metadata.SamplerPoint)
		srb.SetTexture("g_Motion", attribs.PostFX.ClosestMotionSRV(), metadata.SamplerPoint)
		srb.SetBuffer("cbTemporalAttribs", t.registry.Buffer(taaResConstants))
	}
	tech.SRB.SetTexture("g_Color", t.registry.View(taaResColorInput), metadata.SamplerPoint)

	ctx.SetPipeline(tech.PSO)
	ctx.CommitBinding(tech.SRB)
	gx, gy := dispatchGroups(t.width, t.height)
	ctx.Dispatch(gx, gy, 1)

	t.registry.ReleaseTransient()
}

// GetAccumulatedFrameSRV returns the buffer written by the latest Execute.
func (t *TemporalAntiAliasing) GetAccumulatedFrameSRV() renderer.TextureView {
	return t.registry.Texture(taaResAccum0 + ResourceID(t.lastSlot)).SRV()
}

// Registry exposes the effect's resource registry for inspection.
func (t *TemporalAntiAliasing) Registry() *ResourceRegistry { return t.registry }

// Techniques exposes the effect's technique cache for inspection.
func (t *TemporalAntiAliasing) Techniques() *TechniqueCache { return t.techniques }

// Accumulation exposes the temporal state for inspection.
func (t *TemporalAntiAliasing) Accumulation() *AccumulationState { return t.accumulation }

// UpdateUI clamps the attribs to their valid ranges and reports whether
// anything changed.
func (t *TemporalAntiAliasing) UpdateUI(a *TemporalAntiAliasingAttribs, flags *FeatureFlag) bool {
	clamped := TemporalAntiAliasingAttribs{
		BlendFactor:   math.Clamp(a.BlendFactor, 0.01, 1),
		VarianceGamma: math.Clamp(a.VarianceGamma, 0.5, 2),
		MotionWeight:  math.Clamp(a.MotionWeight, 0, 1),
	}
	changed := clamped != *a
	*a = clamped
	return changed
}

// Shutdown releases all owned resources and techniques.
func (t *TemporalAntiAliasing) Shutdown() {
	t.techniques.ReleaseAll()
	t.registry.ReleaseAll()
}
