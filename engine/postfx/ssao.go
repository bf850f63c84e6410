package postfx

import (
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// SSAO resource identifiers.
const (
	ssaoResDepthInput ResourceID = iota
	ssaoResTransientCount

	ssaoResConstants
	ssaoResFilterXConstants
	ssaoResFilterYConstants
	ssaoResTemporalConstants
	ssaoResHalfDepth
	ssaoResRawAO
	ssaoResFilteredAO
	ssaoResAccum0
	ssaoResAccum1
	ssaoResCount
)

const (
	ssaoTechDownsampleDepth TechniqueKind = iota
	ssaoTechCompute
	ssaoTechFilterX
	ssaoTechFilterY
	ssaoTechTemporalSlot0
	ssaoTechTemporalSlot1
)

// ScreenSpaceAmbientOcclusionAttribs are the host-tunable SSAO parameters.
type ScreenSpaceAmbientOcclusionAttribs struct {
	// World-space occlusion sampling radius.
	EffectRadius float32
	// Width of the falloff band at the edge of the radius.
	FalloffRange float32
	// Hemisphere slices integrated per pixel.
	SliceCount uint32
	// Depth difference tolerated by the bilateral filter.
	DepthSigma float32
	// Current-frame weight of the temporal denoiser in steady state.
	TemporalStability float32
}

func DefaultScreenSpaceAmbientOcclusionAttribs() ScreenSpaceAmbientOcclusionAttribs {
	return ScreenSpaceAmbientOcclusionAttribs{
		EffectRadius:      0.5,
		FalloffRange:      0.615,
		SliceCount:        3,
		DepthSigma:        0.02,
		TemporalStability: 0.1,
	}
}

// ScreenSpaceAmbientOcclusionRenderAttributes carries the per-frame inputs.
type ScreenSpaceAmbientOcclusionRenderAttributes struct {
	Context  renderer.CommandContext
	PostFX   *PostFXContext
	DepthSRV renderer.TextureView
	Attribs  *ScreenSpaceAmbientOcclusionAttribs
}

type ssaoConstants struct {
	EffectRadius           float32
	DepthMIPSamplingOffset float32
	FalloffRange           float32
	SliceCount             uint32
}

type ssaoFilterConstants struct {
	Direction  math.Vec2
	DepthSigma float32
	UseGauss   uint32
}

type ssaoTemporalConstants struct {
	Alpha   float32
	Padding [3]float32
}

// ScreenSpaceAmbientOcclusion computes a half-resolution horizon-based
// occlusion term, filters it spatially with a depth-aware separable blur and
// stabilizes it temporally against a ping-pong history pair.
type ScreenSpaceAmbientOcclusion struct {
	device     renderer.Device
	registry   *ResourceRegistry
	techniques *TechniqueCache

	width, height uint32
	flags         FeatureFlag
	prepared      bool

	accumulation *AccumulationState
	lastSlot     uint32
	lastAttribs  ScreenSpaceAmbientOcclusionAttribs
	haveAttribs  bool
	noiseVersion uint32
}

func NewScreenSpaceAmbientOcclusion() *ScreenSpaceAmbientOcclusion {
	return &ScreenSpaceAmbientOcclusion{
		registry:     NewResourceRegistry(uint32(ssaoResCount), ssaoResTransientCount),
		techniques:   NewTechniqueCache(),
		accumulation: NewAccumulationState(2),
	}
}

// PrepareResources sizes the intermediate and history textures. O(1) when
// (width, height, flags) are unchanged.
func (s *ScreenSpaceAmbientOcclusion) PrepareResources(device renderer.Device, postFX *PostFXContext, flags FeatureFlag) {
	core.AssertNotNil(device, "device")
	core.AssertNotNil(postFX, "postFX")

	frame := postFX.FrameDesc()
	if s.prepared && frame.Width == s.width && frame.Height == s.height && flags == s.flags {
		return
	}

	s.device = device
	s.width, s.height = frame.Width, frame.Height
	s.flags = flags
	s.prepared = true
	s.accumulation.Invalidate()

	halfW := math.MipDimension(frame.Width, 1)
	halfH := math.MipDimension(frame.Height, 1)

	depthFormat := metadata.FormatR32Float
	if flags.Has(FeatureHalfPrecisionDepth) {
		depthFormat = metadata.FormatR16Float
	}

	s.registry.Insert(ssaoResHalfDepth, device.CreateTexture(metadata.TextureDescriptor{
		Name: "SSAO::HalfDepth", Width: halfW, Height: halfH,
		MipLevels: 1, Format: depthFormat,
		BindFlags: metadata.BindShaderResource | metadata.BindRenderTarget,
	}))
	for _, id := range []ResourceID{ssaoResRawAO, ssaoResFilteredAO, ssaoResAccum0, ssaoResAccum1} {
		s.registry.Insert(id, device.CreateTexture(metadata.TextureDescriptor{
			Name: "SSAO::Term", Width: halfW, Height: halfH,
			MipLevels: 1, Format: metadata.FormatR8Unorm,
			BindFlags: metadata.BindShaderResource | metadata.BindRenderTarget,
		}))
	}

	if s.registry.Buffer(ssaoResConstants) == nil {
		s.registry.Insert(ssaoResConstants, device.CreateBuffer(metadata.BufferDescriptor{
			Name: "SSAO::Constants", Size: uint64(len(packConstants(&ssaoConstants{}))),
			BindFlags: metadata.BindConstantBuffer, Usage: metadata.UsageDynamic,
		}))
		s.registry.Insert(ssaoResFilterXConstants, device.CreateBuffer(metadata.BufferDescriptor{
			Name: "SSAO::FilterX", Size: uint64(len(packConstants(&ssaoFilterConstants{}))),
			BindFlags: metadata.BindConstantBuffer, Usage: metadata.UsageDynamic,
		}))
		s.registry.Insert(ssaoResFilterYConstants, device.CreateBuffer(metadata.BufferDescriptor{
			Name: "SSAO::FilterY", Size: uint64(len(packConstants(&ssaoFilterConstants{}))),
			BindFlags: metadata.BindConstantBuffer, Usage: metadata.UsageDynamic,
		}))
		s.registry.Insert(ssaoResTemporalConstants, device.CreateBuffer(metadata.BufferDescriptor{
			Name: "SSAO::Temporal", Size: uint64(len(packConstants(&ssaoTemporalConstants{}))),
			BindFlags: metadata.BindConstantBuffer, Usage: metadata.UsageDynamic,
		}))
	}

	s.techniques.ReleaseSRBs()
	s.haveAttribs = false
}

// Execute runs downsample -> occlusion -> bilateral X/Y -> temporal denoise.
func (s *ScreenSpaceAmbientOcclusion) Execute(attribs *ScreenSpaceAmbientOcclusionRenderAttributes) {
	core.AssertNotNil(attribs, "attribs")
	core.AssertNotNil(attribs.Context, "attribs.Context")
	core.AssertNotNil(attribs.PostFX, "attribs.PostFX")
	core.AssertNotNil(attribs.DepthSRV, "attribs.DepthSRV")
	core.AssertNotNil(attribs.Attribs, "attribs.Attribs")
	core.Assert(s.prepared, "Execute before PrepareResources")

	ctx := attribs.Context
	s.registry.InsertBorrowed(ssaoResDepthInput, attribs.DepthSRV)

	// Replaced noise tables invalidate any binding that references them.
	if v := attribs.PostFX.NoiseVersion(); v != s.noiseVersion {
		s.noiseVersion = v
		s.techniques.ReleaseSRBs()
	}

	slot, reset := s.accumulation.Update(attribs.PostFX.FrameDesc().Index)
	s.lastSlot = slot
	s.updateConstants(ctx, attribs.Attribs, reset)

	halfDepth := s.registry.Texture(ssaoResHalfDepth)
	halfDesc := halfDepth.Descriptor()

	// Downsample depth.
	tech := s.techniques.GetOrCreate(TechniqueKey{Kind: ssaoTechDownsampleDepth, Flags: s.flags, Format: halfDesc.Format})
	if !tech.IsInitializedPSO() {
		tech.InitializePSO(s.device, metadata.PipelineDescriptor{
			Name:         "SSAO::DownsampleDepth",
			VertexShader: "fullscreen_triangle_vs.hlsl",
			PixelShader:  "ssao_downsample_depth_ps.hlsl",
			RTVFormats:   []metadata.TextureFormat{halfDesc.Format},
		})
	}
	if !tech.IsInitializedSRB() {
		tech.InitializeSRB()
	}
	tech.SRB.SetTexture("g_Depth", s.registry.View(ssaoResDepthInput), metadata.SamplerPoint)
	drawFullScreen(ctx, tech, halfDepth.RTV(0), halfDesc.Width, halfDesc.Height)

	// Occlusion term.
	tech = s.techniques.GetOrCreate(TechniqueKey{Kind: ssaoTechCompute, Flags: s.flags})
	if !tech.IsInitializedPSO() {
		tech.InitializePSO(s.device, metadata.PipelineDescriptor{
			Name:         "SSAO::Compute",
			VertexShader: "fullscreen_triangle_vs.hlsl",
			PixelShader:  "ssao_compute_ps.hlsl",
			RTVFormats:   []metadata.TextureFormat{metadata.FormatR8Unorm},
		})
	}
	if !tech.IsInitializedSRB() {
		srb := tech.InitializeSRB()
		srb.SetTexture("g_Depth", halfDepth.SRV(), metadata.SamplerPoint)
		srb.SetTexture("g_BlueNoise", attribs.PostFX.BlueNoiseXYSRV(), metadata.SamplerPoint)
		srb.SetBuffer("cbSSAOAttribs", s.registry.Buffer(ssaoResConstants))
	}
	drawFullScreen(ctx, tech, s.registry.Texture(ssaoResRawAO).RTV(0), halfDesc.Width, halfDesc.Height)

	// Bilateral blur, horizontal then vertical. Strict order: the vertical
	// pass consumes the horizontal result.
	s.filterPass(ctx, ssaoTechFilterX, ssaoResRawAO, ssaoResFilteredAO, ssaoResFilterXConstants, halfDesc.Width, halfDesc.Height)
	s.filterPass(ctx, ssaoTechFilterY, ssaoResFilteredAO, ssaoResRawAO, ssaoResFilterYConstants, halfDesc.Width, halfDesc.Height)

	// Temporal denoise into the parity-selected history slot.
	write := ssaoResAccum0 + ResourceID(slot)
	read := ssaoResAccum0 + ResourceID(1-slot)
	tech = s.techniques.GetOrCreate(TechniqueKey{Kind: ssaoTechTemporalSlot0 + TechniqueKind(slot), Flags: s.flags})
	if !tech.IsInitializedPSO() {
		tech.InitializePSO(s.device, metadata.PipelineDescriptor{
			Name:         "SSAO::Temporal",
			VertexShader: "fullscreen_triangle_vs.hlsl",
			PixelShader:  "ssao_temporal_ps.hlsl",
			RTVFormats:   []metadata.TextureFormat{metadata.FormatR8Unorm},
		})
	}
	if !tech.IsInitializedSRB() {
		srb := tech.InitializeSRB()
		srb.SetTexture("g_AO", s.registry.Texture(ssaoResRawAO).SRV(), metadata.SamplerPoint)
		srb.SetTexture("g_History", s.registry.Texture(read).SRV(), metadata.SamplerLinearClamp)
		srb.SetTexture("g_Motion", attribs.PostFX.ClosestMotionSRV(), metadata.SamplerPoint)
		srb.SetBuffer("cbTemporalAttribs", s.registry.Buffer(ssaoResTemporalConstants))
	}
	drawFullScreen(ctx, tech, s.registry.Texture(write).RTV(0), halfDesc.Width, halfDesc.Height)

	s.registry.ReleaseTransient()
}

func (s *ScreenSpaceAmbientOcclusion) filterPass(ctx renderer.CommandContext, kind TechniqueKind, from, to, consts ResourceID, w, h uint32) {
	tech := s.techniques.GetOrCreate(TechniqueKey{Kind: kind, Flags: s.flags})
	if !tech.IsInitializedPSO() {
		tech.InitializePSO(s.device, metadata.PipelineDescriptor{
			Name:         "SSAO::BilateralFilter",
			VertexShader: "fullscreen_triangle_vs.hlsl",
			PixelShader:  "ssao_bilateral_ps.hlsl",
			RTVFormats:   []metadata.TextureFormat{metadata.FormatR8Unorm},
		})
	}
	if !tech.IsInitializedSRB() {
		srb := tech.InitializeSRB()
		srb.SetTexture("g_AO", s.registry.Texture(from).SRV(), metadata.SamplerPoint)
		srb.SetTexture("g_Depth", s.registry.Texture(ssaoResHalfDepth).SRV(), metadata.SamplerPoint)
		srb.SetBuffer("cbFilterAttribs", s.registry.Buffer(consts))
	}
	drawFullScreen(ctx, tech, s.registry.Texture(to).RTV(0), w, h)
}

func (s *ScreenSpaceAmbientOcclusion) updateConstants(ctx renderer.CommandContext, a *ScreenSpaceAmbientOcclusionAttribs, reset bool) {
	alpha := math.Clamp(a.TemporalStability, 0, 1)
	if reset {
		alpha = 1.0
	}
	ctx.UpdateBuffer(s.registry.Buffer(ssaoResTemporalConstants), packConstants(&ssaoTemporalConstants{Alpha: alpha}))

	if s.haveAttribs && *a == s.lastAttribs {
		return
	}
	s.lastAttribs = *a
	s.haveAttribs = true
	ctx.UpdateBuffer(s.registry.Buffer(ssaoResConstants), packConstants(&ssaoConstants{
		EffectRadius: a.EffectRadius,
		FalloffRange: a.FalloffRange,
		SliceCount:   a.SliceCount,
	}))
	var useGauss uint32
	if s.flags.Has(FeatureGaussWeighting) {
		useGauss = 1
	}
	ctx.UpdateBuffer(s.registry.Buffer(ssaoResFilterXConstants), packConstants(&ssaoFilterConstants{
		Direction: math.NewVec2(1, 0), DepthSigma: a.DepthSigma, UseGauss: useGauss,
	}))
	ctx.UpdateBuffer(s.registry.Buffer(ssaoResFilterYConstants), packConstants(&ssaoFilterConstants{
		Direction: math.NewVec2(0, 1), DepthSigma: a.DepthSigma, UseGauss: useGauss,
	}))
}

// GetAmbientOcclusionSRV returns the denoised occlusion term of the latest
// Execute.
func (s *ScreenSpaceAmbientOcclusion) GetAmbientOcclusionSRV() renderer.TextureView {
	return s.registry.Texture(ssaoResAccum0 + ResourceID(s.lastSlot)).SRV()
}

// Registry exposes the effect's resource registry for inspection.
func (s *ScreenSpaceAmbientOcclusion) Registry() *ResourceRegistry { return s.registry }

// Techniques exposes the effect's technique cache for inspection.
func (s *ScreenSpaceAmbientOcclusion) Techniques() *TechniqueCache { return s.techniques }

// Accumulation exposes the temporal state for inspection.
func (s *ScreenSpaceAmbientOcclusion) Accumulation() *AccumulationState { return s.accumulation }

// UpdateUI clamps the attribs to their valid ranges and reports whether
// anything changed.
func (s *ScreenSpaceAmbientOcclusion) UpdateUI(a *ScreenSpaceAmbientOcclusionAttribs, flags *FeatureFlag) bool {
	clamped := ScreenSpaceAmbientOcclusionAttribs{
		EffectRadius:      math.Clamp(a.EffectRadius, 0.05, 10),
		FalloffRange:      math.Clamp(a.FalloffRange, 0.01, 1),
		SliceCount:        math.Clamp(a.SliceCount, 1, 8),
		DepthSigma:        math.Clamp(a.DepthSigma, 0.001, 1),
		TemporalStability: math.Clamp(a.TemporalStability, 0.01, 1),
	}
	changed := clamped != *a
	*a = clamped
	return changed
}

// Shutdown releases all owned resources and techniques.
func (s *ScreenSpaceAmbientOcclusion) Shutdown() {
	s.techniques.ReleaseAll()
	s.registry.ReleaseAll()
}
