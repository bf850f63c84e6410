package postfx

import (
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// maxSSRDepthMips bounds the hierarchical depth pyramid.
const maxSSRDepthMips = 8

// SSR resource identifiers.
const (
	ssrResColorInput ResourceID = iota
	ssrResDepthInput
	ssrResNormalInput
	ssrResTransientCount

	ssrResConstants
	ssrResTemporalConstants
	ssrResRays
	ssrResResolved
	ssrResAccum0
	ssrResAccum1
	ssrResDepthPyramid // .. +maxSSRDepthMips
	ssrResCount        = ssrResDepthPyramid + maxSSRDepthMips
)

const (
	ssrTechRayMarch TechniqueKind = iota
	ssrTechResolve
	ssrTechTemporalSlot0
	ssrTechTemporalSlot1
	ssrTechDepthHierarchy // .. +maxSSRDepthMips
)

// ScreenSpaceReflectionAttribs are the host-tunable SSR parameters.
type ScreenSpaceReflectionAttribs struct {
	// Longest ray in view-space units.
	MaxRayDistance float32
	// Assumed surface thickness when classifying a depth hit.
	Thickness float32
	// Upper bound on hierarchical march iterations.
	MaxSteps uint32
	// Surfaces rougher than this fall back to no reflection.
	RoughnessCutoff float32
	// Current-frame weight of the temporal resolve in steady state.
	TemporalStability float32
	// Variance clipping aggressiveness.
	VarianceGamma float32
}

func DefaultScreenSpaceReflectionAttribs() ScreenSpaceReflectionAttribs {
	return ScreenSpaceReflectionAttribs{
		MaxRayDistance:    100.0,
		Thickness:         0.025,
		MaxSteps:          128,
		RoughnessCutoff:   0.8,
		TemporalStability: 0.06,
		VarianceGamma:     1.1,
	}
}

// ScreenSpaceReflectionRenderAttributes carries the per-frame inputs.
type ScreenSpaceReflectionRenderAttributes struct {
	Context   renderer.CommandContext
	PostFX    *PostFXContext
	ColorSRV  renderer.TextureView
	DepthSRV  renderer.TextureView
	NormalSRV renderer.TextureView
	Attribs   *ScreenSpaceReflectionAttribs
}

type ssrConstants struct {
	MaxRayDistance  float32
	Thickness       float32
	MaxSteps        uint32
	RoughnessCutoff float32
	ReversedDepth   uint32
	Padding         [3]float32
}

type ssrTemporalConstants struct {
	Alpha         float32
	VarianceGamma float32
	Padding       [2]float32
}

// ScreenSpaceReflection marches reflection rays against a closest-depth
// pyramid, resolves hits into radiance and accumulates the result temporally.
type ScreenSpaceReflection struct {
	device     renderer.Device
	registry   *ResourceRegistry
	techniques *TechniqueCache

	width, height uint32
	flags         FeatureFlag
	prepared      bool
	pyramidMips   uint32

	accumulation *AccumulationState
	lastSlot     uint32
	lastAttribs  ScreenSpaceReflectionAttribs
	haveAttribs  bool
	noiseVersion uint32
}

func NewScreenSpaceReflection() *ScreenSpaceReflection {
	return &ScreenSpaceReflection{
		registry:     NewResourceRegistry(uint32(ssrResCount), ssrResTransientCount),
		techniques:   NewTechniqueCache(),
		accumulation: NewAccumulationState(2),
	}
}

// PrepareResources sizes the pyramid, intermediate and history textures.
// O(1) when (width, height, flags) are unchanged.
func (s *ScreenSpaceReflection) PrepareResources(device renderer.Device, postFX *PostFXContext, flags FeatureFlag) {
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

	depthFormat := metadata.FormatR32Float
	if flags.Has(FeatureHalfPrecisionDepth) {
		depthFormat = metadata.FormatR16Float
	}

	s.pyramidMips = math.FullMipCount(frame.Width, frame.Height)
	if s.pyramidMips > maxSSRDepthMips {
		s.pyramidMips = maxSSRDepthMips
	}
	for i := uint32(0); i < maxSSRDepthMips; i++ {
		s.registry.Remove(ssrResDepthPyramid + ResourceID(i))
	}
	for i := uint32(0); i < s.pyramidMips; i++ {
		s.registry.Insert(ssrResDepthPyramid+ResourceID(i), device.CreateTexture(metadata.TextureDescriptor{
			Name: "SSR::DepthPyramid", Width: math.MipDimension(frame.Width, i), Height: math.MipDimension(frame.Height, i),
			MipLevels: 1, Format: depthFormat,
			BindFlags: metadata.BindShaderResource | metadata.BindRenderTarget,
		}))
	}

	s.registry.Insert(ssrResRays, device.CreateTexture(metadata.TextureDescriptor{
		Name: "SSR::Rays", Width: frame.Width, Height: frame.Height,
		MipLevels: 1, Format: metadata.FormatRGBA16Float,
		BindFlags: metadata.BindShaderResource | metadata.BindRenderTarget,
	}))
	for _, id := range []ResourceID{ssrResResolved, ssrResAccum0, ssrResAccum1} {
		s.registry.Insert(id, device.CreateTexture(metadata.TextureDescriptor{
			Name: "SSR::Radiance", Width: frame.Width, Height: frame.Height,
			MipLevels: 1, Format: metadata.FormatRGBA16Float,
			BindFlags: metadata.BindShaderResource | metadata.BindRenderTarget,
		}))
	}

	if s.registry.Buffer(ssrResConstants) == nil {
		s.registry.Insert(ssrResConstants, device.CreateBuffer(metadata.BufferDescriptor{
			Name: "SSR::Constants", Size: uint64(len(packConstants(&ssrConstants{}))),
			BindFlags: metadata.BindConstantBuffer, Usage: metadata.UsageDynamic,
		}))
		s.registry.Insert(ssrResTemporalConstants, device.CreateBuffer(metadata.BufferDescriptor{
			Name: "SSR::Temporal", Size: uint64(len(packConstants(&ssrTemporalConstants{}))),
			BindFlags: metadata.BindConstantBuffer, Usage: metadata.UsageDynamic,
		}))
	}

	s.techniques.ReleaseSRBs()
	s.haveAttribs = false
}

// Execute runs pyramid build -> ray march -> resolve -> temporal accumulate.
// The pyramid is rebuilt top-down every frame; each level reads the finer
// level produced immediately before it.
func (s *ScreenSpaceReflection) Execute(attribs *ScreenSpaceReflectionRenderAttributes) {
	core.AssertNotNil(attribs, "attribs")
	core.AssertNotNil(attribs.Context, "attribs.Context")
	core.AssertNotNil(attribs.PostFX, "attribs.PostFX")
	core.AssertNotNil(attribs.ColorSRV, "attribs.ColorSRV")
	core.AssertNotNil(attribs.DepthSRV, "attribs.DepthSRV")
	core.AssertNotNil(attribs.NormalSRV, "attribs.NormalSRV")
	core.AssertNotNil(attribs.Attribs, "attribs.Attribs")
	core.Assert(s.prepared, "Execute before PrepareResources")

	ctx := attribs.Context
	s.registry.InsertBorrowed(ssrResColorInput, attribs.ColorSRV)
	s.registry.InsertBorrowed(ssrResDepthInput, attribs.DepthSRV)
	s.registry.InsertBorrowed(ssrResNormalInput, attribs.NormalSRV)

	if v := attribs.PostFX.NoiseVersion(); v != s.noiseVersion {
		s.noiseVersion = v
		s.techniques.ReleaseSRBs()
	}

	slot, reset := s.accumulation.Update(attribs.PostFX.FrameDesc().Index)
	s.lastSlot = slot
	s.updateConstants(ctx, attribs.Attribs, reset)

	// Depth pyramid: level 0 copies the frame depth, coarser levels reduce.
	ctx.CopyTexture(attribs.DepthSRV.Texture(), s.registry.Texture(ssrResDepthPyramid))
	for i := uint32(1); i < s.pyramidMips; i++ {
		s.pyramidPass(ctx, i)
	}

	s.rayMarchPass(ctx, attribs)
	s.resolvePass(ctx)
	s.temporalPass(ctx, attribs, slot)

	s.registry.ReleaseTransient()
}

func (s *ScreenSpaceReflection) pyramidPass(ctx renderer.CommandContext, level uint32) {
	target := s.registry.Texture(ssrResDepthPyramid + ResourceID(level))
	desc := target.Descriptor()
	tech := s.techniques.GetOrCreate(TechniqueKey{Kind: ssrTechDepthHierarchy + TechniqueKind(level), Flags: s.flags, Format: desc.Format})
	if !tech.IsInitializedPSO() {
		tech.InitializePSO(s.device, metadata.PipelineDescriptor{
			Name:         "SSR::DepthHierarchy",
			VertexShader: "fullscreen_triangle_vs.hlsl",
			PixelShader:  "ssr_depth_hierarchy_ps.hlsl",
			RTVFormats:   []metadata.TextureFormat{desc.Format},
		})
	}
	if !tech.IsInitializedSRB() {
		srb := tech.InitializeSRB()
		srb.SetTexture("g_FinerDepth", s.registry.Texture(ssrResDepthPyramid+ResourceID(level-1)).SRV(), metadata.SamplerPoint)
		srb.SetBuffer("cbSSRAttribs", s.registry.Buffer(ssrResConstants))
	}
	drawFullScreen(ctx, tech, target.RTV(0), desc.Width, desc.Height)
}

func (s *ScreenSpaceReflection) rayMarchPass(ctx renderer.CommandContext, attribs *ScreenSpaceReflectionRenderAttributes) {
	tech := s.techniques.GetOrCreate(TechniqueKey{Kind: ssrTechRayMarch, Flags: s.flags})
	if !tech.IsInitializedPSO() {
		tech.InitializePSO(s.device, metadata.PipelineDescriptor{
			Name:         "SSR::RayMarch",
			VertexShader: "fullscreen_triangle_vs.hlsl",
			PixelShader:  "ssr_ray_march_ps.hlsl",
			RTVFormats:   []metadata.TextureFormat{metadata.FormatRGBA16Float},
		})
	}
	if !tech.IsInitializedSRB() {
		srb := tech.InitializeSRB()
		srb.SetTexture("g_DepthHierarchy", s.registry.Texture(ssrResDepthPyramid).SRV(), metadata.SamplerPoint)
		srb.SetTexture("g_BlueNoise", attribs.PostFX.BlueNoiseZWSRV(), metadata.SamplerPoint)
		srb.SetBuffer("cbSSRAttribs", s.registry.Buffer(ssrResConstants))
	}
	tech.SRB.SetTexture("g_Normal", s.registry.View(ssrResNormalInput), metadata.SamplerPoint)

	drawFullScreen(ctx, tech, s.registry.Texture(ssrResRays).RTV(0), s.width, s.height)
}

func (s *ScreenSpaceReflection) resolvePass(ctx renderer.CommandContext) {
	tech := s.techniques.GetOrCreate(TechniqueKey{Kind: ssrTechResolve, Flags: s.flags})
	if !tech.IsInitializedPSO() {
		tech.InitializePSO(s.device, metadata.PipelineDescriptor{
			Name:         "SSR::Resolve",
			VertexShader: "fullscreen_triangle_vs.hlsl",
			PixelShader:  "ssr_resolve_ps.hlsl",
			RTVFormats:   []metadata.TextureFormat{metadata.FormatRGBA16Float},
		})
	}
	if !tech.IsInitializedSRB() {
		srb := tech.InitializeSRB()
		srb.SetTexture("g_Rays", s.registry.Texture(ssrResRays).SRV(), metadata.SamplerPoint)
	}
	tech.SRB.SetTexture("g_Color", s.registry.View(ssrResColorInput), metadata.SamplerLinearClamp)

	drawFullScreen(ctx, tech, s.registry.Texture(ssrResResolved).RTV(0), s.width, s.height)
}

func (s *ScreenSpaceReflection) temporalPass(ctx renderer.CommandContext, attribs *ScreenSpaceReflectionRenderAttributes, slot uint32) {
	write := ssrResAccum0 + ResourceID(slot)
	read := ssrResAccum0 + ResourceID(1-slot)
	tech := s.techniques.GetOrCreate(TechniqueKey{Kind: ssrTechTemporalSlot0 + TechniqueKind(slot), Flags: s.flags})
	if !tech.IsInitializedPSO() {
		tech.InitializePSO(s.device, metadata.PipelineDescriptor{
			Name:         "SSR::Temporal",
			VertexShader: "fullscreen_triangle_vs.hlsl",
			PixelShader:  "ssr_temporal_ps.hlsl",
			RTVFormats:   []metadata.TextureFormat{metadata.FormatRGBA16Float},
		})
	}
	if !tech.IsInitializedSRB() {
		srb := tech.InitializeSRB()
		srb.SetTexture("g_Resolved", s.registry.Texture(ssrResResolved).SRV(), metadata.SamplerPoint)
		srb.SetTexture("g_History", s.registry.Texture(read).SRV(), metadata.SamplerLinearClamp)
		srb.SetTexture("g_Motion", attribs.PostFX.ClosestMotionSRV(), metadata.SamplerPoint)
		srb.SetBuffer("cbTemporalAttribs", s.registry.Buffer(ssrResTemporalConstants))
	}
	drawFullScreen(ctx, tech, s.registry.Texture(write).RTV(0), s.width, s.height)
}

func (s *ScreenSpaceReflection) updateConstants(ctx renderer.CommandContext, a *ScreenSpaceReflectionAttribs, reset bool) {
	alpha := math.Clamp(a.TemporalStability, 0, 1)
	if reset {
		alpha = 1.0
	}
	ctx.UpdateBuffer(s.registry.Buffer(ssrResTemporalConstants), packConstants(&ssrTemporalConstants{
		Alpha:         alpha,
		VarianceGamma: a.VarianceGamma,
	}))

	if s.haveAttribs && *a == s.lastAttribs {
		return
	}
	s.lastAttribs = *a
	s.haveAttribs = true
	consts := ssrConstants{
		MaxRayDistance:  a.MaxRayDistance,
		Thickness:       a.Thickness,
		MaxSteps:        a.MaxSteps,
		RoughnessCutoff: a.RoughnessCutoff,
	}
	if s.flags.Has(FeatureReversedDepth) {
		consts.ReversedDepth = 1
	}
	ctx.UpdateBuffer(s.registry.Buffer(ssrResConstants), packConstants(&consts))
}

// GetReflectionSRV returns the temporally accumulated reflection radiance of
// the latest Execute.
func (s *ScreenSpaceReflection) GetReflectionSRV() renderer.TextureView {
	return s.registry.Texture(ssrResAccum0 + ResourceID(s.lastSlot)).SRV()
}

// Registry exposes the effect's resource registry for inspection.
func (s *ScreenSpaceReflection) Registry() *ResourceRegistry { return s.registry }

// Techniques exposes the effect's technique cache for inspection.
func (s *ScreenSpaceReflection) Techniques() *TechniqueCache { return s.techniques }

// Accumulation exposes the temporal state for inspection.
func (s *ScreenSpaceReflection) Accumulation() *AccumulationState { return s.accumulation }

// UpdateUI clamps the attribs to their valid ranges and reports whether
// anything changed.
func (s *ScreenSpaceReflection) UpdateUI(a *ScreenSpaceReflectionAttribs, flags *FeatureFlag) bool {
	clamped := ScreenSpaceReflectionAttribs{
		MaxRayDistance:    math.Clamp(a.MaxRayDistance, 1, 10000),
		Thickness:         math.Clamp(a.Thickness, 0.001, 1),
		MaxSteps:          math.Clamp(a.MaxSteps, 8, 512),
		RoughnessCutoff:   math.Clamp(a.RoughnessCutoff, 0, 1),
		TemporalStability: math.Clamp(a.TemporalStability, 0.01, 1),
		VarianceGamma:     math.Clamp(a.VarianceGamma, 0.5, 2),
	}
	changed := clamped != *a
	*a = clamped
	return changed
}

// Shutdown releases all owned resources and techniques.
func (s *ScreenSpaceReflection) Shutdown() {
	s.techniques.ReleaseAll()
	s.registry.ReleaseAll()
}
