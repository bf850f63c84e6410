package postfx

import (
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// Light scattering resource identifiers.
const (
	elsResColorInput ResourceID = iota
	elsResDepthInput
	elsResTransientCount

	elsResConstants
	elsResSliceEndpoints
	elsResCoordinates
	elsResEpipolarDepth
	elsResInscattering
	elsResInterpolated
	elsResOutput
	elsResCount
)

const (
	elsTechSliceEndpoints TechniqueKind = iota
	elsTechCoordinates
	elsTechRayMarch
	elsTechInterpolate
	elsTechUnwarp
)

// EpipolarLightScatteringAttribs are the host-tunable scattering parameters.
// NumSlices and MaxSamplesPerSlice size the epipolar textures; changing them
// rebuilds the epipolar set on the next Execute.
type EpipolarLightScatteringAttribs struct {
	// Light position in normalized screen coordinates. May lie outside
	// [0,1] when the light is off screen.
	LightScreenPos math.Vec2
	// Epipolar slices around the light.
	NumSlices uint32
	// Samples along each slice at the densest refinement.
	MaxSamplesPerSlice uint32
	// Initial stride between ray-marched samples; the rest interpolate.
	InitialSampleStep uint32
	// Scattering contribution scale.
	Intensity float32
	// Medium density along the ray.
	Density float32
	// Depth difference that forces a sample to ray-march instead of
	// interpolating across it.
	RefinementThreshold float32
}

func DefaultEpipolarLightScatteringAttribs() EpipolarLightScatteringAttribs {
	return EpipolarLightScatteringAttribs{
		LightScreenPos:      math.NewVec2(0.5, 0.5),
		NumSlices:           512,
		MaxSamplesPerSlice:  256,
		InitialSampleStep:   16,
		Intensity:           1.0,
		Density:             0.15,
		RefinementThreshold: 0.03,
	}
}

// EpipolarLightScatteringRenderAttributes carries the per-frame Execute inputs.
type EpipolarLightScatteringRenderAttributes struct {
	Context  renderer.CommandContext
	PostFX   *PostFXContext
	ColorSRV renderer.TextureView
	DepthSRV renderer.TextureView
	Attribs  *EpipolarLightScatteringAttribs
}

type elsConstants struct {
	LightScreenPos      math.Vec2
	ScreenSize          math.Vec2
	NumSlices           uint32
	MaxSamplesPerSlice  uint32
	InitialSampleStep   uint32
	Padding0            uint32
	Intensity           float32
	Density             float32
	RefinementThreshold float32
	Padding1            float32
}

// EpipolarLightScattering renders volumetric god rays by ray marching a
// sparse set of samples along epipolar slices radiating from the light and
// interpolating the rest. The effect is stateless across frames: there is
// no history and no frame-sequence dependence.
type EpipolarLightScattering struct {
	device     renderer.Device
	registry   *ResourceRegistry
	techniques *TechniqueCache

	width, height uint32
	flags         FeatureFlag
	prepared      bool

	slices, samples uint32
	lastConsts      elsConstants
	haveConsts      bool
	noiseVersion    uint32
}

func NewEpipolarLightScattering() *EpipolarLightScattering {
	return &EpipolarLightScattering{
		registry:   NewResourceRegistry(uint32(elsResCount), elsResTransientCount),
		techniques: NewTechniqueCache(),
	}
}

// PrepareResources sizes the full-resolution output. The epipolar textures
// are sized by the attribs and (re)built lazily in Execute.
func (e *EpipolarLightScattering) PrepareResources(device renderer.Device, postFX *PostFXContext, flags FeatureFlag) {
	core.AssertNotNil(device, "device")
	core.AssertNotNil(postFX, "postFX")

	frame := postFX.FrameDesc()
	if e.prepared && frame.Width == e.width && frame.Height == e.height && flags == e.flags {
		return
	}

	e.device = device
	e.width, e.height = frame.Width, frame.Height
	e.flags = flags
	e.prepared = true

	e.registry.Insert(elsResOutput, device.CreateTexture(metadata.TextureDescriptor{
		Name: "ELS::Output", Width: frame.Width, Height: frame.Height,
		MipLevels: 1, Format: metadata.FormatRGBA16Float,
		BindFlags: metadata.BindShaderResource | metadata.BindRenderTarget,
	}))
	if e.registry.Buffer(elsResConstants) == nil {
		e.registry.Insert(elsResConstants, device.CreateBuffer(metadata.BufferDescriptor{
			Name: "ELS::Constants", Size: uint64(len(packConstants(&elsConstants{}))),
			BindFlags: metadata.BindConstantBuffer, Usage: metadata.UsageDynamic,
		}))
	}

	e.techniques.ReleaseSRBs()
	e.haveConsts = false
}

func (e *EpipolarLightScattering) prepareEpipolarTextures(slices, samples uint32) {
	if slices == e.slices && samples == e.samples {
		return
	}
	e.slices, e.samples = slices, samples

	e.registry.Insert(elsResSliceEndpoints, e.device.CreateTexture(metadata.TextureDescriptor{
		Name: "ELS::SliceEndpoints", Width: slices, Height: 1,
		MipLevels: 1, Format: metadata.FormatRGBA32Float,
		BindFlags: metadata.BindShaderResource | metadata.BindRenderTarget,
	}))
	e.registry.Insert(elsResCoordinates, e.device.CreateTexture(metadata.TextureDescriptor{
		Name: "ELS::Coordinates", Width: samples, Height: slices,
		MipLevels: 1, Format: metadata.FormatRG32Float,
		BindFlags: metadata.BindShaderResource | metadata.BindRenderTarget,
	}))
	e.registry.Insert(elsResEpipolarDepth, e.device.CreateTexture(metadata.TextureDescriptor{
		Name: "ELS::EpipolarDepth", Width: samples, Height: slices,
		MipLevels: 1, Format: metadata.FormatR32Float,
		BindFlags: metadata.BindShaderResource | metadata.BindRenderTarget,
	}))
	for _, id := range []ResourceID{elsResInscattering, elsResInterpolated} {
		e.registry.Insert(id, e.device.CreateTexture(metadata.TextureDescriptor{
			Name: "ELS::Inscattering", Width: samples, Height: slices,
			MipLevels: 1, Format: metadata.FormatRGBA16Float,
			BindFlags: metadata.BindShaderResource | metadata.BindRenderTarget,
		}))
	}

	e.techniques.ReleaseSRBs()
}

// Execute runs the five-pass epipolar pipeline: slice endpoints, sample
// coordinates, sparse ray march, interpolation and unwarp back to screen
// space. Each pass consumes the output of the pass before it.
func (e *EpipolarLightScattering) Execute(attribs *EpipolarLightScatteringRenderAttributes) {
	core.AssertNotNil(attribs, "attribs")
	core.AssertNotNil(attribs.Context, "attribs.Context")
	core.AssertNotNil(attribs.PostFX, "attribs.PostFX")
	core.AssertNotNil(attribs.ColorSRV, "attribs.ColorSRV")
	core.AssertNotNil(attribs.DepthSRV, "attribs.DepthSRV")
	core.AssertNotNil(attribs.Attribs, "attribs.Attribs")
	core.Assert(e.prepared, "Execute before PrepareResources")
	core.Assert(attribs.Attribs.NumSlices > 0, "NumSlices must be positive")
	core.Assert(attribs.Attribs.MaxSamplesPerSlice > 0, "MaxSamplesPerSlice must be positive")

	ctx := attribs.Context
	e.registry.InsertBorrowed(elsResColorInput, attribs.ColorSRV)
	e.registry.InsertBorrowed(elsResDepthInput, attribs.DepthSRV)

	if v := attribs.PostFX.NoiseVersion(); v != e.noiseVersion {
		e.noiseVersion = v
		e.techniques.ReleaseSRBs()
	}

	e.prepareEpipolarTextures(attribs.Attribs.NumSlices, attribs.Attribs.MaxSamplesPerSlice)
	e.updateConstants(ctx, attribs.Attribs)

	e.sliceEndpointsPass(ctx)
	e.coordinatesPass(ctx)
	e.rayMarchPass(ctx, attribs)
	e.interpolatePass(ctx)
	e.unwarpPass(ctx)

	e.registry.ReleaseTransient()
}

func (e *EpipolarLightScattering) sliceEndpointsPass(ctx renderer.CommandContext) {
	tech := e.techniques.GetOrCreate(TechniqueKey{Kind: elsTechSliceEndpoints, Flags: e.flags})
	if !tech.IsInitializedPSO() {
		tech.InitializePSO(e.device, metadata.PipelineDescriptor{
			Name:         "ELS::SliceEndpoints",
			VertexShader: "fullscreen_triangle_vs.hlsl",
			PixelShader:  "els_slice_endpoints_ps.hlsl",
			RTVFormats:   []metadata.TextureFormat{metadata.FormatRGBA32Float},
		})
	}
	if !tech.IsInitializedSRB() {
		srb := tech.InitializeSRB()
		srb.SetBuffer("cbScatteringAttribs", e.registry.Buffer(elsResConstants))
	}
	drawFullScreen(ctx, tech, e.registry.Texture(elsResSliceEndpoints).RTV(0), e.slices, 1)
}

func (e *EpipolarLightScattering) coordinatesPass(ctx renderer.CommandContext) {
	tech := e.techniques.GetOrCreate(TechniqueKey{Kind: elsTechCoordinates, Flags: e.flags})
	if !tech.IsInitializedPSO() {
		tech.InitializePSO(e.device, metadata.PipelineDescriptor{
			Name:         "ELS::Coordinates",
			VertexShader: "fullscreen_triangle_vs.hlsl",
			PixelShader:  "els_coordinate_texture_ps.hlsl",
			RTVFormats: []metadata.TextureFormat{
				metadata.FormatRG32Float,
				metadata.FormatR32Float,
			},
		})
	}
	if !tech.IsInitializedSRB() {
		srb := tech.InitializeSRB()
		srb.SetTexture("g_SliceEndpoints", e.registry.Texture(elsResSliceEndpoints).SRV(), metadata.SamplerPoint)
		srb.SetBuffer("cbScatteringAttribs", e.registry.Buffer(elsResConstants))
	}
	tech.SRB.SetTexture("g_Depth", e.registry.View(elsResDepthInput), metadata.SamplerPoint)

	ctx.SetRenderTargets([]renderer.TextureView{
		e.registry.Texture(elsResCoordinates).RTV(0),
		e.registry.Texture(elsResEpipolarDepth).RTV(0),
	}, nil)
	ctx.SetViewport(e.samples, e.slices)
	ctx.SetPipeline(tech.PSO)
	ctx.CommitBinding(tech.SRB)
	ctx.Draw(3)
}

func (e *EpipolarLightScattering) rayMarchPass(ctx renderer.CommandContext, attribs *EpipolarLightScatteringRenderAttributes) {
	tech := e.techniques.GetOrCreate(TechniqueKey{Kind: elsTechRayMarch, Flags: e.flags})
	if !tech.IsInitializedPSO() {
		tech.InitializePSO(e.device, metadata.PipelineDescriptor{
			Name:         "ELS::RayMarch",
			VertexShader: "fullscreen_triangle_vs.hlsl",
			PixelShader:  "els_ray_march_ps.hlsl",
			RTVFormats:   []metadata.TextureFormat{metadata.FormatRGBA16Float},
		})
	}
	if !tech.IsInitializedSRB() {
		srb := tech.InitializeSRB()
		srb.SetTexture("g_Coordinates", e.registry.Texture(elsResCoordinates).SRV(), metadata.SamplerPoint)
		srb.SetTexture("g_EpipolarDepth", e.registry.Texture(elsResEpipolarDepth).SRV(), metadata.SamplerPoint)
		srb.SetTexture("g_BlueNoise", attribs.PostFX.BlueNoiseZWSRV(), metadata.SamplerPoint)
		srb.SetBuffer("cbCameraAttribs", attribs.PostFX.CameraBuffer())
		srb.SetBuffer("cbScatteringAttribs", e.registry.Buffer(elsResConstants))
	}
	tech.SRB.SetTexture("g_Depth", e.registry.View(elsResDepthInput), metadata.SamplerPoint)

	drawFullScreen(ctx, tech, e.registry.Texture(elsResInscattering).RTV(0), e.samples, e.slices)
}

func (e *EpipolarLightScattering) interpolatePass(ctx renderer.CommandContext) {
	tech := e.techniques.GetOrCreate(TechniqueKey{Kind: elsTechInterpolate, Flags: e.flags})
	if !tech.IsInitializedPSO() {
		tech.InitializePSO(e.device, metadata.PipelineDescriptor{
			Name:         "ELS::Interpolate",
			VertexShader: "fullscreen_triangle_vs.hlsl",
			PixelShader:  "els_interpolate_ps.hlsl",
			RTVFormats:   []metadata.TextureFormat{metadata.FormatRGBA16Float},
		})
	}
	if !tech.IsInitializedSRB() {
		srb := tech.InitializeSRB()
		srb.SetTexture("g_Inscattering", e.registry.Texture(elsResInscattering).SRV(), metadata.SamplerPoint)
		srb.SetTexture("g_EpipolarDepth", e.registry.Texture(elsResEpipolarDepth).SRV(), metadata.SamplerPoint)
		srb.SetBuffer("cbScatteringAttribs", e.registry.Buffer(elsResConstants))
	}
	drawFullScreen(ctx, tech, e.registry.Texture(elsResInterpolated).RTV(0), e.samples, e.slices)
}

func (e *EpipolarLightScattering) unwarpPass(ctx renderer.CommandContext) {
	tech := e.techniques.GetOrCreate(TechniqueKey{Kind: elsTechUnwarp, Flags: e.flags})
	if !tech.IsInitializedPSO() {
		tech.InitializePSO(e.device, metadata.PipelineDescriptor{
			Name:         "ELS::Unwarp",
			VertexShader: "fullscreen_triangle_vs.hlsl",
			PixelShader:  "els_unwarp_ps.hlsl",
			RTVFormats:   []metadata.TextureFormat{metadata.FormatRGBA16Float},
		})
	}
	if !tech.IsInitializedSRB() {
		srb := tech.InitializeSRB()
		srb.SetTexture("g_Interpolated", e.registry.Texture(elsResInterpolated).SRV(), metadata.SamplerLinearClamp)
		srb.SetTexture("g_SliceEndpoints", e.registry.Texture(elsResSliceEndpoints).SRV(), metadata.SamplerPoint)
		srb.SetTexture("g_EpipolarDepth", e.registry.Texture(elsResEpipolarDepth).SRV(), metadata.SamplerPoint)
		srb.SetBuffer("cbScatteringAttribs", e.registry.Buffer(elsResConstants))
	}
	tech.SRB.SetTexture("g_Color", e.registry.View(elsResColorInput), metadata.SamplerPoint)
	tech.SRB.SetTexture("g_Depth", e.registry.View(elsResDepthInput), metadata.SamplerPoint)

	drawFullScreen(ctx, tech, e.registry.Texture(elsResOutput).RTV(0), e.width, e.height)
}

func (e *EpipolarLightScattering) updateConstants(ctx renderer.CommandContext, a *EpipolarLightScatteringAttribs) {
	consts := elsConstants{
		LightScreenPos:      a.LightScreenPos,
		ScreenSize:          math.NewVec2(float32(e.width), float32(e.height)),
		NumSlices:           a.NumSlices,
		MaxSamplesPerSlice:  a.MaxSamplesPerSlice,
		InitialSampleStep:   a.InitialSampleStep,
		Intensity:           a.Intensity,
		Density:             a.Density,
		RefinementThreshold: a.RefinementThreshold,
	}
	if e.haveConsts && consts == e.lastConsts {
		return
	}
	e.lastConsts = consts
	e.haveConsts = true
	ctx.UpdateBuffer(e.registry.Buffer(elsResConstants), packConstants(&consts))
}

// GetLightScatteringSRV returns the unwarped output of the latest Execute.
func (e *EpipolarLightScattering) GetLightScatteringSRV() renderer.TextureView {
	return e.registry.Texture(elsResOutput).SRV()
}

// Registry exposes the effect's resource registry for inspection.
func (e *EpipolarLightScattering) Registry() *ResourceRegistry { return e.registry }

// Techniques exposes the effect's technique cache for inspection.
func (e *EpipolarLightScattering) Techniques() *TechniqueCache { return e.techniques }

// UpdateUI clamps the attribs to their valid ranges and reports whether
// anything changed.
func (e *EpipolarLightScattering) UpdateUI(a *EpipolarLightScatteringAttribs, flags *FeatureFlag) bool {
	clamped := EpipolarLightScatteringAttribs{
		LightScreenPos:      a.LightScreenPos,
		NumSlices:           math.Clamp(a.NumSlices, 32, 2048),
		MaxSamplesPerSlice:  math.Clamp(a.MaxSamplesPerSlice, 32, 1024),
		InitialSampleStep:   math.Clamp(a.InitialSampleStep, 1, 64),
		Intensity:           math.Clamp(a.Intensity, 0, 16),
		Density:             math.Clamp(a.Density, 0, 4),
		RefinementThreshold: math.Clamp(a.RefinementThreshold, 0.001, 0.5),
	}
	changed := clamped != *a
	*a = clamped
	return changed
}

// Shutdown releases all owned resources and techniques.
func (e *EpipolarLightScattering) Shutdown() {
	e.techniques.ReleaseAll()
	e.registry.ReleaseAll()
}
