package postfx

import (
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// DOF resource identifiers.
const (
	dofResColorInput ResourceID = iota
	dofResDepthInput
	dofResTransientCount

	dofResConstants
	dofResTemporalConstants
	dofResMipConstants
	dofResCoC
	dofResCoCAccum0
	dofResCoCAccum1
	dofResHalfRes
	dofResBokeh
	dofResPostFilter
	dofResOutput
	dofResCount
)

const (
	dofTechCoC TechniqueKind = iota
	dofTechDownsample
	dofTechBokeh
	dofTechPostFilter
	dofTechCombine
	dofTechCoCTemporalSlot0
	dofTechCoCTemporalSlot1

	// Passes whose bindings reference the CoC history add this offset on
	// odd frames so each parity gets its own binding set.
	dofTechSlotOffset TechniqueKind = 16
)

// DepthOfFieldAttribs are the host-tunable depth-of-field parameters.
type DepthOfFieldAttribs struct {
	// Distance to the focal plane in view-space units.
	FocusDistance float32
	// Lens focal length in the same units.
	FocalLength float32
	// Aperture scale; larger blurs more.
	Aperture float32
	// Largest circle of confusion as a fraction of screen height.
	MaxCoC float32
	// Gather kernel taps per pixel.
	SampleCount uint32
	// Current-frame weight of the CoC history in steady state.
	TemporalStability float32
}

func DefaultDepthOfFieldAttribs() DepthOfFieldAttribs {
	return DepthOfFieldAttribs{
		FocusDistance:     10.0,
		FocalLength:       0.05,
		Aperture:          1.4,
		MaxCoC:            0.01,
		SampleCount:       43,
		TemporalStability: 0.2,
	}
}

// DepthOfFieldRenderAttributes carries the per-frame Execute inputs.
type DepthOfFieldRenderAttributes struct {
	Context  renderer.CommandContext
	PostFX   *PostFXContext
	ColorSRV renderer.TextureView
	DepthSRV renderer.TextureView
	Attribs  *DepthOfFieldAttribs
}

type dofConstants struct {
	FocusDistance float32
	FocalLength   float32
	Aperture      float32
	MaxCoC        float32
	SampleCount   uint32
	Padding       [3]uint32
}

type dofTemporalConstants struct {
	Alpha   float32
	Padding [3]float32
}

type dofMipConstants struct {
	TexelSize math.Vec2
	Padding   [2]float32
}

// DepthOfField computes a stabilized circle-of-confusion signal, gathers
// bokeh at half resolution and recombines with the sharp full-resolution
// scene. The CoC history is the temporal axis: it ping-pongs by frame
// parity and resets on discontinuities like every other temporal effect.
type DepthOfField struct {
	device     renderer.Device
	registry   *ResourceRegistry
	techniques *TechniqueCache

	width, height uint32
	flags         FeatureFlag
	prepared      bool

	accumulation     *AccumulationState
	lastSlot         uint32
	lastAttribs      DepthOfFieldAttribs
	haveAttribs      bool
	pendingMipUpload bool
}

func NewDepthOfField() *DepthOfField {
	return &DepthOfField{
		registry:     NewResourceRegistry(uint32(dofResCount), dofResTransientCount),
		techniques:   NewTechniqueCache(),
		accumulation: NewAccumulationState(2),
	}
}

// PrepareResources sizes the CoC, half-resolution and output textures.
// O(1) when (width, height, flags) are unchanged.
func (d *DepthOfField) PrepareResources(device renderer.Device, postFX *PostFXContext, flags FeatureFlag) {
	core.AssertNotNil(device, "device")
	core.AssertNotNil(postFX, "postFX")

	frame := postFX.FrameDesc()
	if d.prepared && frame.Width == d.width && frame.Height == d.height && flags == d.flags {
		return
	}

	d.device = device
	d.width, d.height = frame.Width, frame.Height
	d.flags = flags
	d.prepared = true
	d.accumulation.Invalidate()

	halfW := math.MipDimension(frame.Width, 1)
	halfH := math.MipDimension(frame.Height, 1)

	for _, id := range []ResourceID{dofResCoC, dofResCoCAccum0, dofResCoCAccum1} {
		d.registry.Insert(id, device.CreateTexture(metadata.TextureDescriptor{
			Name: "DOF::CoC", Width: frame.Width, Height: frame.Height,
			MipLevels: 1, Format: metadata.FormatR16Float,
			BindFlags: metadata.BindShaderResource | metadata.BindRenderTarget,
		}))
	}
	for _, id := range []ResourceID{dofResHalfRes, dofResBokeh, dofResPostFilter} {
		d.registry.Insert(id, device.CreateTexture(metadata.TextureDescriptor{
			Name: "DOF::HalfRes", Width: halfW, Height: halfH,
			MipLevels: 1, Format: metadata.FormatRGBA16Float,
			BindFlags: metadata.BindShaderResource | metadata.BindRenderTarget,
		}))
	}
	d.registry.Insert(dofResOutput, device.CreateTexture(metadata.TextureDescriptor{
		Name: "DOF::Output", Width: frame.Width, Height: frame.Height,
		MipLevels: 1, Format: metadata.FormatRGBA16Float,
		BindFlags: metadata.BindShaderResource | metadata.BindRenderTarget,
	}))

	if d.registry.Buffer(dofResConstants) == nil {
		d.registry.Insert(dofResConstants, device.CreateBuffer(metadata.BufferDescriptor{
			Name: "DOF::Constants", Size: uint64(len(packConstants(&dofConstants{}))),
			BindFlags: metadata.BindConstantBuffer, Usage: metadata.UsageDynamic,
		}))
		d.registry.Insert(dofResTemporalConstants, device.CreateBuffer(metadata.BufferDescriptor{
			Name: "DOF::Temporal", Size: uint64(len(packConstants(&dofTemporalConstants{}))),
			BindFlags: metadata.BindConstantBuffer, Usage: metadata.UsageDynamic,
		}))
		d.registry.Insert(dofResMipConstants, device.CreateBuffer(metadata.BufferDescriptor{
			Name: "DOF::MipConstants", Size: uint64(len(packConstants(&dofMipConstants{}))),
			BindFlags: metadata.BindConstantBuffer, Usage: metadata.UsageDynamic,
		}))
	}

	d.techniques.ReleaseSRBs()
	d.haveAttribs = false
	d.pendingMipUpload = true
}

// Execute runs CoC -> CoC temporal -> downsample -> bokeh -> post-filter ->
// combine. Pass order is a hard invariant: each pass consumes the output of
// the pass immediately before it.
func (d *DepthOfField) Execute(attribs *DepthOfFieldRenderAttributes) {
	core.AssertNotNil(attribs, "attribs")
	core.AssertNotNil(attribs.Context, "attribs.Context")
	core.AssertNotNil(attribs.PostFX, "attribs.PostFX")
	core.AssertNotNil(attribs.ColorSRV, "attribs.ColorSRV")
	core.AssertNotNil(attribs.DepthSRV, "attribs.DepthSRV")
	core.AssertNotNil(attribs.Attribs, "attribs.Attribs")
	core.Assert(d.prepared, "Execute before PrepareResources")

	ctx := attribs.Context
	d.registry.InsertBorrowed(dofResColorInput, attribs.ColorSRV)
	d.registry.InsertBorrowed(dofResDepthInput, attribs.DepthSRV)

	slot, reset := d.accumulation.Update(attribs.PostFX.FrameDesc().Index)
	d.lastSlot = slot
	d.updateConstants(ctx, attribs.Attribs, reset)

	d.cocPass(ctx)
	d.cocTemporalPass(ctx, attribs, slot)
	d.downsamplePass(ctx, slot)
	d.bokehPass(ctx)
	d.postFilterPass(ctx)
	d.combinePass(ctx, slot)

	d.registry.ReleaseTransient()
}

func (d *DepthOfField) cocPass(ctx renderer.CommandContext) {
	tech := d.techniques.GetOrCreate(TechniqueKey{Kind: dofTechCoC, Flags: d.flags})
	if !tech.IsInitializedPSO() {
		tech.InitializePSO(d.device, metadata.PipelineDescriptor{
			Name:         "DOF::ComputeCoC",
			VertexShader: "fullscreen_triangle_vs.hlsl",
			PixelShader:  "dof_coc_ps.hlsl",
			RTVFormats:   []metadata.TextureFormat{metadata.FormatR16Float},
		})
	}
	if !tech.IsInitializedSRB() {
		srb := tech.InitializeSRB()
		srb.SetBuffer("cbDOFAttribs", d.registry.Buffer(dofResConstants))
	}
	tech.SRB.SetTexture("g_Depth", d.registry.View(dofResDepthInput), metadata.SamplerPoint)

	drawFullScreen(ctx, tech, d.registry.Texture(dofResCoC).RTV(0), d.width, d.height)
}

func (d *DepthOfField) cocTemporalPass(ctx renderer.CommandContext, attribs *DepthOfFieldRenderAttributes, slot uint32) {
	write := dofResCoCAccum0 + ResourceID(slot)
	read := dofResCoCAccum0 + ResourceID(1-slot)
	tech := d.techniques.GetOrCreate(TechniqueKey{Kind: dofTechCoCTemporalSlot0 + TechniqueKind(slot), Flags: d.flags})
	if !tech.IsInitializedPSO() {
		tech.InitializePSO(d.device, metadata.PipelineDescriptor{
			Name:         "DOF::TemporalCoC",
			VertexShader: "fullscreen_triangle_vs.hlsl",
			PixelShader:  "dof_coc_temporal_ps.hlsl",
			RTVFormats:   []metadata.TextureFormat{metadata.FormatR16Float},
		})
	}
	if !tech.IsInitializedSRB() {
		srb := tech.InitializeSRB()
		srb.SetTexture("g_CoC", d.registry.Texture(dofResCoC).SRV(), metadata.SamplerPoint)
		srb.SetTexture("g_History", d.registry.Texture(read).SRV(), metadata.SamplerLinearClamp)
		srb.SetTexture("g_Motion", attribs.PostFX.ClosestMotionSRV(), metadata.SamplerPoint)
		srb.SetBuffer("cbTemporalAttribs", d.registry.Buffer(dofResTemporalConstants))
	}
	drawFullScreen(ctx, tech, d.registry.Texture(write).RTV(0), d.width, d.height)
}

func (d *DepthOfField) downsamplePass(ctx renderer.CommandContext, slot uint32) {
	target := d.registry.Texture(dofResHalfRes)
	desc := target.Descriptor()
	tech := d.techniques.GetOrCreate(TechniqueKey{Kind: dofTechDownsample + TechniqueKind(slot)*dofTechSlotOffset, Flags: d.flags})
	if !tech.IsInitializedPSO() {
		tech.InitializePSO(d.device, metadata.PipelineDescriptor{
			Name:         "DOF::Downsample",
			VertexShader: "fullscreen_triangle_vs.hlsl",
			PixelShader:  "dof_downsample_ps.hlsl",
			RTVFormats:   []metadata.TextureFormat{metadata.FormatRGBA16Float},
		})
	}
	if !tech.IsInitializedSRB() {
		srb := tech.InitializeSRB()
		srb.SetTexture("g_CoC", d.registry.Texture(dofResCoCAccum0+ResourceID(slot)).SRV(), metadata.SamplerPoint)
	}
	tech.SRB.SetTexture("g_Color", d.registry.View(dofResColorInput), metadata.SamplerLinearClamp)

	drawFullScreen(ctx, tech, target.RTV(0), desc.Width, desc.Height)
}

func (d *DepthOfField) bokehPass(ctx renderer.CommandContext) {
	target := d.registry.Texture(dofResBokeh)
	desc := target.Descriptor()
	tech := d.techniques.GetOrCreate(TechniqueKey{Kind: dofTechBokeh, Flags: d.flags})
	if !tech.IsInitializedPSO() {
		tech.InitializePSO(d.device, metadata.PipelineDescriptor{
			Name:         "DOF::Bokeh",
			VertexShader: "fullscreen_triangle_vs.hlsl",
			PixelShader:  "dof_bokeh_ps.hlsl",
			RTVFormats:   []metadata.TextureFormat{metadata.FormatRGBA16Float},
		})
	}
	if !tech.IsInitializedSRB() {
		srb := tech.InitializeSRB()
		srb.SetTexture("g_Input", d.registry.Texture(dofResHalfRes).SRV(), metadata.SamplerLinearClamp)
		srb.SetBuffer("cbDOFAttribs", d.registry.Buffer(dofResConstants))
	}
	drawFullScreen(ctx, tech, target.RTV(0), desc.Width, desc.Height)
}

func (d *DepthOfField) postFilterPass(ctx renderer.CommandContext) {
	target := d.registry.Texture(dofResPostFilter)
	desc := target.Descriptor()
	tech := d.techniques.GetOrCreate(TechniqueKey{Kind: dofTechPostFilter, Flags: d.flags})
	if !tech.IsInitializedPSO() {
		tech.InitializePSO(d.device, metadata.PipelineDescriptor{
			Name:         "DOF::PostFilter",
			VertexShader: "fullscreen_triangle_vs.hlsl",
			PixelShader:  "dof_postfilter_ps.hlsl",
			RTVFormats:   []metadata.TextureFormat{metadata.FormatRGBA16Float},
		})
	}
	if !tech.IsInitializedSRB() {
		srb := tech.InitializeSRB()
		srb.SetTexture("g_Bokeh", d.registry.Texture(dofResBokeh).SRV(), metadata.SamplerLinearClamp)
		srb.SetBuffer("cbMipAttribs", d.registry.Buffer(dofResMipConstants))
	}
	drawFullScreen(ctx, tech, target.RTV(0), desc.Width, desc.Height)
}

func (d *DepthOfField) combinePass(ctx renderer.CommandContext, slot uint32) {
	tech := d.techniques.GetOrCreate(TechniqueKey{Kind: dofTechCombine + TechniqueKind(slot)*dofTechSlotOffset, Flags: d.flags})
	if !tech.IsInitializedPSO() {
		tech.InitializePSO(d.device, metadata.PipelineDescriptor{
			Name:         "DOF::Combine",
			VertexShader: "fullscreen_triangle_vs.hlsl",
			PixelShader:  "dof_combine_ps.hlsl",
			RTVFormats:   []metadata.TextureFormat{metadata.FormatRGBA16Float},
		})
	}
	if !tech.IsInitializedSRB() {
		srb := tech.InitializeSRB()
		srb.SetTexture("g_Bokeh", d.registry.Texture(dofResPostFilter).SRV(), metadata.SamplerLinearClamp)
		srb.SetTexture("g_CoC", d.registry.Texture(dofResCoCAccum0+ResourceID(slot)).SRV(), metadata.SamplerPoint)
	}
	tech.SRB.SetTexture("g_Color", d.registry.View(dofResColorInput), metadata.SamplerPoint)

	drawFullScreen(ctx, tech, d.registry.Texture(dofResOutput).RTV(0), d.width, d.height)
}

func (d *DepthOfField) updateConstants(ctx renderer.CommandContext, a *DepthOfFieldAttribs, reset bool) {
	if d.pendingMipUpload {
		halfW := math.MipDimension(d.width, 1)
		halfH := math.MipDimension(d.height, 1)
		ctx.UpdateBuffer(d.registry.Buffer(dofResMipConstants), packConstants(&dofMipConstants{
			TexelSize: math.NewVec2(1/float32(halfW), 1/float32(halfH)),
		}))
		d.pendingMipUpload = false
	}

	alpha := math.Clamp(a.TemporalStability, 0, 1)
	if reset {
		alpha = 1.0
	}
	ctx.UpdateBuffer(d.registry.Buffer(dofResTemporalConstants), packConstants(&dofTemporalConstants{Alpha: alpha}))

	if d.haveAttribs && *a == d.lastAttribs {
		return
	}
	d.lastAttribs = *a
	d.haveAttribs = true
	ctx.UpdateBuffer(d.registry.Buffer(dofResConstants), packConstants(&dofConstants{
		FocusDistance: a.FocusDistance,
		FocalLength:   a.FocalLength,
		Aperture:      a.Aperture,
		MaxCoC:        a.MaxCoC,
		SampleCount:   a.SampleCount,
	}))
}

// GetDepthOfFieldSRV returns the combined output of the latest Execute.
func (d *DepthOfField) GetDepthOfFieldSRV() renderer.TextureView {
	return d.registry.Texture(dofResOutput).SRV()
}

// Registry exposes the effect's resource registry for inspection.
func (d *DepthOfField) Registry() *ResourceRegistry { return d.registry }

// Techniques exposes the effect's technique cache for inspection.
func (d *DepthOfField) Techniques() *TechniqueCache { return d.techniques }

// Accumulation exposes the temporal state for inspection.
func (d *DepthOfField) Accumulation() *AccumulationState { return d.accumulation }

// UpdateUI clamps the attribs to their valid ranges and reports whether
// anything changed.
func (d *DepthOfField) UpdateUI(a *DepthOfFieldAttribs, flags *FeatureFlag) bool {
	clamped := DepthOfFieldAttribs{
		FocusDistance:     math.Clamp(a.FocusDistance, 0.1, 10000),
		FocalLength:       math.Clamp(a.FocalLength, 0.001, 1),
		Aperture:          math.Clamp(a.Aperture, 0.5, 32),
		MaxCoC:            math.Clamp(a.MaxCoC, 0.001, 0.05),
		SampleCount:       math.Clamp(a.SampleCount, 8, 128),
		TemporalStability: math.Clamp(a.TemporalStability, 0.01, 1),
	}
	changed := clamped != *a
	*a = clamped
	return changed
}

// Shutdown releases all owned resources and techniques.
func (d *DepthOfField) Shutdown() {
	d.techniques.ReleaseAll()
	d.registry.ReleaseAll()
}
