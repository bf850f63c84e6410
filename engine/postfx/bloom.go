package postfx

import (
	"github.com/chewxy/math32"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// maxBloomMips bounds the downsample chain; 12 levels cover 8k targets.
const maxBloomMips = 12

// Bloom resource identifiers.
const (
	bloomResColorInput ResourceID = iota
	bloomResTransientCount

	bloomResConstants
	bloomResOutput
	bloomResDownChain // .. +maxBloomMips
	bloomResUpChain   = bloomResDownChain + maxBloomMips
	bloomResMipConsts = bloomResUpChain + maxBloomMips
	bloomResCount     = bloomResMipConsts + maxBloomMips
)

// Bloom technique kinds; downsample and upsample fold the mip level in.
const (
	bloomTechPrefilter TechniqueKind = iota
	bloomTechComposite
	bloomTechDownsample // .. +maxBloomMips
	bloomTechUpsample   = bloomTechDownsample + maxBloomMips
)

// BloomAttribs are the host-tunable bloom parameters. The effect pushes them
// to the GPU constant buffer only when the struct changes versus the last
// supplied copy.
type BloomAttribs struct {
	// Scale applied to the bloom chain at composite; 0 disables visibly.
	Intensity float32
	// Minimum brightness for a pixel to seed bloom.
	Threshold float32
	// Fraction of Threshold forming the soft knee below it.
	SoftThreshold float32
	// Quality radius in [0, 1] scaled against the maximum mip count for the
	// current resolution; governs how far the glow spreads.
	Radius float32
}

func DefaultBloomAttribs() BloomAttribs {
	return BloomAttribs{
		Intensity:     0.15,
		Threshold:     1.0,
		SoftThreshold: 0.125,
		Radius:        0.75,
	}
}

// BloomRenderAttributes carries the per-frame Execute inputs.
type BloomRenderAttributes struct {
	Context  renderer.CommandContext
	PostFX   *PostFXContext
	ColorSRV renderer.TextureView
	Attribs  *BloomAttribs
}

type bloomConstants struct {
	Threshold     float32
	SoftThreshold float32
	Intensity     float32
	Radius        float32
}

type bloomMipConstants struct {
	TexelSize math.Vec2
	Radius    float32
	Padding   float32
}

// Bloom implements a prefilter -> downsample chain -> upsample-and-combine
// chain -> composite pipeline over halving-resolution mips.
type Bloom struct {
	device     renderer.Device
	registry   *ResourceRegistry
	techniques *TechniqueCache

	width, height uint32
	flags         FeatureFlag
	prepared      bool

	mipCount         uint32
	pendingMipUpload bool
	lastAttribs      BloomAttribs
	haveAttribs      bool
}

func NewBloom() *Bloom {
	return &Bloom{
		registry:   NewResourceRegistry(uint32(bloomResCount), bloomResTransientCount),
		techniques: NewTechniqueCache(),
	}
}

// ComputeBloomMipCount maps the quality radius onto a mip count for the
// given resolution. Zero radius means no chain at all; otherwise the count
// is the radius-scaled fraction of the full chain below half resolution,
// never less than one level. Non-decreasing in radius for fixed dimensions.
func ComputeBloomMipCount(width, height, radius float32) uint32 {
	if radius <= 0 || width < 2 || height < 2 {
		return 0
	}
	r := math.Clamp(radius, 0, 1)
	maxMips := math.FullMipCount(uint32(width)/2, uint32(height)/2)
	if maxMips > maxBloomMips {
		maxMips = maxBloomMips
	}
	mips := uint32(math32.Round(r * float32(maxMips)))
	return math.Clamp(mips, 1, maxMips)
}

// EvaluatePrefilter mirrors the shader's soft-threshold curve on the CPU:
// the bloom contribution factor for a pixel of the given peak brightness.
// Exactly zero at or below (Threshold - Knee).
func EvaluatePrefilter(brightness, threshold, softThreshold float32) float32 {
	knee := threshold * softThreshold
	soft := math.Clamp(brightness-threshold+knee, 0, 2*knee)
	soft = soft * soft / (4*knee + 1e-5)
	contribution := math32.Max(soft, brightness-threshold) / math32.Max(brightness, 1e-5)
	return math32.Max(contribution, 0)
}

// EvaluateComposite mirrors the composite pass: scene color plus the bloom
// term scaled by intensity.
func EvaluateComposite(color, bloom math.Vec3, intensity float32) math.Vec3 {
	return color.Add(bloom.MulScalar(intensity))
}

// PrepareResources sizes the output texture for the frame target. The mip
// chain itself depends on the quality radius and is maintained in Execute.
// O(1) when (width, height, flags) are unchanged.
func (b *Bloom) PrepareResources(device renderer.Device, postFX *PostFXContext, flags FeatureFlag) {
	core.AssertNotNil(device, "device")
	core.AssertNotNil(postFX, "postFX")

	frame := postFX.FrameDesc()
	if b.prepared && frame.Width == b.width && frame.Height == b.height && flags == b.flags {
		return
	}

	b.device = device
	b.width, b.height = frame.Width, frame.Height
	b.flags = flags
	b.prepared = true
	// Chain is resolution-dependent; force a rebuild on the next Execute.
	b.mipCount = 0

	b.registry.Insert(bloomResOutput, device.CreateTexture(metadata.TextureDescriptor{
		Name: "Bloom::Output", Width: frame.Width, Height: frame.Height,
		MipLevels: 1, Format: metadata.FormatRGBA16Float,
		BindFlags: metadata.BindShaderResource | metadata.BindRenderTarget,
	}))
	if b.registry.Buffer(bloomResConstants) == nil {
		b.registry.Insert(bloomResConstants, device.CreateBuffer(metadata.BufferDescriptor{
			Name: "Bloom::Constants",
			Size: uint64(len(packConstants(&bloomConstants{}))),
			BindFlags: metadata.BindConstantBuffer,
			Usage:     metadata.UsageDynamic,
		}))
	}

	b.techniques.ReleaseSRBs()
	b.haveAttribs = false
}

// prepareMipChain (re)creates the downsample/upsample chain textures for the
// requested mip count. Chain textures start at half resolution.
func (b *Bloom) prepareMipChain(mipCount uint32) {
	if mipCount == b.mipCount {
		return
	}
	core.LogDebug("bloom: rebuilding mip chain with %d levels", mipCount)
	b.mipCount = mipCount

	for i := uint32(0); i < maxBloomMips; i++ {
		b.registry.Remove(bloomResDownChain + ResourceID(i))
		b.registry.Remove(bloomResUpChain + ResourceID(i))
	}
	for i := uint32(0); i < mipCount; i++ {
		w := math.MipDimension(b.width, i+1)
		h := math.MipDimension(b.height, i+1)
		b.registry.Insert(bloomResDownChain+ResourceID(i), b.device.CreateTexture(metadata.TextureDescriptor{
			Name: "Bloom::Down", Width: w, Height: h,
			MipLevels: 1, Format: metadata.FormatRGBA16Float,
			BindFlags: metadata.BindShaderResource | metadata.BindRenderTarget,
		}))
		if i+1 < mipCount {
			b.registry.Insert(bloomResUpChain+ResourceID(i), b.device.CreateTexture(metadata.TextureDescriptor{
				Name: "Bloom::Up", Width: w, Height: h,
				MipLevels: 1, Format: metadata.FormatRGBA16Float,
				BindFlags: metadata.BindShaderResource | metadata.BindRenderTarget,
			}))
		}
		mipConsts := bloomMipConstants{
			TexelSize: math.NewVec2(1/float32(w), 1/float32(h)),
		}
		if b.registry.Buffer(bloomResMipConsts+ResourceID(i)) == nil {
			b.registry.Insert(bloomResMipConsts+ResourceID(i), b.device.CreateBuffer(metadata.BufferDescriptor{
				Name: "Bloom::MipConstants",
				Size: uint64(len(packConstants(&mipConsts))),
				BindFlags: metadata.BindConstantBuffer,
				Usage:     metadata.UsageDynamic,
			}))
		}
	}

	b.techniques.ReleaseSRBs()
	b.pendingMipUpload = true
}

// Execute runs the bloom pipeline for the current frame.
func (b *Bloom) Execute(attribs *BloomRenderAttributes) {
	core.AssertNotNil(attribs, "attribs")
	core.AssertNotNil(attribs.Context, "attribs.Context")
	core.AssertNotNil(attribs.PostFX, "attribs.PostFX")
	core.AssertNotNil(attribs.ColorSRV, "attribs.ColorSRV")
	core.AssertNotNil(attribs.Attribs, "attribs.Attribs")
	core.Assert(b.prepared, "Execute before PrepareResources")

	ctx := attribs.Context
	b.registry.InsertBorrowed(bloomResColorInput, attribs.ColorSRV)

	mipCount := ComputeBloomMipCount(float32(b.width), float32(b.height), attribs.Attribs.Radius)
	b.prepareMipChain(mipCount)
	b.updateConstants(ctx, attribs.Attribs)

	if mipCount == 0 {
		// Radius zero: no chain; composite degenerates to a copy.
		ctx.CopyTexture(attribs.ColorSRV.Texture(), b.registry.Texture(bloomResOutput))
		b.registry.ReleaseTransient()
		return
	}

	b.prefilterPass(ctx)
	for i := uint32(1); i < mipCount; i++ {
		b.downsamplePass(ctx, i)
	}
	for i := int(mipCount) - 2; i >= 0; i-- {
		b.upsamplePass(ctx, uint32(i), mipCount)
	}
	b.compositePass(ctx, mipCount)

	b.registry.ReleaseTransient()
}

func (b *Bloom) updateConstants(ctx renderer.CommandContext, a *BloomAttribs) {
	if !b.haveAttribs || *a != b.lastAttribs {
		// Radius feeds the per-mip constants too, even when the chain itself
		// keeps its mip count.
		if !b.haveAttribs || a.Radius != b.lastAttribs.Radius {
			b.pendingMipUpload = true
		}
		b.lastAttribs = *a
		b.haveAttribs = true
		ctx.UpdateBuffer(b.registry.Buffer(bloomResConstants), packConstants(&bloomConstants{
			Threshold:     a.Threshold,
			SoftThreshold: a.SoftThreshold,
			Intensity:     a.Intensity,
			Radius:        a.Radius,
		}))
	}
	if b.pendingMipUpload {
		for i := uint32(0); i < b.mipCount; i++ {
			w := math.MipDimension(b.width, i+1)
			h := math.MipDimension(b.height, i+1)
			ctx.UpdateBuffer(b.registry.Buffer(bloomResMipConsts+ResourceID(i)), packConstants(&bloomMipConstants{
				TexelSize: math.NewVec2(1/float32(w), 1/float32(h)),
				Radius:    a.Radius,
			}))
		}
		b.pendingMipUpload = false
	}
}

func (b *Bloom) prefilterPass(ctx renderer.CommandContext) {
	tech := b.techniques.GetOrCreate(TechniqueKey{Kind: bloomTechPrefilter, Flags: b.flags})
	if !tech.IsInitializedPSO() {
		tech.InitializePSO(b.device, metadata.PipelineDescriptor{
			Name:         "Bloom::Prefilter",
			VertexShader: "fullscreen_triangle_vs.hlsl",
			PixelShader:  "bloom_prefilter_ps.hlsl",
			RTVFormats:   []metadata.TextureFormat{metadata.FormatRGBA16Float},
		})
	}
	if !tech.IsInitializedSRB() {
		srb := tech.InitializeSRB()
		srb.SetBuffer("cbBloomAttribs", b.registry.Buffer(bloomResConstants))
	}
	tech.SRB.SetTexture("g_Color", b.registry.View(bloomResColorInput), metadata.SamplerPoint)

	target := b.registry.Texture(bloomResDownChain)
	desc := target.Descriptor()
	drawFullScreen(ctx, tech, target.RTV(0), desc.Width, desc.Height)
}

func (b *Bloom) downsamplePass(ctx renderer.CommandContext, mip uint32) {
	tech := b.techniques.GetOrCreate(TechniqueKey{Kind: bloomTechDownsample + TechniqueKind(mip), Flags: b.flags})
	if !tech.IsInitializedPSO() {
		tech.InitializePSO(b.device, metadata.PipelineDescriptor{
			Name:         "Bloom::Downsample",
			VertexShader: "fullscreen_triangle_vs.hlsl",
			PixelShader:  "bloom_downsample_ps.hlsl",
			RTVFormats:   []metadata.TextureFormat{metadata.FormatRGBA16Float},
		})
	}
	if !tech.IsInitializedSRB() {
		srb := tech.InitializeSRB()
		srb.SetTexture("g_Input", b.registry.Texture(bloomResDownChain+ResourceID(mip-1)).SRV(), metadata.SamplerLinearClamp)
		srb.SetBuffer("cbMipAttribs", b.registry.Buffer(bloomResMipConsts+ResourceID(mip-1)))
	}

	target := b.registry.Texture(bloomResDownChain + ResourceID(mip))
	desc := target.Descriptor()
	drawFullScreen(ctx, tech, target.RTV(0), desc.Width, desc.Height)
}

func (b *Bloom) upsamplePass(ctx renderer.CommandContext, mip uint32, mipCount uint32) {
	tech := b.techniques.GetOrCreate(TechniqueKey{Kind: bloomTechUpsample + TechniqueKind(mip), Flags: b.flags})
	if !tech.IsInitializedPSO() {
		tech.InitializePSO(b.device, metadata.PipelineDescriptor{
			Name:         "Bloom::Upsample",
			VertexShader: "fullscreen_triangle_vs.hlsl",
			PixelShader:  "bloom_upsample_ps.hlsl",
			RTVFormats:   []metadata.TextureFormat{metadata.FormatRGBA16Float},
			Blend:        metadata.BlendOpaque,
		})
	}
	if !tech.IsInitializedSRB() {
		srb := tech.InitializeSRB()
		coarse := b.registry.Texture(bloomResUpChain + ResourceID(mip+1))
		if mip+2 == mipCount {
			coarse = b.registry.Texture(bloomResDownChain + ResourceID(mip+1))
		}
		srb.SetTexture("g_Coarse", coarse.SRV(), metadata.SamplerLinearClamp)
		srb.SetTexture("g_Fine", b.registry.Texture(bloomResDownChain+ResourceID(mip)).SRV(), metadata.SamplerPoint)
		srb.SetBuffer("cbMipAttribs", b.registry.Buffer(bloomResMipConsts+ResourceID(mip)))
	}

	target := b.registry.Texture(bloomResUpChain + ResourceID(mip))
	if target == nil {
		// Single-mip chain: the downsample result is the bloom term.
		return
	}
	desc := target.Descriptor()
	drawFullScreen(ctx, tech, target.RTV(0), desc.Width, desc.Height)
}

func (b *Bloom) compositePass(ctx renderer.CommandContext, mipCount uint32) {
	tech := b.techniques.GetOrCreate(TechniqueKey{Kind: bloomTechComposite, Flags: b.flags})
	if !tech.IsInitializedPSO() {
		tech.InitializePSO(b.device, metadata.PipelineDescriptor{
			Name:         "Bloom::Composite",
			VertexShader: "fullscreen_triangle_vs.hlsl",
			PixelShader:  "bloom_composite_ps.hlsl",
			RTVFormats:   []metadata.TextureFormat{metadata.FormatRGBA16Float},
		})
	}
	if !tech.IsInitializedSRB() {
		srb := tech.InitializeSRB()
		bloomTex := b.registry.Texture(bloomResUpChain)
		if mipCount == 1 {
			bloomTex = b.registry.Texture(bloomResDownChain)
		}
		srb.SetTexture("g_Bloom", bloomTex.SRV(), metadata.SamplerLinearClamp)
		srb.SetBuffer("cbBloomAttribs", b.registry.Buffer(bloomResConstants))
	}
	tech.SRB.SetTexture("g_Color", b.registry.View(bloomResColorInput), metadata.SamplerPoint)

	drawFullScreen(ctx, tech, b.registry.Texture(bloomResOutput).RTV(0), b.width, b.height)
}

// GetBloomedTextureSRV returns the composited output of the latest Execute.
func (b *Bloom) GetBloomedTextureSRV() renderer.TextureView {
	return b.registry.Texture(bloomResOutput).SRV()
}

// Registry exposes the effect's resource registry for inspection.
func (b *Bloom) Registry() *ResourceRegistry { return b.registry }

// Techniques exposes the effect's technique cache for inspection.
func (b *Bloom) Techniques() *TechniqueCache { return b.techniques }

// UpdateUI clamps the attribs to their valid ranges and reports whether
// anything changed.
func (b *Bloom) UpdateUI(a *BloomAttribs, flags *FeatureFlag) bool {
	clamped := BloomAttribs{
		Intensity:     math.Clamp(a.Intensity, 0, 2),
		Threshold:     math.Clamp(a.Threshold, 0, 10),
		SoftThreshold: math.Clamp(a.SoftThreshold, 0, 1),
		Radius:        math.Clamp(a.Radius, 0, 1),
	}
	changed := clamped != *a
	*a = clamped
	return changed
}

// Shutdown releases all owned resources and techniques.
func (b *Bloom) Shutdown() {
	b.techniques.ReleaseAll()
	b.registry.ReleaseAll()
}
