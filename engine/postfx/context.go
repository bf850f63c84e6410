package postfx

import (
	"bytes"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// Context-owned resource identifiers. Identifiers below ctxResTransientCount
// are per-frame inputs.
const (
	ctxResDepthInput ResourceID = iota
	ctxResMotionInput
	ctxResTransientCount

	ctxResCameraBuffer
	ctxResBlueNoiseXY
	ctxResBlueNoiseZW
	ctxResReprojectedDepth
	ctxResPreviousDepth
	ctxResClosestMotion
	ctxResCount
)

// Context-level technique kinds.
const (
	ctxTechClosestMotion TechniqueKind = iota
	ctxTechReprojectDepth
	ctxTechCopyDepth
)

// PostFXContext computes and owns the resources shared by all effects for
// the current frame: the blue-noise lookup pair, the camera constant buffer
// and the derived depth/motion buffers that depend on comparing current and
// previous frame state. It is the single place where "previous frame"
// bookkeeping happens; effects read its outputs instead of re-deriving them.
type PostFXContext struct {
	device     renderer.Device
	registry   *ResourceRegistry
	techniques *TechniqueCache

	frame    FrameDescriptor
	flags    FeatureFlag
	prepared bool

	// Continuity of the previous-depth copy; a discontinuity makes the
	// reprojection pass fall back to the current frame's own depth.
	continuity *AccumulationState

	currCamera      CameraAttribs
	prevCamera      CameraAttribs
	lastCameraBytes []byte

	noiseVersion uint32
}

// PostFXRenderAttributes carries the per-frame inputs for Execute. All
// fields are required.
type PostFXRenderAttributes struct {
	Context renderer.CommandContext
	Camera  *CameraAttribs
	// Depth of the current frame.
	DepthSRV renderer.TextureView
	// Per-pixel motion vectors in UV space.
	MotionSRV renderer.TextureView
}

func NewPostFXContext(device renderer.Device) *PostFXContext {
	core.AssertNotNil(device, "device")
	return &PostFXContext{
		device:     device,
		registry:   NewResourceRegistry(uint32(ctxResCount), ctxResTransientCount),
		techniques: NewTechniqueCache(),
		continuity: NewAccumulationState(1),
	}
}

// PrepareResources sizes the shared intermediate textures for the frame.
// A no-op when (width, height, feature flags) are unchanged; otherwise every
// shared texture is recreated and all cached bindings are invalidated so
// they rebuild against the new resources.
func (c *PostFXContext) PrepareResources(frame FrameDescriptor, flags FeatureFlag) {
	core.AssertMsg(frame.Width > 0 && frame.Height > 0, "frame dimensions must be non-zero")

	sameTarget := c.prepared && frame.Width == c.frame.Width && frame.Height == c.frame.Height && flags == c.flags
	c.frame = frame
	if sameTarget {
		return
	}

	core.LogDebug("postfx context: (re)allocating shared resources for %dx%d flags=0x%x", frame.Width, frame.Height, flags)
	c.flags = flags
	c.prepared = true
	c.continuity.Invalidate()

	depthFormat := metadata.FormatR32Float
	if flags.Has(FeatureHalfPrecisionDepth) {
		depthFormat = metadata.FormatR16Float
	}

	if c.registry.Texture(ctxResBlueNoiseXY) == nil {
		c.registry.Insert(ctxResBlueNoiseXY, c.device.CreateTexture(metadata.TextureDescriptor{
			Name: "PostFX::BlueNoiseXY", Width: BlueNoiseTextureDim, Height: BlueNoiseTextureDim,
			MipLevels: 1, Format: metadata.FormatRG8Unorm, BindFlags: metadata.BindShaderResource,
			Usage: metadata.UsageImmutable, InitialData: generateNoisePixels(0x9E3779B9),
		}))
		c.registry.Insert(ctxResBlueNoiseZW, c.device.CreateTexture(metadata.TextureDescriptor{
			Name: "PostFX::BlueNoiseZW", Width: BlueNoiseTextureDim, Height: BlueNoiseTextureDim,
			MipLevels: 1, Format: metadata.FormatRG8Unorm, BindFlags: metadata.BindShaderResource,
			Usage: metadata.UsageImmutable, InitialData: generateNoisePixels(0x85EBCA6B),
		}))
	}

	if c.registry.Buffer(ctxResCameraBuffer) == nil {
		c.registry.Insert(ctxResCameraBuffer, c.device.CreateBuffer(metadata.BufferDescriptor{
			Name: "PostFX::CameraAttribs",
			Size: uint64(len(packConstants(&c.currCamera)) * 2),
			BindFlags: metadata.BindConstantBuffer,
			Usage:     metadata.UsageDynamic,
		}))
	}

	c.registry.Insert(ctxResReprojectedDepth, c.device.CreateTexture(metadata.TextureDescriptor{
		Name: "PostFX::ReprojectedDepth", Width: frame.Width, Height: frame.Height,
		MipLevels: 1, Format: depthFormat,
		BindFlags: metadata.BindShaderResource | metadata.BindRenderTarget,
	}))
	c.registry.Insert(ctxResPreviousDepth, c.device.CreateTexture(metadata.TextureDescriptor{
		Name: "PostFX::PreviousDepth", Width: frame.Width, Height: frame.Height,
		MipLevels: 1, Format: metadata.FormatR32Float,
		BindFlags: metadata.BindShaderResource,
	}))
	c.registry.Insert(ctxResClosestMotion, c.device.CreateTexture(metadata.TextureDescriptor{
		Name: "PostFX::ClosestMotion", Width: frame.Width, Height: frame.Height,
		MipLevels: 1, Format: metadata.FormatRG16Float,
		BindFlags: metadata.BindShaderResource | metadata.BindRenderTarget,
	}))

	c.techniques.ReleaseSRBs()
	c.lastCameraBytes = nil
}

// Execute produces this frame's derived buffers: the closest motion vector
// per pixel, the reprojected depth and the previous-depth copy. Must be
// called once per frame after PrepareResources, before any effect executes.
func (c *PostFXContext) Execute(attribs *PostFXRenderAttributes) {
	core.AssertNotNil(attribs, "attribs")
	core.AssertNotNil(attribs.Context, "attribs.Context")
	core.AssertNotNil(attribs.Camera, "attribs.Camera")
	core.AssertNotNil(attribs.DepthSRV, "attribs.DepthSRV")
	core.AssertNotNil(attribs.MotionSRV, "attribs.MotionSRV")
	core.Assert(c.prepared, "Execute before PrepareResources")

	c.registry.InsertBorrowed(ctxResDepthInput, attribs.DepthSRV)
	c.registry.InsertBorrowed(ctxResMotionInput, attribs.MotionSRV)

	_, reset := c.continuity.Update(c.frame.Index)

	c.prevCamera = c.currCamera
	c.currCamera = *attribs.Camera
	if reset {
		c.prevCamera = c.currCamera
	}
	c.uploadCameraAttribs(attribs.Context)

	c.computeClosestMotion(attribs.Context)
	c.reprojectDepth(attribs.Context, reset)

	// Keep a copy of this frame's depth for the next frame.
	attribs.Context.CopyTexture(attribs.DepthSRV.Texture(), c.registry.Texture(ctxResPreviousDepth))

	c.registry.ReleaseTransient()
}

func (c *PostFXContext) uploadCameraAttribs(ctx renderer.CommandContext) {
	data := append(packConstants(&c.currCamera), packConstants(&c.prevCamera)...)
	if bytes.Equal(data, c.lastCameraBytes) {
		return
	}
	ctx.UpdateBuffer(c.registry.Buffer(ctxResCameraBuffer), data)
	c.lastCameraBytes = data
}

func (c *PostFXContext) computeClosestMotion(ctx renderer.CommandContext) {
	tech := c.techniques.GetOrCreate(TechniqueKey{Kind: ctxTechClosestMotion, Flags: c.flags})
	if !tech.IsInitializedPSO() {
		tech.InitializePSO(c.device, metadata.PipelineDescriptor{
			Name:         "PostFX::ComputeClosestMotion",
			VertexShader: "fullscreen_triangle_vs.hlsl",
			PixelShader:  "compute_motion_vectors_ps.hlsl",
			RTVFormats:   []metadata.TextureFormat{metadata.FormatRG16Float},
		})
	}
	if !tech.IsInitializedSRB() {
		tech.InitializeSRB()
	}
	// Inputs change every frame; rebind rather than cache.
	tech.SRB.SetTexture("g_Depth", c.registry.View(ctxResDepthInput), metadata.SamplerPoint)
	tech.SRB.SetTexture("g_Motion", c.registry.View(ctxResMotionInput), metadata.SamplerPoint)

	target := c.registry.Texture(ctxResClosestMotion)
	ctx.SetRenderTargets([]renderer.TextureView{target.RTV(0)}, nil)
	ctx.SetViewport(c.frame.Width, c.frame.Height)
	ctx.SetPipeline(tech.PSO)
	ctx.CommitBinding(tech.SRB)
	ctx.Draw(3)
}

func (c *PostFXContext) reprojectDepth(ctx renderer.CommandContext, reset bool) {
	reprojected := c.registry.Texture(ctxResReprojectedDepth)
	if reset {
		// No trustworthy previous frame; seed the reprojected depth with the
		// current frame so downstream reads stay well-defined. A draw rather
		// than a blit, since the target may be half precision.
		c.copyDepth(ctx, reprojected)
		return
	}

	tech := c.techniques.GetOrCreate(TechniqueKey{Kind: ctxTechReprojectDepth, Flags: c.flags, Format: reprojected.Descriptor().Format})
	if !tech.IsInitializedPSO() {
		tech.InitializePSO(c.device, metadata.PipelineDescriptor{
			Name:         "PostFX::ReprojectDepth",
			VertexShader: "fullscreen_triangle_vs.hlsl",
			PixelShader:  "reproject_depth_ps.hlsl",
			RTVFormats:   []metadata.TextureFormat{reprojected.Descriptor().Format},
		})
	}
	if !tech.IsInitializedSRB() {
		srb := tech.InitializeSRB()
		srb.SetTexture("g_PrevDepth", c.registry.Texture(ctxResPreviousDepth).SRV(), metadata.SamplerPoint)
		srb.SetBuffer("cbCameraAttribs", c.registry.Buffer(ctxResCameraBuffer))
	}
	tech.SRB.SetTexture("g_Motion", c.registry.View(ctxResMotionInput), metadata.SamplerPoint)

	ctx.SetRenderTargets([]renderer.TextureView{reprojected.RTV(0)}, nil)
	ctx.SetViewport(c.frame.Width, c.frame.Height)
	ctx.SetPipeline(tech.PSO)
	ctx.CommitBinding(tech.SRB)
	ctx.Draw(3)
}

func (c *PostFXContext) copyDepth(ctx renderer.CommandContext, target renderer.Texture) {
	tech := c.techniques.GetOrCreate(TechniqueKey{Kind: ctxTechCopyDepth, Flags: c.flags, Format: target.Descriptor().Format})
	if !tech.IsInitializedPSO() {
		tech.InitializePSO(c.device, metadata.PipelineDescriptor{
			Name:         "PostFX::CopyDepth",
			VertexShader: "fullscreen_triangle_vs.hlsl",
			PixelShader:  "copy_depth_ps.hlsl",
			RTVFormats:   []metadata.TextureFormat{target.Descriptor().Format},
		})
	}
	if !tech.IsInitializedSRB() {
		tech.InitializeSRB()
	}
	tech.SRB.SetTexture("g_Depth", c.registry.View(ctxResDepthInput), metadata.SamplerPoint)

	ctx.SetRenderTargets([]renderer.TextureView{target.RTV(0)}, nil)
	ctx.SetViewport(c.frame.Width, c.frame.Height)
	ctx.SetPipeline(tech.PSO)
	ctx.CommitBinding(tech.SRB)
	ctx.Draw(3)
}

// FrameDesc returns the frame metadata supplied to the latest
// PrepareResources call.
func (c *PostFXContext) FrameDesc() FrameDescriptor { return c.frame }

// Flags returns the feature flags the shared resources were built with.
func (c *PostFXContext) Flags() FeatureFlag { return c.flags }

// Device returns the device the context creates resources on.
func (c *PostFXContext) Device() renderer.Device { return c.device }

// CameraBuffer returns the shared camera constant buffer holding current and
// previous frame attribs.
func (c *PostFXContext) CameraBuffer() renderer.Buffer {
	return c.registry.Buffer(ctxResCameraBuffer)
}

// BlueNoiseXYSRV returns the first shared noise slice.
func (c *PostFXContext) BlueNoiseXYSRV() renderer.TextureView {
	return c.registry.Texture(ctxResBlueNoiseXY).SRV()
}

// BlueNoiseZWSRV returns the second shared noise slice.
func (c *PostFXContext) BlueNoiseZWSRV() renderer.TextureView {
	return c.registry.Texture(ctxResBlueNoiseZW).SRV()
}

// ReprojectedDepthSRV returns last frame's depth reprojected into the
// current frame.
func (c *PostFXContext) ReprojectedDepthSRV() renderer.TextureView {
	return c.registry.Texture(ctxResReprojectedDepth).SRV()
}

// PreviousDepthSRV returns the unmodified copy of last frame's depth.
func (c *PostFXContext) PreviousDepthSRV() renderer.TextureView {
	return c.registry.Texture(ctxResPreviousDepth).SRV()
}

// ClosestMotionSRV returns the per-pixel closest motion vector buffer.
func (c *PostFXContext) ClosestMotionSRV() renderer.TextureView {
	return c.registry.Texture(ctxResClosestMotion).SRV()
}

// SetBlueNoise replaces the generated noise tables with host-supplied texel
// data, typically loaded through LoadNoisePixels.
func (c *PostFXContext) SetBlueNoise(xy, zw []byte) {
	core.AssertMsg(len(xy) == BlueNoiseTextureDim*BlueNoiseTextureDim*2, "noise table has wrong size")
	core.AssertMsg(len(zw) == BlueNoiseTextureDim*BlueNoiseTextureDim*2, "noise table has wrong size")
	c.registry.Insert(ctxResBlueNoiseXY, c.device.CreateTexture(metadata.TextureDescriptor{
		Name: "PostFX::BlueNoiseXY", Width: BlueNoiseTextureDim, Height: BlueNoiseTextureDim,
		MipLevels: 1, Format: metadata.FormatRG8Unorm, BindFlags: metadata.BindShaderResource,
		Usage: metadata.UsageImmutable, InitialData: xy,
	}))
	c.registry.Insert(ctxResBlueNoiseZW, c.device.CreateTexture(metadata.TextureDescriptor{
		Name: "PostFX::BlueNoiseZW", Width: BlueNoiseTextureDim, Height: BlueNoiseTextureDim,
		MipLevels: 1, Format: metadata.FormatRG8Unorm, BindFlags: metadata.BindShaderResource,
		Usage: metadata.UsageImmutable, InitialData: zw,
	}))
	c.techniques.ReleaseSRBs()
	c.noiseVersion++
}

// NoiseVersion increments whenever the blue-noise tables are replaced.
// Effects holding cached bindings onto the noise views rebuild them when the
// version moves.
func (c *PostFXContext) NoiseVersion() uint32 { return c.noiseVersion }

// Shutdown releases every owned resource and cached technique.
func (c *PostFXContext) Shutdown() {
	c.techniques.ReleaseAll()
	c.registry.ReleaseAll()
}
