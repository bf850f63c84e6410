package vulkan

import (
	"fmt"
	"strings"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// Recorder translates the device-boundary command stream into Vulkan
// commands. Render passes are opened lazily at the first draw so that the
// layout transitions requested between SetRenderTargets and Draw happen
// outside any pass.
type Recorder struct {
	device *Device
	cb     vk.CommandBuffer

	pendingColors []*textureView
	pendingDepth  *textureView
	viewportW     uint32
	viewportH     uint32
	pipeline      *Pipeline
	binding       *Binding

	inPass bool

	framebuffers map[string]vk.Framebuffer
}

func newRecorder(d *Device) *Recorder {
	return &Recorder{
		device:       d,
		framebuffers: make(map[string]vk.Framebuffer),
	}
}

func (r *Recorder) begin(cb vk.CommandBuffer) {
	r.cb = cb
	r.inPass = false
	r.pendingColors = nil
	r.pendingDepth = nil
	r.pipeline = nil
	r.binding = nil
}

func (r *Recorder) end() {
	r.endPass()
}

func (r *Recorder) endPass() {
	if r.inPass {
		vk.CmdEndRenderPass(r.cb)
		r.inPass = false
	}
}

func (r *Recorder) SetRenderTargets(colors []renderer.TextureView, depth renderer.TextureView) {
	r.endPass()
	r.pendingColors = r.pendingColors[:0]
	r.pendingDepth = nil

	for _, view := range colors {
		tv := view.(*textureView)
		tv.texture.transition(r.cb, vk.ImageLayoutColorAttachmentOptimal)
		r.pendingColors = append(r.pendingColors, tv)
	}
	if depth != nil {
		tv := depth.(*textureView)
		tv.texture.transition(r.cb, vk.ImageLayoutDepthStencilAttachmentOptimal)
		r.pendingDepth = tv
	}
}

func (r *Recorder) SetViewport(width, height uint32) {
	r.viewportW, r.viewportH = width, height
}

func (r *Recorder) SetPipeline(pipeline renderer.PipelineState) {
	r.pipeline = pipeline.(*Pipeline)
}

// CommitBinding applies the binding's layout requirements while no render
// pass is open and remembers the set for the next draw or dispatch.
func (r *Recorder) CommitBinding(binding renderer.ShaderBinding) {
	b := binding.(*Binding)
	core.AssertMsg(!r.inPass, "bindings must be committed before the first draw of a pass")
	for _, t := range b.sampled {
		t.transition(r.cb, vk.ImageLayoutShaderReadOnlyOptimal)
	}
	for _, t := range b.storage {
		t.transition(r.cb, vk.ImageLayoutGeneral)
	}
	r.binding = b
}

func (r *Recorder) Draw(vertexCount uint32) {
	core.AssertMsg(r.pipeline != nil, "draw without a bound pipeline")
	r.beginPass()

	vk.CmdBindPipeline(r.cb, vk.PipelineBindPointGraphics, r.pipeline.handle)

	// Negative height flips the clip space so full-screen passes written for
	// top-left origin coordinates land the right way up.
	viewport := vk.Viewport{
		Y:        float32(r.viewportH),
		Width:    float32(r.viewportW),
		Height:   -float32(r.viewportH),
		MaxDepth: 1.0,
	}
	vk.CmdSetViewport(r.cb, 0, 1, []vk.Viewport{viewport})
	scissor := vk.Rect2D{Extent: vk.Extent2D{Width: r.viewportW, Height: r.viewportH}}
	vk.CmdSetScissor(r.cb, 0, 1, []vk.Rect2D{scissor})

	if r.binding != nil {
		vk.CmdBindDescriptorSets(r.cb, vk.PipelineBindPointGraphics, r.pipeline.layout,
			0, 1, []vk.DescriptorSet{r.binding.set}, 0, nil)
	}
	vk.CmdDraw(r.cb, vertexCount, 1, 0, 0)
}

func (r *Recorder) Dispatch(groupsX, groupsY, groupsZ uint32) {
	core.AssertMsg(r.pipeline != nil, "dispatch without a bound pipeline")
	r.endPass()

	vk.CmdBindPipeline(r.cb, vk.PipelineBindPointCompute, r.pipeline.handle)
	if r.binding != nil {
		vk.CmdBindDescriptorSets(r.cb, vk.PipelineBindPointCompute, r.pipeline.layout,
			0, 1, []vk.DescriptorSet{r.binding.set}, 0, nil)
	}
	vk.CmdDispatch(r.cb, groupsX, groupsY, groupsZ)
}

func (r *Recorder) UpdateBuffer(buffer renderer.Buffer, data []byte) {
	buffer.(*Buffer).write(data)
}

func (r *Recorder) CopyTexture(src renderer.Texture, dst renderer.Texture) {
	r.endPass()

	srcTex := src.(*Texture)
	dstTex := dst.(*Texture)
	srcTex.transition(r.cb, vk.ImageLayoutTransferSrcOptimal)
	dstTex.transition(r.cb, vk.ImageLayoutTransferDstOptimal)

	srcDesc := srcTex.Descriptor()
	region := vk.ImageCopy{
		SrcSubresource: vk.ImageSubresourceLayers{AspectMask: srcTex.aspect, LayerCount: 1},
		DstSubresource: vk.ImageSubresourceLayers{AspectMask: dstTex.aspect, LayerCount: 1},
		Extent:         vk.Extent3D{Width: srcDesc.Width, Height: srcDesc.Height, Depth: 1},
	}
	vk.CmdCopyImage(r.cb,
		srcTex.image, vk.ImageLayoutTransferSrcOptimal,
		dstTex.image, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageCopy{region})
}

func (r *Recorder) ClearRenderTarget(view renderer.TextureView, rgba [4]float32) {
	r.endPass()

	tv := view.(*textureView)
	tv.texture.transition(r.cb, vk.ImageLayoutTransferDstOptimal)

	clearValue := vk.ClearColorValue{}
	clearValue.SetFloat32(rgba[:])
	ranges := []vk.ImageSubresourceRange{{
		AspectMask:   tv.texture.aspect,
		BaseMipLevel: tv.mip,
		LevelCount:   1,
		LayerCount:   1,
	}}
	vk.CmdClearColorImage(r.cb, tv.texture.image, vk.ImageLayoutTransferDstOptimal, &clearValue, 1, ranges)
}

// beginPass opens the render pass for the pending targets, creating and
// caching the framebuffer on first use.
func (r *Recorder) beginPass() {
	if r.inPass {
		return
	}
	core.AssertMsg(len(r.pendingColors) > 0 || r.pendingDepth != nil, "draw without render targets")

	colorFormats := make([]metadata.TextureFormat, len(r.pendingColors))
	for i, tv := range r.pendingColors {
		colorFormats[i] = tv.texture.desc.Format
	}
	depthFormat := metadata.FormatUnknown
	if r.pendingDepth != nil {
		depthFormat = r.pendingDepth.texture.desc.Format
	}
	renderPass := r.device.renderPass(colorFormats, depthFormat)
	framebuffer, width, height := r.framebuffer(renderPass)

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  renderPass,
		Framebuffer: framebuffer,
		RenderArea:  vk.Rect2D{Extent: vk.Extent2D{Width: width, Height: height}},
	}
	vk.CmdBeginRenderPass(r.cb, &beginInfo, vk.SubpassContentsInline)
	r.inPass = true
}

func (r *Recorder) framebuffer(renderPass vk.RenderPass) (vk.Framebuffer, uint32, uint32) {
	var key strings.Builder
	fmt.Fprintf(&key, "%v", renderPass)

	attachments := make([]vk.ImageView, 0, len(r.pendingColors)+1)
	var width, height uint32
	for _, tv := range r.pendingColors {
		attachments = append(attachments, tv.view)
		fmt.Fprintf(&key, "|%v", tv.view)
		width, height = attachmentSize(tv)
	}
	if r.pendingDepth != nil {
		attachments = append(attachments, r.pendingDepth.view)
		fmt.Fprintf(&key, "|d%v", r.pendingDepth.view)
		if width == 0 {
			width, height = attachmentSize(r.pendingDepth)
		}
	}

	if fb, ok := r.framebuffers[key.String()]; ok {
		return fb, width, height
	}

	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderPass,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           width,
		Height:          height,
		Layers:          1,
	}
	var fb vk.Framebuffer
	if res := vk.CreateFramebuffer(r.device.ctx.LogicalDevice, &createInfo, r.device.ctx.Allocator, &fb); res != vk.Success {
		core.LogFatal("framebuffer creation failed: %s", resultString(res))
	}
	r.framebuffers[key.String()] = fb
	return fb, width, height
}

// attachmentSize returns the dimensions of the mip the view selects.
func attachmentSize(tv *textureView) (uint32, uint32) {
	desc := tv.texture.desc
	w := desc.Width >> tv.mip
	h := desc.Height >> tv.mip
	if w == 0 {
		w = 1
	}
	if h == 0 {
		h = 1
	}
	return w, h
}

func (r *Recorder) destroyCaches() {
	for _, fb := range r.framebuffers {
		vk.DestroyFramebuffer(r.device.ctx.LogicalDevice, fb, r.device.ctx.Allocator)
	}
	r.framebuffers = make(map[string]vk.Framebuffer)
	r.device.destroyRenderPasses()
}
