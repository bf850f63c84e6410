package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// Texture is a device-local image plus the views the effect layer asks for.
// Layout is tracked whole-image; the passes in this engine never need
// per-mip layouts because a mip is either rendered to or sampled, with a
// render-target switch between.
type Texture struct {
	ctx  *Context
	desc metadata.TextureDescriptor

	image  vk.Image
	memory vk.DeviceMemory
	aspect vk.ImageAspectFlags
	layout vk.ImageLayout

	fullView vk.ImageView
	mipViews []vk.ImageView
}

type textureView struct {
	texture *Texture
	kind    renderer.ViewKind
	mip     uint32
	view    vk.ImageView
}

func (v *textureView) Texture() renderer.Texture { return v.texture }
func (v *textureView) Kind() renderer.ViewKind   { return v.kind }
func (v *textureView) MipLevel() uint32          { return v.mip }

func (d *Device) CreateTexture(desc metadata.TextureDescriptor) renderer.Texture {
	mipLevels := desc.MipLevels
	if mipLevels == 0 {
		mipLevels = 1
	}

	t := &Texture{
		ctx:    d.ctx,
		desc:   desc,
		aspect: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		layout: vk.ImageLayoutUndefined,
	}
	if desc.BindFlags&metadata.BindDepthStencil != 0 {
		t.aspect = vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}

	usage := vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit)
	if desc.BindFlags&metadata.BindShaderResource != 0 {
		usage |= vk.ImageUsageFlags(vk.ImageUsageSampledBit)
	}
	if desc.BindFlags&metadata.BindRenderTarget != 0 {
		usage |= vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit)
	}
	if desc.BindFlags&metadata.BindDepthStencil != 0 {
		usage |= vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)
	}
	if desc.BindFlags&metadata.BindUnorderedAccess != 0 {
		usage |= vk.ImageUsageFlags(vk.ImageUsageStorageBit)
	}
	if len(desc.InitialData) > 0 {
		usage |= vk.ImageUsageFlags(vk.ImageUsageTransferDstBit)
	}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     vk.ImageType2d,
		Format:        vkFormat(desc.Format),
		Extent:        vk.Extent3D{Width: desc.Width, Height: desc.Height, Depth: 1},
		MipLevels:     mipLevels,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	if res := vk.CreateImage(d.ctx.LogicalDevice, &imageCreateInfo, d.ctx.Allocator, &t.image); res != vk.Success {
		core.LogFatal("image creation failed for %q: %s", desc.Name, resultString(res))
	}

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.ctx.LogicalDevice, t.image, &requirements)
	requirements.Deref()

	memoryType := d.ctx.FindMemoryIndex(requirements.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if memoryType < 0 {
		core.LogFatal("no device-local memory for image %q", desc.Name)
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(memoryType),
	}
	if res := vk.AllocateMemory(d.ctx.LogicalDevice, &allocateInfo, d.ctx.Allocator, &t.memory); res != vk.Success {
		core.LogFatal("image memory allocation failed for %q: %s", desc.Name, resultString(res))
	}
	if res := vk.BindImageMemory(d.ctx.LogicalDevice, t.image, t.memory, 0); res != vk.Success {
		core.LogFatal("image memory bind failed for %q: %s", desc.Name, resultString(res))
	}

	t.fullView = t.createView(0, mipLevels)
	t.mipViews = make([]vk.ImageView, mipLevels)
	for mip := uint32(0); mip < mipLevels; mip++ {
		t.mipViews[mip] = t.createView(mip, 1)
	}

	if len(desc.InitialData) > 0 {
		d.uploadTexels(t, desc.InitialData)
	}
	return t
}

func (t *Texture) createView(baseMip, levelCount uint32) vk.ImageView {
	createInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    t.image,
		ViewType: vk.ImageViewType2d,
		Format:   vkFormat(t.desc.Format),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:   t.aspect,
			BaseMipLevel: baseMip,
			LevelCount:   levelCount,
			LayerCount:   1,
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(t.ctx.LogicalDevice, &createInfo, t.ctx.Allocator, &view); res != vk.Success {
		core.LogFatal("image view creation failed for %q: %s", t.desc.Name, resultString(res))
	}
	return view
}

func (t *Texture) Descriptor() metadata.TextureDescriptor { return t.desc }

func (t *Texture) SRV() renderer.TextureView {
	return &textureView{texture: t, kind: renderer.ViewShaderResource, view: t.fullView}
}

func (t *Texture) RTV(mip uint32) renderer.TextureView {
	core.AssertMsg(mip < uint32(len(t.mipViews)), "mip %d out of range for %q", mip, t.desc.Name)
	return &textureView{texture: t, kind: renderer.ViewRenderTarget, mip: mip, view: t.mipViews[mip]}
}

func (t *Texture) UAV(mip uint32) renderer.TextureView {
	core.AssertMsg(mip < uint32(len(t.mipViews)), "mip %d out of range for %q", mip, t.desc.Name)
	return &textureView{texture: t, kind: renderer.ViewUnorderedAccess, mip: mip, view: t.mipViews[mip]}
}

func (t *Texture) DSV() renderer.TextureView {
	return &textureView{texture: t, kind: renderer.ViewDepthStencil, view: t.mipViews[0]}
}

func (t *Texture) Release() {
	vk.DestroyImageView(t.ctx.LogicalDevice, t.fullView, t.ctx.Allocator)
	for _, view := range t.mipViews {
		vk.DestroyImageView(t.ctx.LogicalDevice, view, t.ctx.Allocator)
	}
	t.mipViews = nil
	vk.DestroyImage(t.ctx.LogicalDevice, t.image, t.ctx.Allocator)
	vk.FreeMemory(t.ctx.LogicalDevice, t.memory, t.ctx.Allocator)
}

// transition moves the whole image into the requested layout, emitting a
// conservative barrier. No-op when already there.
func (t *Texture) transition(cb vk.CommandBuffer, newLayout vk.ImageLayout) {
	if t.layout == newLayout {
		return
	}
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           t.layout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               t.image,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: t.aspect,
			LevelCount: vk.RemainingMipLevels,
			LayerCount: 1,
		},
		SrcAccessMask: vk.AccessFlags(vk.AccessMemoryWriteBit),
		DstAccessMask: vk.AccessFlags(vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit),
	}
	vk.CmdPipelineBarrier(cb,
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
	t.layout = newLayout
}

// transitionImage is the raw-handle variant used for swapchain images, whose
// layout the device tracks per frame rather than per object.
func transitionImage(cb vk.CommandBuffer, image vk.Image, aspect vk.ImageAspectFlags, oldLayout, newLayout vk.ImageLayout) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspect,
			LevelCount: vk.RemainingMipLevels,
			LayerCount: 1,
		},
		SrcAccessMask: vk.AccessFlags(vk.AccessMemoryWriteBit),
		DstAccessMask: vk.AccessFlags(vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit),
	}
	vk.CmdPipelineBarrier(cb,
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

// uploadTexels copies initial data into the base mip through a staging
// buffer and a single-use command buffer.
func (d *Device) uploadTexels(t *Texture, data []byte) {
	staging, stagingMemory := d.createRawBuffer(uint64(len(data)),
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))

	var mapped unsafe.Pointer
	if res := vk.MapMemory(d.ctx.LogicalDevice, stagingMemory, 0, vk.DeviceSize(len(data)), 0, &mapped); res != vk.Success {
		core.LogFatal("staging map failed for %q: %s", t.desc.Name, resultString(res))
	}
	vk.Memcopy(mapped, data)
	vk.UnmapMemory(d.ctx.LogicalDevice, stagingMemory)

	cb := d.beginSingleUse()
	t.transition(cb, vk.ImageLayoutTransferDstOptimal)
	region := vk.BufferImageCopy{
		ImageSubresource: vk.ImageSubresourceLayers{AspectMask: t.aspect, LayerCount: 1},
		ImageExtent:      vk.Extent3D{Width: t.desc.Width, Height: t.desc.Height, Depth: 1},
	}
	vk.CmdCopyBufferToImage(cb, staging, t.image, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
	t.transition(cb, vk.ImageLayoutShaderReadOnlyOptimal)
	d.endSingleUse(cb)

	vk.DestroyBuffer(d.ctx.LogicalDevice, staging, d.ctx.Allocator)
	vk.FreeMemory(d.ctx.LogicalDevice, stagingMemory, d.ctx.Allocator)
}

func (d *Device) beginSingleUse() vk.CommandBuffer {
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.ctx.GraphicsCommandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	buffers := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(d.ctx.LogicalDevice, &allocateInfo, buffers); res != vk.Success {
		core.LogFatal("single-use command buffer allocation failed: %s", resultString(res))
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	vk.BeginCommandBuffer(buffers[0], &beginInfo)
	return buffers[0]
}

func (d *Device) endSingleUse(cb vk.CommandBuffer) {
	vk.EndCommandBuffer(cb)
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cb},
	}
	if res := vk.QueueSubmit(d.ctx.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence); res != vk.Success {
		core.LogFatal("single-use submit failed: %s", resultString(res))
	}
	vk.QueueWaitIdle(d.ctx.GraphicsQueue)
	vk.FreeCommandBuffers(d.ctx.LogicalDevice, d.ctx.GraphicsCommandPool, 1, []vk.CommandBuffer{cb})
}
