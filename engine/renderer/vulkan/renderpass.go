package vulkan

import (
	"strings"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// renderPass returns a pass compatible with the given attachment formats,
// creating and caching it on first use. Contents are loaded, never cleared:
// the effect chain clears through ClearRenderTarget and several passes render
// over previously written texels.
func (d *Device) renderPass(colorFormats []metadata.TextureFormat, depthFormat metadata.TextureFormat) vk.RenderPass {
	if d.renderPasses == nil {
		d.renderPasses = make(map[string]vk.RenderPass)
	}

	var key strings.Builder
	for _, f := range colorFormats {
		key.WriteString(f.String())
		key.WriteByte('|')
	}
	key.WriteString(depthFormat.String())
	if rp, ok := d.renderPasses[key.String()]; ok {
		return rp
	}

	attachments := make([]vk.AttachmentDescription, 0, len(colorFormats)+1)
	colorRefs := make([]vk.AttachmentReference, 0, len(colorFormats))
	for i, f := range colorFormats {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:        vkFormat(f),
			Samples:       vk.SampleCount1Bit,
			LoadOp:        vk.AttachmentLoadOpLoad,
			StoreOp:       vk.AttachmentStoreOpStore,
			InitialLayout: vk.ImageLayoutColorAttachmentOptimal,
			FinalLayout:   vk.ImageLayoutColorAttachmentOptimal,
		})
		colorRefs = append(colorRefs, vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorRefs)),
		PColorAttachments:    colorRefs,
	}
	if depthFormat != metadata.FormatUnknown {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:        vkFormat(depthFormat),
			Samples:       vk.SampleCount1Bit,
			LoadOp:        vk.AttachmentLoadOpLoad,
			StoreOp:       vk.AttachmentStoreOpStore,
			InitialLayout: vk.ImageLayoutDepthStencilAttachmentOptimal,
			FinalLayout:   vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(len(attachments) - 1),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		SrcAccessMask: vk.AccessFlags(vk.AccessMemoryWriteBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageFragmentShaderBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit | vk.AccessShaderReadBit),
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}
	var rp vk.RenderPass
	if res := vk.CreateRenderPass(d.ctx.LogicalDevice, &createInfo, d.ctx.Allocator, &rp); res != vk.Success {
		core.LogFatal("render pass creation failed: %s", resultString(res))
	}
	d.renderPasses[key.String()] = rp
	return rp
}

func (d *Device) destroyRenderPasses() {
	for _, rp := range d.renderPasses {
		vk.DestroyRenderPass(d.ctx.LogicalDevice, rp, d.ctx.Allocator)
	}
	d.renderPasses = nil
}
