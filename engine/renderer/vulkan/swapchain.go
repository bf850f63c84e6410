package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
)

// Swapchain wraps the presentable image chain. The effect suite renders into
// its own targets; the swapchain only receives the final blit.
type Swapchain struct {
	Handle      vk.Swapchain
	ImageFormat vk.SurfaceFormat
	Extent      vk.Extent2D
	ImageCount  uint32
	Images      []vk.Image
	ImageViews  []vk.ImageView
}

func newSwapchain(ctx *Context, width, height uint32) (*Swapchain, error) {
	s := &Swapchain{}
	if err := s.create(ctx, width, height); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Swapchain) create(ctx *Context, width, height uint32) error {
	var capabilities vk.SurfaceCapabilities
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(ctx.PhysicalDevice, ctx.Surface, &capabilities); res != vk.Success {
		return fmt.Errorf("surface capability query failed: %s", resultString(res))
	}
	capabilities.Deref()
	capabilities.MinImageExtent.Deref()
	capabilities.MaxImageExtent.Deref()
	capabilities.CurrentExtent.Deref()

	var formatCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(ctx.PhysicalDevice, ctx.Surface, &formatCount, nil)
	formats := make([]vk.SurfaceFormat, formatCount)
	vk.GetPhysicalDeviceSurfaceFormats(ctx.PhysicalDevice, ctx.Surface, &formatCount, formats)

	s.ImageFormat = formats[0]
	s.ImageFormat.Deref()
	for i := range formats {
		formats[i].Deref()
		if formats[i].Format == vk.FormatB8g8r8a8Unorm && formats[i].ColorSpace == vk.ColorSpaceSrgbNonlinear {
			s.ImageFormat = formats[i]
			break
		}
	}

	var presentModeCount uint32
	vk.GetPhysicalDeviceSurfacePresentModes(ctx.PhysicalDevice, ctx.Surface, &presentModeCount, nil)
	presentModes := make([]vk.PresentMode, presentModeCount)
	vk.GetPhysicalDeviceSurfacePresentModes(ctx.PhysicalDevice, ctx.Surface, &presentModeCount, presentModes)

	presentMode := vk.PresentModeFifo
	for _, mode := range presentModes {
		if mode == vk.PresentModeMailbox {
			presentMode = mode
			break
		}
	}

	extent := vk.Extent2D{Width: width, Height: height}
	if capabilities.CurrentExtent.Width != ^uint32(0) {
		extent = capabilities.CurrentExtent
	}
	extent.Width = clampU32(extent.Width, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width)
	extent.Height = clampU32(extent.Height, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height)
	s.Extent = extent

	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && imageCount > capabilities.MaxImageCount {
		imageCount = capabilities.MaxImageCount
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          ctx.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      s.ImageFormat.Format,
		ImageColorSpace:  s.ImageFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
	}
	if ctx.GraphicsQueueIndex != ctx.PresentQueueIndex {
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = 2
		createInfo.PQueueFamilyIndices = []uint32{uint32(ctx.GraphicsQueueIndex), uint32(ctx.PresentQueueIndex)}
	}

	if res := vk.CreateSwapchain(ctx.LogicalDevice, &createInfo, ctx.Allocator, &s.Handle); res != vk.Success {
		return fmt.Errorf("vkCreateSwapchainKHR failed: %s", resultString(res))
	}

	vk.GetSwapchainImages(ctx.LogicalDevice, s.Handle, &s.ImageCount, nil)
	s.Images = make([]vk.Image, s.ImageCount)
	vk.GetSwapchainImages(ctx.LogicalDevice, s.Handle, &s.ImageCount, s.Images)

	s.ImageViews = make([]vk.ImageView, s.ImageCount)
	for i := uint32(0); i < s.ImageCount; i++ {
		viewCreateInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    s.Images[i],
			ViewType: vk.ImageViewType2d,
			Format:   s.ImageFormat.Format,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}
		if res := vk.CreateImageView(ctx.LogicalDevice, &viewCreateInfo, ctx.Allocator, &s.ImageViews[i]); res != vk.Success {
			return fmt.Errorf("swapchain image view creation failed: %s", resultString(res))
		}
	}

	core.LogDebug("swapchain created: %dx%d, %d images", extent.Width, extent.Height, s.ImageCount)
	return nil
}

// AcquireNextImage returns the index of the next presentable image. A false
// result means the swapchain must be recreated before rendering continues.
func (s *Swapchain) AcquireNextImage(ctx *Context, timeoutNS uint64, imageAvailable vk.Semaphore) (uint32, bool) {
	var imageIndex uint32
	res := vk.AcquireNextImage(ctx.LogicalDevice, s.Handle, timeoutNS, imageAvailable, vk.NullFence, &imageIndex)
	switch res {
	case vk.Success, vk.Suboptimal:
		return imageIndex, true
	case vk.ErrorOutOfDate:
		s.Recreate(ctx, ctx.FramebufferWidth, ctx.FramebufferHeight)
		return 0, false
	default:
		core.LogError("vkAcquireNextImageKHR failed: %s", resultString(res))
		return 0, false
	}
}

func (s *Swapchain) Present(ctx *Context, presentQueue vk.Queue, renderComplete vk.Semaphore, imageIndex uint32) {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{renderComplete},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.Handle},
		PImageIndices:      []uint32{imageIndex},
	}
	res := vk.QueuePresent(presentQueue, &presentInfo)
	if res == vk.ErrorOutOfDate || res == vk.Suboptimal {
		s.Recreate(ctx, ctx.FramebufferWidth, ctx.FramebufferHeight)
	} else if res != vk.Success {
		core.LogError("vkQueuePresentKHR failed: %s", resultString(res))
	}
}

// Recreate tears the chain down and builds it again at the given size, as
// required after a window resize or an out-of-date acquire.
func (s *Swapchain) Recreate(ctx *Context, width, height uint32) {
	vk.DeviceWaitIdle(ctx.LogicalDevice)
	s.Destroy(ctx)
	if err := s.create(ctx, width, height); err != nil {
		core.LogFatal("swapchain recreation failed: %s", err.Error())
	}
}

func (s *Swapchain) Destroy(ctx *Context) {
	for _, view := range s.ImageViews {
		vk.DestroyImageView(ctx.LogicalDevice, view, ctx.Allocator)
	}
	s.ImageViews = nil
	vk.DestroySwapchain(ctx.LogicalDevice, s.Handle, ctx.Allocator)
}

func clampU32(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
