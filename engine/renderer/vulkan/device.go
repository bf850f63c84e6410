// Package vulkan implements the device boundary on top of the Vulkan API.
// Shader modules are loaded as offline-compiled SPIR-V blobs named after
// their source files; resource bindings are recovered from the HLSL
// register() annotations in the source registry.
package vulkan

import (
	"fmt"
	"math"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

const maxFramesInFlight = 2

// Device creates Vulkan resources and drives the per-frame
// acquire/submit/present bracket. Creation failures abort; the effect layer
// treats every returned object as valid.
type Device struct {
	ctx     *Context
	window  *glfw.Window
	sources renderer.ShaderSourceProvider

	// Directory holding offline-compiled .spv blobs, one per shader source.
	spirvDir string

	swapchain *Swapchain
	recorder  *Recorder

	commandBuffers           []vk.CommandBuffer
	imageAvailableSemaphores []vk.Semaphore
	queueCompleteSemaphores  []vk.Semaphore
	inFlightFences           []vk.Fence

	samplers     map[metadata.SamplerFilter]vk.Sampler
	renderPasses map[string]vk.RenderPass

	currentFrame uint32
	imageIndex   uint32

	debug bool
}

func New(window *glfw.Window, appName string, sources renderer.ShaderSourceProvider) (*Device, error) {
	d := &Device{
		ctx:      &Context{},
		window:   window,
		sources:  sources,
		spirvDir: "assets/shaders/bin",
		samplers: make(map[metadata.SamplerFilter]vk.Sampler),
		debug:    true,
	}

	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return nil, fmt.Errorf("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return nil, err
	}

	if err := d.createInstance(appName); err != nil {
		return nil, err
	}
	if err := d.createSurface(); err != nil {
		return nil, err
	}
	if err := d.selectPhysicalDevice(); err != nil {
		return nil, err
	}
	if err := d.createLogicalDevice(); err != nil {
		return nil, err
	}

	w, h := window.GetFramebufferSize()
	d.ctx.FramebufferWidth, d.ctx.FramebufferHeight = uint32(w), uint32(h)

	sc, err := newSwapchain(d.ctx, d.ctx.FramebufferWidth, d.ctx.FramebufferHeight)
	if err != nil {
		return nil, err
	}
	d.swapchain = sc

	if err := d.createSyncObjects(); err != nil {
		return nil, err
	}
	if err := d.createCommandBuffers(); err != nil {
		return nil, err
	}
	d.recorder = newRecorder(d)

	core.LogInfo("vulkan device initialized")
	return d, nil
}

// SetShaderBinaryDir changes where pipeline creation looks for compiled
// SPIR-V blobs.
func (d *Device) SetShaderBinaryDir(dir string) { d.spirvDir = dir }

func (d *Device) createInstance(appName string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   safeString(appName),
		PEngineName:        safeString("Lumen"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := []string{"VK_KHR_surface"}
	extensions = append(extensions, d.window.GetRequiredInstanceExtensions()...)
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= 1
	}
	if d.debug {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
	}
	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = safeStrings(extensions)

	layers := []string{}
	if d.debug {
		const validation = "VK_LAYER_KHRONOS_validation"
		var count uint32
		if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
			return fmt.Errorf("EnumerateInstanceLayerProperties failed: %s", resultString(res))
		}
		available := make([]vk.LayerProperties, count)
		if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
			return fmt.Errorf("EnumerateInstanceLayerProperties failed: %s", resultString(res))
		}
		for i := range available {
			available[i].Deref()
			end := firstZero(available[i].LayerName[:])
			if validation == vk.ToString(available[i].LayerName[:end+1]) {
				layers = append(layers, validation)
				break
			}
		}
		if len(layers) == 0 {
			core.LogWarn("validation layer not present, continuing without it")
		}
	}
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = safeStrings(layers)

	if res := vk.CreateInstance(&createInfo, d.ctx.Allocator, &d.ctx.Instance); res != vk.Success {
		return fmt.Errorf("vkCreateInstance failed: %s", resultString(res))
	}
	if err := vk.InitInstance(d.ctx.Instance); err != nil {
		return err
	}

	if d.debug {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit),
			PfnCallback: debugCallback,
		}
		var dbg vk.DebugReportCallback
		if res := vk.CreateDebugReportCallback(d.ctx.Instance, &debugCreateInfo, nil, &dbg); res != vk.Success {
			core.LogWarn("debug callback creation failed: %s", resultString(res))
		} else {
			d.ctx.debugMessenger = dbg
		}
	}
	return nil
}

func (d *Device) createSurface() error {
	surface, err := d.window.CreateWindowSurface(d.ctx.Instance, nil)
	if err != nil {
		return err
	}
	d.ctx.Surface = vk.SurfaceFromPointer(surface)
	return nil
}

func (d *Device) selectPhysicalDevice() error {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(d.ctx.Instance, &count, nil); res != vk.Success || count == 0 {
		return fmt.Errorf("no Vulkan-capable devices found")
	}
	devices := make([]vk.PhysicalDevice, count)
	if res := vk.EnumeratePhysicalDevices(d.ctx.Instance, &count, devices); res != vk.Success {
		return fmt.Errorf("EnumeratePhysicalDevices failed: %s", resultString(res))
	}

	for _, candidate := range devices {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(candidate, &properties)
		properties.Deref()

		graphics, present, ok := findQueueFamilies(candidate, d.ctx.Surface)
		if !ok {
			continue
		}
		if !hasExtension(candidate, vk.KhrSwapchainExtensionName) {
			continue
		}

		var features vk.PhysicalDeviceFeatures
		vk.GetPhysicalDeviceFeatures(candidate, &features)
		var memory vk.PhysicalDeviceMemoryProperties
		vk.GetPhysicalDeviceMemoryProperties(candidate, &memory)

		d.ctx.PhysicalDevice = candidate
		d.ctx.GraphicsQueueIndex = graphics
		d.ctx.PresentQueueIndex = present
		d.ctx.Properties = properties
		d.ctx.Features = features
		d.ctx.Memory = memory

		core.LogInfo("selected device: %s", vk.ToString(properties.DeviceName[:firstZero(properties.DeviceName[:])+1]))
		core.LogInfo("vulkan api version: %d.%d.%d",
			vk.Version.Major(vk.Version(properties.ApiVersion)),
			vk.Version.Minor(vk.Version(properties.ApiVersion)),
			vk.Version.Patch(vk.Version(properties.ApiVersion)))
		return nil
	}
	return fmt.Errorf("no physical device meets the requirements")
}

func findQueueFamilies(device vk.PhysicalDevice, surface vk.Surface) (graphics, present int32, ok bool) {
	graphics, present = -1, -1

	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, families)

	for i := uint32(0); i < count; i++ {
		families[i].Deref()
		if families[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 && graphics < 0 {
			graphics = int32(i)
		}
		var supportsPresent vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(device, i, surface, &supportsPresent); res != vk.Success {
			continue
		}
		if supportsPresent == vk.True && present < 0 {
			present = int32(i)
		}
	}
	return graphics, present, graphics >= 0 && present >= 0
}

func hasExtension(device vk.PhysicalDevice, name string) bool {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, nil); res != vk.Success {
		return false
	}
	available := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, available); res != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		end := firstZero(available[i].ExtensionName[:])
		if name == vk.ToString(available[i].ExtensionName[:end+1]) {
			return true
		}
	}
	return false
}

func (d *Device) createLogicalDevice() error {
	shared := d.ctx.GraphicsQueueIndex == d.ctx.PresentQueueIndex
	indices := []uint32{uint32(d.ctx.GraphicsQueueIndex)}
	if !shared {
		indices = append(indices, uint32(d.ctx.PresentQueueIndex))
	}

	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i, family := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	features := vk.PhysicalDeviceFeatures{}
	features.SamplerAnisotropy = vk.True

	extensions := []string{vk.KhrSwapchainExtensionName}
	if hasExtension(d.ctx.PhysicalDevice, "VK_KHR_portability_subset") {
		extensions = append(extensions, "VK_KHR_portability_subset")
	}

	createInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{features},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
	}

	if res := vk.CreateDevice(d.ctx.PhysicalDevice, &createInfo, d.ctx.Allocator, &d.ctx.LogicalDevice); res != vk.Success {
		return fmt.Errorf("vkCreateDevice failed: %s", resultString(res))
	}

	vk.GetDeviceQueue(d.ctx.LogicalDevice, uint32(d.ctx.GraphicsQueueIndex), 0, &d.ctx.GraphicsQueue)
	vk.GetDeviceQueue(d.ctx.LogicalDevice, uint32(d.ctx.PresentQueueIndex), 0, &d.ctx.PresentQueue)

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(d.ctx.GraphicsQueueIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	if res := vk.CreateCommandPool(d.ctx.LogicalDevice, &poolCreateInfo, d.ctx.Allocator, &d.ctx.GraphicsCommandPool); res != vk.Success {
		return fmt.Errorf("vkCreateCommandPool failed: %s", resultString(res))
	}
	return nil
}

func (d *Device) createSyncObjects() error {
	d.imageAvailableSemaphores = make([]vk.Semaphore, maxFramesInFlight)
	d.queueCompleteSemaphores = make([]vk.Semaphore, maxFramesInFlight)
	d.inFlightFences = make([]vk.Fence, maxFramesInFlight)

	for i := 0; i < maxFramesInFlight; i++ {
		semaphoreCreateInfo := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
		if res := vk.CreateSemaphore(d.ctx.LogicalDevice, &semaphoreCreateInfo, d.ctx.Allocator, &d.imageAvailableSemaphores[i]); res != vk.Success {
			return fmt.Errorf("semaphore creation failed: %s", resultString(res))
		}
		if res := vk.CreateSemaphore(d.ctx.LogicalDevice, &semaphoreCreateInfo, d.ctx.Allocator, &d.queueCompleteSemaphores[i]); res != vk.Success {
			return fmt.Errorf("semaphore creation failed: %s", resultString(res))
		}
		// Signaled so the first frame does not wait on a submit that never
		// happened.
		fenceCreateInfo := vk.FenceCreateInfo{
			SType: vk.StructureTypeFenceCreateInfo,
			Flags: vk.FenceCreateFlags(vk.FenceCreateSignaledBit),
		}
		if res := vk.CreateFence(d.ctx.LogicalDevice, &fenceCreateInfo, d.ctx.Allocator, &d.inFlightFences[i]); res != vk.Success {
			return fmt.Errorf("fence creation failed: %s", resultString(res))
		}
	}
	return nil
}

func (d *Device) createCommandBuffers() error {
	d.commandBuffers = make([]vk.CommandBuffer, d.swapchain.ImageCount)
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.ctx.GraphicsCommandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: d.swapchain.ImageCount,
	}
	if res := vk.AllocateCommandBuffers(d.ctx.LogicalDevice, &allocateInfo, d.commandBuffers); res != vk.Success {
		return fmt.Errorf("command buffer allocation failed: %s", resultString(res))
	}
	return nil
}

func (d *Device) sampler(filter metadata.SamplerFilter) vk.Sampler {
	if s, ok := d.samplers[filter]; ok {
		return s
	}
	createInfo := vk.SamplerCreateInfo{
		SType:        vk.StructureTypeSamplerCreateInfo,
		AddressModeU: vk.SamplerAddressModeClampToEdge,
		AddressModeV: vk.SamplerAddressModeClampToEdge,
		AddressModeW: vk.SamplerAddressModeClampToEdge,
		MagFilter:    vk.FilterNearest,
		MinFilter:    vk.FilterNearest,
	}
	switch filter {
	case metadata.SamplerLinear:
		createInfo.MagFilter = vk.FilterLinear
		createInfo.MinFilter = vk.FilterLinear
		createInfo.AddressModeU = vk.SamplerAddressModeRepeat
		createInfo.AddressModeV = vk.SamplerAddressModeRepeat
		createInfo.AddressModeW = vk.SamplerAddressModeRepeat
	case metadata.SamplerLinearClamp:
		createInfo.MagFilter = vk.FilterLinear
		createInfo.MinFilter = vk.FilterLinear
	}
	var s vk.Sampler
	if res := vk.CreateSampler(d.ctx.LogicalDevice, &createInfo, d.ctx.Allocator, &s); res != vk.Success {
		core.LogFatal("sampler creation failed: %s", resultString(res))
	}
	d.samplers[filter] = s
	return s
}

// BeginFrame acquires the next swapchain image and starts command recording.
func (d *Device) BeginFrame() renderer.CommandContext {
	vk.WaitForFences(d.ctx.LogicalDevice, 1, []vk.Fence{d.inFlightFences[d.currentFrame]}, vk.True, math.MaxUint64)

	imageIndex, ok := d.swapchain.AcquireNextImage(d.ctx, math.MaxUint64, d.imageAvailableSemaphores[d.currentFrame])
	if !ok {
		core.LogFatal("failed to acquire swapchain image")
	}
	d.imageIndex = imageIndex

	cb := d.commandBuffers[d.imageIndex]
	vk.ResetCommandBuffer(cb, 0)
	beginInfo := vk.CommandBufferBeginInfo{SType: vk.StructureTypeCommandBufferBeginInfo}
	if res := vk.BeginCommandBuffer(cb, &beginInfo); res != vk.Success {
		core.LogFatal("vkBeginCommandBuffer failed: %s", resultString(res))
	}

	d.recorder.begin(cb)
	return d.recorder
}

// EndFrame copies the final chain output into the acquired swapchain image,
// submits the frame and presents it.
func (d *Device) EndFrame(final renderer.TextureView) {
	cb := d.commandBuffers[d.imageIndex]
	d.recorder.end()

	if final != nil {
		d.blitToSwapchain(cb, final)
	}

	if res := vk.EndCommandBuffer(cb); res != vk.Success {
		core.LogFatal("vkEndCommandBuffer failed: %s", resultString(res))
	}

	vk.ResetFences(d.ctx.LogicalDevice, 1, []vk.Fence{d.inFlightFences[d.currentFrame]})

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cb},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{d.queueCompleteSemaphores[d.currentFrame]},
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{d.imageAvailableSemaphores[d.currentFrame]},
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
	}
	if res := vk.QueueSubmit(d.ctx.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, d.inFlightFences[d.currentFrame]); res != vk.Success {
		core.LogFatal("vkQueueSubmit failed: %s", resultString(res))
	}

	d.swapchain.Present(d.ctx, d.ctx.PresentQueue, d.queueCompleteSemaphores[d.currentFrame], d.imageIndex)
	d.currentFrame = (d.currentFrame + 1) % maxFramesInFlight
}

func (d *Device) blitToSwapchain(cb vk.CommandBuffer, final renderer.TextureView) {
	src, ok := final.Texture().(*Texture)
	if !ok {
		core.LogFatal("final output is not a vulkan texture")
	}
	desc := src.Descriptor()

	dst := d.swapchain.Images[d.imageIndex]
	transitionImage(cb, dst, vk.ImageAspectFlags(vk.ImageAspectColorBit),
		vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal)
	src.transition(cb, vk.ImageLayoutTransferSrcOptimal)

	region := vk.ImageBlit{
		SrcSubresource: vk.ImageSubresourceLayers{AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit), LayerCount: 1},
		DstSubresource: vk.ImageSubresourceLayers{AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit), LayerCount: 1},
	}
	region.SrcOffsets[1] = vk.Offset3D{X: int32(desc.Width), Y: int32(desc.Height), Z: 1}
	region.DstOffsets[1] = vk.Offset3D{X: int32(d.ctx.FramebufferWidth), Y: int32(d.ctx.FramebufferHeight), Z: 1}

	vk.CmdBlitImage(cb,
		src.image, vk.ImageLayoutTransferSrcOptimal,
		dst, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageBlit{region}, vk.FilterLinear)

	transitionImage(cb, dst, vk.ImageAspectFlags(vk.ImageAspectColorBit),
		vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutPresentSrc)
}

// Shutdown destroys everything in reverse creation order.
func (d *Device) Shutdown() {
	vk.DeviceWaitIdle(d.ctx.LogicalDevice)

	for _, s := range d.samplers {
		vk.DestroySampler(d.ctx.LogicalDevice, s, d.ctx.Allocator)
	}
	d.recorder.destroyCaches()

	for i := 0; i < maxFramesInFlight; i++ {
		vk.DestroySemaphore(d.ctx.LogicalDevice, d.imageAvailableSemaphores[i], d.ctx.Allocator)
		vk.DestroySemaphore(d.ctx.LogicalDevice, d.queueCompleteSemaphores[i], d.ctx.Allocator)
		vk.DestroyFence(d.ctx.LogicalDevice, d.inFlightFences[i], d.ctx.Allocator)
	}

	vk.FreeCommandBuffers(d.ctx.LogicalDevice, d.ctx.GraphicsCommandPool, uint32(len(d.commandBuffers)), d.commandBuffers)
	d.swapchain.Destroy(d.ctx)

	vk.DestroyCommandPool(d.ctx.LogicalDevice, d.ctx.GraphicsCommandPool, d.ctx.Allocator)
	vk.DestroyDevice(d.ctx.LogicalDevice, d.ctx.Allocator)

	if d.ctx.Surface != vk.NullSurface {
		vk.DestroySurface(d.ctx.Instance, d.ctx.Surface, d.ctx.Allocator)
	}
	if d.ctx.debugMessenger != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(d.ctx.Instance, d.ctx.debugMessenger, d.ctx.Allocator)
	}
	vk.DestroyInstance(d.ctx.Instance, d.ctx.Allocator)
}

func debugCallback(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] %s", pLayerPrefix, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("[%s] %s", pLayerPrefix, pMessage)
	default:
		core.LogDebug("[%s] %s", pLayerPrefix, pMessage)
	}
	return vk.Bool32(vk.False)
}
