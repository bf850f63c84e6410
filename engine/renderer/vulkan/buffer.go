package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// Buffer is a device buffer. Dynamic buffers stay persistently mapped so the
// per-frame constant uploads are a memcopy, not a staging round trip.
type Buffer struct {
	ctx  *Context
	desc metadata.BufferDescriptor

	handle vk.Buffer
	memory vk.DeviceMemory
	mapped unsafe.Pointer
}

func (d *Device) CreateBuffer(desc metadata.BufferDescriptor) renderer.Buffer {
	usage := vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
	if desc.BindFlags&metadata.BindConstantBuffer != 0 {
		usage |= vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)
	}
	if desc.BindFlags&metadata.BindShaderResource != 0 || desc.BindFlags&metadata.BindUnorderedAccess != 0 {
		usage |= vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit)
	}

	properties := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	if desc.Usage == metadata.UsageDynamic {
		properties = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	}

	b := &Buffer{ctx: d.ctx, desc: desc}
	b.handle, b.memory = d.createRawBuffer(desc.Size, usage, properties)

	if desc.Usage == metadata.UsageDynamic {
		if res := vk.MapMemory(d.ctx.LogicalDevice, b.memory, 0, vk.DeviceSize(desc.Size), 0, &b.mapped); res != vk.Success {
			core.LogFatal("buffer map failed for %q: %s", desc.Name, resultString(res))
		}
	}
	return b
}

func (b *Buffer) Descriptor() metadata.BufferDescriptor { return b.desc }

func (b *Buffer) Release() {
	if b.mapped != nil {
		vk.UnmapMemory(b.ctx.LogicalDevice, b.memory)
		b.mapped = nil
	}
	vk.DestroyBuffer(b.ctx.LogicalDevice, b.handle, b.ctx.Allocator)
	vk.FreeMemory(b.ctx.LogicalDevice, b.memory, b.ctx.Allocator)
}

// write copies data into a persistently mapped buffer.
func (b *Buffer) write(data []byte) {
	core.AssertMsg(b.mapped != nil, "buffer %q is not dynamic", b.desc.Name)
	core.AssertMsg(uint64(len(data)) <= b.desc.Size, "write of %d bytes overflows buffer %q", len(data), b.desc.Name)
	vk.Memcopy(b.mapped, data)
}

func (d *Device) createRawBuffer(size uint64, usage vk.BufferUsageFlags, properties vk.MemoryPropertyFlags) (vk.Buffer, vk.DeviceMemory) {
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	var handle vk.Buffer
	if res := vk.CreateBuffer(d.ctx.LogicalDevice, &createInfo, d.ctx.Allocator, &handle); res != vk.Success {
		core.LogFatal("buffer creation failed: %s", resultString(res))
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.ctx.LogicalDevice, handle, &requirements)
	requirements.Deref()

	memoryType := d.ctx.FindMemoryIndex(requirements.MemoryTypeBits, properties)
	if memoryType < 0 {
		core.LogFatal("no suitable memory type for buffer")
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(memoryType),
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(d.ctx.LogicalDevice, &allocateInfo, d.ctx.Allocator, &memory); res != vk.Success {
		core.LogFatal("buffer memory allocation failed: %s", resultString(res))
	}
	if res := vk.BindBufferMemory(d.ctx.LogicalDevice, handle, memory, 0); res != vk.Success {
		core.LogFatal("buffer memory bind failed: %s", resultString(res))
	}
	return handle, memory
}
