package vulkan

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// Resource bindings are recovered from the register() annotations in the HLSL
// source and laid out in a single descriptor set: t registers map to combined
// image samplers at their own index, b registers to uniform buffers at 32+N,
// u registers to storage images at 48+N. The offline SPIR-V compile uses the
// same shifts, so reflection here is a source scan rather than SPIR-V parsing.
const (
	bindingShiftConstants = 32
	bindingShiftStorage   = 48
)

const maxBindingsPerPipeline = 128

var registerPattern = regexp.MustCompile(`(\w+)\s*(?:\[\d*\])?\s*:\s*register\(\s*([tbu])(\d+)\s*\)`)

type bindingSlot struct {
	binding        uint32
	descriptorType vk.DescriptorType
}

// Pipeline is a compiled graphics or compute pipeline plus the descriptor
// machinery its bindings allocate from.
type Pipeline struct {
	device *Device
	desc   metadata.PipelineDescriptor

	handle    vk.Pipeline
	layout    vk.PipelineLayout
	setLayout vk.DescriptorSetLayout
	pool      vk.DescriptorPool
	bindPoint vk.PipelineBindPoint

	slots map[string]bindingSlot
}

func (d *Device) CreatePipeline(desc metadata.PipelineDescriptor) renderer.PipelineState {
	p := &Pipeline{
		device:    d,
		desc:      desc,
		bindPoint: vk.PipelineBindPointGraphics,
		slots:     make(map[string]bindingSlot),
	}
	if desc.IsCompute() {
		p.bindPoint = vk.PipelineBindPointCompute
	}

	if desc.IsCompute() {
		p.reflectSlots(desc.ComputeShader)
	} else {
		p.reflectSlots(desc.VertexShader)
		p.reflectSlots(desc.PixelShader)
	}
	p.createDescriptorLayout()

	if desc.IsCompute() {
		p.createComputePipeline()
	} else {
		p.createGraphicsPipeline()
	}
	core.LogDebug("pipeline %q created (%d bindings)", desc.Name, len(p.slots))
	return p
}

// reflectSlots scans one shader source for register annotations and records
// the descriptor slot for each named resource.
func (p *Pipeline) reflectSlots(shaderName string) {
	source, ok := p.device.sources.Lookup(shaderName)
	if !ok {
		core.LogFatal("pipeline %q references unknown shader %q", p.desc.Name, shaderName)
	}
	for _, match := range registerPattern.FindAllStringSubmatch(source, -1) {
		name, space := match[1], match[2]
		index, err := strconv.Atoi(match[3])
		if err != nil {
			continue
		}
		var slot bindingSlot
		switch space {
		case "t":
			slot = bindingSlot{uint32(index), vk.DescriptorTypeCombinedImageSampler}
		case "b":
			slot = bindingSlot{uint32(bindingShiftConstants + index), vk.DescriptorTypeUniformBuffer}
		case "u":
			slot = bindingSlot{uint32(bindingShiftStorage + index), vk.DescriptorTypeStorageImage}
		}
		if existing, ok := p.slots[name]; ok && existing != slot {
			core.LogFatal("pipeline %q: resource %q bound to conflicting registers", p.desc.Name, name)
		}
		p.slots[name] = slot
	}
}

func (p *Pipeline) createDescriptorLayout() {
	ctx := p.device.ctx

	bindings := make([]vk.DescriptorSetLayoutBinding, 0, len(p.slots))
	for _, slot := range p.slots {
		bindings = append(bindings, vk.DescriptorSetLayoutBinding{
			Binding:         slot.binding,
			DescriptorType:  slot.descriptorType,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageAll),
		})
	}
	layoutCreateInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	if res := vk.CreateDescriptorSetLayout(ctx.LogicalDevice, &layoutCreateInfo, ctx.Allocator, &p.setLayout); res != vk.Success {
		core.LogFatal("descriptor layout creation failed for %q: %s", p.desc.Name, resultString(res))
	}

	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vk.DescriptorSetLayout{p.setLayout},
	}
	if res := vk.CreatePipelineLayout(ctx.LogicalDevice, &pipelineLayoutCreateInfo, ctx.Allocator, &p.layout); res != vk.Success {
		core.LogFatal("pipeline layout creation failed for %q: %s", p.desc.Name, resultString(res))
	}

	poolSizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: maxBindingsPerPipeline * 4},
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: maxBindingsPerPipeline * 2},
		{Type: vk.DescriptorTypeStorageImage, DescriptorCount: maxBindingsPerPipeline * 2},
	}
	poolCreateInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       maxBindingsPerPipeline,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	if res := vk.CreateDescriptorPool(ctx.LogicalDevice, &poolCreateInfo, ctx.Allocator, &p.pool); res != vk.Success {
		core.LogFatal("descriptor pool creation failed for %q: %s", p.desc.Name, resultString(res))
	}
}

// loadShaderModule reads the offline-compiled SPIR-V blob paired with the
// named source file.
func (p *Pipeline) loadShaderModule(shaderName string) vk.ShaderModule {
	base := strings.TrimSuffix(shaderName, filepath.Ext(shaderName)) + ".spv"
	path := filepath.Join(p.device.spirvDir, base)
	code, err := os.ReadFile(path)
	if err != nil {
		core.LogFatal("shader binary %q missing for pipeline %q: %s", path, p.desc.Name, err.Error())
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    sliceUint32(code),
	}
	var module vk.ShaderModule
	if res := vk.CreateShaderModule(p.device.ctx.LogicalDevice, &createInfo, p.device.ctx.Allocator, &module); res != vk.Success {
		core.LogFatal("shader module creation failed for %q: %s", shaderName, resultString(res))
	}
	return module
}

func (p *Pipeline) createGraphicsPipeline() {
	ctx := p.device.ctx

	vertexModule := p.loadShaderModule(p.desc.VertexShader)
	pixelModule := p.loadShaderModule(p.desc.PixelShader)
	defer vk.DestroyShaderModule(ctx.LogicalDevice, vertexModule, ctx.Allocator)
	defer vk.DestroyShaderModule(ctx.LogicalDevice, pixelModule, ctx.Allocator)

	stages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: vertexModule,
			PName:  safeString("main"),
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: pixelModule,
			PName:  safeString("main"),
		},
	}

	// Full-screen passes synthesize their triangle from the vertex index, so
	// there is no vertex input state to describe.
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: vk.PrimitiveTopologyTriangleList,
	}
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}
	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		LineWidth:   1.0,
		CullMode:    vk.CullModeFlags(vk.CullModeNone),
		FrontFace:   vk.FrontFaceCounterClockwise,
	}
	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType: vk.StructureTypePipelineDepthStencilStateCreateInfo,
	}
	if p.desc.DSVFormat != metadata.FormatUnknown {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthWriteEnable = vk.True
		depthStencil.DepthCompareOp = vk.CompareOpLessOrEqual
	}

	attachments := make([]vk.PipelineColorBlendAttachmentState, len(p.desc.RTVFormats))
	for i := range attachments {
		attachment := vk.PipelineColorBlendAttachmentState{
			ColorWriteMask: vk.ColorComponentFlags(
				vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit),
		}
		switch p.desc.Blend {
		case metadata.BlendAdditive:
			attachment.BlendEnable = vk.True
			attachment.SrcColorBlendFactor = vk.BlendFactorOne
			attachment.DstColorBlendFactor = vk.BlendFactorOne
			attachment.ColorBlendOp = vk.BlendOpAdd
			attachment.SrcAlphaBlendFactor = vk.BlendFactorOne
			attachment.DstAlphaBlendFactor = vk.BlendFactorOne
			attachment.AlphaBlendOp = vk.BlendOpAdd
		case metadata.BlendAlpha:
			attachment.BlendEnable = vk.True
			attachment.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
			attachment.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
			attachment.ColorBlendOp = vk.BlendOpAdd
			attachment.SrcAlphaBlendFactor = vk.BlendFactorSrcAlpha
			attachment.DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
			attachment.AlphaBlendOp = vk.BlendOpAdd
		}
		attachments[i] = attachment
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
	}

	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	renderPass := p.device.renderPass(p.desc.RTVFormats, p.desc.DSVFormat)

	createInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              p.layout,
		RenderPass:          renderPass,
	}

	pipelines := make([]vk.Pipeline, 1)
	if res := vk.CreateGraphicsPipelines(ctx.LogicalDevice, vk.NullPipelineCache, 1,
		[]vk.GraphicsPipelineCreateInfo{createInfo}, ctx.Allocator, pipelines); res != vk.Success {
		core.LogFatal("graphics pipeline creation failed for %q: %s", p.desc.Name, resultString(res))
	}
	p.handle = pipelines[0]
}

func (p *Pipeline) createComputePipeline() {
	ctx := p.device.ctx

	module := p.loadShaderModule(p.desc.ComputeShader)
	defer vk.DestroyShaderModule(ctx.LogicalDevice, module, ctx.Allocator)

	createInfo := vk.ComputePipelineCreateInfo{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: module,
			PName:  safeString("main"),
		},
		Layout: p.layout,
	}
	pipelines := make([]vk.Pipeline, 1)
	if res := vk.CreateComputePipelines(ctx.LogicalDevice, vk.NullPipelineCache, 1,
		[]vk.ComputePipelineCreateInfo{createInfo}, ctx.Allocator, pipelines); res != vk.Success {
		core.LogFatal("compute pipeline creation failed for %q: %s", p.desc.Name, resultString(res))
	}
	p.handle = pipelines[0]
}

func (p *Pipeline) Descriptor() metadata.PipelineDescriptor { return p.desc }

func (p *Pipeline) CreateBinding() renderer.ShaderBinding {
	ctx := p.device.ctx
	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{p.setLayout},
	}
	sets := make([]vk.DescriptorSet, 1)
	if res := vk.AllocateDescriptorSets(ctx.LogicalDevice, &allocateInfo, &sets[0]); res != vk.Success {
		core.LogFatal("descriptor set allocation failed for %q: %s", p.desc.Name, resultString(res))
	}
	return &Binding{pipeline: p, set: sets[0]}
}

func (p *Pipeline) Release() {
	ctx := p.device.ctx
	vk.DestroyPipeline(ctx.LogicalDevice, p.handle, ctx.Allocator)
	vk.DestroyPipelineLayout(ctx.LogicalDevice, p.layout, ctx.Allocator)
	vk.DestroyDescriptorPool(ctx.LogicalDevice, p.pool, ctx.Allocator)
	vk.DestroyDescriptorSetLayout(ctx.LogicalDevice, p.setLayout, ctx.Allocator)
}

// Binding is one descriptor set worth of resources. Writes happen eagerly;
// the referenced textures are remembered so the recorder can move them into
// the right layout when the binding is committed.
type Binding struct {
	pipeline *Pipeline
	set      vk.DescriptorSet

	sampled []*Texture
	storage []*Texture
}

func (b *Binding) SetTexture(variable string, view renderer.TextureView, filter metadata.SamplerFilter) {
	slot, ok := b.pipeline.slots[variable]
	if !ok {
		core.LogFatal("pipeline %q has no resource %q", b.pipeline.desc.Name, variable)
	}
	tv, ok := view.(*textureView)
	if !ok {
		core.LogFatal("pipeline %q: %q is not a vulkan texture view", b.pipeline.desc.Name, variable)
	}

	imageInfo := vk.DescriptorImageInfo{ImageView: tv.view}
	switch slot.descriptorType {
	case vk.DescriptorTypeCombinedImageSampler:
		imageInfo.Sampler = b.pipeline.device.sampler(filter)
		imageInfo.ImageLayout = vk.ImageLayoutShaderReadOnlyOptimal
		b.sampled = append(b.sampled, tv.texture)
	case vk.DescriptorTypeStorageImage:
		imageInfo.ImageLayout = vk.ImageLayoutGeneral
		b.storage = append(b.storage, tv.texture)
	default:
		core.LogFatal("pipeline %q: %q is not a texture slot", b.pipeline.desc.Name, variable)
	}

	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          b.set,
		DstBinding:      slot.binding,
		DescriptorCount: 1,
		DescriptorType:  slot.descriptorType,
		PImageInfo:      []vk.DescriptorImageInfo{imageInfo},
	}
	vk.UpdateDescriptorSets(b.pipeline.device.ctx.LogicalDevice, 1, []vk.WriteDescriptorSet{write}, 0, nil)
}

func (b *Binding) SetBuffer(variable string, buffer renderer.Buffer) {
	slot, ok := b.pipeline.slots[variable]
	if !ok {
		core.LogFatal("pipeline %q has no resource %q", b.pipeline.desc.Name, variable)
	}
	vb, ok := buffer.(*Buffer)
	if !ok {
		core.LogFatal("pipeline %q: %q is not a vulkan buffer", b.pipeline.desc.Name, variable)
	}

	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          b.set,
		DstBinding:      slot.binding,
		DescriptorCount: 1,
		DescriptorType:  slot.descriptorType,
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: vb.handle,
			Range:  vk.DeviceSize(vb.desc.Size),
		}},
	}
	vk.UpdateDescriptorSets(b.pipeline.device.ctx.LogicalDevice, 1, []vk.WriteDescriptorSet{write}, 0, nil)
}

func (b *Binding) Release() {
	ctx := b.pipeline.device.ctx
	vk.FreeDescriptorSets(ctx.LogicalDevice, b.pipeline.pool, 1, &b.set)
	b.sampled = nil
	b.storage = nil
}

// sliceUint32 reinterprets SPIR-V bytes as the word slice the API expects.
func sliceUint32(data []byte) []uint32 {
	const wordSize = 4
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/wordSize)
}
