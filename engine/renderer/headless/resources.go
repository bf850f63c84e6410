package headless

import (
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type Texture struct {
	id       uint64
	desc     metadata.TextureDescriptor
	device   *Device
	released bool
}

// ID returns the device-unique identity of this texture, usable to check
// whether a resource survived a PrepareResources call unchanged.
func (t *Texture) ID() uint64 { return t.id }

func (t *Texture) Descriptor() metadata.TextureDescriptor { return t.desc }

func (t *Texture) SRV() renderer.TextureView {
	return &TextureView{texture: t, kind: renderer.ViewShaderResource}
}

func (t *Texture) RTV(mip uint32) renderer.TextureView {
	return &TextureView{texture: t, kind: renderer.ViewRenderTarget, mip: mip}
}

func (t *Texture) UAV(mip uint32) renderer.TextureView {
	return &TextureView{texture: t, kind: renderer.ViewUnorderedAccess, mip: mip}
}

func (t *Texture) DSV() renderer.TextureView {
	return &TextureView{texture: t, kind: renderer.ViewDepthStencil}
}

func (t *Texture) Release() {
	core.AssertMsg(!t.released, "texture %q released twice", t.desc.Name)
	t.released = true
	delete(t.device.liveTextures, t.id)
}

type TextureView struct {
	texture *Texture
	kind    renderer.ViewKind
	mip     uint32
}

func (v *TextureView) Texture() renderer.Texture { return v.texture }
func (v *TextureView) Kind() renderer.ViewKind   { return v.kind }
func (v *TextureView) MipLevel() uint32          { return v.mip }

type Buffer struct {
	id       uint64
	desc     metadata.BufferDescriptor
	data     []byte
	device   *Device
	released bool
}

func (b *Buffer) ID() uint64 { return b.id }

func (b *Buffer) Descriptor() metadata.BufferDescriptor { return b.desc }

// Contents returns the bytes last written through UpdateBuffer.
func (b *Buffer) Contents() []byte { return b.data }

func (b *Buffer) Release() {
	core.AssertMsg(!b.released, "buffer %q released twice", b.desc.Name)
	b.released = true
	delete(b.device.liveBuffers, b.id)
}

type PipelineState struct {
	id       uint64
	desc     metadata.PipelineDescriptor
	device   *Device
	released bool
}

func (p *PipelineState) ID() uint64 { return p.id }

func (p *PipelineState) Descriptor() metadata.PipelineDescriptor { return p.desc }

func (p *PipelineState) CreateBinding() renderer.ShaderBinding {
	p.device.nextID++
	p.device.bindingsCreated++
	return &ShaderBinding{
		id:       p.device.nextID,
		pipeline: p,
		textures: make(map[string]renderer.TextureView),
		buffers:  make(map[string]renderer.Buffer),
	}
}

func (p *PipelineState) Release() {
	p.released = true
}

type ShaderBinding struct {
	id       uint64
	pipeline *PipelineState
	textures map[string]renderer.TextureView
	buffers  map[string]renderer.Buffer
	released bool
}

func (s *ShaderBinding) SetTexture(variable string, view renderer.TextureView, filter metadata.SamplerFilter) {
	s.textures[variable] = view
}

func (s *ShaderBinding) SetBuffer(variable string, buffer renderer.Buffer) {
	s.buffers[variable] = buffer
}

// BoundTexture returns the view bound to a shader variable, nil when unbound.
func (s *ShaderBinding) BoundTexture(variable string) renderer.TextureView {
	return s.textures[variable]
}

func (s *ShaderBinding) Release() {
	s.released = true
}
