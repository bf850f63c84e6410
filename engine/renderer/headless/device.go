// Package headless implements the device boundary without a GPU. Objects are
// tracked by identity and every recorded command is kept, which is what the
// test suite and the demo application inspect: creation counts prove cache
// idempotence, object ids prove pointer stability across PrepareResources
// calls, and the pass log proves execution order.
package headless

import (
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type Device struct {
	nextID uint64

	texturesCreated  uint64
	buffersCreated   uint64
	pipelinesCreated uint64
	bindingsCreated  uint64

	liveTextures map[uint64]*Texture
	liveBuffers  map[uint64]*Buffer

	shaderSources renderer.ShaderSourceProvider
}

// New creates a headless device. The shader provider may be nil; pipeline
// creation then skips source resolution entirely.
func New(sources renderer.ShaderSourceProvider) *Device {
	return &Device{
		liveTextures: make(map[uint64]*Texture),
		liveBuffers:  make(map[uint64]*Buffer),
		shaderSources: sources,
	}
}

func (d *Device) CreateTexture(desc metadata.TextureDescriptor) renderer.Texture {
	core.AssertMsg(desc.Width > 0 && desc.Height > 0, "texture %q has zero dimension", desc.Name)
	d.nextID++
	d.texturesCreated++
	t := &Texture{id: d.nextID, desc: desc, device: d}
	d.liveTextures[t.id] = t
	return t
}

func (d *Device) CreateBuffer(desc metadata.BufferDescriptor) renderer.Buffer {
	core.AssertMsg(desc.Size > 0, "buffer %q has zero size", desc.Name)
	d.nextID++
	d.buffersCreated++
	b := &Buffer{id: d.nextID, desc: desc, data: make([]byte, desc.Size), device: d}
	d.liveBuffers[b.id] = b
	return b
}

func (d *Device) CreatePipeline(desc metadata.PipelineDescriptor) renderer.PipelineState {
	if d.shaderSources != nil {
		for _, name := range []string{desc.VertexShader, desc.PixelShader, desc.ComputeShader} {
			if name == "" {
				continue
			}
			if _, ok := d.shaderSources.Lookup(name); !ok {
				core.LogFatal("pipeline %q references unknown shader %q", desc.Name, name)
			}
		}
	}
	d.nextID++
	d.pipelinesCreated++
	return &PipelineState{id: d.nextID, desc: desc, device: d}
}

// TexturesCreated returns the total number of textures created over the
// device lifetime, released ones included.
func (d *Device) TexturesCreated() uint64 { return d.texturesCreated }

func (d *Device) BuffersCreated() uint64 { return d.buffersCreated }

// PipelinesCreated returns the total number of pipelines compiled; the
// technique-cache tests key on this.
func (d *Device) PipelinesCreated() uint64 { return d.pipelinesCreated }

func (d *Device) BindingsCreated() uint64 { return d.bindingsCreated }

// LiveTextures returns the number of textures created and not yet released.
func (d *Device) LiveTextures() int { return len(d.liveTextures) }

func (d *Device) LiveBuffers() int { return len(d.liveBuffers) }
