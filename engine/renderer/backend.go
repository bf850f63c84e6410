package renderer

import "github.com/spaghettifunk/lumen/engine/renderer/metadata"

// The device boundary consumed by the post-processing layer. The effect suite
// never manages GPU memory directly; it orchestrates calls into these
// interfaces and relies on the backend for resource-state transitions between
// passes. Creation failure is handled by the backend's own error policy (the
// vulkan backend aborts); callers treat every returned object as valid.

/** @brief The view kinds a texture exposes. */
type ViewKind uint8

const (
	ViewShaderResource ViewKind = iota
	ViewRenderTarget
	ViewUnorderedAccess
	ViewDepthStencil
)

// TextureView is a non-owning typed accessor over a texture subresource.
type TextureView interface {
	Texture() Texture
	Kind() ViewKind
	// MipLevel selected at view creation; 0 for full-resource views.
	MipLevel() uint32
}

// Texture is an owned device texture. Release must be called exactly once by
// the owner; views obtained from it are invalid afterwards.
type Texture interface {
	Descriptor() metadata.TextureDescriptor
	SRV() TextureView
	RTV(mip uint32) TextureView
	UAV(mip uint32) TextureView
	DSV() TextureView
	Release()
}

// Buffer is an owned device buffer.
type Buffer interface {
	Descriptor() metadata.BufferDescriptor
	Release()
}

// ShaderBinding is the concrete set of resources attached to a pipeline for
// a draw or dispatch. Bindings are invalidated whenever the resources they
// reference are recreated and must then be rebuilt from the pipeline.
type ShaderBinding interface {
	SetTexture(variable string, view TextureView, filter metadata.SamplerFilter)
	SetBuffer(variable string, buffer Buffer)
	Release()
}

// PipelineState is an owned compiled pipeline.
type PipelineState interface {
	Descriptor() metadata.PipelineDescriptor
	CreateBinding() ShaderBinding
	Release()
}

// ShaderSourceProvider resolves logical shader names to source text for the
// backend's shader compiler. The second return is false when the name is
// unknown; compiling an unknown shader is fatal in the backend.
type ShaderSourceProvider interface {
	Lookup(name string) (string, bool)
}

// Device creates GPU objects.
type Device interface {
	CreateTexture(desc metadata.TextureDescriptor) Texture
	CreateBuffer(desc metadata.BufferDescriptor) Buffer
	CreatePipeline(desc metadata.PipelineDescriptor) PipelineState
}

// CommandContext records rendering commands for later submission. All calls
// are non-blocking command recording; ordering within a frame follows call
// order.
type CommandContext interface {
	SetRenderTargets(colors []TextureView, depth TextureView)
	SetViewport(width, height uint32)
	SetPipeline(pipeline PipelineState)
	CommitBinding(binding ShaderBinding)
	// Draw issues a non-indexed draw; full-screen passes use a 3-vertex
	// triangle generated in the vertex shader.
	Draw(vertexCount uint32)
	Dispatch(groupsX, groupsY, groupsZ uint32)
	UpdateBuffer(buffer Buffer, data []byte)
	CopyTexture(src Texture, dst Texture)
	ClearRenderTarget(view TextureView, rgba [4]float32)
}
