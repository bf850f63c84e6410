package metadata

/** @brief Bind flags describing how a resource may be attached to the pipeline. */
type BindFlag uint16

const (
	BindNone           BindFlag = 0
	BindShaderResource BindFlag = 1 << 0
	BindRenderTarget   BindFlag = 1 << 1
	BindDepthStencil   BindFlag = 1 << 2
	BindUnorderedAccess BindFlag = 1 << 3
	BindConstantBuffer BindFlag = 1 << 4
)

/** @brief Update frequency hint for a resource. */
type Usage uint8

const (
	// Device-local, written by GPU passes.
	UsageDefault Usage = iota
	// CPU-written every frame (constant buffers).
	UsageDynamic
	// Uploaded once at creation (lookup tables).
	UsageImmutable
)

/** @brief Full description of a texture at creation time. */
type TextureDescriptor struct {
	/** @brief Debug name surfaced to the device layer and logs. */
	Name string
	Width  uint32
	Height uint32
	/** @brief Number of mip levels, including the base. 0 means "just the base". */
	MipLevels uint32
	Format    TextureFormat
	BindFlags BindFlag
	Usage     Usage
	/** @brief Optional texel data uploaded at creation (base mip only). */
	InitialData []byte
}

/** @brief Full description of a buffer at creation time. */
type BufferDescriptor struct {
	Name      string
	Size      uint64
	BindFlags BindFlag
	Usage     Usage
}

/** @brief Output blending applied by a graphics pipeline. */
type BlendMode uint8

const (
	BlendOpaque BlendMode = iota
	BlendAdditive
	BlendAlpha
)

/** @brief Description of a graphics or compute pipeline. A pipeline is a
 * compute pipeline when ComputeShader is set; VertexShader/PixelShader and
 * the render-target formats are ignored in that case. */
type PipelineDescriptor struct {
	Name string
	/** @brief Logical shader-source names resolved through the shader registry. */
	VertexShader  string
	PixelShader   string
	ComputeShader string
	/** @brief Formats of the bound render targets, in slot order. */
	RTVFormats []TextureFormat
	DSVFormat  TextureFormat
	Blend      BlendMode
}

// IsCompute reports whether the descriptor names a compute pipeline.
func (d *PipelineDescriptor) IsCompute() bool {
	return d.ComputeShader != ""
}

/** @brief Texture sampling filter selected when binding a texture view. */
type SamplerFilter uint8

const (
	SamplerPoint SamplerFilter = iota
	SamplerLinear
	SamplerLinearClamp
)
