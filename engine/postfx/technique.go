package postfx

import (
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// TechniqueKind identifies one internal pass of an effect. Kinds are local
// to the owning effect; mip-varying passes fold the mip level into the kind
// so every (pass, mip) pair gets its own cached technique.
type TechniqueKind uint32

// TechniqueKey is the composite cache key. Equality requires exact match on
// every field, format included; comparable struct keys give the map exactly
// those semantics.
type TechniqueKey struct {
	Kind   TechniqueKind
	Flags  FeatureFlag
	Format metadata.TextureFormat
}

// RenderTechnique pairs a lazily built pipeline with its resource binding.
// The cache hands out empty techniques; callers perform one-time
// initialization guarded by the IsInitialized checks, since shader and
// render-target context is only known at first real use.
type RenderTechnique struct {
	PSO renderer.PipelineState
	SRB renderer.ShaderBinding
}

func (t *RenderTechnique) IsInitializedPSO() bool {
	return t.PSO != nil
}

func (t *RenderTechnique) IsInitializedSRB() bool {
	return t.SRB != nil
}

// InitializePSO compiles the pipeline. Calling it on an initialized
// technique is a contract violation; check IsInitializedPSO first.
func (t *RenderTechnique) InitializePSO(device renderer.Device, desc metadata.PipelineDescriptor) {
	core.AssertNotNil(device, "device")
	core.Assert(!t.IsInitializedPSO(), "technique PSO initialized twice")
	t.PSO = device.CreatePipeline(desc)
}

// InitializeSRB builds the resource binding from the pipeline.
func (t *RenderTechnique) InitializeSRB() renderer.ShaderBinding {
	core.Assert(t.IsInitializedPSO(), "SRB requested before PSO")
	core.Assert(!t.IsInitializedSRB(), "technique SRB initialized twice")
	t.SRB = t.PSO.CreateBinding()
	return t.SRB
}

func (t *RenderTechnique) releaseSRB() {
	if t.SRB != nil {
		t.SRB.Release()
		t.SRB = nil
	}
}

func (t *RenderTechnique) release() {
	t.releaseSRB()
	if t.PSO != nil {
		t.PSO.Release()
		t.PSO = nil
	}
}

// TechniqueCache persists render techniques across frames, keyed by
// (kind, feature flags, optional format).
type TechniqueCache struct {
	techniques map[TechniqueKey]*RenderTechnique
}

func NewTechniqueCache() *TechniqueCache {
	return &TechniqueCache{
		techniques: make(map[TechniqueKey]*RenderTechnique),
	}
}

// GetOrCreate returns the technique for key, default-constructed (empty) on
// first lookup. The same key always yields the same object.
func (c *TechniqueCache) GetOrCreate(key TechniqueKey) *RenderTechnique {
	if t, ok := c.techniques[key]; ok {
		return t
	}
	t := &RenderTechnique{}
	c.techniques[key] = t
	return t
}

// Len returns the number of cached techniques.
func (c *TechniqueCache) Len() int {
	return len(c.techniques)
}

// InitializedPSOCount returns how many cached techniques have compiled
// pipelines, which is the observable measure of key discrimination.
func (c *TechniqueCache) InitializedPSOCount() int {
	n := 0
	for _, t := range c.techniques {
		if t.IsInitializedPSO() {
			n++
		}
	}
	return n
}

// ReleaseSRBs drops every cached resource binding while keeping compiled
// pipelines. Called when the resources the bindings reference are recreated,
// typically on resize; the next Execute rebuilds them lazily.
func (c *TechniqueCache) ReleaseSRBs() {
	for _, t := range c.techniques {
		t.releaseSRB()
	}
}

// ReleaseAll drops pipelines and bindings both, e.g. when a shader override
// generation changes and pipelines must recompile.
func (c *TechniqueCache) ReleaseAll() {
	for _, t := range c.techniques {
		t.release()
	}
}
