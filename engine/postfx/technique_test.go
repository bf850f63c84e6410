package postfx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/renderer/headless"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

func TestTechniqueCacheGetOrCreateIdentity(t *testing.T) {
	cache := NewTechniqueCache()
	key := TechniqueKey{Kind: 1, Flags: FeatureBicubicFilter}

	first := cache.GetOrCreate(key)
	second := cache.GetOrCreate(key)
	assert.Same(t, first, second, "same key must yield the same technique")
	assert.Equal(t, 1, cache.Len())
}

func TestTechniqueCacheKeyDiscrimination(t *testing.T) {
	dev := headless.New(nil)
	cache := NewTechniqueCache()

	keys := []TechniqueKey{
		{Kind: 0},
		{Kind: 1},
		{Kind: 0, Flags: FeatureYCoCgColorSpace},
		{Kind: 0, Format: metadata.FormatR16Float},
		{Kind: 0, Format: metadata.FormatR32Float},
	}
	for _, key := range keys {
		tech := cache.GetOrCreate(key)
		require.False(t, tech.IsInitializedPSO())
		tech.InitializePSO(dev, metadata.PipelineDescriptor{Name: "test"})
	}

	assert.Equal(t, len(keys), cache.Len())
	assert.Equal(t, uint64(len(keys)), dev.PipelinesCreated(), "each distinct key compiles its own pipeline")

	// Revisiting the same keys compiles nothing new.
	for _, key := range keys {
		assert.True(t, cache.GetOrCreate(key).IsInitializedPSO())
	}
	assert.Equal(t, uint64(len(keys)), dev.PipelinesCreated())
}

func TestTechniqueInitializationOrder(t *testing.T) {
	dev := headless.New(nil)
	tech := &RenderTechnique{}

	assert.False(t, tech.IsInitializedPSO())
	assert.False(t, tech.IsInitializedSRB())

	tech.InitializePSO(dev, metadata.PipelineDescriptor{Name: "test"})
	assert.True(t, tech.IsInitializedPSO())

	srb := tech.InitializeSRB()
	assert.NotNil(t, srb)
	assert.Same(t, srb, tech.SRB)
	assert.Equal(t, uint64(1), dev.BindingsCreated())
}

func TestTechniqueCacheReleaseSRBsKeepsPipelines(t *testing.T) {
	dev := headless.New(nil)
	cache := NewTechniqueCache()

	for kind := TechniqueKind(0); kind < 3; kind++ {
		tech := cache.GetOrCreate(TechniqueKey{Kind: kind})
		tech.InitializePSO(dev, metadata.PipelineDescriptor{Name: "test"})
		tech.InitializeSRB()
	}
	assert.Equal(t, 3, cache.InitializedPSOCount())

	cache.ReleaseSRBs()
	assert.Equal(t, 3, cache.InitializedPSOCount(), "ReleaseSRBs must not drop pipelines")
	for kind := TechniqueKind(0); kind < 3; kind++ {
		tech := cache.GetOrCreate(TechniqueKey{Kind: kind})
		assert.False(t, tech.IsInitializedSRB())
		// The binding rebuilds lazily against the new resources.
		tech.InitializeSRB()
		assert.True(t, tech.IsInitializedSRB())
	}
}

func TestTechniqueCacheReleaseAll(t *testing.T) {
	dev := headless.New(nil)
	cache := NewTechniqueCache()

	tech := cache.GetOrCreate(TechniqueKey{Kind: 7})
	tech.InitializePSO(dev, metadata.PipelineDescriptor{Name: "test"})
	tech.InitializeSRB()

	cache.ReleaseAll()
	assert.Equal(t, 0, cache.InitializedPSOCount())
	assert.False(t, tech.IsInitializedPSO())
	assert.False(t, tech.IsInitializedSRB())
}
