package postfx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/headless"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

func TestComputeBloomMipCount(t *testing.T) {
	assert.Equal(t, uint32(0), ComputeBloomMipCount(1920, 1080, 0))
	assert.Equal(t, uint32(0), ComputeBloomMipCount(1920, 1080, -1))
	assert.Equal(t, uint32(0), ComputeBloomMipCount(1, 1, 1))

	// Any positive radius keeps at least one level.
	assert.Equal(t, uint32(1), ComputeBloomMipCount(1920, 1080, 0.01))

	// Full radius uses the whole chain below half resolution.
	assert.Equal(t, uint32(10), ComputeBloomMipCount(1920, 1080, 1))

	// Capped on very large targets.
	assert.Equal(t, uint32(12), ComputeBloomMipCount(8192, 8192, 1))

	// Non-decreasing in radius for fixed dimensions.
	prev := uint32(0)
	for r := float32(0.05); r <= 1; r += 0.05 {
		mips := ComputeBloomMipCount(1920, 1080, r)
		assert.GreaterOrEqual(t, mips, prev, "mip count decreased at radius %v", r)
		prev = mips
	}
}

func TestEvaluatePrefilterSoftThreshold(t *testing.T) {
	const threshold, soft = 1.0, 0.125
	knee := float32(threshold * soft)

	// Exactly zero at and below the knee start.
	assert.Equal(t, float32(0), EvaluatePrefilter(0.2, threshold, soft))
	assert.Equal(t, float32(0), EvaluatePrefilter(threshold-knee, threshold, soft))

	// Positive inside the knee and above the threshold.
	assert.Greater(t, EvaluatePrefilter(threshold-knee/2, threshold, soft), float32(0))
	assert.Greater(t, EvaluatePrefilter(1.5, threshold, soft), float32(0))

	// Brighter pixels contribute a larger fraction of themselves.
	assert.Greater(t,
		EvaluatePrefilter(2.0, threshold, soft),
		EvaluatePrefilter(1.2, threshold, soft))
}

func TestEvaluateCompositeIdentityWithoutBloom(t *testing.T) {
	color := math.NewVec3(0.25, 0.5, 0.75)

	// A pixel whose brightness never crossed the prefilter contributes no
	// bloom, so compositing returns the scene color untouched.
	out := EvaluateComposite(color, math.NewVec3(0, 0, 0), 0.15)
	assert.Equal(t, color, out)

	// Zero intensity suppresses even a non-zero bloom term.
	out = EvaluateComposite(color, math.NewVec3(1, 1, 1), 0)
	assert.Equal(t, color, out)

	// Otherwise the bloom term adds linearly.
	out = EvaluateComposite(color, math.NewVec3(1, 1, 1), 0.5)
	assert.Equal(t, math.NewVec3(0.75, 1.0, 1.25), out)
}

func TestBloomPrepareResourcesIdempotent(t *testing.T) {
	env := newPostFXEnv(t, 256, 256)
	env.postFX.PrepareResources(FrameDescriptor{Index: 0, Width: 256, Height: 256}, FeatureNone)

	bloom := NewBloom()
	bloom.PrepareResources(env.device, env.postFX, FeatureNone)
	created := env.device.TexturesCreated()

	bloom.PrepareResources(env.device, env.postFX, FeatureNone)
	assert.Equal(t, created, env.device.TexturesCreated())
}

func TestBloomPassOrder(t *testing.T) {
	env := newPostFXEnv(t, 256, 256)
	env.runFrame(0, 256, 256)
	env.ctx.ResetPasses()

	color := env.device.CreateTexture(metadata.TextureDescriptor{
		Name: "Scene::Color", Width: 256, Height: 256, MipLevels: 1,
		Format: metadata.FormatRGBA16Float, BindFlags: metadata.BindShaderResource,
	})

	bloom := NewBloom()
	bloom.PrepareResources(env.device, env.postFX, FeatureNone)

	attribs := DefaultBloomAttribs() // radius 0.75 -> 6 mips at 256x256
	bloom.Execute(&BloomRenderAttributes{
		Context:  env.ctx,
		PostFX:   env.postFX,
		ColorSRV: color.SRV(),
		Attribs:  &attribs,
	})

	want := []string{"Bloom::Prefilter"}
	for i := 0; i < 5; i++ {
		want = append(want, "Bloom::Downsample")
	}
	for i := 0; i < 5; i++ {
		want = append(want, "Bloom::Upsample")
	}
	want = append(want, "Bloom::Composite")
	require.Equal(t, want, pipelineNames(env.ctx.Passes()))

	// The composite lands on the full-resolution output.
	final := env.ctx.Passes()[len(env.ctx.Passes())-1]
	assert.Equal(t, []string{"Bloom::Output"}, final.ColorTargets)
	assert.NotNil(t, bloom.GetBloomedTextureSRV())
}

func TestBloomZeroRadiusSkipsChain(t *testing.T) {
	env := newPostFXEnv(t, 256, 256)
	env.runFrame(0, 256, 256)
	env.ctx.ResetPasses()

	color := env.device.CreateTexture(metadata.TextureDescriptor{
		Name: "Scene::Color", Width: 256, Height: 256, MipLevels: 1,
		Format: metadata.FormatRGBA16Float, BindFlags: metadata.BindShaderResource,
	})

	bloom := NewBloom()
	bloom.PrepareResources(env.device, env.postFX, FeatureNone)

	attribs := DefaultBloomAttribs()
	attribs.Radius = 0
	bloom.Execute(&BloomRenderAttributes{
		Context:  env.ctx,
		PostFX:   env.postFX,
		ColorSRV: color.SRV(),
		Attribs:  &attribs,
	})

	assert.Empty(t, env.ctx.Passes(), "zero radius must degenerate to a copy")
}

func TestBloomChainRebuildsWhenRadiusChanges(t *testing.T) {
	env := newPostFXEnv(t, 256, 256)
	env.runFrame(0, 256, 256)

	color := env.device.CreateTexture(metadata.TextureDescriptor{
		Name: "Scene::Color", Width: 256, Height: 256, MipLevels: 1,
		Format: metadata.FormatRGBA16Float, BindFlags: metadata.BindShaderResource,
	})

	bloom := NewBloom()
	bloom.PrepareResources(env.device, env.postFX, FeatureNone)

	attribs := DefaultBloomAttribs()
	bloom.Execute(&BloomRenderAttributes{Context: env.ctx, PostFX: env.postFX, ColorSRV: color.SRV(), Attribs: &attribs})
	created := env.device.TexturesCreated()

	// Same radius: chain is stable.
	bloom.Execute(&BloomRenderAttributes{Context: env.ctx, PostFX: env.postFX, ColorSRV: color.SRV(), Attribs: &attribs})
	assert.Equal(t, created, env.device.TexturesCreated())

	// Larger radius grows the chain.
	attribs.Radius = 1
	bloom.Execute(&BloomRenderAttributes{Context: env.ctx, PostFX: env.postFX, ColorSRV: color.SRV(), Attribs: &attribs})
	assert.Greater(t, env.device.TexturesCreated(), created)
}

func TestBloomRadiusChangeReachesMipConstants(t *testing.T) {
	env := newPostFXEnv(t, 256, 256)
	env.runFrame(0, 256, 256)

	color := env.device.CreateTexture(metadata.TextureDescriptor{
		Name: "Scene::Color", Width: 256, Height: 256, MipLevels: 1,
		Format: metadata.FormatRGBA16Float, BindFlags: metadata.BindShaderResource,
	})

	bloom := NewBloom()
	bloom.PrepareResources(env.device, env.postFX, FeatureNone)

	attribs := DefaultBloomAttribs()
	exec := func() {
		bloom.Execute(&BloomRenderAttributes{Context: env.ctx, PostFX: env.postFX, ColorSRV: color.SRV(), Attribs: &attribs})
	}

	exec()
	mipConsts := bloom.Registry().Buffer(bloomResMipConsts).(*headless.Buffer)
	texel := math.NewVec2(1.0/128, 1.0/128)
	assert.Equal(t, packConstants(&bloomMipConstants{TexelSize: texel, Radius: 0.75}), mipConsts.Contents())

	// Shrinking the radius within the same mip count must still reach the
	// per-mip constants, which scale the upsample footprint.
	attribs.Radius = 0.70
	require.Equal(t,
		ComputeBloomMipCount(256, 256, 0.75),
		ComputeBloomMipCount(256, 256, 0.70))
	exec()
	assert.Equal(t, packConstants(&bloomMipConstants{TexelSize: texel, Radius: 0.70}), mipConsts.Contents())
}

func TestBloomUpdateUIClamps(t *testing.T) {
	bloom := NewBloom()
	var flags FeatureFlag

	a := BloomAttribs{Intensity: 5, Threshold: 20, SoftThreshold: -1, Radius: 2}
	changed := bloom.UpdateUI(&a, &flags)
	assert.True(t, changed)
	assert.Equal(t, BloomAttribs{Intensity: 2, Threshold: 10, SoftThreshold: 0, Radius: 1}, a)

	changed = bloom.UpdateUI(&a, &flags)
	assert.False(t, changed, "already clamped attribs must report no change")
}

func TestBloomShutdownReleasesResources(t *testing.T) {
	env := newPostFXEnv(t, 128, 128)
	env.runFrame(0, 128, 128)

	color := env.device.CreateTexture(metadata.TextureDescriptor{
		Name: "Scene::Color", Width: 128, Height: 128, MipLevels: 1,
		Format: metadata.FormatRGBA16Float, BindFlags: metadata.BindShaderResource,
	})

	bloom := NewBloom()
	bloom.PrepareResources(env.device, env.postFX, FeatureNone)
	attribs := DefaultBloomAttribs()
	bloom.Execute(&BloomRenderAttributes{Context: env.ctx, PostFX: env.postFX, ColorSRV: color.SRV(), Attribs: &attribs})

	liveBefore := env.device.LiveTextures()
	bloom.Shutdown()
	assert.Less(t, env.device.LiveTextures(), liveBefore)
}
