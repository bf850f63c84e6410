package postfx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/headless"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

func TestSSAOPassOrder(t *testing.T) {
	env := newPostFXEnv(t, 128, 128)
	env.runFrame(0, 128, 128)
	env.ctx.ResetPasses()

	ssao := NewScreenSpaceAmbientOcclusion()
	ssao.PrepareResources(env.device, env.postFX, FeatureNone)

	attribs := DefaultScreenSpaceAmbientOcclusionAttribs()
	ssao.Execute(&ScreenSpaceAmbientOcclusionRenderAttributes{
		Context:  env.ctx,
		PostFX:   env.postFX,
		DepthSRV: env.depth.SRV(),
		Attribs:  &attribs,
	})

	require.Equal(t, []string{
		"SSAO::DownsampleDepth",
		"SSAO::Compute",
		"SSAO::BilateralFilter",
		"SSAO::BilateralFilter",
		"SSAO::Temporal",
	}, pipelineNames(env.ctx.Passes()))

	// The whole SSAO chain is raster work.
	for _, rec := range env.ctx.Passes() {
		assert.False(t, rec.Compute)
	}
	assert.NotNil(t, ssao.GetAmbientOcclusionSRV())
}

func TestSSAOGaussWeightingReachesFilterConstants(t *testing.T) {
	env := newPostFXEnv(t, 128, 128)
	env.runFrame(0, 128, 128)

	ssao := NewScreenSpaceAmbientOcclusion()
	ssao.PrepareResources(env.device, env.postFX, FeatureGaussWeighting)

	attribs := DefaultScreenSpaceAmbientOcclusionAttribs()
	ssao.Execute(&ScreenSpaceAmbientOcclusionRenderAttributes{
		Context:  env.ctx,
		PostFX:   env.postFX,
		DepthSRV: env.depth.SRV(),
		Attribs:  &attribs,
	})

	buf := ssao.Registry().Buffer(ssaoResFilterXConstants).(*headless.Buffer)
	want := packConstants(&ssaoFilterConstants{
		Direction: math.NewVec2(1, 0), DepthSigma: attribs.DepthSigma, UseGauss: 1,
	})
	assert.Equal(t, want, buf.Contents())
}

func TestSetBlueNoiseRebindsNoiseConsumers(t *testing.T) {
	env := newPostFXEnv(t, 128, 128)

	ssao := NewScreenSpaceAmbientOcclusion()
	run := func(index uint64) {
		env.runFrame(index, 128, 128)
		ssao.PrepareResources(env.device, env.postFX, FeatureNone)
		attribs := DefaultScreenSpaceAmbientOcclusionAttribs()
		ssao.Execute(&ScreenSpaceAmbientOcclusionRenderAttributes{
			Context: env.ctx, PostFX: env.postFX, DepthSRV: env.depth.SRV(), Attribs: &attribs,
		})
	}
	boundNoise := func() renderer.TextureView {
		tech := ssao.Techniques().GetOrCreate(TechniqueKey{Kind: ssaoTechCompute, Flags: FeatureNone})
		return tech.SRB.(*headless.ShaderBinding).BoundTexture("g_BlueNoise")
	}

	run(0)
	assert.Equal(t, env.postFX.BlueNoiseXYSRV(), boundNoise())

	// Replacing the tables releases the old textures; cached bindings must
	// not keep sampling them.
	size := BlueNoiseTextureDim * BlueNoiseTextureDim * 2
	env.postFX.SetBlueNoise(make([]byte, size), make([]byte, size))
	run(1)
	assert.Equal(t, env.postFX.BlueNoiseXYSRV(), boundNoise())
}

func TestSSRPassOrder(t *testing.T) {
	env := newPostFXEnv(t, 128, 128)
	env.runFrame(0, 128, 128)
	env.ctx.ResetPasses()

	color := newSceneColor(env, 128, 128)
	normal := env.device.CreateTexture(metadata.TextureDescriptor{
		Name: "GBuffer::Normal", Width: 128, Height: 128, MipLevels: 1,
		Format: metadata.FormatRGBA8Unorm, BindFlags: metadata.BindShaderResource,
	})

	ssr := NewScreenSpaceReflection()
	ssr.PrepareResources(env.device, env.postFX, FeatureNone)

	attribs := DefaultScreenSpaceReflectionAttribs()
	ssr.Execute(&ScreenSpaceReflectionRenderAttributes{
		Context:   env.ctx,
		PostFX:    env.postFX,
		ColorSRV:  color.SRV(),
		DepthSRV:  env.depth.SRV(),
		NormalSRV: normal.SRV(),
		Attribs:   &attribs,
	})

	// 128x128 fills the full 8-level pyramid: level 0 is copied, 7 reduce.
	want := make([]string, 0, 10)
	for i := 0; i < 7; i++ {
		want = append(want, "SSR::DepthHierarchy")
	}
	want = append(want, "SSR::RayMarch", "SSR::Resolve", "SSR::Temporal")
	require.Equal(t, want, pipelineNames(env.ctx.Passes()))
	assert.NotNil(t, ssr.GetReflectionSRV())
}

func TestSSRTemporalAlternatesSlots(t *testing.T) {
	env := newPostFXEnv(t, 128, 128)
	color := newSceneColor(env, 128, 128)
	normal := env.device.CreateTexture(metadata.TextureDescriptor{
		Name: "GBuffer::Normal", Width: 128, Height: 128, MipLevels: 1,
		Format: metadata.FormatRGBA8Unorm, BindFlags: metadata.BindShaderResource,
	})

	ssr := NewScreenSpaceReflection()
	run := func(index uint64) {
		env.runFrame(index, 128, 128)
		ssr.PrepareResources(env.device, env.postFX, FeatureNone)
		attribs := DefaultScreenSpaceReflectionAttribs()
		ssr.Execute(&ScreenSpaceReflectionRenderAttributes{
			Context: env.ctx, PostFX: env.postFX,
			ColorSRV: color.SRV(), DepthSRV: env.depth.SRV(), NormalSRV: normal.SRV(),
			Attribs: &attribs,
		})
	}

	run(0)
	first := ssr.GetReflectionSRV().Texture()
	run(1)
	assert.NotSame(t, first, ssr.GetReflectionSRV().Texture())
	run(2)
	assert.Same(t, first, ssr.GetReflectionSRV().Texture())
}

func TestSSRReversedDepthReachesConstants(t *testing.T) {
	env := newPostFXEnv(t, 128, 128)
	env.runFrame(0, 128, 128)

	color := newSceneColor(env, 128, 128)
	normal := env.device.CreateTexture(metadata.TextureDescriptor{
		Name: "GBuffer::Normal", Width: 128, Height: 128, MipLevels: 1,
		Format: metadata.FormatRGBA8Unorm, BindFlags: metadata.BindShaderResource,
	})

	ssr := NewScreenSpaceReflection()
	ssr.PrepareResources(env.device, env.postFX, FeatureReversedDepth)

	attribs := DefaultScreenSpaceReflectionAttribs()
	ssr.Execute(&ScreenSpaceReflectionRenderAttributes{
		Context: env.ctx, PostFX: env.postFX,
		ColorSRV: color.SRV(), DepthSRV: env.depth.SRV(), NormalSRV: normal.SRV(),
		Attribs: &attribs,
	})

	// The pyramid reduce and the march both pick the reduce direction from
	// this constant.
	buf := ssr.Registry().Buffer(ssrResConstants).(*headless.Buffer)
	want := packConstants(&ssrConstants{
		MaxRayDistance:  attribs.MaxRayDistance,
		Thickness:       attribs.Thickness,
		MaxSteps:        attribs.MaxSteps,
		RoughnessCutoff: attribs.RoughnessCutoff,
		ReversedDepth:   1,
	})
	assert.Equal(t, want, buf.Contents())
}

func TestDepthOfFieldPassOrder(t *testing.T) {
	env := newPostFXEnv(t, 128, 128)
	env.runFrame(0, 128, 128)
	env.ctx.ResetPasses()

	color := newSceneColor(env, 128, 128)
	dof := NewDepthOfField()
	dof.PrepareResources(env.device, env.postFX, FeatureNone)

	attribs := DefaultDepthOfFieldAttribs()
	dof.Execute(&DepthOfFieldRenderAttributes{
		Context:  env.ctx,
		PostFX:   env.postFX,
		ColorSRV: color.SRV(),
		DepthSRV: env.depth.SRV(),
		Attribs:  &attribs,
	})

	require.Equal(t, []string{
		"DOF::ComputeCoC",
		"DOF::TemporalCoC",
		"DOF::Downsample",
		"DOF::Bokeh",
		"DOF::PostFilter",
		"DOF::Combine",
	}, pipelineNames(env.ctx.Passes()))

	final := env.ctx.Passes()[len(env.ctx.Passes())-1]
	assert.Equal(t, []string{"DOF::Output"}, final.ColorTargets)
	assert.NotNil(t, dof.GetDepthOfFieldSRV())
}

func TestLightScatteringPassOrder(t *testing.T) {
	env := newPostFXEnv(t, 128, 128)
	env.runFrame(0, 128, 128)
	env.ctx.ResetPasses()

	color := newSceneColor(env, 128, 128)
	els := NewEpipolarLightScattering()
	els.PrepareResources(env.device, env.postFX, FeatureNone)

	attribs := DefaultEpipolarLightScatteringAttribs()
	els.Execute(&EpipolarLightScatteringRenderAttributes{
		Context:  env.ctx,
		PostFX:   env.postFX,
		ColorSRV: color.SRV(),
		DepthSRV: env.depth.SRV(),
		Attribs:  &attribs,
	})

	require.Equal(t, []string{
		"ELS::SliceEndpoints",
		"ELS::Coordinates",
		"ELS::RayMarch",
		"ELS::Interpolate",
		"ELS::Unwarp",
	}, pipelineNames(env.ctx.Passes()))

	// The coordinate pass writes position and depth simultaneously.
	coords := env.ctx.Passes()[1]
	assert.Equal(t, []string{"ELS::Coordinates", "ELS::EpipolarDepth"}, coords.ColorTargets)

	// The unwarp lands on the full-resolution output.
	final := env.ctx.Passes()[len(env.ctx.Passes())-1]
	assert.Equal(t, []string{"ELS::Output"}, final.ColorTargets)
	assert.NotNil(t, els.GetLightScatteringSRV())
}

func TestDispatchGroups(t *testing.T) {
	gx, gy := dispatchGroups(128, 128)
	assert.Equal(t, uint32(16), gx)
	assert.Equal(t, uint32(16), gy)

	gx, gy = dispatchGroups(129, 1)
	assert.Equal(t, uint32(17), gx)
	assert.Equal(t, uint32(1), gy)
}
