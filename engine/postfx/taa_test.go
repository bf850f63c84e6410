package postfx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/headless"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

func newSceneColor(env *postFXEnv, width, height uint32) renderer.Texture {
	return env.device.CreateTexture(metadata.TextureDescriptor{
		Name: "Scene::Color", Width: width, Height: height, MipLevels: 1,
		Format: metadata.FormatRGBA16Float, BindFlags: metadata.BindShaderResource,
	})
}

func runTAAFrame(env *postFXEnv, taa *TemporalAntiAliasing, color renderer.Texture, index uint64) {
	env.runFrame(index, 128, 128)
	taa.PrepareResources(env.device, env.postFX, FeatureNone)
	attribs := DefaultTemporalAntiAliasingAttribs()
	taa.Execute(&TemporalAntiAliasingRenderAttributes{
		Context:  env.ctx,
		PostFX:   env.postFX,
		ColorSRV: color.SRV(),
		Attribs:  &attribs,
	})
}

func taaConstantBytes(t *testing.T, taa *TemporalAntiAliasing) []byte {
	t.Helper()
	buf := taa.Registry().Buffer(taaResConstants).(*headless.Buffer)
	out := make([]byte, len(buf.Contents()))
	copy(out, buf.Contents())
	return out
}

func TestTAAResolveIsCompute(t *testing.T) {
	env := newPostFXEnv(t, 128, 128)
	color := newSceneColor(env, 128, 128)
	taa := NewTemporalAntiAliasing()

	runTAAFrame(env, taa, color, 0)

	passes := env.ctx.Passes()
	require.NotEmpty(t, passes)
	last := passes[len(passes)-1]
	assert.Equal(t, "TAA::Resolve", last.Pipeline)
	assert.True(t, last.Compute)
}

func TestTAAPingPongAlternatesTechniques(t *testing.T) {
	env := newPostFXEnv(t, 128, 128)
	color := newSceneColor(env, 128, 128)
	taa := NewTemporalAntiAliasing()

	runTAAFrame(env, taa, color, 0)
	afterFirst := taa.Techniques().Len()

	// Odd frame writes the other slot, which needs its own technique.
	runTAAFrame(env, taa, color, 1)
	assert.Equal(t, afterFirst+1, taa.Techniques().Len())

	// Further frames reuse the two parity variants.
	runTAAFrame(env, taa, color, 2)
	runTAAFrame(env, taa, color, 3)
	assert.Equal(t, afterFirst+1, taa.Techniques().Len())
}

func TestTAAOutputFollowsWriteSlot(t *testing.T) {
	env := newPostFXEnv(t, 128, 128)
	color := newSceneColor(env, 128, 128)
	taa := NewTemporalAntiAliasing()

	runTAAFrame(env, taa, color, 0)
	first := taa.GetAccumulatedFrameSRV().Texture().(*headless.Texture).ID()

	runTAAFrame(env, taa, color, 1)
	second := taa.GetAccumulatedFrameSRV().Texture().(*headless.Texture).ID()
	assert.NotEqual(t, first, second, "consecutive frames must write alternating buffers")

	runTAAFrame(env, taa, color, 2)
	third := taa.GetAccumulatedFrameSRV().Texture().(*headless.Texture).ID()
	assert.Equal(t, first, third)
}

func TestTAAResizeDiscardsHistory(t *testing.T) {
	env := newPostFXEnv(t, 128, 128)
	color := newSceneColor(env, 128, 128)
	taa := NewTemporalAntiAliasing()

	runTAAFrame(env, taa, color, 0)
	runTAAFrame(env, taa, color, 1)
	assert.NotEqual(t, InvalidFrameIndex, taa.Accumulation().LastFrameIndex())

	env.postFX.PrepareResources(FrameDescriptor{Index: 2, Width: 256, Height: 256}, FeatureNone)
	taa.PrepareResources(env.device, env.postFX, FeatureNone)
	assert.Equal(t, InvalidFrameIndex, taa.Accumulation().LastFrameIndex())
}

func TestTAAMotionWeightReachesConstants(t *testing.T) {
	env := newPostFXEnv(t, 128, 128)
	color := newSceneColor(env, 128, 128)
	taa := NewTemporalAntiAliasing()

	run := func(index uint64, weight float32) {
		env.runFrame(index, 128, 128)
		taa.PrepareResources(env.device, env.postFX, FeatureNone)
		attribs := DefaultTemporalAntiAliasingAttribs()
		attribs.MotionWeight = weight
		taa.Execute(&TemporalAntiAliasingRenderAttributes{
			Context: env.ctx, PostFX: env.postFX, ColorSRV: color.SRV(), Attribs: &attribs,
		})
	}

	run(0, 0.05)
	before := taaConstantBytes(t, taa)
	run(1, 0.75)
	after := taaConstantBytes(t, taa)
	require.NotEqual(t, before, after, "motion weight change must reach the constants buffer")

	want := packConstants(&taaConstants{Alpha: 0.1, VarianceGamma: 1, MotionWeight: 0.75})
	assert.Equal(t, want, after)
}

func TestTAAFrameGapForcesUnblendedResolve(t *testing.T) {
	env := newPostFXEnv(t, 128, 128)
	color := newSceneColor(env, 128, 128)
	taa := NewTemporalAntiAliasing()

	runTAAFrame(env, taa, color, 0)
	runTAAFrame(env, taa, color, 1)
	steady := packConstants(&taaConstants{Alpha: 0.1, VarianceGamma: 1, MotionWeight: 0.05})
	require.Equal(t, steady, taaConstantBytes(t, taa))

	// Dropped frames: the resolve writes the current frame unblended.
	runTAAFrame(env, taa, color, 5)
	reset := packConstants(&taaConstants{Alpha: 1, VarianceGamma: 1, MotionWeight: 0.05})
	assert.Equal(t, reset, taaConstantBytes(t, taa))

	runTAAFrame(env, taa, color, 6)
	assert.Equal(t, steady, taaConstantBytes(t, taa))
}

func TestTAAUpdateUIClamps(t *testing.T) {
	taa := NewTemporalAntiAliasing()
	var flags FeatureFlag

	a := TemporalAntiAliasingAttribs{BlendFactor: 0, VarianceGamma: 10, MotionWeight: -1}
	assert.True(t, taa.UpdateUI(&a, &flags))
	assert.Equal(t, TemporalAntiAliasingAttribs{BlendFactor: 0.01, VarianceGamma: 2, MotionWeight: 0}, a)
	assert.False(t, taa.UpdateUI(&a, &flags))
}
