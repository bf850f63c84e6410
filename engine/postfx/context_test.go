package postfx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/headless"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/shaders"
)

type postFXEnv struct {
	device *headless.Device
	ctx    *headless.Context
	postFX *PostFXContext
	depth  renderer.Texture
	motion renderer.Texture
}

func newPostFXEnv(t *testing.T, width, height uint32) *postFXEnv {
	t.Helper()
	dev := headless.New(shaders.NewRegistry())
	return &postFXEnv{
		device: dev,
		ctx:    headless.NewContext(),
		postFX: NewPostFXContext(dev),
		depth: dev.CreateTexture(metadata.TextureDescriptor{
			Name: "GBuffer::Depth", Width: width, Height: height, MipLevels: 1,
			Format: metadata.FormatR32Float, BindFlags: metadata.BindShaderResource,
		}),
		motion: dev.CreateTexture(metadata.TextureDescriptor{
			Name: "GBuffer::Motion", Width: width, Height: height, MipLevels: 1,
			Format: metadata.FormatRG16Float, BindFlags: metadata.BindShaderResource,
		}),
	}
}

func (e *postFXEnv) runFrame(index uint64, width, height uint32) {
	e.postFX.PrepareResources(FrameDescriptor{
		Index: index, Width: width, Height: height,
		OutputWidth: width, OutputHeight: height,
	}, FeatureNone)
	camera := CameraAttribs{NearPlane: 0.1, FarPlane: 100}
	e.postFX.Execute(&PostFXRenderAttributes{
		Context:   e.ctx,
		Camera:    &camera,
		DepthSRV:  e.depth.SRV(),
		MotionSRV: e.motion.SRV(),
	})
}

func pipelineNames(passes []headless.PassRecord) []string {
	names := make([]string, 0, len(passes))
	for _, p := range passes {
		names = append(names, p.Pipeline)
	}
	return names
}

func TestPostFXContextPrepareIdempotent(t *testing.T) {
	env := newPostFXEnv(t, 128, 128)

	env.postFX.PrepareResources(FrameDescriptor{Index: 0, Width: 128, Height: 128}, FeatureNone)
	created := env.device.TexturesCreated()
	live := env.device.LiveTextures()

	env.postFX.PrepareResources(FrameDescriptor{Index: 1, Width: 128, Height: 128}, FeatureNone)
	assert.Equal(t, created, env.device.TexturesCreated(), "unchanged target must not recreate resources")
	assert.Equal(t, live, env.device.LiveTextures())
}

func TestPostFXContextResizeRecreates(t *testing.T) {
	env := newPostFXEnv(t, 128, 128)

	env.postFX.PrepareResources(FrameDescriptor{Index: 0, Width: 128, Height: 128}, FeatureNone)
	created := env.device.TexturesCreated()
	live := env.device.LiveTextures()

	env.postFX.PrepareResources(FrameDescriptor{Index: 1, Width: 256, Height: 256}, FeatureNone)
	assert.Greater(t, env.device.TexturesCreated(), created, "resize must recreate sized resources")
	assert.Equal(t, live, env.device.LiveTextures(), "old occupants must be released on recreate")
}

func TestPostFXContextFirstFrameCopiesDepth(t *testing.T) {
	env := newPostFXEnv(t, 128, 128)
	env.runFrame(0, 128, 128)

	// With no trustworthy history the reprojection degenerates to a plain
	// depth copy.
	names := pipelineNames(env.ctx.Passes())
	require.Equal(t, []string{"PostFX::ComputeClosestMotion", "PostFX::CopyDepth"}, names)

	copyRec := env.ctx.Passes()[1]
	assert.Equal(t, []string{"PostFX::ReprojectedDepth"}, copyRec.ColorTargets)
}

func TestPostFXContextConsecutiveFramesReproject(t *testing.T) {
	env := newPostFXEnv(t, 128, 128)
	env.runFrame(0, 128, 128)
	env.ctx.ResetPasses()

	env.runFrame(1, 128, 128)
	names := pipelineNames(env.ctx.Passes())
	require.Equal(t, []string{"PostFX::ComputeClosestMotion", "PostFX::ReprojectDepth"}, names)

	rec := env.ctx.Passes()[1]
	assert.Equal(t, []string{"PostFX::ReprojectedDepth"}, rec.ColorTargets)
}

func TestPostFXContextFrameGapResets(t *testing.T) {
	env := newPostFXEnv(t, 128, 128)
	env.runFrame(0, 128, 128)
	env.runFrame(1, 128, 128)
	env.ctx.ResetPasses()

	// Dropped frames invalidate history; back to the copy path.
	env.runFrame(5, 128, 128)
	names := pipelineNames(env.ctx.Passes())
	require.Equal(t, []string{"PostFX::ComputeClosestMotion", "PostFX::CopyDepth"}, names)

	env.ctx.ResetPasses()
	env.runFrame(6, 128, 128)
	names = pipelineNames(env.ctx.Passes())
	require.Equal(t, []string{"PostFX::ComputeClosestMotion", "PostFX::ReprojectDepth"}, names,
		"history recovers on the next consecutive frame")
}

func TestPostFXContextSharedViews(t *testing.T) {
	env := newPostFXEnv(t, 64, 64)
	env.runFrame(0, 64, 64)

	assert.NotNil(t, env.postFX.BlueNoiseXYSRV())
	assert.NotNil(t, env.postFX.BlueNoiseZWSRV())
	assert.NotNil(t, env.postFX.ReprojectedDepthSRV())
	assert.NotNil(t, env.postFX.PreviousDepthSRV())
	assert.NotNil(t, env.postFX.ClosestMotionSRV())
	assert.NotNil(t, env.postFX.CameraBuffer())
}

func TestPostFXContextSetBlueNoise(t *testing.T) {
	env := newPostFXEnv(t, 64, 64)
	env.runFrame(0, 64, 64)
	live := env.device.LiveTextures()

	size := BlueNoiseTextureDim * BlueNoiseTextureDim * 2
	version := env.postFX.NoiseVersion()
	env.postFX.SetBlueNoise(make([]byte, size), make([]byte, size))
	assert.Equal(t, live, env.device.LiveTextures(), "replaced noise tables must release the old ones")
	assert.Equal(t, version+1, env.postFX.NoiseVersion())
}

func TestPostFXContextShutdownReleasesEverything(t *testing.T) {
	env := newPostFXEnv(t, 64, 64)
	env.runFrame(0, 64, 64)

	env.postFX.Shutdown()
	// Only the two borrowed G-buffer inputs remain alive.
	assert.Equal(t, 2, env.device.LiveTextures())
	assert.Equal(t, 0, env.device.LiveBuffers())
}
