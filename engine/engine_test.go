package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/postfx"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type testGBuffer struct {
	color  renderer.Texture
	depth  renderer.Texture
	motion renderer.Texture
	normal renderer.Texture
}

func (g *testGBuffer) build(device renderer.Device, width, height uint32) {
	release := func(t renderer.Texture) {
		if t != nil {
			t.Release()
		}
	}
	release(g.color)
	release(g.depth)
	release(g.motion)
	release(g.normal)

	tex := func(name string, format metadata.TextureFormat) renderer.Texture {
		return device.CreateTexture(metadata.TextureDescriptor{
			Name: name, Width: width, Height: height, MipLevels: 1,
			Format: format, BindFlags: metadata.BindShaderResource,
		})
	}
	g.color = tex("GBuffer::Color", metadata.FormatRGBA16Float)
	g.depth = tex("GBuffer::Depth", metadata.FormatR32Float)
	g.motion = tex("GBuffer::Motion", metadata.FormatRG16Float)
	g.normal = tex("GBuffer::Normal", metadata.FormatRGBA8Unorm)
}

func newTestScene() *Scene {
	g := &testGBuffer{}
	var device renderer.Device
	return &Scene{
		State: g,
		FnInitialize: func(d renderer.Device) error {
			device = d
			return nil
		},
		FnFrameInputs: func(frame postfx.FrameDescriptor) (*FrameInputs, error) {
			if g.color == nil || g.color.Descriptor().Width != frame.Width || g.color.Descriptor().Height != frame.Height {
				g.build(device, frame.Width, frame.Height)
			}
			return &FrameInputs{
				Color:  g.color.SRV(),
				Depth:  g.depth.SRV(),
				Motion: g.motion.SRV(),
				Normal: g.normal.SRV(),
				Camera: postfx.CameraAttribs{NearPlane: 0.1, FarPlane: 1000},
			}, nil
		},
	}
}

func newTestConfig() *config.Config {
	cfg := config.Default()
	cfg.Application.Width = 128
	cfg.Application.Height = 128
	cfg.Application.LogLevel = "error"
	cfg.Application.WorkerCount = 0
	return cfg
}

func TestEngineRequiresFrameInputs(t *testing.T) {
	_, err := New(newTestConfig(), nil)
	assert.Error(t, err)

	_, err = New(newTestConfig(), &Scene{})
	assert.Error(t, err)
}

func TestEngineRejectsUnknownBackend(t *testing.T) {
	cfg := newTestConfig()
	cfg.Application.Backend = "metal"
	_, err := New(cfg, newTestScene())
	assert.Error(t, err)
}

func TestEngineRunsFullChain(t *testing.T) {
	eng, err := New(newTestConfig(), newTestScene())
	require.NoError(t, err)
	require.NoError(t, eng.Initialize())

	for i := 0; i < 4; i++ {
		require.NoError(t, eng.RunFrame(1.0/60.0))
	}
	assert.Equal(t, uint64(4), eng.FrameIndex())

	// Bloom is the last enabled effect, so the chain ends on its output.
	require.NotNil(t, eng.FinalOutput())
	assert.Equal(t, "Bloom::Output", eng.FinalOutput().Texture().Descriptor().Name)
	assert.NotNil(t, eng.AmbientOcclusion())
	assert.NotNil(t, eng.Reflections())

	require.NoError(t, eng.Shutdown())
}

func TestEngineChainRespectsDisabledEffects(t *testing.T) {
	cfg := newTestConfig()
	cfg.Effects.Bloom = false
	cfg.Effects.Scattering = false
	cfg.Effects.DOF = false
	cfg.Effects.SSAO = false
	cfg.Effects.SSR = false

	eng, err := New(cfg, newTestScene())
	require.NoError(t, err)
	require.NoError(t, eng.Initialize())
	require.NoError(t, eng.RunFrame(1.0/60.0))

	// With only TAA enabled the chain ends on the accumulation buffer.
	assert.Equal(t, "TAA::Accumulation", eng.FinalOutput().Texture().Descriptor().Name)
	assert.Nil(t, eng.AmbientOcclusion())
	assert.Nil(t, eng.Reflections())

	require.NoError(t, eng.Shutdown())
}

func TestEngineResizeSurvivesFrames(t *testing.T) {
	eng, err := New(newTestConfig(), newTestScene())
	require.NoError(t, err)
	require.NoError(t, eng.Initialize())

	require.NoError(t, eng.RunFrame(1.0/60.0))
	firstOutput := eng.FinalOutput().Texture()

	require.NoError(t, eng.Resize(256, 256))
	require.NoError(t, eng.RunFrame(1.0/60.0))

	resized := eng.FinalOutput().Texture()
	assert.NotSame(t, firstOutput, resized)
	assert.Equal(t, uint32(256), resized.Descriptor().Width)

	// Zero dimensions suspend instead of failing.
	require.NoError(t, eng.Resize(0, 0))
	require.NoError(t, eng.RunFrame(1.0/60.0))
	assert.Equal(t, uint32(256), eng.FinalOutput().Texture().Descriptor().Width)

	require.NoError(t, eng.Shutdown())
}

func TestEngineAdvanceFramesSkipsIndices(t *testing.T) {
	eng, err := New(newTestConfig(), newTestScene())
	require.NoError(t, err)
	require.NoError(t, eng.Initialize())

	require.NoError(t, eng.RunFrame(1.0/60.0))
	eng.AdvanceFrames(3)
	assert.Equal(t, uint64(4), eng.FrameIndex())

	// The chain keeps producing frames across the gap.
	require.NoError(t, eng.RunFrame(1.0/60.0))
	assert.Equal(t, uint64(5), eng.FrameIndex())

	require.NoError(t, eng.Shutdown())
}
