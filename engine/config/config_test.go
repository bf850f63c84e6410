package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/postfx"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "Lumen", cfg.Application.Name)
	assert.Equal(t, uint32(1280), cfg.Application.Width)
	assert.Equal(t, uint32(720), cfg.Application.Height)
	assert.Equal(t, "headless", cfg.Application.Backend)
	assert.Equal(t, 4, cfg.Application.WorkerCount)

	assert.True(t, cfg.Effects.Bloom)
	assert.True(t, cfg.Effects.TAA)
	assert.Equal(t, postfx.DefaultBloomAttribs(), cfg.Effects.BloomAttribs)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[application]
width = 1920
height = 1080
backend = "vulkan"

[features]
reversed_depth = true

[effects]
ssr = false

[effects.bloom_attribs]
intensity = 0.3
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, uint32(1920), cfg.Application.Width)
	assert.Equal(t, uint32(1080), cfg.Application.Height)
	assert.Equal(t, "vulkan", cfg.Application.Backend)

	// Absent keys keep their defaults.
	assert.Equal(t, "Lumen", cfg.Application.Name)
	assert.Equal(t, 4, cfg.Application.WorkerCount)
	assert.True(t, cfg.Effects.Bloom)
	assert.False(t, cfg.Effects.SSR)
	assert.Equal(t, float32(0.3), cfg.Effects.BloomAttribs.Intensity)
	assert.Equal(t, float32(1.0), cfg.Effects.BloomAttribs.Threshold)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[application\nwidth="), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestFeatureFlags(t *testing.T) {
	cfg := Default()
	// Defaults enable bicubic filtering and YCoCg blending.
	flags := cfg.FeatureFlags()
	assert.True(t, flags.Has(postfx.FeatureBicubicFilter))
	assert.True(t, flags.Has(postfx.FeatureYCoCgColorSpace))
	assert.False(t, flags.Has(postfx.FeatureReversedDepth))

	cfg.Features = Features{ReversedDepth: true, HalfPrecisionDepth: true}
	flags = cfg.FeatureFlags()
	assert.Equal(t, postfx.FeatureReversedDepth|postfx.FeatureHalfPrecisionDepth, flags)
}
