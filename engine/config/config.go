package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/postfx"
)

// Application holds windowing and logging settings.
type Application struct {
	Name     string `toml:"name"`
	Width    uint32 `toml:"width"`
	Height   uint32 `toml:"height"`
	LogLevel string `toml:"log_level"`
	// Renderer backend: "vulkan" or "headless".
	Backend string `toml:"backend"`
	// Directory watched for shader source overrides; empty disables it.
	ShaderOverrideDir string `toml:"shader_override_dir"`
	// Workers for asynchronous pipeline warmup.
	WorkerCount int `toml:"worker_count"`
}

// Features maps to the rendering feature flags shared by all effects.
type Features struct {
	ReversedDepth      bool `toml:"reversed_depth"`
	HalfPrecisionDepth bool `toml:"half_precision_depth"`
	GaussWeighting     bool `toml:"gauss_weighting"`
	BicubicFilter      bool `toml:"bicubic_filter"`
	YCoCgColorSpace    bool `toml:"ycocg_color_space"`
	AsyncCreation      bool `toml:"async_creation"`
}

// Effects toggles and tunes the individual post-processing effects.
type Effects struct {
	Bloom      bool `toml:"bloom"`
	TAA        bool `toml:"taa"`
	SSAO       bool `toml:"ssao"`
	SSR        bool `toml:"ssr"`
	DOF        bool `toml:"dof"`
	Scattering bool `toml:"scattering"`

	BloomAttribs      postfx.BloomAttribs                   `toml:"bloom_attribs"`
	TAAAttribs        postfx.TemporalAntiAliasingAttribs    `toml:"taa_attribs"`
	SSAOAttribs       postfx.ScreenSpaceAmbientOcclusionAttribs `toml:"ssao_attribs"`
	SSRAttribs        postfx.ScreenSpaceReflectionAttribs   `toml:"ssr_attribs"`
	DOFAttribs        postfx.DepthOfFieldAttribs            `toml:"dof_attribs"`
	ScatteringAttribs postfx.EpipolarLightScatteringAttribs `toml:"scattering_attribs"`
}

type Config struct {
	Application Application `toml:"application"`
	Features    Features    `toml:"features"`
	Effects     Effects     `toml:"effects"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Application: Application{
			Name:        "Lumen",
			Width:       1280,
			Height:      720,
			LogLevel:    "info",
			Backend:     "headless",
			WorkerCount: 4,
		},
		Features: Features{
			BicubicFilter:   true,
			YCoCgColorSpace: true,
		},
		Effects: Effects{
			Bloom:             true,
			TAA:               true,
			SSAO:              true,
			SSR:               true,
			DOF:               true,
			Scattering:        true,
			BloomAttribs:      postfx.DefaultBloomAttribs(),
			TAAAttribs:        postfx.DefaultTemporalAntiAliasingAttribs(),
			SSAOAttribs:       postfx.DefaultScreenSpaceAmbientOcclusionAttribs(),
			SSRAttribs:        postfx.DefaultScreenSpaceReflectionAttribs(),
			DOFAttribs:        postfx.DefaultDepthOfFieldAttribs(),
			ScatteringAttribs: postfx.DefaultEpipolarLightScatteringAttribs(),
		},
	}
}

// Load reads a TOML file over the defaults. Keys absent from the file keep
// their default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FeatureFlags converts the feature booleans into the flag bitmask the
// effects consume.
func (c *Config) FeatureFlags() postfx.FeatureFlag {
	var flags postfx.FeatureFlag
	if c.Features.ReversedDepth {
		flags |= postfx.FeatureReversedDepth
	}
	if c.Features.HalfPrecisionDepth {
		flags |= postfx.FeatureHalfPrecisionDepth
	}
	if c.Features.GaussWeighting {
		flags |= postfx.FeatureGaussWeighting
	}
	if c.Features.BicubicFilter {
		flags |= postfx.FeatureBicubicFilter
	}
	if c.Features.YCoCgColorSpace {
		flags |= postfx.FeatureYCoCgColorSpace
	}
	if c.Features.AsyncCreation {
		flags |= postfx.FeatureAsyncCreation
	}
	return flags
}

// ApplyLogLevel configures the global logger from the config string.
func (c *Config) ApplyLogLevel() {
	switch c.Application.LogLevel {
	case "debug":
		core.SetLogLevel(core.DebugLevel)
	case "warn":
		core.SetLogLevel(core.WarnLevel)
	case "error":
		core.SetLogLevel(core.ErrorLevel)
	default:
		core.SetLogLevel(core.InfoLevel)
	}
}
