package engine

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/jobs"
	"github.com/spaghettifunk/lumen/engine/platform"
	"github.com/spaghettifunk/lumen/engine/postfx"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/headless"
	"github.com/spaghettifunk/lumen/engine/renderer/vulkan"
	"github.com/spaghettifunk/lumen/engine/shaders"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

// Engine owns the device, the shader registry and the effect chain, and
// drives them through the frame sequence. The scene supplies the inputs;
// the engine decides pass order and forwards the frame index that the
// temporal effects key their histories on.
type Engine struct {
	currentStage Stage
	cfg          *config.Config
	scene        *Scene

	platform *platform.Platform
	device   renderer.Device
	// Per-backend frame bracket; beginFrame returns the recording context,
	// endFrame receives the end-of-chain output for presentation.
	beginFrame func() renderer.CommandContext
	endFrame   func(final renderer.TextureView)
	shutdownFn func()

	shaderRegistry *shaders.Registry
	shaderWatcher  *shaders.Watcher
	pool           *jobs.Pool

	postFX     *postfx.PostFXContext
	bloom      *postfx.Bloom
	taa        *postfx.TemporalAntiAliasing
	ssao       *postfx.ScreenSpaceAmbientOcclusion
	ssr        *postfx.ScreenSpaceReflection
	dof        *postfx.DepthOfField
	scattering *postfx.EpipolarLightScattering

	flags      postfx.FeatureFlag
	frameIndex uint64
	width      uint32
	height     uint32

	clock      *core.Clock
	metrics    *core.FrameMetrics
	lastOutput renderer.TextureView
	lastAO     renderer.TextureView
	lastSSR    renderer.TextureView
}

func New(cfg *config.Config, scene *Scene) (*Engine, error) {
	if scene == nil || scene.FnFrameInputs == nil {
		return nil, fmt.Errorf("scene with FnFrameInputs is required")
	}
	cfg.ApplyLogLevel()

	e := &Engine{
		currentStage:   EngineStageUninitialized,
		cfg:            cfg,
		scene:          scene,
		shaderRegistry: shaders.NewRegistry(),
		flags:          cfg.FeatureFlags(),
		width:          cfg.Application.Width,
		height:         cfg.Application.Height,
		clock:          core.NewClock(),
		metrics:        core.NewFrameMetrics(),
	}

	if dir := cfg.Application.ShaderOverrideDir; dir != "" {
		w, err := shaders.NewWatcher(e.shaderRegistry, dir)
		if err != nil {
			core.LogError("shader override watcher disabled: %s", err.Error())
		} else {
			e.shaderWatcher = w
		}
	}

	if cfg.Application.WorkerCount > 0 {
		p, err := jobs.NewPool(cfg.Application.WorkerCount, 64)
		if err != nil {
			return nil, err
		}
		e.pool = p
	}

	switch cfg.Application.Backend {
	case "headless", "":
		dev := headless.New(e.shaderRegistry)
		ctx := headless.NewContext()
		e.device = dev
		e.beginFrame = func() renderer.CommandContext { return ctx }
		e.endFrame = func(renderer.TextureView) {}
		e.shutdownFn = func() {}
	case "vulkan":
		p, err := platform.New()
		if err != nil {
			return nil, err
		}
		if err := p.Startup(cfg.Application.Name, 0, 0, e.width, e.height); err != nil {
			return nil, err
		}
		dev, err := vulkan.New(p.Window, cfg.Application.Name, e.shaderRegistry)
		if err != nil {
			return nil, err
		}
		p.SetResizeCallback(func(w, h uint32) {
			if err := e.Resize(w, h); err != nil {
				core.LogError("resize failed: %s", err.Error())
			}
		})
		e.platform = p
		e.device = dev
		e.beginFrame = dev.BeginFrame
		e.endFrame = dev.EndFrame
		e.shutdownFn = dev.Shutdown
	default:
		return nil, fmt.Errorf("unknown renderer backend %q", cfg.Application.Backend)
	}

	e.postFX = postfx.NewPostFXContext(e.device)
	if cfg.Effects.Bloom {
		e.bloom = postfx.NewBloom()
	}
	if cfg.Effects.TAA {
		e.taa = postfx.NewTemporalAntiAliasing()
	}
	if cfg.Effects.SSAO {
		e.ssao = postfx.NewScreenSpaceAmbientOcclusion()
	}
	if cfg.Effects.SSR {
		e.ssr = postfx.NewScreenSpaceReflection()
	}
	if cfg.Effects.DOF {
		e.dof = postfx.NewDepthOfField()
	}
	if cfg.Effects.Scattering {
		e.scattering = postfx.NewEpipolarLightScattering()
	}

	return e, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	if e.flags.Has(postfx.FeatureAsyncCreation) && e.pool != nil {
		// Touch every shader source off the hot path so overrides and
		// embed integrity are validated before the first frame needs them.
		for _, name := range e.shaderRegistry.Names() {
			n := name
			e.pool.SubmitNonBlocking(jobs.Task{
				Name: "shader-warmup:" + n,
				OnStart: func() error {
					if _, ok := e.shaderRegistry.Lookup(n); !ok {
						return fmt.Errorf("shader %q missing during warmup", n)
					}
					return nil
				},
			})
		}
	}

	if e.scene.FnInitialize != nil {
		if err := e.scene.FnInitialize(e.device); err != nil {
			return err
		}
	}
	if e.scene.FnOnResize != nil {
		if err := e.scene.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}

	e.clock.Start()
	e.currentStage = EngineStageInitialized
	return nil
}

// RunFrame executes one full frame of the effect chain: shared context
// first, then the auxiliary targets (ambient occlusion, reflections), then
// the color chain in order anti-aliasing, depth of field, light scattering,
// bloom. The frame index advances by exactly one on success.
func (e *Engine) RunFrame(deltaTime float64) error {
	e.currentStage = EngineStageRunning

	if e.scene.FnUpdate != nil {
		if err := e.scene.FnUpdate(deltaTime); err != nil {
			return err
		}
	}

	frame := postfx.FrameDescriptor{
		Index:        e.frameIndex,
		Width:        e.width,
		Height:       e.height,
		OutputWidth:  e.width,
		OutputHeight: e.height,
	}
	inputs, err := e.scene.FnFrameInputs(frame)
	if err != nil {
		return err
	}

	e.postFX.PrepareResources(frame, e.flags)
	ctx := e.beginFrame()

	e.postFX.Execute(&postfx.PostFXRenderAttributes{
		Context:   ctx,
		Camera:    &inputs.Camera,
		DepthSRV:  inputs.Depth,
		MotionSRV: inputs.Motion,
	})

	if e.ssao != nil {
		e.ssao.PrepareResources(e.device, e.postFX, e.flags)
		e.ssao.Execute(&postfx.ScreenSpaceAmbientOcclusionRenderAttributes{
			Context:  ctx,
			PostFX:   e.postFX,
			DepthSRV: inputs.Depth,
			Attribs:  &e.cfg.Effects.SSAOAttribs,
		})
		e.lastAO = e.ssao.GetAmbientOcclusionSRV()
	}

	color := inputs.Color

	if e.ssr != nil {
		e.ssr.PrepareResources(e.device, e.postFX, e.flags)
		e.ssr.Execute(&postfx.ScreenSpaceReflectionRenderAttributes{
			Context:   ctx,
			PostFX:    e.postFX,
			ColorSRV:  color,
			DepthSRV:  inputs.Depth,
			NormalSRV: inputs.Normal,
			Attribs:   &e.cfg.Effects.SSRAttribs,
		})
		e.lastSSR = e.ssr.GetReflectionSRV()
	}

	if e.taa != nil {
		e.taa.PrepareResources(e.device, e.postFX, e.flags)
		e.taa.Execute(&postfx.TemporalAntiAliasingRenderAttributes{
			Context:  ctx,
			PostFX:   e.postFX,
			ColorSRV: color,
			Attribs:  &e.cfg.Effects.TAAAttribs,
		})
		color = e.taa.GetAccumulatedFrameSRV()
	}

	if e.dof != nil {
		e.dof.PrepareResources(e.device, e.postFX, e.flags)
		e.dof.Execute(&postfx.DepthOfFieldRenderAttributes{
			Context:  ctx,
			PostFX:   e.postFX,
			ColorSRV: color,
			DepthSRV: inputs.Depth,
			Attribs:  &e.cfg.Effects.DOFAttribs,
		})
		color = e.dof.GetDepthOfFieldSRV()
	}

	if e.scattering != nil {
		e.scattering.PrepareResources(e.device, e.postFX, e.flags)
		e.scattering.Execute(&postfx.EpipolarLightScatteringRenderAttributes{
			Context:  ctx,
			PostFX:   e.postFX,
			ColorSRV: color,
			DepthSRV: inputs.Depth,
			Attribs:  &e.cfg.Effects.ScatteringAttribs,
		})
		color = e.scattering.GetLightScatteringSRV()
	}

	if e.bloom != nil {
		e.bloom.PrepareResources(e.device, e.postFX, e.flags)
		e.bloom.Execute(&postfx.BloomRenderAttributes{
			Context:  ctx,
			PostFX:   e.postFX,
			ColorSRV: color,
			Attribs:  &e.cfg.Effects.BloomAttribs,
		})
		color = e.bloom.GetBloomedTextureSRV()
	}

	e.endFrame(color)
	e.lastOutput = color
	e.metrics.Update(deltaTime)
	e.frameIndex++
	return nil
}

// Run drives RunFrame until the window closes. Only meaningful with a
// windowed backend; headless hosts call RunFrame directly.
func (e *Engine) Run() error {
	if e.platform == nil {
		return fmt.Errorf("Run requires a windowed backend")
	}
	e.clock.Update()
	lastTime := e.clock.ElapsedSeconds()
	for e.platform.PumpMessages() {
		e.clock.Update()
		now := e.clock.ElapsedSeconds()
		if err := e.RunFrame(now - lastTime); err != nil {
			return err
		}
		lastTime = now
	}
	return nil
}

// Resize retargets the chain; every effect reallocates on the next frame
// and the temporal histories restart.
func (e *Engine) Resize(width, height uint32) error {
	if width == 0 || height == 0 {
		core.LogInfo("window minimized, suspending frame production")
		return nil
	}
	e.width, e.height = width, height
	if e.scene.FnOnResize != nil {
		return e.scene.FnOnResize(width, height)
	}
	return nil
}

// AdvanceFrames moves the frame counter forward without rendering, as
// happens when presentation drops frames. Temporal effects observe the gap
// and restart their histories on the next RunFrame.
func (e *Engine) AdvanceFrames(n uint64) {
	e.frameIndex += n
}

// FrameIndex returns the index the next RunFrame will render.
func (e *Engine) FrameIndex() uint64 { return e.frameIndex }

// FinalOutput returns the last frame's end-of-chain color target.
func (e *Engine) FinalOutput() renderer.TextureView { return e.lastOutput }

// AmbientOcclusion returns the last frame's occlusion target, nil when the
// effect is disabled.
func (e *Engine) AmbientOcclusion() renderer.TextureView { return e.lastAO }

// Reflections returns the last frame's reflection target, nil when the
// effect is disabled.
func (e *Engine) Reflections() renderer.TextureView { return e.lastSSR }

// Device exposes the backend for scene-side resource creation.
func (e *Engine) Device() renderer.Device { return e.device }

// Jobs exposes the shared worker pool; nil when workers are disabled.
func (e *Engine) Jobs() *jobs.Pool { return e.pool }

// Metrics exposes the rolling frame statistics.
func (e *Engine) Metrics() *core.FrameMetrics { return e.metrics }

// LogStatistics reports cache sizes and, for counting backends, device
// object totals.
func (e *Engine) LogStatistics() {
	type namedCache struct {
		name  string
		cache *postfx.TechniqueCache
	}
	caches := []namedCache{{"context", e.postFX.Techniques()}}
	if e.bloom != nil {
		caches = append(caches, namedCache{"bloom", e.bloom.Techniques()})
	}
	if e.taa != nil {
		caches = append(caches, namedCache{"taa", e.taa.Techniques()})
	}
	if e.ssao != nil {
		caches = append(caches, namedCache{"ssao", e.ssao.Techniques()})
	}
	if e.ssr != nil {
		caches = append(caches, namedCache{"ssr", e.ssr.Techniques()})
	}
	if e.dof != nil {
		caches = append(caches, namedCache{"dof", e.dof.Techniques()})
	}
	if e.scattering != nil {
		caches = append(caches, namedCache{"scattering", e.scattering.Techniques()})
	}

	total := 0
	for _, c := range caches {
		core.LogInfo("technique cache %-10s size=%d initialized=%d", c.name, c.cache.Len(), c.cache.InitializedPSOCount())
		total += c.cache.Len()
	}
	core.LogInfo("technique cache total size=%d", total)

	type counters interface {
		TexturesCreated() uint64
		BuffersCreated() uint64
		PipelinesCreated() uint64
	}
	if c, ok := e.device.(counters); ok {
		core.LogInfo("device objects: textures=%d buffers=%d pipelines=%d",
			c.TexturesCreated(), c.BuffersCreated(), c.PipelinesCreated())
	}
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown

	if e.bloom != nil {
		e.bloom.Shutdown()
	}
	if e.taa != nil {
		e.taa.Shutdown()
	}
	if e.ssao != nil {
		e.ssao.Shutdown()
	}
	if e.ssr != nil {
		e.ssr.Shutdown()
	}
	if e.dof != nil {
		e.dof.Shutdown()
	}
	if e.scattering != nil {
		e.scattering.Shutdown()
	}
	e.postFX.Shutdown()

	if e.scene.FnShutdown != nil {
		if err := e.scene.FnShutdown(); err != nil {
			return err
		}
	}
	if e.pool != nil {
		if err := e.pool.Shutdown(); err != nil {
			return err
		}
	}
	if e.shaderWatcher != nil {
		if err := e.shaderWatcher.Close(); err != nil {
			return err
		}
	}
	e.shutdownFn()
	if e.platform != nil {
		return e.platform.Shutdown()
	}
	return nil
}
