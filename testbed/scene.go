// Package testbed hosts a synthetic scene used to exercise the full effect
// chain without a real renderer in front of it. The G-buffer is generated
// procedurally on the CPU and re-uploaded when the scene animates or resizes.
package testbed

import (
	"encoding/binary"
	"sync"

	"github.com/chewxy/math32"

	"github.com/spaghettifunk/lumen/engine"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/jobs"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/postfx"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type demoState struct {
	device renderer.Device
	pool   *jobs.Pool

	width  uint32
	height uint32
	time   float64

	color  renderer.Texture
	depth  renderer.Texture
	motion renderer.Texture
	normal renderer.Texture
}

// NewScene builds a scene whose G-buffer is a procedural test pattern:
// a bright diagonal gradient with a few emissive hot spots for bloom, a
// radial depth ramp for ambient occlusion and depth of field, and zero
// motion so the temporal accumulators converge.
func NewScene(workerCount int) *engine.Scene {
	state := &demoState{}

	if workerCount > 0 {
		pool, err := jobs.NewPool(workerCount, 64)
		if err != nil {
			core.LogWarn("testbed pixel pool disabled: %s", err.Error())
		} else {
			state.pool = pool
		}
	}

	return &engine.Scene{
		State: state,
		FnInitialize: func(device renderer.Device) error {
			state.device = device
			return nil
		},
		FnUpdate: func(deltaTime float64) error {
			state.time += deltaTime
			return nil
		},
		FnFrameInputs: func(frame postfx.FrameDescriptor) (*engine.FrameInputs, error) {
			if frame.Width != state.width || frame.Height != state.height {
				state.rebuild(frame.Width, frame.Height)
			}
			return &engine.FrameInputs{
				Color:  state.color.SRV(),
				Depth:  state.depth.SRV(),
				Motion: state.motion.SRV(),
				Normal: state.normal.SRV(),
				Camera: state.camera(frame),
			}, nil
		},
		FnShutdown: func() error {
			state.release()
			if state.pool != nil {
				return state.pool.Shutdown()
			}
			return nil
		},
	}
}

func (s *demoState) camera(frame postfx.FrameDescriptor) postfx.CameraAttribs {
	return postfx.CameraAttribs{
		ViewProj:     math.NewMat4Identity(),
		ViewProjInv:  math.NewMat4Identity(),
		Position:     math.NewVec4(0, 2, -8, 1),
		Jitter:       math.Halton23Jitter(frame.Index),
		ViewportSize: math.NewVec2(float32(frame.Width), float32(frame.Height)),
		NearPlane:    0.1,
		FarPlane:     100.0,
	}
}

func (s *demoState) rebuild(width, height uint32) {
	s.release()
	s.width, s.height = width, height

	s.color = s.device.CreateTexture(metadata.TextureDescriptor{
		Name:        "demo color",
		Width:       width,
		Height:      height,
		Format:      metadata.FormatRGBA8Unorm,
		BindFlags:   metadata.BindShaderResource,
		Usage:       metadata.UsageImmutable,
		InitialData: s.generate(width, height, colorTexel),
	})
	s.depth = s.device.CreateTexture(metadata.TextureDescriptor{
		Name:        "demo depth",
		Width:       width,
		Height:      height,
		Format:      metadata.FormatR32Float,
		BindFlags:   metadata.BindShaderResource,
		Usage:       metadata.UsageImmutable,
		InitialData: s.generate(width, height, depthTexel),
	})
	s.motion = s.device.CreateTexture(metadata.TextureDescriptor{
		Name:        "demo motion",
		Width:       width,
		Height:      height,
		Format:      metadata.FormatRG16Float,
		BindFlags:   metadata.BindShaderResource,
		Usage:       metadata.UsageImmutable,
		InitialData: make([]byte, width*height*metadata.FormatRG16Float.BytesPerTexel()),
	})
	s.normal = s.device.CreateTexture(metadata.TextureDescriptor{
		Name:        "demo normal",
		Width:       width,
		Height:      height,
		Format:      metadata.FormatRGBA8Unorm,
		BindFlags:   metadata.BindShaderResource,
		Usage:       metadata.UsageImmutable,
		InitialData: s.generate(width, height, normalTexel),
	})
	core.LogInfo("testbed targets built at %dx%d", width, height)
}

func (s *demoState) release() {
	for _, t := range []renderer.Texture{s.color, s.depth, s.motion, s.normal} {
		if t != nil {
			t.Release()
		}
	}
	s.color, s.depth, s.motion, s.normal = nil, nil, nil, nil
}

// generate fills a texel buffer, fanning row bands out across the worker
// pool when one is available.
func (s *demoState) generate(width, height uint32, texel func(x, y, w, h uint32, out []byte)) []byte {
	const texelSize = 4
	data := make([]byte, width*height*texelSize)

	fillRows := func(y0, y1 uint32) {
		for y := y0; y < y1; y++ {
			for x := uint32(0); x < width; x++ {
				offset := (y*width + x) * texelSize
				texel(x, y, width, height, data[offset:offset+texelSize])
			}
		}
	}

	if s.pool == nil {
		fillRows(0, height)
		return data
	}

	const band = 64
	var wg sync.WaitGroup
	for y := uint32(0); y < height; y += band {
		y0, y1 := y, y+band
		if y1 > height {
			y1 = height
		}
		wg.Add(1)
		s.pool.Submit(jobs.Task{
			Name:       "testbed-rows",
			OnStart:    func() error { fillRows(y0, y1); return nil },
			OnComplete: wg.Done,
			OnFailure:  func(error) { wg.Done() },
		})
	}
	wg.Wait()
	return data
}

func colorTexel(x, y, w, h uint32, out []byte) {
	u := float32(x) / float32(w)
	v := float32(y) / float32(h)

	r := u
	g := v
	b := 0.5 + 0.5*math32.Sin(6.0*u)*math32.Cos(6.0*v)

	// Emissive spots that push past the bloom threshold.
	for _, spot := range [][2]float32{{0.25, 0.3}, {0.7, 0.6}, {0.5, 0.8}} {
		dx, dy := u-spot[0], v-spot[1]
		if dx*dx+dy*dy < 0.002 {
			r, g, b = 1, 1, 1
		}
	}

	out[0] = uint8(math.Saturate(r) * 255)
	out[1] = uint8(math.Saturate(g) * 255)
	out[2] = uint8(math.Saturate(b) * 255)
	out[3] = 255
}

func depthTexel(x, y, w, h uint32, out []byte) {
	u := float32(x)/float32(w) - 0.5
	v := float32(y)/float32(h) - 0.5
	d := math.Saturate(0.1 + math32.Sqrt(u*u+v*v))
	binary.LittleEndian.PutUint32(out, math32.Float32bits(d))
}

func normalTexel(x, y, w, h uint32, out []byte) {
	u := float32(x) / float32(w)
	v := float32(y) / float32(h)
	nx := 0.5 + 0.3*math32.Sin(12.0*u)
	ny := 0.5 + 0.3*math32.Cos(12.0*v)

	out[0] = uint8(math.Saturate(nx) * 255)
	out[1] = uint8(math.Saturate(ny) * 255)
	out[2] = 255
	out[3] = 255
}
