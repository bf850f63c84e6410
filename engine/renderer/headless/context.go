package headless

import (
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
)

// PassRecord is one draw or dispatch with the state current at submission.
type PassRecord struct {
	Pipeline     string
	ColorTargets []string
	TargetMips   []uint32
	DepthTarget  string
	Compute      bool
}

type Context struct {
	currentPipeline renderer.PipelineState
	currentBinding  renderer.ShaderBinding
	colorTargets    []renderer.TextureView
	depthTarget     renderer.TextureView
	viewportW       uint32
	viewportH       uint32

	passes []PassRecord
}

func NewContext() *Context {
	return &Context{}
}

func (c *Context) SetRenderTargets(colors []renderer.TextureView, depth renderer.TextureView) {
	c.colorTargets = append(c.colorTargets[:0], colors...)
	c.depthTarget = depth
}

func (c *Context) SetViewport(width, height uint32) {
	c.viewportW = width
	c.viewportH = height
}

func (c *Context) SetPipeline(pipeline renderer.PipelineState) {
	core.AssertNotNil(pipeline, "pipeline")
	c.currentPipeline = pipeline
}

func (c *Context) CommitBinding(binding renderer.ShaderBinding) {
	c.currentBinding = binding
}

func (c *Context) Draw(vertexCount uint32) {
	c.record(false)
}

func (c *Context) Dispatch(groupsX, groupsY, groupsZ uint32) {
	c.record(true)
}

func (c *Context) record(compute bool) {
	core.AssertNotNil(c.currentPipeline, "pipeline bound before draw")
	rec := PassRecord{
		Pipeline: c.currentPipeline.Descriptor().Name,
		Compute:  compute,
	}
	for _, v := range c.colorTargets {
		rec.ColorTargets = append(rec.ColorTargets, v.Texture().Descriptor().Name)
		rec.TargetMips = append(rec.TargetMips, v.MipLevel())
	}
	if c.depthTarget != nil {
		rec.DepthTarget = c.depthTarget.Texture().Descriptor().Name
	}
	c.passes = append(c.passes, rec)
}

func (c *Context) UpdateBuffer(buffer renderer.Buffer, data []byte) {
	core.AssertNotNil(buffer, "buffer")
	b, ok := buffer.(*Buffer)
	core.Assert(ok, "foreign buffer handed to headless context")
	core.AssertMsg(uint64(len(data)) <= b.desc.Size, "update of %d bytes overflows buffer %q", len(data), b.desc.Name)
	copy(b.data, data)
}

func (c *Context) CopyTexture(src renderer.Texture, dst renderer.Texture) {
	core.AssertNotNil(src, "src")
	core.AssertNotNil(dst, "dst")
	sd, dd := src.Descriptor(), dst.Descriptor()
	core.AssertMsg(sd.Width == dd.Width && sd.Height == dd.Height,
		"copy between mismatched textures %q and %q", sd.Name, dd.Name)
}

func (c *Context) ClearRenderTarget(view renderer.TextureView, rgba [4]float32) {
	core.AssertNotNil(view, "view")
}

// Passes returns all draws and dispatches recorded so far, in order.
func (c *Context) Passes() []PassRecord { return c.passes }

// ResetPasses clears the pass log, typically between frames in tests.
func (c *Context) ResetPasses() { c.passes = c.passes[:0] }
