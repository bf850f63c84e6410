package postfx

import (
	"github.com/spaghettifunk/lumen/engine/renderer"
)

// drawFullScreen issues one full-screen triangle pass into a single render
// target. Every pixel-shader pass in the suite goes through here so the
// bind/commit/draw ordering is identical everywhere.
func drawFullScreen(ctx renderer.CommandContext, tech *RenderTechnique, target renderer.TextureView, width, height uint32) {
	ctx.SetRenderTargets([]renderer.TextureView{target}, nil)
	ctx.SetViewport(width, height)
	ctx.SetPipeline(tech.PSO)
	ctx.CommitBinding(tech.SRB)
	ctx.Draw(3)
}

// dispatchGroups computes thread-group counts for an 8x8 compute tile.
func dispatchGroups(width, height uint32) (uint32, uint32) {
	return (width + 7) / 8, (height + 7) / 8
}
