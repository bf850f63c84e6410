package engine

import (
	"github.com/spaghettifunk/lumen/engine/postfx"
	"github.com/spaghettifunk/lumen/engine/renderer"
)

// FrameInputs are the scene-provided targets the effect chain consumes.
// Color, Depth and Motion are required every frame; Normal is required only
// when reflections are enabled.
type FrameInputs struct {
	Color  renderer.TextureView
	Depth  renderer.TextureView
	Motion renderer.TextureView
	Normal renderer.TextureView
	Camera postfx.CameraAttribs
}

// Scene is the host side of the render loop. The engine drives the effect
// chain; the scene supplies the G-buffer targets and camera for each frame.
type Scene struct {
	State         interface{}
	FnInitialize  func(device renderer.Device) error
	FnUpdate      func(deltaTime float64) error
	FnFrameInputs func(frame postfx.FrameDescriptor) (*FrameInputs, error)
	FnOnResize    func(width uint32, height uint32) error
	FnShutdown    func() error
}
