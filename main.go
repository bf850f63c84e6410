/*
Demo application driving the post-processing chain over the synthetic
testbed scene. Runs headless by default; pass a config file to select the
vulkan backend or change effect parameters.
*/
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/lumen/engine"
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/testbed"
)

func main() {
	cfg := config.Default()
	if len(os.Args) > 1 {
		loaded, err := config.Load(os.Args[1])
		if err != nil {
			panic(err)
		}
		cfg = loaded
	}

	scene := testbed.NewScene(cfg.Application.WorkerCount)

	eng, err := engine.New(cfg, scene)
	if err != nil {
		panic(err)
	}
	if err := eng.Initialize(); err != nil {
		panic(err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	go func() {
		<-sigCh
		_ = eng.Shutdown()
		os.Exit(0)
	}()

	if cfg.Application.Backend == "vulkan" {
		if err := eng.Run(); err != nil {
			panic(err)
		}
		if err := eng.Shutdown(); err != nil {
			panic(err)
		}
		return
	}

	// Headless: render a fixed number of frames with a mid-run resize and a
	// simulated presentation gap, then report what the chain built.
	const dt = 1.0 / 60.0
	for i := 0; i < 120; i++ {
		if i == 40 {
			if err := eng.Resize(960, 540); err != nil {
				panic(err)
			}
		}
		if i == 80 {
			// Dropped frames: the temporal histories restart on the next one.
			eng.AdvanceFrames(3)
		}
		if err := eng.RunFrame(dt); err != nil {
			panic(err)
		}
	}

	core.LogInfo("rendered %d frames, final output at frame index %d", 120, eng.FrameIndex())
	eng.LogStatistics()

	if err := eng.Shutdown(); err != nil {
		panic(err)
	}
}
