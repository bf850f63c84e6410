//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the demo headless.
func (Run) Engine() error {
	fmt.Println("Run engine...")
	if _, err := executeCmd("go", withArgs("run", "main.go"), withStream()); err != nil {
		return err
	}
	return nil
}

// Compiles the shaders and runs the demo against the vulkan backend.
func (Run) Windowed() error {
	if err := buildShaders(); err != nil {
		return err
	}
	fmt.Println("Run engine (vulkan)...")
	if _, err := executeCmd("go", withArgs("run", "main.go", "configs/vulkan.toml"), withStream()); err != nil {
		return err
	}
	return nil
}

type Test mg.Namespace

// Runs the whole test suite.
func (Test) All() error {
	if _, err := executeCmd("go", withArgs("test", "./..."), withStream()); err != nil {
		return err
	}
	return nil
}
