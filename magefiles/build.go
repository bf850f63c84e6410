//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

const (
	shaderSourceDir = "engine/shaders/hlsl"
	shaderBinaryDir = "assets/shaders/bin"
)

// Compiles every HLSL shader to SPIR-V with the register shifts the vulkan
// backend expects (t at 0, b at 32, u at 48, one descriptor set).
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the demo binary.
func (Build) Binary() error {
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/lumen", "."), withStream()); err != nil {
		return err
	}
	return nil
}

func buildShaders() error {
	if err := os.MkdirAll(shaderBinaryDir, 0o755); err != nil {
		return err
	}
	sources, err := filepath.Glob(filepath.Join(shaderSourceDir, "*.hlsl"))
	if err != nil {
		return err
	}
	for _, source := range sources {
		base := strings.TrimSuffix(filepath.Base(source), ".hlsl")
		profile, ok := shaderProfile(base)
		if !ok {
			fmt.Printf("Skipping %s: include-only source\n", source)
			continue
		}
		out := filepath.Join(shaderBinaryDir, base+".spv")
		args := []string{
			"-spirv",
			"-T", profile,
			"-E", "main",
			"-fvk-t-shift", "0", "0",
			"-fvk-b-shift", "32", "0",
			"-fvk-u-shift", "48", "0",
			"-Fo", out,
			source,
		}
		if _, err := executeCmd("dxc", withArgs(args...), withStream()); err != nil {
			return err
		}
	}
	return nil
}

func shaderProfile(base string) (string, bool) {
	switch {
	case strings.HasSuffix(base, "_vs"):
		return "vs_6_0", true
	case strings.HasSuffix(base, "_ps"):
		return "ps_6_0", true
	case strings.HasSuffix(base, "_cs"):
		return "cs_6_0", true
	default:
		return "", false
	}
}
