//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// shaderSources are compiled to assets/shaders/<source>.spv.
var shaderSources = []string{
	"ray_tracing.comp",
	"texture.vert",
	"texture.frag",
}

// Compiles the GLSL sources in shaders/ to SPIR-V with glslc.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the engine binary into bin/.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	if _, err := executeCmd("go", withArgs("build", "-o", filepath.Join("bin", "lumen"), "."), withStream()); err != nil {
		return err
	}
	return nil
}

func buildShaders() error {
	out := filepath.Join("assets", "shaders")
	if err := os.MkdirAll(out, 0o755); err != nil {
		return err
	}
	for _, src := range shaderSources {
		in := filepath.Join("shaders", src)
		dst := filepath.Join(out, src+".spv")
		if _, err := executeCmd("glslc", withArgs(in, "-o", dst), withStream()); err != nil {
			return fmt.Errorf("failed to compile %s: %w", in, err)
		}
	}
	return nil
}
