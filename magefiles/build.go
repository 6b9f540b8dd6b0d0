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
	shaderDir    = "assets/shaders"
	shaderOutDir = "build/shaders"
	binaryPath   = "bin/anima-gpu"
)

var shaderExtensions = []string{".vert", ".frag", ".comp", ".mesh", ".task"}

// Compiles every shader under assets/shaders to SPIR-V with glslangValidator.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the testbed binary into bin/.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	if _, err := executeCmd("go", withArgs("build", "-o", binaryPath, "."), withStream()); err != nil {
		return err
	}
	return nil
}

func buildShaders() error {
	if err := os.MkdirAll(shaderOutDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", shaderOutDir, err)
	}
	validator := "glslangValidator"
	if sdk := os.Getenv("VULKAN_SDK"); sdk != "" {
		validator = filepath.Join(sdk, "bin", validator)
	}

	return filepath.WalkDir(shaderDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !isShader(path) {
			return err
		}
		rel, err := filepath.Rel(shaderDir, path)
		if err != nil {
			return err
		}
		out := filepath.Join(shaderOutDir, rel+".spv")
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return err
		}
		_, err = executeCmd(validator, withArgs("-V", "--target-env", "vulkan1.3", path, "-o", out))
		return err
	})
}

func isShader(path string) bool {
	ext := filepath.Ext(path)
	for _, e := range shaderExtensions {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}
