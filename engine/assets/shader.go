package assets

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

var shaderStages = []vk.ShaderStageFlagBits{
	vk.ShaderStageVertexBit,
	vk.ShaderStageFragmentBit,
	vk.ShaderStageComputeBit,
	vk.ShaderStageMeshBitNv,
	vk.ShaderStageTaskBitNv,
}

// ShaderStageFromPath maps "name.vert", "name.frag.glsl" or "name.comp.wgsl" to a stage.
func ShaderStageFromPath(path string) (vk.ShaderStageFlagBits, bool) {
	base := filepath.Base(path)
	switch ext := filepath.Ext(base); ext {
	case ".glsl", ".wgsl":
		base = strings.TrimSuffix(base, ext)
	}
	ext := strings.TrimPrefix(filepath.Ext(base), ".")
	for _, stage := range shaderStages {
		if metadata.ShaderStageCompilerExtension(stage) == ext {
			return stage, true
		}
	}
	return 0, false
}

// LoadShaderStage reads the source at path, taking the stage from the file name.
func LoadShaderStage(path string) (metadata.ShaderStage, error) {
	stage, ok := ShaderStageFromPath(path)
	if !ok {
		return metadata.ShaderStage{}, errors.Mark(errors.Newf("cannot infer shader stage of %s", path), core.ErrUnsupported)
	}
	code, err := os.ReadFile(path)
	if err != nil {
		return metadata.ShaderStage{}, errors.Wrapf(err, "failed to read shader %s", path)
	}
	return metadata.ShaderStage{Code: code, Type: stage}, nil
}

// LoadShaderState builds a creation with one stage per file.
func LoadShaderState(name string, paths ...string) (metadata.ShaderStateCreation, error) {
	creation := metadata.ShaderStateCreation{Name: name}
	for _, path := range paths {
		stage, err := LoadShaderStage(path)
		if err != nil {
			return metadata.ShaderStateCreation{}, err
		}
		creation.AddStage(stage.Code, stage.Type)
	}
	return creation, nil
}
