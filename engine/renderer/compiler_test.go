package renderer

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
)

func TestGlslangArguments(t *testing.T) {
	compiler := NewGlslangCompiler("/opt/vulkan", false)

	tests := []struct {
		stage vk.ShaderStageFlagBits
		ext   string
		name  string
	}{
		{vk.ShaderStageVertexBit, "vert", "VERTEX"},
		{vk.ShaderStageFragmentBit, "frag", "FRAGMENT"},
		{vk.ShaderStageComputeBit, "comp", "COMPUTE"},
	}
	for _, tt := range tests {
		got := compiler.Arguments("in.glsl", "out.spv", tt.stage)
		want := []string{"in.glsl", "-V", "--target-env", "vulkan1.2", "--glsl-version", "460", "-o", "out.spv", "-S", tt.ext, "--D", tt.name}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Arguments(%s) = %v, want %v", tt.ext, got, want)
		}
	}

	if got := compiler.tool("glslangValidator"); got != filepath.Join("/opt/vulkan", "bin", "glslangValidator") {
		t.Errorf("tool() = %s", got)
	}
	if got := NewGlslangCompiler("", false).tool("spirv-opt"); got != "spirv-opt" {
		t.Errorf("tool() without sdk = %s, want the bare name", got)
	}
	want := []string{"-O", "--preserve-bindings", "a.spv", "-o", "b.spv"}
	if got := compiler.OptimizerArguments("a.spv", "b.spv"); !reflect.DeepEqual(got, want) {
		t.Errorf("OptimizerArguments() = %v, want %v", got, want)
	}
}

func TestGlslangRejectsUnknownStage(t *testing.T) {
	compiler := NewGlslangCompiler("", false)
	if _, err := compiler.Compile([]byte("void main() {}"), vk.ShaderStageGeometryBit, "geometry"); !errors.Is(err, core.ErrUnsupported) {
		t.Errorf("Compile() error = %v, want ErrUnsupported", err)
	}
}

func TestNewShaderCompiler(t *testing.T) {
	config := core.DefaultDeviceConfig()

	config.ShaderCompiler = core.SHADER_COMPILER_NAGA
	compiler, err := NewShaderCompiler(config)
	if err != nil {
		t.Fatalf("NewShaderCompiler(naga) error = %v", err)
	}
	if _, ok := compiler.(*NagaCompiler); !ok {
		t.Errorf("got %T, want *NagaCompiler", compiler)
	}

	config.ShaderCompiler = core.SHADER_COMPILER_GLSLANG
	config.OptimizeShaders = true
	compiler, err = NewShaderCompiler(config)
	if err != nil {
		t.Fatalf("NewShaderCompiler(glslang) error = %v", err)
	}
	if glslang, ok := compiler.(*GlslangCompiler); !ok || !glslang.Optimize {
		t.Errorf("got %#v, want an optimizing *GlslangCompiler", compiler)
	}

	config.ShaderCompiler = "dxc"
	if _, err := NewShaderCompiler(config); !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("unknown compiler error = %v, want ErrInvalidConfig", err)
	}
}
