package renderer

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/naga"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/spirv"
)

// ShaderCompiler turns the source of one stage into SPIR-V words.
type ShaderCompiler interface {
	Compile(code []byte, stage vk.ShaderStageFlagBits, name string) ([]uint32, error)
}

// NewShaderCompiler returns the compiler selected by config.
func NewShaderCompiler(config *core.DeviceConfig) (ShaderCompiler, error) {
	switch config.ShaderCompiler {
	case core.SHADER_COMPILER_GLSLANG:
		return NewGlslangCompiler(os.Getenv("VULKAN_SDK"), config.OptimizeShaders), nil
	case core.SHADER_COMPILER_NAGA:
		return &NagaCompiler{}, nil
	}
	return nil, errors.Mark(errors.Newf("unknown shader compiler %q", config.ShaderCompiler), core.ErrInvalidConfig)
}

type cmdOptions struct {
	args []string
}

type cmdOption func(*cmdOptions)

func withArgs(args ...string) cmdOption {
	return func(o *cmdOptions) {
		o.args = args
	}
}

func executeCmd(command string, options ...cmdOption) (string, error) {
	opts := &cmdOptions{}
	for _, o := range options {
		o(opts)
	}

	core.LogDebug("executing: %s %s", command, strings.Join(opts.args, " "))
	cmd := exec.Command(command, opts.args...)

	var b bytes.Buffer
	cmd.Stdout = &b
	cmd.Stderr = &b
	if err := cmd.Run(); err != nil {
		return b.String(), errors.Wrapf(err, "error executing %s", command)
	}
	return b.String(), nil
}

// GlslangCompiler shells out to glslangValidator from the Vulkan SDK.
type GlslangCompiler struct {
	SDKPath  string
	TempDir  string
	Optimize bool
}

func NewGlslangCompiler(sdkPath string, optimize bool) *GlslangCompiler {
	return &GlslangCompiler{
		SDKPath:  sdkPath,
		TempDir:  os.TempDir(),
		Optimize: optimize,
	}
}

func (c *GlslangCompiler) tool(name string) string {
	if c.SDKPath == "" {
		return name
	}
	return filepath.Join(c.SDKPath, "bin", name)
}

// Arguments builds the glslangValidator command line for one stage.
func (c *GlslangCompiler) Arguments(input, output string, stage vk.ShaderStageFlagBits) []string {
	return []string{
		input,
		"-V",
		"--target-env", "vulkan1.2",
		"--glsl-version", "460",
		"-o", output,
		"-S", metadata.ShaderStageCompilerExtension(stage),
		"--D", metadata.ShaderStageDefine(stage),
	}
}

// OptimizerArguments builds the spirv-opt command line.
func (c *GlslangCompiler) OptimizerArguments(input, output string) []string {
	return []string{"-O", "--preserve-bindings", input, "-o", output}
}

func (c *GlslangCompiler) Compile(code []byte, stage vk.ShaderStageFlagBits, name string) ([]uint32, error) {
	extension := metadata.ShaderStageCompilerExtension(stage)
	if extension == "" {
		return nil, errors.Wrapf(core.ErrUnsupported, "shader stage %d of %s", stage, name)
	}

	stem := filepath.Join(c.TempDir, core.GenerateFileStem("shader"))
	source := stem + "." + extension
	output := stem + ".spv"
	if err := os.WriteFile(source, code, 0o600); err != nil {
		return nil, errors.Wrapf(err, "failed to write temporary shader %s", source)
	}
	defer os.Remove(source)
	defer os.Remove(output)

	if out, err := executeCmd(c.tool("glslangValidator"), withArgs(c.Arguments(source, output, stage)...)); err != nil {
		core.LogError("glslang failed on %s:\n%s", name, out)
		return nil, errors.Mark(errors.Wrapf(err, "compiling %s", name), core.ErrShaderCompilation)
	}

	if c.Optimize {
		optimized := stem + ".opt.spv"
		defer os.Remove(optimized)
		if out, err := executeCmd(c.tool("spirv-opt"), withArgs(c.OptimizerArguments(output, optimized)...)); err != nil {
			core.LogError("spirv-opt failed on %s:\n%s", name, out)
			return nil, errors.Mark(errors.Wrapf(err, "optimizing %s", name), core.ErrShaderCompilation)
		}
		output = optimized
	}

	spv, err := os.ReadFile(output)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "reading %s", output), core.ErrShaderCompilation)
	}
	return spirv.Words(spv)
}

// NagaCompiler compiles WGSL in process. Each stage is its own WGSL module whose entry
// point is named main.
type NagaCompiler struct{}

func (c *NagaCompiler) Compile(code []byte, stage vk.ShaderStageFlagBits, name string) ([]uint32, error) {
	spv, err := naga.Compile(string(code))
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "compiling %s", name), core.ErrShaderCompilation)
	}
	return spirv.Words(spv)
}

// dumpShaderSource logs every stage with line numbers after a failed compilation.
func dumpShaderSource(creation *metadata.ShaderStateCreation) {
	core.LogError("Error in creation of shader %s. Dumping all shader informations.", creation.Name)
	for _, stage := range creation.Stages {
		var b strings.Builder
		for i, line := range strings.Split(string(stage.Code), "\n") {
			fmt.Fprintf(&b, "%4d: %s\n", i+1, line)
		}
		core.LogError("stage %s:\n%s", metadata.ShaderStageDefine(stage.Type), b.String())
	}
}
