package core

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
)

const (
	DEFAULT_CONFIG_FILE string = "anima.toml"

	SHADER_COMPILER_GLSLANG string = "glslang"
	SHADER_COMPILER_NAGA    string = "naga"
)

type WindowConfig struct {
	Title  string `toml:"title"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

// PoolConfig holds the fixed capacity of every resource pool.
type PoolConfig struct {
	Buffers              uint32 `toml:"buffers"`
	Textures             uint32 `toml:"textures"`
	RenderPasses         uint32 `toml:"render_passes"`
	DescriptorSetLayouts uint32 `toml:"descriptor_set_layouts"`
	DescriptorSets       uint32 `toml:"descriptor_sets"`
	Pipelines            uint32 `toml:"pipelines"`
	Shaders              uint32 `toml:"shaders"`
	Samplers             uint32 `toml:"samplers"`
	Framebuffers         uint32 `toml:"framebuffers"`
}

type DeviceConfig struct {
	ApplicationName string `toml:"application_name"`
	LogLevel        string `toml:"log_level"`
	Validation      bool   `toml:"validation"`
	VSync           bool   `toml:"vsync"`
	// Number of recording threads. Thread 1 records the swapchain copy, so at least two.
	NumThreads           uint32 `toml:"num_threads"`
	MaxFramesInFlight    uint32 `toml:"max_frames_in_flight"`
	DynamicPerFrameSize  uint32 `toml:"dynamic_per_frame_size"`
	UBOAlignment         uint32 `toml:"ubo_alignment"`
	MaxBindlessResources uint32 `toml:"max_bindless_resources"`
	ShaderCompiler       string `toml:"shader_compiler"`
	OptimizeShaders      bool   `toml:"optimize_shaders"`
	ShaderDir            string `toml:"shader_dir"`
	HotReload            bool   `toml:"hot_reload"`

	Window WindowConfig `toml:"window"`
	Pools  PoolConfig   `toml:"pools"`
}

func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		ApplicationName:      "anima-gpu",
		LogLevel:             "debug",
		Validation:           true,
		NumThreads:           2,
		MaxFramesInFlight:    3,
		DynamicPerFrameSize:  10 * 1024 * 1024,
		UBOAlignment:         16,
		MaxBindlessResources: 1024,
		ShaderCompiler:       SHADER_COMPILER_GLSLANG,
		ShaderDir:            "assets/shaders",
		Window: WindowConfig{
			Title:  "anima-gpu",
			Width:  1280,
			Height: 720,
		},
		Pools: PoolConfig{
			Buffers:              4096,
			Textures:             512,
			RenderPasses:         256,
			DescriptorSetLayouts: 128,
			DescriptorSets:       128,
			Pipelines:            128,
			Shaders:              128,
			Samplers:             32,
			Framebuffers:         128,
		},
	}
}

// LoadDeviceConfig reads a TOML file on top of the defaults. A missing file yields the defaults.
func LoadDeviceConfig(path string) (*DeviceConfig, error) {
	cfg := DefaultDeviceConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			LogWarn("config file '%s' not found, using defaults", path)
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}
	if err := ParseDeviceConfig(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ParseDeviceConfig(data []byte, cfg *DeviceConfig) error {
	if err := toml.Unmarshal(data, cfg); err != nil {
		return WrapInvalidConfig(err, "failed to decode config")
	}
	return cfg.Validate()
}

func (c *DeviceConfig) Validate() error {
	if c.NumThreads < 2 {
		return errors.Mark(errors.Newf("num_threads must be at least 2, got %d", c.NumThreads), ErrInvalidConfig)
	}
	if c.MaxFramesInFlight < 2 || c.MaxFramesInFlight > 3 {
		return errors.Mark(errors.Newf("max_frames_in_flight must be 2 or 3, got %d", c.MaxFramesInFlight), ErrInvalidConfig)
	}
	if c.UBOAlignment == 0 || c.UBOAlignment&(c.UBOAlignment-1) != 0 {
		return errors.Mark(errors.Newf("ubo_alignment must be a power of two, got %d", c.UBOAlignment), ErrInvalidConfig)
	}
	if c.DynamicPerFrameSize == 0 {
		return errors.Mark(errors.New("dynamic_per_frame_size must not be zero"), ErrInvalidConfig)
	}
	if c.MaxBindlessResources < 2 {
		return errors.Mark(errors.Newf("max_bindless_resources must be at least 2, got %d", c.MaxBindlessResources), ErrInvalidConfig)
	}
	switch c.ShaderCompiler {
	case SHADER_COMPILER_GLSLANG, SHADER_COMPILER_NAGA:
	default:
		return errors.Mark(errors.Newf("unknown shader_compiler %q", c.ShaderCompiler), ErrInvalidConfig)
	}
	pools := map[string]uint32{
		"buffers":                c.Pools.Buffers,
		"textures":               c.Pools.Textures,
		"render_passes":          c.Pools.RenderPasses,
		"descriptor_set_layouts": c.Pools.DescriptorSetLayouts,
		"descriptor_sets":        c.Pools.DescriptorSets,
		"pipelines":              c.Pools.Pipelines,
		"shaders":                c.Pools.Shaders,
		"samplers":               c.Pools.Samplers,
		"framebuffers":           c.Pools.Framebuffers,
	}
	for name, capacity := range pools {
		if capacity == 0 {
			return errors.Mark(errors.Newf("pools.%s must not be zero", name), ErrInvalidConfig)
		}
	}
	if c.LogLevel != "" {
		if _, err := parseLevel(c.LogLevel); err != nil {
			return WrapInvalidConfig(err, "log_level %q", c.LogLevel)
		}
	}
	return nil
}
