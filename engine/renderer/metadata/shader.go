package metadata

import vk "github.com/goki/vulkan"

type ShaderStage struct {
	/** @brief GLSL or WGSL source text, or SPIR-V bytes when the creation sets SpvInput. */
	Code []byte
	Type vk.ShaderStageFlagBits
}

type ShaderStateCreation struct {
	Stages []ShaderStage
	Name   string
	/** @brief Stages already hold SPIR-V and skip the compiler. */
	SpvInput bool
}

func (c *ShaderStateCreation) AddStage(code []byte, stage vk.ShaderStageFlagBits) *ShaderStateCreation {
	c.Stages = append(c.Stages, ShaderStage{Code: code, Type: stage})
	return c
}

/** @brief A compiled stage. Module is the backend native shader module. */
type ShaderModule struct {
	Stage  vk.ShaderStageFlagBits
	Module interface{}
}

type ShaderState struct {
	Handle           ShaderStateHandle
	Name             string
	GraphicsPipeline bool
	Modules          []ShaderModule
	Reflect          ShaderReflect
}

type VertexAttribute struct {
	Location uint16
	Binding  uint16
	Offset   uint32
	Format   vk.Format
}

type VertexStream struct {
	Binding   uint16
	Stride    uint16
	InputRate vk.VertexInputRate
}

type VertexInputCreation struct {
	Streams    []VertexStream
	Attributes []VertexAttribute
}

/** @brief Layout information recovered from SPIR-V. */
type ShaderReflect struct {
	Input VertexInputCreation
	/** @brief Descriptor sets indexed by set number. */
	Sets []DescriptorSetLayoutCreation
	/** @brief Largest push constant block size, in bytes. */
	PushConstantSize uint32
	/** @brief Local workgroup size of a compute entry point. */
	LocalSize [3]uint32
}

func ShaderStageDefine(stage vk.ShaderStageFlagBits) string {
	switch stage {
	case vk.ShaderStageVertexBit:
		return "VERTEX"
	case vk.ShaderStageFragmentBit:
		return "FRAGMENT"
	case vk.ShaderStageComputeBit:
		return "COMPUTE"
	case vk.ShaderStageMeshBitNv:
		return "MESH"
	case vk.ShaderStageTaskBitNv:
		return "TASK"
	}
	return ""
}

func ShaderStageCompilerExtension(stage vk.ShaderStageFlagBits) string {
	switch stage {
	case vk.ShaderStageVertexBit:
		return "vert"
	case vk.ShaderStageFragmentBit:
		return "frag"
	case vk.ShaderStageComputeBit:
		return "comp"
	case vk.ShaderStageMeshBitNv:
		return "mesh"
	case vk.ShaderStageTaskBitNv:
		return "task"
	}
	return ""
}
