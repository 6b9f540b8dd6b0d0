package metadata

import vk "github.com/goki/vulkan"

type StencilOperationState struct {
	Fail        vk.StencilOp
	Pass        vk.StencilOp
	DepthFail   vk.StencilOp
	Compare     vk.CompareOp
	CompareMask uint32
	WriteMask   uint32
	Reference   uint32
}

type DepthStencilCreation struct {
	Front            StencilOperationState
	Back             StencilOperationState
	DepthComparison  vk.CompareOp
	DepthEnable      bool
	DepthWriteEnable bool
	StencilEnable    bool
}

type BlendState struct {
	SourceColor      vk.BlendFactor
	DestinationColor vk.BlendFactor
	ColorOperation   vk.BlendOp
	SourceAlpha      vk.BlendFactor
	DestinationAlpha vk.BlendFactor
	AlphaOperation   vk.BlendOp
	ColorWriteMask   vk.ColorComponentFlags
	BlendEnabled     bool
	/** @brief Use the alpha factors for the alpha channel instead of the color ones. */
	SeparateBlend bool
}

type BlendStateCreation struct {
	BlendStates []BlendState
}

func (c *BlendStateCreation) AddBlendState(state BlendState) *BlendStateCreation {
	c.BlendStates = append(c.BlendStates, state)
	return c
}

type RasterizationCreation struct {
	CullMode vk.CullModeFlags
	Front    vk.FrontFace
	Fill     vk.PolygonMode
}

type PipelineCreation struct {
	Rasterization RasterizationCreation
	DepthStencil  DepthStencilCreation
	BlendState    BlendStateCreation
	VertexInput   VertexInputCreation
	Shaders       ShaderStateCreation
	/** @brief Attachment formats used for dynamic rendering. */
	RenderPassOutput RenderPassOutput
	/** @brief Take the vertex input layout from the vertex shader instead of VertexInput. */
	ReflectVertexInput bool
	Name               string
}

type Pipeline struct {
	ShaderState ShaderStateHandle
	/** @brief Set 0 is the shared bindless layout and is never owned by the pipeline. */
	DescriptorSetLayoutHandles [MAX_DESCRIPTOR_SET_LAYOUTS]DescriptorSetLayoutHandle
	NumActiveLayouts           uint32
	DepthStencil               DepthStencilCreation
	BlendState                 BlendStateCreation
	Rasterization              RasterizationCreation
	GraphicsPipeline           bool
	Handle                     PipelineHandle
	Name                       string
	InternalData               interface{}
}
