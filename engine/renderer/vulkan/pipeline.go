package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

/**
 * @brief Holds a Vulkan pipeline and its layout.
 */
type VulkanPipeline struct {
	/** @brief The internal pipeline handle. */
	Handle vk.Pipeline
	/** @brief The pipeline layout. */
	Layout vk.PipelineLayout
	/** @brief Graphics or compute. */
	BindPoint vk.PipelineBindPoint
}

const allColorComponents = vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit |
	vk.ColorComponentBBit | vk.ColorComponentABit)

func (b *Backend) CreatePipeline(pipeline *metadata.Pipeline, creation *metadata.PipelineCreation, shader *metadata.ShaderState, layouts []*metadata.DescriptorSetLayout) error {
	outPipeline := &VulkanPipeline{BindPoint: vk.PipelineBindPointGraphics}
	if !pipeline.GraphicsPipeline {
		outPipeline.BindPoint = vk.PipelineBindPointCompute
	}

	stages := make([]vk.PipelineShaderStageCreateInfo, 0, len(shader.Modules))
	var stageFlags vk.ShaderStageFlags
	for _, module := range shader.Modules {
		native, ok := module.Module.(*VulkanShaderModule)
		if !ok {
			return errors.Wrapf(core.ErrInvalidHandle, "pipeline %s: stage without native module", creation.Name)
		}
		stages = append(stages, vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  module.Stage,
			Module: native.Handle,
			PName:  VulkanSafeString("main"),
		})
		stageFlags |= vk.ShaderStageFlags(module.Stage)
	}
	if len(stages) == 0 {
		return errors.Wrapf(core.ErrShaderCompilation, "pipeline %s has no stages", creation.Name)
	}

	setLayouts := make([]vk.DescriptorSetLayout, 0, len(layouts))
	for _, layout := range layouts {
		native, ok := layout.InternalData.(*VulkanDescriptorSetLayout)
		if !ok {
			return errors.Wrapf(core.ErrInvalidHandle, "pipeline %s: layout %s has no native layout", creation.Name, layout.Name)
		}
		setLayouts = append(setLayouts, native.Handle)
	}

	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(setLayouts)),
		PSetLayouts:    setLayouts,
	}
	if size := shader.Reflect.PushConstantSize; size > 0 {
		pipelineLayoutCreateInfo.PushConstantRangeCount = 1
		pipelineLayoutCreateInfo.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: stageFlags,
			Offset:     0,
			Size:       size,
		}}
	}

	device := b.context.Device.LogicalDevice
	if err := b.context.lockPool.SafeCall(PipelineManagement, func() error {
		if res := vk.CreatePipelineLayout(device, &pipelineLayoutCreateInfo, b.context.Allocator, &outPipeline.Layout); res != vk.Success {
			return core.NewVulkanError("vkCreatePipelineLayout", VulkanResultString(res, true))
		}
		return nil
	}); err != nil {
		core.LogError(err.Error())
		return err
	}

	var err error
	if pipeline.GraphicsPipeline {
		err = b.createGraphicsPipeline(outPipeline, creation, stages)
	} else {
		err = b.createComputePipeline(outPipeline, stages[0])
	}
	if err != nil {
		vk.DestroyPipelineLayout(device, outPipeline.Layout, b.context.Allocator)
		return err
	}

	setObjectName(b.context, vk.ObjectTypePipeline, unsafe.Pointer(outPipeline.Handle), creation.Name)
	pipeline.InternalData = outPipeline
	core.LogDebug("Pipeline %s created.", creation.Name)
	return nil
}

func (b *Backend) createComputePipeline(outPipeline *VulkanPipeline, stage vk.PipelineShaderStageCreateInfo) error {
	pipelineCreateInfo := vk.ComputePipelineCreateInfo{
		SType:              vk.StructureTypeComputePipelineCreateInfo,
		Stage:              stage,
		Layout:             outPipeline.Layout,
		BasePipelineHandle: vk.NullPipeline,
		BasePipelineIndex:  -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	if err := b.context.lockPool.SafeCall(PipelineManagement, func() error {
		if res := vk.CreateComputePipelines(b.context.Device.LogicalDevice, vk.NullPipelineCache, 1,
			[]vk.ComputePipelineCreateInfo{pipelineCreateInfo}, b.context.Allocator, pipelines); res != vk.Success {
			return core.NewVulkanError("vkCreateComputePipelines", VulkanResultString(res, true))
		}
		return nil
	}); err != nil {
		core.LogError(err.Error())
		return err
	}
	outPipeline.Handle = pipelines[0]
	return nil
}

// colorBlendAttachments returns one state per color attachment. Missing states write every
// channel with blending off.
func colorBlendAttachments(states []metadata.BlendState, colorCount int) []vk.PipelineColorBlendAttachmentState {
	attachments := make([]vk.PipelineColorBlendAttachmentState, colorCount)
	for i := range attachments {
		if i >= len(states) {
			attachments[i] = vk.PipelineColorBlendAttachmentState{
				BlendEnable:    vk.False,
				ColorWriteMask: allColorComponents,
			}
			continue
		}
		state := states[i]
		attachment := vk.PipelineColorBlendAttachmentState{
			BlendEnable:         boolToVk(state.BlendEnabled),
			SrcColorBlendFactor: state.SourceColor,
			DstColorBlendFactor: state.DestinationColor,
			ColorBlendOp:        state.ColorOperation,
			SrcAlphaBlendFactor: state.SourceColor,
			DstAlphaBlendFactor: state.DestinationColor,
			AlphaBlendOp:        state.ColorOperation,
			ColorWriteMask:      state.ColorWriteMask,
		}
		if state.SeparateBlend {
			attachment.SrcAlphaBlendFactor = state.SourceAlpha
			attachment.DstAlphaBlendFactor = state.DestinationAlpha
			attachment.AlphaBlendOp = state.AlphaOperation
		}
		if attachment.ColorWriteMask == 0 {
			attachment.ColorWriteMask = allColorComponents
		}
		attachments[i] = attachment
	}
	return attachments
}

func stencilOpState(state metadata.StencilOperationState) vk.StencilOpState {
	return vk.StencilOpState{
		FailOp:      state.Fail,
		PassOp:      state.Pass,
		DepthFailOp: state.DepthFail,
		CompareOp:   state.Compare,
		CompareMask: state.CompareMask,
		WriteMask:   state.WriteMask,
		Reference:   state.Reference,
	}
}

// attachmentFormats splits the depth stencil format of output into its depth and stencil parts.
func attachmentFormats(format vk.Format) (depth, stencil vk.Format) {
	switch format {
	case vk.FormatUndefined:
		return vk.FormatUndefined, vk.FormatUndefined
	case vk.FormatS8Uint:
		return vk.FormatUndefined, format
	case vk.FormatD16UnormS8Uint, vk.FormatD24UnormS8Uint, vk.FormatD32SfloatS8Uint:
		return format, format
	}
	return format, vk.FormatUndefined
}

func (b *Backend) createGraphicsPipeline(outPipeline *VulkanPipeline, creation *metadata.PipelineCreation, stages []vk.PipelineShaderStageCreateInfo) error {
	bindings := make([]vk.VertexInputBindingDescription, 0, len(creation.VertexInput.Streams))
	for _, stream := range creation.VertexInput.Streams {
		bindings = append(bindings, vk.VertexInputBindingDescription{
			Binding:   uint32(stream.Binding),
			Stride:    uint32(stream.Stride),
			InputRate: stream.InputRate,
		})
	}
	attributes := make([]vk.VertexInputAttributeDescription, 0, len(creation.VertexInput.Attributes))
	for _, attribute := range creation.VertexInput.Attributes {
		attributes = append(attributes, vk.VertexInputAttributeDescription{
			Location: uint32(attribute.Location),
			Binding:  uint32(attribute.Binding),
			Format:   attribute.Format,
			Offset:   attribute.Offset,
		})
	}
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	// Viewport and scissor are dynamic, only the counts matter here.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             creation.Rasterization.Fill,
		CullMode:                creation.Rasterization.CullMode,
		FrontFace:               creation.Rasterization.Front,
		DepthBiasEnable:         vk.False,
		LineWidth:               1.0,
	}

	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  vk.SampleCount1Bit,
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:       boolToVk(creation.DepthStencil.DepthEnable),
		DepthWriteEnable:      boolToVk(creation.DepthStencil.DepthWriteEnable),
		DepthCompareOp:        creation.DepthStencil.DepthComparison,
		DepthBoundsTestEnable: vk.False,
		StencilTestEnable:     boolToVk(creation.DepthStencil.StencilEnable),
		Front:                 stencilOpState(creation.DepthStencil.Front),
		Back:                  stencilOpState(creation.DepthStencil.Back),
	}

	output := &creation.RenderPassOutput
	blendAttachments := colorBlendAttachments(creation.BlendState.BlendStates, len(output.ColorFormats))
	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blendAttachments)),
		PAttachments:    blendAttachments,
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	depthFormat, stencilFormat := attachmentFormats(output.DepthStencilFormat)
	renderingCreateInfo := vk.PipelineRenderingCreateInfo{
		SType:                   vk.StructureTypePipelineRenderingCreateInfo,
		ColorAttachmentCount:    uint32(len(output.ColorFormats)),
		PColorAttachmentFormats: output.ColorFormats,
		DepthAttachmentFormat:   depthFormat,
		StencilAttachmentFormat: stencilFormat,
	}

	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		PNext:               unsafe.Pointer(renderingCreateInfo.Ref()),
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              outPipeline.Layout,
		RenderPass:          vk.NullRenderPass,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	if err := b.context.lockPool.SafeCall(PipelineManagement, func() error {
		if res := vk.CreateGraphicsPipelines(b.context.Device.LogicalDevice, vk.NullPipelineCache, 1,
			[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo}, b.context.Allocator, pipelines); res != vk.Success {
			return core.NewVulkanError("vkCreateGraphicsPipelines", VulkanResultString(res, true))
		}
		return nil
	}); err != nil {
		core.LogError(err.Error())
		return err
	}
	outPipeline.Handle = pipelines[0]
	return nil
}

func (b *Backend) DestroyPipeline(pipeline *metadata.Pipeline) {
	native, ok := pipeline.InternalData.(*VulkanPipeline)
	if !ok {
		return
	}
	device := b.context.Device.LogicalDevice
	b.context.lockPool.SafeCall(PipelineManagement, func() error {
		if native.Handle != vk.NullPipeline {
			vk.DestroyPipeline(device, native.Handle, b.context.Allocator)
			native.Handle = vk.NullPipeline
		}
		if native.Layout != vk.NullPipelineLayout {
			vk.DestroyPipelineLayout(device, native.Layout, b.context.Allocator)
			native.Layout = vk.NullPipelineLayout
		}
		return nil
	})
	pipeline.InternalData = nil
}
