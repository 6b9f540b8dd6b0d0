package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
)

// VulkanCommandBuffer records into a buffer of one of the per frame, per thread pools.
type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	// Command buffer state.
	State VulkanCommandBufferState

	backend   *Backend
	poolIndex uint32
	secondary bool

	statisticsActive bool
	// Attachments of the open dynamic rendering scope and the layouts they end in.
	colors      []*VulkanTexture
	finals      []vk.ImageLayout
	depth       *VulkanTexture
	depthFinal  vk.ImageLayout
	boundLayout vk.PipelineLayout
	bindPoint   vk.PipelineBindPoint
}

var _ renderer.NativeCommandBuffer = (*VulkanCommandBuffer)(nil)

func (b *Backend) AllocateCommandBuffers(poolIndex, primaries, secondaries uint32) ([]renderer.NativeCommandBuffer, []renderer.NativeCommandBuffer, error) {
	if int(poolIndex) >= len(b.commandPools) {
		return nil, nil, errors.Wrapf(core.ErrInvalidHandle, "command pool %d of %d", poolIndex, len(b.commandPools))
	}
	primary, err := b.allocateCommandBuffers(poolIndex, vk.CommandBufferLevelPrimary, primaries)
	if err != nil {
		return nil, nil, err
	}
	secondary, err := b.allocateCommandBuffers(poolIndex, vk.CommandBufferLevelSecondary, secondaries)
	if err != nil {
		return nil, nil, err
	}
	return primary, secondary, nil
}

func (b *Backend) allocateCommandBuffers(poolIndex uint32, level vk.CommandBufferLevel, count uint32) ([]renderer.NativeCommandBuffer, error) {
	if count == 0 {
		return nil, nil
	}
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        b.commandPools[poolIndex],
		Level:              level,
		CommandBufferCount: count,
	}
	handles := make([]vk.CommandBuffer, count)
	if err := b.context.lockPool.SafeCall(CommandPoolManagement, func() error {
		if res := vk.AllocateCommandBuffers(b.context.Device.LogicalDevice, &allocateInfo, handles); res != vk.Success {
			return core.NewVulkanError("vkAllocateCommandBuffers", VulkanResultString(res, true))
		}
		return nil
	}); err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	buffers := make([]renderer.NativeCommandBuffer, count)
	for i, handle := range handles {
		buffers[i] = &VulkanCommandBuffer{
			Handle:    handle,
			State:     COMMAND_BUFFER_STATE_READY,
			backend:   b,
			poolIndex: poolIndex,
			secondary: level == vk.CommandBufferLevelSecondary,
		}
	}
	return buffers, nil
}

// ResetCommandPool returns every buffer of the pool to the initial state. Each pool is only
// touched by its own thread, so no lock is taken.
func (b *Backend) ResetCommandPool(poolIndex uint32) error {
	if int(poolIndex) >= len(b.commandPools) {
		return errors.Wrapf(core.ErrInvalidHandle, "command pool %d of %d", poolIndex, len(b.commandPools))
	}
	if res := vk.ResetCommandPool(b.context.Device.LogicalDevice, b.commandPools[poolIndex], 0); res != vk.Success {
		err := core.NewVulkanError("vkResetCommandPool", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	return nil
}

func (v *VulkanCommandBuffer) Begin() error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(v.Handle, &beginInfo); res != vk.Success {
		err := core.NewVulkanError("vkBeginCommandBuffer", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (v *VulkanCommandBuffer) BeginSecondary(output *metadata.RenderPassOutput) error {
	depthFormat, stencilFormat := attachmentFormats(output.DepthStencilFormat)
	renderingInheritance := vk.CommandBufferInheritanceRenderingInfo{
		SType:                   vk.StructureTypeCommandBufferInheritanceRenderingInfo,
		ColorAttachmentCount:    uint32(len(output.ColorFormats)),
		PColorAttachmentFormats: output.ColorFormats,
		DepthAttachmentFormat:   depthFormat,
		StencilAttachmentFormat: stencilFormat,
		RasterizationSamples:    vk.SampleCount1Bit,
	}
	inheritance := vk.CommandBufferInheritanceInfo{
		SType: vk.StructureTypeCommandBufferInheritanceInfo,
		PNext: unsafe.Pointer(renderingInheritance.Ref()),
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit |
			vk.CommandBufferUsageRenderPassContinueBit),
		PInheritanceInfo: []vk.CommandBufferInheritanceInfo{inheritance},
	}
	if res := vk.BeginCommandBuffer(v.Handle, &beginInfo); res != vk.Success {
		err := core.NewVulkanError("vkBeginCommandBuffer", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	v.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if v.statisticsActive {
		vk.CmdEndQuery(v.Handle, v.backend.queries[v.poolIndex].statistics, 0)
		v.statisticsActive = false
	}
	if res := vk.EndCommandBuffer(v.Handle); res != vk.Success {
		err := core.NewVulkanError("vkEndCommandBuffer", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func finalLayout(layouts []vk.ImageLayout, i int, fallback vk.ImageLayout) vk.ImageLayout {
	if i < len(layouts) && layouts[i] != vk.ImageLayoutUndefined {
		return layouts[i]
	}
	return fallback
}

// BeginRendering moves every attachment into its attachment layout and opens a dynamic
// rendering scope. EndRendering moves them to the final layouts of the output.
func (v *VulkanCommandBuffer) BeginRendering(info *metadata.RenderingInfo, secondaryContents bool) {
	output := info.Output
	v.colors = v.colors[:0]
	v.finals = v.finals[:0]
	v.depth = nil

	colorAttachments := make([]vk.RenderingAttachmentInfo, 0, len(info.Colors))
	for i, color := range info.Colors {
		native, ok := color.InternalData.(*VulkanTexture)
		if !ok {
			core.LogError("render target %s has no native image", color.Name)
			continue
		}
		native.transition(v.Handle, vk.ImageLayoutColorAttachmentOptimal)
		loadOp := vk.AttachmentLoadOpDontCare
		if i < len(output.ColorOperations) {
			loadOp = output.ColorOperations[i].LoadOp()
		}
		colorAttachments = append(colorAttachments, vk.RenderingAttachmentInfo{
			SType:       vk.StructureTypeRenderingAttachmentInfo,
			ImageView:   native.View,
			ImageLayout: vk.ImageLayoutColorAttachmentOptimal,
			LoadOp:      loadOp,
			StoreOp:     vk.AttachmentStoreOpStore,
			ClearValue:  vk.NewClearValue(info.ClearColor[:]),
		})
		v.colors = append(v.colors, native)
		v.finals = append(v.finals, finalLayout(output.ColorFinalLayouts, i, readyLayout(color)))
	}

	renderingInfo := vk.RenderingInfo{
		SType: vk.StructureTypeRenderingInfo,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{Width: info.Width, Height: info.Height},
		},
		LayerCount:           1,
		ColorAttachmentCount: uint32(len(colorAttachments)),
		PColorAttachments:    colorAttachments,
	}
	if secondaryContents {
		renderingInfo.Flags = vk.RenderingFlags(vk.RenderingContentsSecondaryCommandBuffersBit)
	}

	if info.Depth != nil {
		if native, ok := info.Depth.InternalData.(*VulkanTexture); ok {
			native.transition(v.Handle, vk.ImageLayoutDepthStencilAttachmentOptimal)
			depthAttachment := vk.RenderingAttachmentInfo{
				SType:       vk.StructureTypeRenderingAttachmentInfo,
				ImageView:   native.View,
				ImageLayout: vk.ImageLayoutDepthStencilAttachmentOptimal,
				LoadOp:      output.DepthOperation.LoadOp(),
				StoreOp:     vk.AttachmentStoreOpStore,
				ClearValue:  vk.NewClearDepthStencil(info.ClearDepth, info.ClearStencil),
			}
			renderingInfo.PDepthAttachment = []vk.RenderingAttachmentInfo{depthAttachment}
			if info.Depth.HasStencil() {
				stencilAttachment := depthAttachment
				stencilAttachment.LoadOp = output.StencilOperation.LoadOp()
				renderingInfo.PStencilAttachment = []vk.RenderingAttachmentInfo{stencilAttachment}
			}
			v.depth = native
			v.depthFinal = output.DepthStencilFinalLayout
			if v.depthFinal == vk.ImageLayoutUndefined {
				v.depthFinal = readyLayout(info.Depth)
			}
		}
	}

	vk.CmdBeginRendering(v.Handle, &renderingInfo)
	v.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (v *VulkanCommandBuffer) EndRendering() {
	if v.State != COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		return
	}
	vk.CmdEndRendering(v.Handle)
	for i, color := range v.colors {
		color.transition(v.Handle, v.finals[i])
	}
	if v.depth != nil {
		v.depth.transition(v.Handle, v.depthFinal)
	}
	v.colors = v.colors[:0]
	v.finals = v.finals[:0]
	v.depth = nil
	v.State = COMMAND_BUFFER_STATE_RECORDING
}

func (v *VulkanCommandBuffer) BindPipeline(pipeline *metadata.Pipeline) {
	native, ok := pipeline.InternalData.(*VulkanPipeline)
	if !ok {
		core.LogError("pipeline %s has no native pipeline", pipeline.Name)
		return
	}
	vk.CmdBindPipeline(v.Handle, native.BindPoint, native.Handle)
	v.boundLayout = native.Layout
	v.bindPoint = native.BindPoint
}

func (v *VulkanCommandBuffer) BindDescriptorSets(pipeline *metadata.Pipeline, firstSet uint32, sets []*metadata.DescriptorSet, dynamicOffsets []uint32) {
	native, ok := pipeline.InternalData.(*VulkanPipeline)
	if !ok {
		core.LogError("pipeline %s has no native pipeline", pipeline.Name)
		return
	}
	handles := make([]vk.DescriptorSet, 0, len(sets))
	for _, set := range sets {
		if nativeSet, ok := set.InternalData.(*VulkanDescriptorSet); ok {
			handles = append(handles, nativeSet.Handle)
		}
	}
	if len(handles) == 0 {
		return
	}
	vk.CmdBindDescriptorSets(v.Handle, native.BindPoint, native.Layout, firstSet,
		uint32(len(handles)), handles, uint32(len(dynamicOffsets)), dynamicOffsets)
}

func (v *VulkanCommandBuffer) BindVertexBuffer(buffer *metadata.Buffer, binding uint32, offset uint64) {
	native, ok := buffer.InternalData.(*VulkanBuffer)
	if !ok {
		core.LogError("vertex buffer %s has no native buffer", buffer.Name)
		return
	}
	vk.CmdBindVertexBuffers(v.Handle, binding, 1, []vk.Buffer{native.Handle}, []vk.DeviceSize{vk.DeviceSize(offset)})
}

func (v *VulkanCommandBuffer) BindIndexBuffer(buffer *metadata.Buffer, offset uint64, indexType vk.IndexType) {
	native, ok := buffer.InternalData.(*VulkanBuffer)
	if !ok {
		core.LogError("index buffer %s has no native buffer", buffer.Name)
		return
	}
	vk.CmdBindIndexBuffer(v.Handle, native.Handle, vk.DeviceSize(offset), indexType)
}

func (v *VulkanCommandBuffer) SetViewport(x, y, width, height float32) {
	viewport := vk.Viewport{
		X:        x,
		Y:        y,
		Width:    width,
		Height:   height,
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}
	vk.CmdSetViewport(v.Handle, 0, 1, []vk.Viewport{viewport})
}

func (v *VulkanCommandBuffer) SetScissor(x, y int32, width, height uint32) {
	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: x, Y: y},
		Extent: vk.Extent2D{Width: width, Height: height},
	}
	vk.CmdSetScissor(v.Handle, 0, 1, []vk.Rect2D{scissor})
}

func (v *VulkanCommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(v.Handle, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (v *VulkanCommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(v.Handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (v *VulkanCommandBuffer) Dispatch(groupX, groupY, groupZ uint32) {
	vk.CmdDispatch(v.Handle, groupX, groupY, groupZ)
}

func (v *VulkanCommandBuffer) ExecuteCommands(secondaries []renderer.NativeCommandBuffer) {
	if len(secondaries) == 0 {
		return
	}
	handles := commandHandles(secondaries)
	vk.CmdExecuteCommands(v.Handle, uint32(len(handles)), handles)
}

func (v *VulkanCommandBuffer) ResetQueries(first, count uint32) {
	queries := v.backend.queries[v.poolIndex]
	vk.CmdResetQueryPool(v.Handle, queries.timestamps, first, count)
	if queries.statistics == vk.NullQueryPool || v.secondary {
		return
	}
	vk.CmdResetQueryPool(v.Handle, queries.statistics, 0, 1)
	vk.CmdBeginQuery(v.Handle, queries.statistics, 0, 0)
	v.statisticsActive = true
}

// WriteTimestamp writes even queries at the top of the pipe and odd ones at the bottom, so
// every pair brackets the work recorded between them.
func (v *VulkanCommandBuffer) WriteTimestamp(query uint32) {
	stage := vk.PipelineStageTopOfPipeBit
	if query%2 == 1 {
		stage = vk.PipelineStageBottomOfPipeBit
	}
	vk.CmdWriteTimestamp(v.Handle, stage, v.backend.queries[v.poolIndex].timestamps, query)
}

// copyToSwapchain blits source into the swapchain image, or clears it when source is nil,
// and leaves the image ready to present.
func (v *VulkanCommandBuffer) copyToSwapchain(image vk.Image, extent vk.Extent2D, source *metadata.Texture) {
	colorAspect := vk.ImageAspectFlags(vk.ImageAspectColorBit)
	transferStage := vk.PipelineStageFlags(vk.PipelineStageTransferBit)

	toTransfer := imageBarrier(image, colorAspect, 1, 1, vk.ImageLayoutPresentSrc, vk.ImageLayoutTransferDstOptimal)
	vk.CmdPipelineBarrier(v.Handle, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), transferStage,
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{toTransfer})

	var native *VulkanTexture
	if source != nil {
		native, _ = source.InternalData.(*VulkanTexture)
	}
	colorRange := vk.ImageSubresourceRange{AspectMask: colorAspect, LevelCount: 1, LayerCount: 1}
	if native == nil {
		var clear vk.ClearColorValue
		vk.CmdClearColorImage(v.Handle, image, vk.ImageLayoutTransferDstOptimal, &clear, 1, []vk.ImageSubresourceRange{colorRange})
	} else {
		restore := native.Layout
		if restore == vk.ImageLayoutUndefined {
			restore = readyLayout(source)
		}
		native.transition(v.Handle, vk.ImageLayoutTransferSrcOptimal)
		blit := vk.ImageBlit{
			SrcSubresource: vk.ImageSubresourceLayers{AspectMask: colorAspect, LayerCount: 1},
			SrcOffsets:     [2]vk.Offset3D{{}, {X: int32(source.Width), Y: int32(source.Height), Z: 1}},
			DstSubresource: vk.ImageSubresourceLayers{AspectMask: colorAspect, LayerCount: 1},
			DstOffsets:     [2]vk.Offset3D{{}, {X: int32(extent.Width), Y: int32(extent.Height), Z: 1}},
		}
		vk.CmdBlitImage(v.Handle, native.Image, vk.ImageLayoutTransferSrcOptimal, image, vk.ImageLayoutTransferDstOptimal,
			1, []vk.ImageBlit{blit}, vk.FilterLinear)
		native.transition(v.Handle, restore)
	}

	toPresent := imageBarrier(image, colorAspect, 1, 1, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutPresentSrc)
	vk.CmdPipelineBarrier(v.Handle, transferStage, vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{toPresent})
}
