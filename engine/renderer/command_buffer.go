package renderer

import (
	"sort"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

type CommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY CommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
)

// CommandBuffer records into a native command buffer using device handles.
type CommandBuffer struct {
	device  *GPUDevice
	native  NativeCommandBuffer
	queries *timestampQueries

	State       CommandBufferState
	PoolIndex   uint32
	ThreadIndex uint32
	Secondary   bool

	currentRenderPass  metadata.RenderPassHandle
	currentFramebuffer metadata.FramebufferHandle
	currentPipeline    metadata.PipelineHandle

	clearColor   [4]float32
	clearDepth   float32
	clearStencil uint32
}

func newCommandBuffer(device *GPUDevice, native NativeCommandBuffer, queries *timestampQueries, pool, thread uint32, secondary bool) *CommandBuffer {
	cb := &CommandBuffer{
		device:      device,
		native:      native,
		queries:     queries,
		PoolIndex:   pool,
		ThreadIndex: thread,
		Secondary:   secondary,
	}
	cb.Reset()
	return cb
}

func (cb *CommandBuffer) Native() NativeCommandBuffer {
	return cb.native
}

// Reset forgets the recording state. The native buffer is reset with its pool.
func (cb *CommandBuffer) Reset() {
	cb.State = COMMAND_BUFFER_STATE_READY
	cb.currentRenderPass = metadata.InvalidRenderPass
	cb.currentFramebuffer = metadata.InvalidFramebuffer
	cb.currentPipeline = metadata.InvalidPipeline
	cb.clearColor = [4]float32{0, 0, 0, 1}
	cb.clearDepth = 1
	cb.clearStencil = 0
}

func (cb *CommandBuffer) Begin() error {
	if cb.State != COMMAND_BUFFER_STATE_READY {
		return nil
	}
	if err := cb.native.Begin(); err != nil {
		core.LogError("failed to begin command buffer: %s", err)
		return err
	}
	cb.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

// BeginSecondary starts a secondary buffer that draws inside renderPass.
func (cb *CommandBuffer) BeginSecondary(renderPass metadata.RenderPassHandle) error {
	if !cb.Secondary {
		return errors.New("BeginSecondary called on a primary command buffer")
	}
	pass := cb.device.renderPasses.Access(renderPass.Index)
	if pass == nil {
		return errors.Wrapf(core.ErrInvalidHandle, "render pass %d", renderPass.Index)
	}
	if err := cb.native.BeginSecondary(&pass.Output); err != nil {
		core.LogError("failed to begin secondary command buffer: %s", err)
		return err
	}
	cb.State = COMMAND_BUFFER_STATE_RECORDING
	cb.currentRenderPass = renderPass
	return nil
}

func (cb *CommandBuffer) End() error {
	if cb.State == COMMAND_BUFFER_STATE_READY || cb.State == COMMAND_BUFFER_STATE_RECORDING_ENDED || cb.State == COMMAND_BUFFER_STATE_SUBMITTED {
		return nil
	}
	cb.EndCurrentRenderPass()
	if err := cb.native.End(); err != nil {
		core.LogError("failed to end command buffer: %s", err)
		return err
	}
	cb.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (cb *CommandBuffer) SetClearColor(r, g, b, a float32) {
	cb.clearColor = [4]float32{r, g, b, a}
}

func (cb *CommandBuffer) SetClearDepthStencil(depth float32, stencil uint32) {
	cb.clearDepth = depth
	cb.clearStencil = stencil
}

// BeginRendering starts dynamic rendering into framebuffer. Beginning the pass that is
// already active does nothing, any other active pass is ended first.
func (cb *CommandBuffer) BeginRendering(renderPass metadata.RenderPassHandle, framebuffer metadata.FramebufferHandle, useSecondaries bool) error {
	if cb.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		if cb.currentRenderPass == renderPass && cb.currentFramebuffer == framebuffer {
			return nil
		}
		cb.EndCurrentRenderPass()
	}
	pass := cb.device.renderPasses.Access(renderPass.Index)
	fb := cb.device.framebuffers.Access(framebuffer.Index)
	if pass == nil || fb == nil {
		core.LogError("BeginRendering with invalid render pass %d or framebuffer %d", renderPass.Index, framebuffer.Index)
		return errors.Wrap(core.ErrInvalidHandle, "begin rendering")
	}

	info := cb.device.renderingInfo(pass, fb)
	info.ClearColor = cb.clearColor
	info.ClearDepth = cb.clearDepth
	info.ClearStencil = cb.clearStencil
	cb.native.BeginRendering(info, useSecondaries)

	cb.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
	cb.currentRenderPass = renderPass
	cb.currentFramebuffer = framebuffer
	return nil
}

func (cb *CommandBuffer) EndCurrentRenderPass() {
	if cb.State != COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		return
	}
	cb.native.EndRendering()
	cb.State = COMMAND_BUFFER_STATE_RECORDING
	cb.currentRenderPass = metadata.InvalidRenderPass
	cb.currentFramebuffer = metadata.InvalidFramebuffer
}

// BindPipeline also binds the bindless set at set 0.
func (cb *CommandBuffer) BindPipeline(handle metadata.PipelineHandle) {
	pipeline := cb.device.pipelines.Access(handle.Index)
	if pipeline == nil {
		core.LogError("BindPipeline with invalid pipeline %d", handle.Index)
		return
	}
	cb.native.BindPipeline(pipeline)
	cb.currentPipeline = handle

	if bindless := cb.device.descriptorSets.Access(cb.device.bindlessSet.Index); bindless != nil {
		cb.native.BindDescriptorSets(pipeline, metadata.BINDLESS_DESCRIPTOR_SET_INDEX, []*metadata.DescriptorSet{bindless}, nil)
	}
}

// BindDescriptorSets binds sets starting at firstSet on the current pipeline. Dynamic
// uniform bindings use the offset of the buffer inside the dynamic buffer.
func (cb *CommandBuffer) BindDescriptorSets(handles []metadata.DescriptorSetHandle, firstSet uint32) {
	pipeline := cb.device.pipelines.Access(cb.currentPipeline.Index)
	if pipeline == nil {
		core.LogError("BindDescriptorSets without a bound pipeline")
		return
	}

	sets := make([]*metadata.DescriptorSet, 0, len(handles))
	var offsets []uint32
	for _, handle := range handles {
		set := cb.device.descriptorSets.Access(handle.Index)
		if set == nil {
			core.LogError("BindDescriptorSets with invalid set %d", handle.Index)
			return
		}
		sets = append(sets, set)
		offsets = append(offsets, cb.device.dynamicOffsets(set)...)
	}
	cb.native.BindDescriptorSets(pipeline, firstSet, sets, offsets)
}

type bindingOffset struct {
	binding uint16
	offset  uint32
}

// dynamicOffsets lists the offset of every dynamic uniform binding of set in binding order.
func (d *GPUDevice) dynamicOffsets(set *metadata.DescriptorSet) []uint32 {
	layout := d.descriptorSetLayouts.Access(set.Layout.Index)
	if layout == nil {
		return nil
	}
	var entries []bindingOffset
	for i, resource := range set.Resources {
		for _, binding := range layout.Bindings {
			if binding.Start != set.Bindings[i] || binding.Type != vk.DescriptorTypeUniformBufferDynamic {
				continue
			}
			offset := uint32(0)
			if buffer := d.buffers.Access(resource); buffer != nil && buffer.IsDynamicChild() {
				offset = buffer.GlobalOffset
			}
			entries = append(entries, bindingOffset{binding: binding.Start, offset: offset})
		}
	}
	sort.Slice(entries, func(a, b int) bool { return entries[a].binding < entries[b].binding })
	offsets := make([]uint32, len(entries))
	for i, e := range entries {
		offsets[i] = e.offset
	}
	return offsets
}

func (cb *CommandBuffer) BindVertexBuffer(handle metadata.BufferHandle, binding uint32, offset uint32) {
	buffer, base := cb.device.resolveBuffer(handle)
	if buffer == nil {
		core.LogError("BindVertexBuffer with invalid buffer %d", handle.Index)
		return
	}
	cb.native.BindVertexBuffer(buffer, binding, uint64(base+offset))
}

func (cb *CommandBuffer) BindIndexBuffer(handle metadata.BufferHandle, offset uint32, indexType vk.IndexType) {
	buffer, base := cb.device.resolveBuffer(handle)
	if buffer == nil {
		core.LogError("BindIndexBuffer with invalid buffer %d", handle.Index)
		return
	}
	cb.native.BindIndexBuffer(buffer, uint64(base+offset), indexType)
}

// A zero size viewport or scissor covers the whole swapchain.
func (cb *CommandBuffer) SetViewport(x, y, width, height float32) {
	if width == 0 || height == 0 {
		width = float32(cb.device.swapchain.Width)
		height = float32(cb.device.swapchain.Height)
		x, y = 0, 0
	}
	cb.native.SetViewport(x, y, width, height)
}

func (cb *CommandBuffer) SetScissor(x, y int32, width, height uint32) {
	if width == 0 || height == 0 {
		x, y = 0, 0
		width, height = cb.device.swapchain.Width, cb.device.swapchain.Height
	}
	cb.native.SetScissor(x, y, width, height)
}

func (cb *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	cb.native.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

func (cb *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	cb.native.DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (cb *CommandBuffer) Dispatch(groupX, groupY, groupZ uint32) {
	cb.native.Dispatch(groupX, groupY, groupZ)
}

// ExecuteSecondaries ends the given secondaries and runs them inside the current pass.
func (cb *CommandBuffer) ExecuteSecondaries(secondaries []*CommandBuffer) error {
	natives := make([]NativeCommandBuffer, 0, len(secondaries))
	for _, secondary := range secondaries {
		if err := secondary.End(); err != nil {
			return err
		}
		natives = append(natives, secondary.native)
	}
	if len(natives) > 0 {
		cb.native.ExecuteCommands(natives)
	}
	return nil
}

// PushTimestamp opens a named GPU timing scope, PopTimestamp closes the innermost one.
func (cb *CommandBuffer) PushTimestamp(name string) {
	if query, ok := cb.queries.push(name); ok {
		cb.native.WriteTimestamp(query)
	}
}

func (cb *CommandBuffer) PopTimestamp() {
	if query, ok := cb.queries.pop(); ok {
		cb.native.WriteTimestamp(query)
	}
}
