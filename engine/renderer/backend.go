package renderer

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// NativeCommandBuffer records commands into a backend command buffer. Buffers handed to it
// are always resolved: dynamic buffers arrive as their parent with the offset applied.
type NativeCommandBuffer interface {
	Begin() error
	// BeginSecondary begins a secondary buffer that continues dynamic rendering with output.
	BeginSecondary(output *metadata.RenderPassOutput) error
	End() error

	BeginRendering(info *metadata.RenderingInfo, secondaryContents bool)
	EndRendering()

	BindPipeline(pipeline *metadata.Pipeline)
	BindDescriptorSets(pipeline *metadata.Pipeline, firstSet uint32, sets []*metadata.DescriptorSet, dynamicOffsets []uint32)
	BindVertexBuffer(buffer *metadata.Buffer, binding uint32, offset uint64)
	BindIndexBuffer(buffer *metadata.Buffer, offset uint64, indexType vk.IndexType)
	SetViewport(x, y, width, height float32)
	SetScissor(x, y int32, width, height uint32)

	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	Dispatch(groupX, groupY, groupZ uint32)
	ExecuteCommands(secondaries []NativeCommandBuffer)

	// Queries live in the query pools of the command pool the buffer was allocated from.
	// ResetQueries also restarts the pipeline statistics query, which End closes.
	ResetQueries(first, count uint32)
	WriteTimestamp(query uint32)
}

// GPUBackend is the native side of the device. It knows nothing about pools, handles or
// frame delayed destruction: every call acts immediately on the record it is given.
type GPUBackend interface {
	Initialize(config *core.DeviceConfig) error
	Shutdown() error
	WaitIdle() error
	DeviceInfo() metadata.DeviceInfo

	CreateSwapchain() (metadata.SwapchainInfo, error)
	// ResizeSwapchain recreates surface and swapchain at the given extent.
	ResizeSwapchain(width, height uint32) (metadata.SwapchainInfo, error)
	DestroySwapchain()
	FramebufferSize() (uint32, uint32)

	// WaitForFrame blocks until the fence of frame is signaled. The fence is reset by
	// SubmitSwapchainCopy, so a skipped frame never leaves it unsignaled.
	WaitForFrame(frame uint32) error
	// AcquireNextImage returns core.ErrSwapchainOutOfDate when the swapchain must be recreated.
	AcquireNextImage(frame uint32) (uint32, error)
	Submit(frame uint32, commands []NativeCommandBuffer) error
	// SubmitSwapchainCopy records the copy of source into the acquired image on a recording
	// command buffer, ends it and submits it, signaling the fence of frame. A nil source
	// clears the image.
	SubmitSwapchainCopy(frame, imageIndex uint32, command NativeCommandBuffer, source *metadata.Texture) error
	Present(frame, imageIndex uint32) error

	AllocateCommandBuffers(poolIndex, primaries, secondaries uint32) ([]NativeCommandBuffer, []NativeCommandBuffer, error)
	ResetCommandPool(poolIndex uint32) error
	// GetTimestampResults reads count raw ticks from the timestamp pool of poolIndex.
	GetTimestampResults(poolIndex, count uint32) ([]uint64, error)
	GetPipelineStatistics(poolIndex uint32) ([]uint64, error)

	CreateSampler(sampler *metadata.Sampler) error
	DestroySampler(sampler *metadata.Sampler)

	// CreateTexture allocates the image or, when alias is not nil, binds it over alias memory.
	CreateTexture(texture *metadata.Texture, alias *metadata.Texture, data []byte) error
	DestroyTexture(texture *metadata.Texture)

	CreateShaderModule(stage vk.ShaderStageFlagBits, code []uint32, name string) (interface{}, error)
	DestroyShaderModule(module interface{})

	CreatePipeline(pipeline *metadata.Pipeline, creation *metadata.PipelineCreation, shader *metadata.ShaderState, layouts []*metadata.DescriptorSetLayout) error
	DestroyPipeline(pipeline *metadata.Pipeline)

	CreateBuffer(buffer *metadata.Buffer, data []byte) error
	DestroyBuffer(buffer *metadata.Buffer)
	MapBuffer(buffer *metadata.Buffer, offset, size uint32) ([]byte, error)
	UnmapBuffer(buffer *metadata.Buffer)

	CreateDescriptorSetLayout(layout *metadata.DescriptorSetLayout) error
	DestroyDescriptorSetLayout(layout *metadata.DescriptorSetLayout)
	CreateDescriptorSet(set *metadata.DescriptorSet, layout *metadata.DescriptorSetLayout, writes []metadata.DescriptorWrite) error
	DestroyDescriptorSet(set *metadata.DescriptorSet)
	UpdateBindlessTextures(set *metadata.DescriptorSet, writes []metadata.BindlessWrite) error
}
