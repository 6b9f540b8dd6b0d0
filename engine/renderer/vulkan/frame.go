package vulkan

import (
	"math"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

func (b *Backend) createSyncObjects() error {
	frames := b.context.FramesInFlight
	b.imageAvailable = make([]vk.Semaphore, frames)
	b.renderComplete = make([]vk.Semaphore, frames)
	b.swapchainUpdated = make([]vk.Semaphore, frames)
	b.inFlight = make([]*VulkanFence, frames)
	b.renderSubmitted = make([]bool, frames)

	semaphoreInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	device := b.context.Device.LogicalDevice
	for i := uint32(0); i < frames; i++ {
		for _, semaphore := range []*vk.Semaphore{&b.imageAvailable[i], &b.renderComplete[i], &b.swapchainUpdated[i]} {
			if res := vk.CreateSemaphore(device, &semaphoreInfo, b.context.Allocator, semaphore); res != vk.Success {
				err := core.NewVulkanError("vkCreateSemaphore", VulkanResultString(res, true))
				core.LogError(err.Error())
				return err
			}
		}
		// Created signaled so the first wait on every frame returns at once.
		fence, err := NewFence(b.context, true)
		if err != nil {
			return err
		}
		b.inFlight[i] = fence
	}
	return nil
}

func (b *Backend) destroySyncObjects() {
	device := b.context.Device.LogicalDevice
	for i := range b.inFlight {
		vk.DestroySemaphore(device, b.imageAvailable[i], b.context.Allocator)
		vk.DestroySemaphore(device, b.renderComplete[i], b.context.Allocator)
		vk.DestroySemaphore(device, b.swapchainUpdated[i], b.context.Allocator)
		if b.inFlight[i] != nil {
			b.inFlight[i].Destroy(b.context)
		}
	}
	b.imageAvailable, b.renderComplete, b.swapchainUpdated = nil, nil, nil
	b.inFlight = nil
	b.renderSubmitted = nil
}

func (b *Backend) WaitForFrame(frame uint32) error {
	return b.inFlight[frame].Wait(b.context, math.MaxUint64)
}

// AcquireNextImage keeps going on a suboptimal swapchain; only an out of date one is reported.
func (b *Backend) AcquireNextImage(frame uint32) (uint32, error) {
	var imageIndex uint32
	var res vk.Result
	b.context.lockPool.SafeCall(SwapchainManagement, func() error {
		res = vk.AcquireNextImage(b.context.Device.LogicalDevice, b.context.Swapchain.Handle, math.MaxUint64,
			b.imageAvailable[frame], vk.NullFence, &imageIndex)
		return nil
	})
	switch res {
	case vk.Success, vk.Suboptimal:
		return imageIndex, nil
	case vk.ErrorOutOfDate:
		return 0, errors.Wrap(core.ErrSwapchainOutOfDate, "vkAcquireNextImageKHR")
	}
	err := core.NewVulkanError("vkAcquireNextImageKHR", VulkanResultString(res, true))
	core.LogError(err.Error())
	return 0, err
}

func commandHandles(commands []renderer.NativeCommandBuffer) []vk.CommandBuffer {
	handles := make([]vk.CommandBuffer, 0, len(commands))
	for _, command := range commands {
		handles = append(handles, command.(*VulkanCommandBuffer).Handle)
	}
	return handles
}

// Submit queues the recorded frame work. It signals renderComplete, the swapchain copy waits on it.
func (b *Backend) Submit(frame uint32, commands []renderer.NativeCommandBuffer) error {
	if len(commands) == 0 {
		return nil
	}
	handles := commandHandles(commands)
	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		CommandBufferCount:   uint32(len(handles)),
		PCommandBuffers:      handles,
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{b.renderComplete[frame]},
	}
	device := b.context.Device
	if err := b.context.lockPool.SafeQueueCall(device.GraphicsQueueIndex, func() error {
		if res := vk.QueueSubmit(device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence); res != vk.Success {
			return core.NewVulkanError("vkQueueSubmit", VulkanResultString(res, true))
		}
		return nil
	}); err != nil {
		core.LogError(err.Error())
		return err
	}
	b.renderSubmitted[frame] = true
	return nil
}

func (b *Backend) SubmitSwapchainCopy(frame, imageIndex uint32, command renderer.NativeCommandBuffer, source *metadata.Texture) error {
	cmd := command.(*VulkanCommandBuffer)
	swapchain := b.context.Swapchain
	cmd.copyToSwapchain(swapchain.Images[imageIndex], swapchain.Extent, source)
	if err := cmd.End(); err != nil {
		return err
	}

	if err := b.inFlight[frame].Reset(b.context); err != nil {
		return err
	}

	waitSemaphores := []vk.Semaphore{b.imageAvailable[frame]}
	waitStages := []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageTransferBit)}
	if b.renderSubmitted[frame] {
		waitSemaphores = append(waitSemaphores, b.renderComplete[frame])
		waitStages = append(waitStages, vk.PipelineStageFlags(vk.PipelineStageTransferBit))
	}
	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(waitSemaphores)),
		PWaitSemaphores:      waitSemaphores,
		PWaitDstStageMask:    waitStages,
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cmd.Handle},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{b.swapchainUpdated[frame]},
	}
	device := b.context.Device
	if err := b.context.lockPool.SafeQueueCall(device.GraphicsQueueIndex, func() error {
		if res := vk.QueueSubmit(device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, b.inFlight[frame].Handle); res != vk.Success {
			return core.NewVulkanError("vkQueueSubmit", VulkanResultString(res, true))
		}
		return nil
	}); err != nil {
		core.LogError(err.Error())
		return err
	}
	b.renderSubmitted[frame] = false
	return nil
}

// Present reports a suboptimal swapchain as out of date too, the caller then resizes.
func (b *Backend) Present(frame, imageIndex uint32) error {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{b.swapchainUpdated[frame]},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{b.context.Swapchain.Handle},
		PImageIndices:      []uint32{imageIndex},
	}
	device := b.context.Device
	var res vk.Result
	b.context.lockPool.SafeQueueCall(device.GraphicsQueueIndex, func() error {
		res = vk.QueuePresent(device.GraphicsQueue, &presentInfo)
		return nil
	})
	switch res {
	case vk.Success:
		return nil
	case vk.ErrorOutOfDate, vk.Suboptimal:
		return errors.Wrap(core.ErrSwapchainOutOfDate, "vkQueuePresentKHR")
	}
	err := core.NewVulkanError("vkQueuePresentKHR", VulkanResultString(res, true))
	core.LogError(err.Error())
	return err
}
