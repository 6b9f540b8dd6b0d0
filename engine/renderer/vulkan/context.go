package vulkan

import vk "github.com/goki/vulkan"

type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	debugMessenger vk.DebugReportCallback
	// Object names are only attached when the debug utils extension is loaded.
	debugUtils bool

	Device    *VulkanDevice
	Swapchain *VulkanSwapchain
	Memory    *MemoryAllocator

	FramesInFlight uint32

	lockPool *VulkanLockPool
}
