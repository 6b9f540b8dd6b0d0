package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// Window is the platform side the backend needs: the loader entry point, the surface and
// the drawable size.
type Window interface {
	InstanceProcAddress() unsafe.Pointer
	RequiredInstanceExtensions() []string
	CreateSurface(instance vk.Instance) (vk.Surface, error)
	FramebufferSize() (uint32, uint32)
}

// Backend implements renderer.GPUBackend on Vulkan 1.3 with dynamic rendering.
type Backend struct {
	window  Window
	config  *core.DeviceConfig
	context *VulkanContext
	info    metadata.DeviceInfo

	graphicsUploadPool vk.CommandPool
	transferUploadPool vk.CommandPool
	// One pool per (frame, thread), indexed frame*NumThreads + thread.
	commandPools []vk.CommandPool
	queries      []queryPools

	descriptorPool vk.DescriptorPool
	bindlessPool   vk.DescriptorPool

	imageAvailable   []vk.Semaphore
	renderComplete   []vk.Semaphore
	swapchainUpdated []vk.Semaphore
	inFlight         []*VulkanFence
	renderSubmitted  []bool
}

// Swapped in tests, which have no instance to destroy surfaces on.
var vkDestroySurface = vk.DestroySurface

func New(window Window) *Backend {
	return &Backend{window: window}
}

func (b *Backend) Initialize(config *core.DeviceConfig) error {
	b.config = config

	procAddr := b.window.InstanceProcAddress()
	if procAddr == nil {
		err := errors.New("GetInstanceProcAddress is nil")
		core.LogError(err.Error())
		return err
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return errors.Mark(errors.Wrap(err, "vk.Init"), core.ErrVulkan)
	}

	b.context = &VulkanContext{
		lockPool:       NewVulkanLockPool(),
		FramesInFlight: config.MaxFramesInFlight,
	}
	if err := createInstance(b.context, b.window, config); err != nil {
		return err
	}

	core.LogDebug("Creating Vulkan surface...")
	surface, err := b.window.CreateSurface(b.context.Instance)
	if err != nil {
		core.LogError("Failed to create platform surface: %s", err)
		return err
	}
	b.context.Surface = surface

	if err := selectPhysicalDevice(b.context); err != nil {
		return err
	}
	if err := createLogicalDevice(b.context); err != nil {
		return err
	}
	b.context.Memory = NewMemoryAllocator(b.context)

	if b.graphicsUploadPool, err = b.createCommandPool(b.context.Device.GraphicsQueueIndex, vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit)); err != nil {
		return err
	}
	if b.transferUploadPool, err = b.createCommandPool(b.context.Device.TransferQueueIndex, vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit)); err != nil {
		return err
	}

	poolCount := config.NumThreads * config.MaxFramesInFlight
	b.commandPools = make([]vk.CommandPool, poolCount)
	for i := range b.commandPools {
		if b.commandPools[i], err = b.createCommandPool(b.context.Device.GraphicsQueueIndex, 0); err != nil {
			return err
		}
	}
	if err := b.createQueryPools(poolCount); err != nil {
		return err
	}
	if err := b.createSyncObjects(); err != nil {
		return err
	}
	if err := b.createDescriptorPools(); err != nil {
		return err
	}

	device := b.context.Device
	b.info = metadata.DeviceInfo{
		Name:                            device.Name(),
		DeviceType:                      device.Properties.DeviceType,
		MeshShadersSupported:            device.MeshShaders,
		TimestampPeriod:                 device.Properties.Limits.TimestampPeriod,
		MinUniformBufferOffsetAlignment: uint64(device.Properties.Limits.MinUniformBufferOffsetAlignment),
	}

	core.LogInfo("Vulkan renderer initialized successfully.")
	return nil
}

func (b *Backend) Shutdown() error {
	if b.context == nil || b.context.Device == nil {
		return nil
	}
	device := b.context.Device.LogicalDevice
	vk.DeviceWaitIdle(device)

	// Destroy in the opposite order of creation.
	b.destroyDescriptorPools()
	b.destroySyncObjects()
	b.destroyQueryPools()

	core.LogDebug("Destroying command pools...")
	for i := range b.commandPools {
		vk.DestroyCommandPool(device, b.commandPools[i], b.context.Allocator)
	}
	b.commandPools = nil
	vk.DestroyCommandPool(device, b.transferUploadPool, b.context.Allocator)
	vk.DestroyCommandPool(device, b.graphicsUploadPool, b.context.Allocator)

	b.context.Memory.LogStats()

	core.LogDebug("Destroying Vulkan device...")
	destroyLogicalDevice(b.context)

	core.LogDebug("Destroying Vulkan surface...")
	b.destroySurface()

	if b.context.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(b.context.Instance, b.context.debugMessenger, b.context.Allocator)
		b.context.debugMessenger = vk.NullDebugReportCallback
	}

	core.LogDebug("Destroying Vulkan instance...")
	vk.DestroyInstance(b.context.Instance, b.context.Allocator)
	b.context = nil
	return nil
}

func (b *Backend) WaitIdle() error {
	if res := vk.DeviceWaitIdle(b.context.Device.LogicalDevice); res != vk.Success {
		err := core.NewVulkanError("vkDeviceWaitIdle", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	return nil
}

func (b *Backend) DeviceInfo() metadata.DeviceInfo {
	return b.info
}

// MemoryStats exposes the allocator bridge counters per memory heap.
func (b *Backend) MemoryStats() []HeapStats {
	if b.context == nil || b.context.Memory == nil {
		return nil
	}
	return b.context.Memory.Stats()
}

func (b *Backend) FramebufferSize() (uint32, uint32) {
	return b.window.FramebufferSize()
}

func (b *Backend) CreateSwapchain() (metadata.SwapchainInfo, error) {
	width, height := b.window.FramebufferSize()
	swapchain, err := createSwapchain(b.context, width, height, b.config.VSync)
	if err != nil {
		return metadata.SwapchainInfo{}, err
	}
	b.context.Swapchain = swapchain
	if err := swapchain.transitionToPresent(b); err != nil {
		return metadata.SwapchainInfo{}, err
	}
	return swapchain.Info(), nil
}

// ResizeSwapchain tears down swapchain and surface and builds both again at width x height.
// A zero extent keeps the current swapchain.
func (b *Backend) ResizeSwapchain(width, height uint32) (metadata.SwapchainInfo, error) {
	if width == 0 || height == 0 {
		if b.context.Swapchain == nil {
			return metadata.SwapchainInfo{}, nil
		}
		return b.context.Swapchain.Info(), nil
	}
	if err := b.WaitIdle(); err != nil {
		return metadata.SwapchainInfo{}, err
	}

	b.DestroySwapchain()
	if err := b.recreateSurface(); err != nil {
		return metadata.SwapchainInfo{}, err
	}

	swapchain, err := createSwapchain(b.context, width, height, b.config.VSync)
	if err != nil {
		return metadata.SwapchainInfo{}, err
	}
	b.context.Swapchain = swapchain
	if err := swapchain.transitionToPresent(b); err != nil {
		return metadata.SwapchainInfo{}, err
	}
	return swapchain.Info(), nil
}

func (b *Backend) DestroySwapchain() {
	if b.context.Swapchain == nil {
		return
	}
	b.context.Swapchain.destroy(b.context)
	b.context.Swapchain = nil
}

func (b *Backend) createCommandPool(queueFamily uint32, flags vk.CommandPoolCreateFlags) (vk.CommandPool, error) {
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: queueFamily,
		Flags:            flags,
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(b.context.Device.LogicalDevice, &poolCreateInfo, b.context.Allocator, &pool); res != vk.Success {
		err := core.NewVulkanError("vkCreateCommandPool", VulkanResultString(res, true))
		core.LogError(err.Error())
		return vk.NullCommandPool, err
	}
	return pool, nil
}

// immediateSubmit records fn on a one-shot buffer of the graphics queue and waits for it.
func (b *Backend) immediateSubmit(fn func(cmd vk.CommandBuffer)) error {
	device := b.context.Device
	return b.submitOneShot(b.graphicsUploadPool, device.GraphicsQueue, device.GraphicsQueueIndex, fn)
}

// immediateTransfer is immediateSubmit on the transfer queue. Only buffer copies go there.
func (b *Backend) immediateTransfer(fn func(cmd vk.CommandBuffer)) error {
	device := b.context.Device
	return b.submitOneShot(b.transferUploadPool, device.TransferQueue, device.TransferQueueIndex, fn)
}

func (b *Backend) submitOneShot(pool vk.CommandPool, queue vk.Queue, family uint32, fn func(cmd vk.CommandBuffer)) error {
	logical := b.context.Device.LogicalDevice
	return b.context.lockPool.SafeCall(CommandPoolManagement, func() error {
		allocateInfo := vk.CommandBufferAllocateInfo{
			SType:              vk.StructureTypeCommandBufferAllocateInfo,
			CommandPool:        pool,
			Level:              vk.CommandBufferLevelPrimary,
			CommandBufferCount: 1,
		}
		handles := make([]vk.CommandBuffer, 1)
		if res := vk.AllocateCommandBuffers(logical, &allocateInfo, handles); res != vk.Success {
			err := core.NewVulkanError("vkAllocateCommandBuffers", VulkanResultString(res, true))
			core.LogError(err.Error())
			return err
		}
		cmd := handles[0]
		defer vk.FreeCommandBuffers(logical, pool, 1, handles)

		beginInfo := vk.CommandBufferBeginInfo{
			SType: vk.StructureTypeCommandBufferBeginInfo,
			Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
		}
		if res := vk.BeginCommandBuffer(cmd, &beginInfo); res != vk.Success {
			err := core.NewVulkanError("vkBeginCommandBuffer", VulkanResultString(res, true))
			core.LogError(err.Error())
			return err
		}
		fn(cmd)
		if res := vk.EndCommandBuffer(cmd); res != vk.Success {
			err := core.NewVulkanError("vkEndCommandBuffer", VulkanResultString(res, true))
			core.LogError(err.Error())
			return err
		}

		submitInfo := vk.SubmitInfo{
			SType:              vk.StructureTypeSubmitInfo,
			CommandBufferCount: 1,
			PCommandBuffers:    handles,
		}
		return b.context.lockPool.SafeQueueCall(family, func() error {
			if res := vk.QueueSubmit(queue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence); res != vk.Success {
				err := core.NewVulkanError("vkQueueSubmit", VulkanResultString(res, true))
				core.LogError(err.Error())
				return err
			}
			if res := vk.QueueWaitIdle(queue); res != vk.Success {
				err := core.NewVulkanError("vkQueueWaitIdle", VulkanResultString(res, true))
				core.LogError(err.Error())
				return err
			}
			return nil
		})
	})
}

func (b *Backend) destroySurface() {
	if b.context.Surface == vk.NullSurface {
		return
	}
	vkDestroySurface(b.context.Instance, b.context.Surface, b.context.Allocator)
	b.context.Surface = vk.NullSurface
}

// recreateSurface leaves no surface behind when the window fails to create a new one.
func (b *Backend) recreateSurface() error {
	b.destroySurface()
	surface, err := b.window.CreateSurface(b.context.Instance)
	if err != nil {
		core.LogError("Failed to recreate platform surface: %s", err)
		return err
	}
	b.context.Surface = surface
	return nil
}
