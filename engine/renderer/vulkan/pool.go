package vulkan

import "sync"

type LockGroup string

const (
	SamplerManagement       LockGroup = "sampler_management"
	CommandBufferManagement LockGroup = "command_buffer_management"
	CommandPoolManagement   LockGroup = "command_pool_management"
	DescriptorManagement    LockGroup = "descriptor_management"
	BufferManagement        LockGroup = "buffer_management"
	ImageManagement         LockGroup = "image_management"
	PipelineManagement      LockGroup = "pipeline_management"
	MemoryManagement        LockGroup = "memory_management"
	ShaderManagement        LockGroup = "shader_management"
	QueryManagement         LockGroup = "query_management"
	SwapchainManagement     LockGroup = "swapchain_management"
)

// VulkanLockPool hands out one mutex per group of Vulkan objects that require external
// synchronization, plus one per queue family.
type VulkanLockPool struct {
	locks map[LockGroup]*sync.Mutex
	mu    sync.Mutex // Protects access to the locks maps

	queueMutexes map[uint32]*sync.Mutex // Queue family index as key
}

func NewVulkanLockPool() *VulkanLockPool {
	return &VulkanLockPool{
		locks:        make(map[LockGroup]*sync.Mutex),
		queueMutexes: make(map[uint32]*sync.Mutex),
	}
}

func (vs *VulkanLockPool) lock(group LockGroup) *sync.Mutex {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if _, exists := vs.locks[group]; !exists {
		vs.locks[group] = &sync.Mutex{}
	}
	return vs.locks[group]
}

func (vs *VulkanLockPool) SafeCall(group LockGroup, fn func() error) error {
	l := vs.lock(group)
	l.Lock()
	defer l.Unlock()

	return fn()
}

func (vs *VulkanLockPool) SetQueueFamily(index uint32) {
	vs.queueLock(index)
}

func (vs *VulkanLockPool) queueLock(index uint32) *sync.Mutex {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if _, exists := vs.queueMutexes[index]; !exists {
		vs.queueMutexes[index] = &sync.Mutex{}
	}
	return vs.queueMutexes[index]
}

// SafeQueueCall serializes fn with every other submission to the queue family.
func (vs *VulkanLockPool) SafeQueueCall(queueFamilyIndex uint32, fn func() error) error {
	l := vs.queueLock(queueFamilyIndex)
	l.Lock()
	defer l.Unlock()

	return fn()
}
