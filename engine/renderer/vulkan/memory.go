package vulkan

import (
	"fmt"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
)

// MemoryUsage describes how the host and the device access an allocation.
type MemoryUsage int

const (
	MemoryUsageGPUOnly MemoryUsage = iota
	MemoryUsageCPUToGPU
	MemoryUsageGPUToCPU
	MemoryUsageCPUOnly
)

func (u MemoryUsage) String() string {
	switch u {
	case MemoryUsageGPUOnly:
		return "gpu_only"
	case MemoryUsageCPUToGPU:
		return "cpu_to_gpu"
	case MemoryUsageGPUToCPU:
		return "gpu_to_cpu"
	case MemoryUsageCPUOnly:
		return "cpu_only"
	}
	return "unknown"
}

// propertyFlags returns the flags a memory type must have and the ones it should have.
func (u MemoryUsage) propertyFlags() (required, preferred vk.MemoryPropertyFlags) {
	switch u {
	case MemoryUsageGPUOnly:
		return vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit), 0
	case MemoryUsageCPUToGPU:
		return vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit),
			vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit | vk.MemoryPropertyHostCoherentBit)
	case MemoryUsageGPUToCPU:
		return vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit),
			vk.MemoryPropertyFlags(vk.MemoryPropertyHostCachedBit | vk.MemoryPropertyHostCoherentBit)
	case MemoryUsageCPUOnly:
		return vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit), 0
	}
	return 0, 0
}

type AllocationCreateFlags uint32

const (
	// AllocationCreateMapped keeps the memory mapped for the lifetime of the allocation.
	AllocationCreateMapped AllocationCreateFlags = 1 << iota
	// AllocationCreateBestFit picks the matching type with the fewest unrequested properties.
	AllocationCreateBestFit
)

type AllocationCreateInfo struct {
	Usage MemoryUsage
	Flags AllocationCreateFlags
}

// Allocation is one dedicated device memory block bound to a single buffer or image.
type Allocation struct {
	Memory     vk.DeviceMemory
	Size       vk.DeviceSize
	MemoryType uint32
	Heap       uint32
	Properties vk.MemoryPropertyFlags
	// MappedData is the host view of a mapped allocation.
	MappedData []byte

	persistent bool
}

func (a *Allocation) HostVisible() bool {
	return a.Properties&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) != 0
}

func (a *Allocation) HostCoherent() bool {
	return a.Properties&vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit) != 0
}

type HeapStats struct {
	Allocations uint32
	Bytes       uint64
}

type MemoryAllocator struct {
	context *VulkanContext
	heaps   []HeapStats
}

func NewMemoryAllocator(context *VulkanContext) *MemoryAllocator {
	return &MemoryAllocator{
		context: context,
		heaps:   make([]HeapStats, context.Device.Memory.MemoryHeapCount),
	}
}

// findMemoryType returns the index of a type allowed by typeFilter with every required
// flag. Types with all the preferred flags win; bestFit then prefers the type carrying
// the fewest flags nobody asked for. It returns -1 when nothing has the required flags.
func findMemoryType(memory *vk.PhysicalDeviceMemoryProperties, typeFilter uint32, required, preferred vk.MemoryPropertyFlags, bestFit bool) int32 {
	best := int32(-1)
	bestScore := -1
	for i := uint32(0); i < memory.MemoryTypeCount; i++ {
		if typeFilter&(1<<i) == 0 {
			continue
		}
		flags := memory.MemoryTypes[i].PropertyFlags
		if flags&required != required {
			continue
		}
		score := 0
		if flags&preferred == preferred {
			score = 64
		}
		if bestFit {
			score += 32 - popCount(uint32(flags&^(required|preferred)))
		}
		if score > bestScore {
			best = int32(i)
			bestScore = score
		}
	}
	return best
}

func popCount(v uint32) int {
	count := 0
	for ; v != 0; v &= v - 1 {
		count++
	}
	return count
}

func (a *MemoryAllocator) AllocateForBuffer(buffer vk.Buffer, info AllocationCreateInfo) (*Allocation, error) {
	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(a.context.Device.LogicalDevice, buffer, &requirements)
	requirements.Deref()

	allocation, err := a.allocate(requirements, info)
	if err != nil {
		return nil, err
	}
	if res := vk.BindBufferMemory(a.context.Device.LogicalDevice, buffer, allocation.Memory, 0); res != vk.Success {
		a.Free(allocation)
		err := core.NewVulkanError("vkBindBufferMemory", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	return allocation, nil
}

func (a *MemoryAllocator) AllocateForImage(image vk.Image, info AllocationCreateInfo) (*Allocation, error) {
	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(a.context.Device.LogicalDevice, image, &requirements)
	requirements.Deref()

	allocation, err := a.allocate(requirements, info)
	if err != nil {
		return nil, err
	}
	if err := a.BindImage(image, allocation); err != nil {
		a.Free(allocation)
		return nil, err
	}
	return allocation, nil
}

// BindImage binds image over the memory of an existing allocation. Aliased textures use it
// to share the memory of their donor.
func (a *MemoryAllocator) BindImage(image vk.Image, allocation *Allocation) error {
	if res := vk.BindImageMemory(a.context.Device.LogicalDevice, image, allocation.Memory, 0); res != vk.Success {
		err := core.NewVulkanError("vkBindImageMemory", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	return nil
}

func (a *MemoryAllocator) allocate(requirements vk.MemoryRequirements, info AllocationCreateInfo) (*Allocation, error) {
	memory := &a.context.Device.Memory
	required, preferred := info.Usage.propertyFlags()
	bestFit := info.Flags&AllocationCreateBestFit != 0

	index := findMemoryType(memory, requirements.MemoryTypeBits, required, preferred, bestFit)
	if index < 0 {
		err := errors.Mark(fmt.Errorf("no memory type for usage %s (type bits %b)", info.Usage, requirements.MemoryTypeBits), core.ErrVulkan)
		core.LogError(err.Error())
		return nil, err
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(index),
	}
	var deviceMemory vk.DeviceMemory
	if res := vk.AllocateMemory(a.context.Device.LogicalDevice, &allocateInfo, a.context.Allocator, &deviceMemory); res != vk.Success {
		err := core.NewVulkanError("vkAllocateMemory", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}

	allocation := &Allocation{
		Memory:     deviceMemory,
		Size:       requirements.Size,
		MemoryType: uint32(index),
		Heap:       memory.MemoryTypes[index].HeapIndex,
		Properties: memory.MemoryTypes[index].PropertyFlags,
	}
	a.context.lockPool.SafeCall(MemoryManagement, func() error {
		a.heaps[allocation.Heap].Allocations++
		a.heaps[allocation.Heap].Bytes += uint64(allocation.Size)
		return nil
	})

	if info.Flags&AllocationCreateMapped != 0 {
		if !allocation.HostVisible() {
			core.LogWarn("mapped allocation requested on device only memory type %d", index)
			return allocation, nil
		}
		if _, err := a.Map(allocation); err != nil {
			a.Free(allocation)
			return nil, err
		}
		allocation.persistent = true
	}
	return allocation, nil
}

// Map returns the host view of the whole allocation. Persistent allocations are already mapped.
func (a *MemoryAllocator) Map(allocation *Allocation) ([]byte, error) {
	if allocation.MappedData != nil {
		return allocation.MappedData, nil
	}
	var data unsafe.Pointer
	if res := vk.MapMemory(a.context.Device.LogicalDevice, allocation.Memory, 0, allocation.Size, 0, &data); res != vk.Success {
		err := core.NewVulkanError("vkMapMemory", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	allocation.MappedData = unsafe.Slice((*byte)(data), int(allocation.Size))
	return allocation.MappedData, nil
}

func (a *MemoryAllocator) Unmap(allocation *Allocation) {
	if allocation.MappedData == nil || allocation.persistent {
		return
	}
	a.Flush(allocation)
	vk.UnmapMemory(a.context.Device.LogicalDevice, allocation.Memory)
	allocation.MappedData = nil
}

// Flush makes host writes visible on memory types without HOST_COHERENT.
func (a *MemoryAllocator) Flush(allocation *Allocation) {
	if allocation.MappedData == nil || allocation.HostCoherent() {
		return
	}
	memoryRange := vk.MappedMemoryRange{
		SType:  vk.StructureTypeMappedMemoryRange,
		Memory: allocation.Memory,
		Offset: 0,
		Size:   allocation.Size,
	}
	if res := vk.FlushMappedMemoryRanges(a.context.Device.LogicalDevice, 1, []vk.MappedMemoryRange{memoryRange}); res != vk.Success {
		core.LogWarn("vkFlushMappedMemoryRanges failed: %s", VulkanResultString(res, false))
	}
}

func (a *MemoryAllocator) Free(allocation *Allocation) {
	if allocation == nil || allocation.Memory == vk.NullDeviceMemory {
		return
	}
	if allocation.MappedData != nil {
		vk.UnmapMemory(a.context.Device.LogicalDevice, allocation.Memory)
		allocation.MappedData = nil
	}
	vk.FreeMemory(a.context.Device.LogicalDevice, allocation.Memory, a.context.Allocator)
	allocation.Memory = vk.NullDeviceMemory

	a.context.lockPool.SafeCall(MemoryManagement, func() error {
		a.heaps[allocation.Heap].Allocations--
		a.heaps[allocation.Heap].Bytes -= uint64(allocation.Size)
		return nil
	})
}

// Stats returns the live allocations and bytes per memory heap.
func (a *MemoryAllocator) Stats() []HeapStats {
	stats := make([]HeapStats, len(a.heaps))
	a.context.lockPool.SafeCall(MemoryManagement, func() error {
		copy(stats, a.heaps)
		return nil
	})
	return stats
}

func (a *MemoryAllocator) LogStats() {
	for i, heap := range a.Stats() {
		if heap.Allocations == 0 {
			continue
		}
		core.LogWarn("memory heap %d: %d allocations (%d bytes) still alive", i, heap.Allocations, heap.Bytes)
	}
}
