package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

type VulkanBuffer struct {
	Handle     vk.Buffer
	Allocation *Allocation
	Size       vk.DeviceSize
}

func (b *Backend) newNativeBuffer(size vk.DeviceSize, usage vk.BufferUsageFlags, info AllocationCreateInfo) (*VulkanBuffer, error) {
	bufferCreateInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	// Uploads may run on the dedicated transfer queue, so both families share the buffer.
	device := b.context.Device
	if device.GraphicsQueueIndex != device.TransferQueueIndex {
		bufferCreateInfo.SharingMode = vk.SharingModeConcurrent
		bufferCreateInfo.QueueFamilyIndexCount = 2
		bufferCreateInfo.PQueueFamilyIndices = []uint32{device.GraphicsQueueIndex, device.TransferQueueIndex}
	}

	native := &VulkanBuffer{Size: size}
	if err := b.context.lockPool.SafeCall(BufferManagement, func() error {
		if res := vk.CreateBuffer(device.LogicalDevice, &bufferCreateInfo, b.context.Allocator, &native.Handle); res != vk.Success {
			return core.NewVulkanError("vkCreateBuffer", VulkanResultString(res, true))
		}
		return nil
	}); err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	allocation, err := b.context.Memory.AllocateForBuffer(native.Handle, info)
	if err != nil {
		vk.DestroyBuffer(device.LogicalDevice, native.Handle, b.context.Allocator)
		return nil, err
	}
	native.Allocation = allocation
	return native, nil
}

func (b *Backend) createStagingBuffer(data []byte) (*VulkanBuffer, error) {
	staging, err := b.newNativeBuffer(vk.DeviceSize(len(data)), vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		AllocationCreateInfo{Usage: MemoryUsageCPUOnly, Flags: AllocationCreateMapped})
	if err != nil {
		return nil, err
	}
	copy(staging.Allocation.MappedData, data)
	b.context.Memory.Flush(staging.Allocation)
	return staging, nil
}

func (b *Backend) destroyNativeBuffer(native *VulkanBuffer) {
	if native.Handle != vk.NullBuffer {
		b.context.lockPool.SafeCall(BufferManagement, func() error {
			vk.DestroyBuffer(b.context.Device.LogicalDevice, native.Handle, b.context.Allocator)
			return nil
		})
		native.Handle = vk.NullBuffer
	}
	b.context.Memory.Free(native.Allocation)
	native.Allocation = nil
}

// CreateBuffer places device only buffers in device local memory and fills them through a
// staging copy. The rest is host visible and written in place.
func (b *Backend) CreateBuffer(buffer *metadata.Buffer, data []byte) error {
	info := AllocationCreateInfo{Usage: MemoryUsageGPUToCPU}
	if buffer.DeviceOnly {
		info.Usage = MemoryUsageGPUOnly
	}
	if buffer.Persistent {
		info.Flags |= AllocationCreateMapped
	}

	native, err := b.newNativeBuffer(vk.DeviceSize(buffer.Size), buffer.TypeFlags, info)
	if err != nil {
		return err
	}
	setObjectName(b.context, vk.ObjectTypeBuffer, unsafe.Pointer(native.Handle), buffer.Name)
	buffer.InternalData = native
	if buffer.Persistent {
		buffer.MappedData = native.Allocation.MappedData
	}

	if len(data) == 0 {
		return nil
	}
	if len(data) > int(buffer.Size) {
		b.DestroyBuffer(buffer)
		return errors.Newf("initial data of %s is %d bytes, the buffer holds %d", buffer.Name, len(data), buffer.Size)
	}

	if native.Allocation.HostVisible() {
		mapped, err := b.context.Memory.Map(native.Allocation)
		if err != nil {
			b.DestroyBuffer(buffer)
			return err
		}
		copy(mapped, data)
		b.context.Memory.Flush(native.Allocation)
		b.context.Memory.Unmap(native.Allocation)
		return nil
	}

	staging, err := b.createStagingBuffer(data)
	if err != nil {
		b.DestroyBuffer(buffer)
		return err
	}
	defer b.destroyNativeBuffer(staging)
	return b.immediateTransfer(func(cmd vk.CommandBuffer) {
		region := vk.BufferCopy{Size: vk.DeviceSize(len(data))}
		vk.CmdCopyBuffer(cmd, staging.Handle, native.Handle, 1, []vk.BufferCopy{region})
	})
}

func (b *Backend) DestroyBuffer(buffer *metadata.Buffer) {
	native, ok := buffer.InternalData.(*VulkanBuffer)
	if !ok {
		return
	}
	b.destroyNativeBuffer(native)
	buffer.InternalData = nil
	buffer.MappedData = nil
}

func (b *Backend) MapBuffer(buffer *metadata.Buffer, offset, size uint32) ([]byte, error) {
	native, ok := buffer.InternalData.(*VulkanBuffer)
	if !ok {
		return nil, errors.Wrapf(core.ErrInvalidHandle, "buffer %s has no native buffer", buffer.Name)
	}
	if !native.Allocation.HostVisible() {
		return nil, errors.Wrapf(core.ErrUnsupported, "buffer %s is device only", buffer.Name)
	}
	mapped, err := b.context.Memory.Map(native.Allocation)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		size = buffer.Size
	}
	if uint64(offset)+uint64(size) > uint64(buffer.Size) {
		return nil, errors.Newf("mapping %d bytes at %d of %s overflows its %d bytes", size, offset, buffer.Name, buffer.Size)
	}
	return mapped[offset : offset+size], nil
}

func (b *Backend) UnmapBuffer(buffer *metadata.Buffer) {
	native, ok := buffer.InternalData.(*VulkanBuffer)
	if !ok {
		return
	}
	b.context.Memory.Unmap(native.Allocation)
}
