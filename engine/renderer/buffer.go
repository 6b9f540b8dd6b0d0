package renderer

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

const dynamicBufferMask = vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit | vk.BufferUsageIndexBufferBit | vk.BufferUsageUniformBufferBit)

func (d *GPUDevice) CreateBuffer(creation metadata.BufferCreation) (metadata.BufferHandle, error) {
	index := d.buffers.Obtain()
	if index == metadata.INVALID_INDEX {
		return metadata.InvalidBuffer, errors.Wrap(core.ErrPoolExhausted, "buffer")
	}

	buffer := d.buffers.Access(index)
	*buffer = metadata.Buffer{
		TypeFlags:    creation.TypeFlags,
		Usage:        creation.Usage,
		Size:         creation.Size,
		Persistent:   creation.Persistent,
		DeviceOnly:   creation.DeviceOnly,
		Handle:       metadata.BufferHandle{Index: index},
		ParentBuffer: metadata.InvalidBuffer,
		Name:         resourceName(creation.Name, "buffer"),
	}

	// Dynamic data lives in the per frame region of the shared buffer.
	if creation.Usage == metadata.RESOURCE_USAGE_TYPE_DYNAMIC && creation.TypeFlags&dynamicBufferMask != 0 && d.dynamicBuffer.IsValid() {
		buffer.ParentBuffer = d.dynamicBuffer
		buffer.Ready = true
		return buffer.Handle, nil
	}

	buffer.Size = max(buffer.Size, 1)
	buffer.TypeFlags |= vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
	if err := d.backend.CreateBuffer(buffer, creation.InitialData); err != nil {
		core.LogError("failed to create buffer %s: %s", buffer.Name, err)
		d.buffers.Release(index)
		return metadata.InvalidBuffer, err
	}
	buffer.Ready = true
	return buffer.Handle, nil
}

func (d *GPUDevice) AccessBuffer(handle metadata.BufferHandle) *metadata.Buffer {
	return d.buffers.Access(handle.Index)
}

func (d *GPUDevice) BufferReady(handle metadata.BufferHandle) bool {
	if !d.buffers.Live(handle.Index) {
		return false
	}
	return d.buffers.Access(handle.Index).Ready
}

func (d *GPUDevice) QueryBuffer(handle metadata.BufferHandle) (metadata.BufferDescription, error) {
	if !d.buffers.Live(handle.Index) {
		return metadata.BufferDescription{}, errors.Wrapf(core.ErrInvalidHandle, "buffer %d", handle.Index)
	}
	buffer := d.buffers.Access(handle.Index)
	return metadata.BufferDescription{
		Name:         buffer.Name,
		TypeFlags:    buffer.TypeFlags,
		Usage:        buffer.Usage,
		Size:         buffer.Size,
		GlobalOffset: buffer.GlobalOffset,
		ParentHandle: buffer.ParentBuffer,
		NativeHandle: buffer.InternalData,
	}, nil
}

func (d *GPUDevice) DestroyBuffer(handle metadata.BufferHandle) {
	if !d.buffers.Live(handle.Index) {
		core.LogError("Trying to free invalid Buffer %d", handle.Index)
		return
	}
	if !d.queueDeletion(metadata.RESOURCE_DELETION_TYPE_BUFFER, handle.Index) {
		return
	}
}

func (d *GPUDevice) DestroyBufferInstant(index metadata.ResourceIndex) {
	if !d.buffers.Live(index) {
		return
	}
	buffer := d.buffers.Access(index)
	if !buffer.IsDynamicChild() {
		d.backend.DestroyBuffer(buffer)
	}
	d.buffers.Release(index)
}

// resolveBuffer returns the buffer that owns the memory of handle and the offset of
// handle inside it.
func (d *GPUDevice) resolveBuffer(handle metadata.BufferHandle) (*metadata.Buffer, uint32) {
	buffer := d.buffers.Access(handle.Index)
	if buffer == nil {
		return nil, 0
	}
	if buffer.IsDynamicChild() {
		return d.buffers.Access(buffer.ParentBuffer.Index), buffer.GlobalOffset
	}
	return buffer, 0
}
