package renderer

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/math"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// MapBuffer returns writable memory for a buffer. Dynamic buffers get a fresh slice of the
// current frame region each call and remember where it starts in GlobalOffset. A size of
// zero maps the whole buffer.
func (d *GPUDevice) MapBuffer(handle metadata.BufferHandle, offset, size uint32) ([]byte, error) {
	if !d.buffers.Live(handle.Index) {
		core.LogError("Trying to map invalid Buffer %d", handle.Index)
		return nil, errors.Wrapf(core.ErrInvalidHandle, "buffer %d", handle.Index)
	}
	buffer := d.buffers.Access(handle.Index)
	if size == 0 {
		size = buffer.Size
	}

	if buffer.IsDynamicChild() {
		start, data, err := d.DynamicAllocate(size)
		if err != nil {
			return nil, errors.Wrapf(err, "mapping %s", buffer.Name)
		}
		buffer.GlobalOffset = start
		return data, nil
	}

	if buffer.MappedData != nil {
		if offset+size > uint32(len(buffer.MappedData)) {
			return nil, errors.Newf("mapping %d bytes at %d of %s overflows its %d bytes", size, offset, buffer.Name, len(buffer.MappedData))
		}
		return buffer.MappedData[offset : offset+size], nil
	}
	return d.backend.MapBuffer(buffer, offset, size)
}

func (d *GPUDevice) UnmapBuffer(handle metadata.BufferHandle) {
	if !d.buffers.Live(handle.Index) {
		core.LogError("Trying to unmap invalid Buffer %d", handle.Index)
		return
	}
	buffer := d.buffers.Access(handle.Index)
	if buffer.IsDynamicChild() || buffer.Persistent {
		return
	}
	d.backend.UnmapBuffer(buffer)
}

// DynamicAllocate carves size bytes out of the current frame region of the dynamic buffer.
// The cursor advances by the aligned size. Requests that cross the end of the region fail
// and leave the cursor alone.
func (d *GPUDevice) DynamicAllocate(size uint32) (uint32, []byte, error) {
	regionEnd := d.dynamicPerFrameSize * (d.currentFrame + 1)
	start := d.dynamicAllocatedSize
	if uint64(start)+uint64(size) > uint64(regionEnd) {
		core.LogError("dynamic buffer overrun: %d bytes at offset %d, frame region ends at %d", size, start, regionEnd)
		return 0, nil, errors.Wrapf(core.ErrDynamicBufferOverrun, "%d bytes at offset %d", size, start)
	}
	d.dynamicAllocatedSize += math.AlignUp(size, d.config.UBOAlignment)
	return start, d.dynamicMapped[start : start+size], nil
}

// beginDynamicFrame moves the cursor to the start of the current frame region and records
// how much the region it leaves was used.
func (d *GPUDevice) beginDynamicFrame() {
	used := d.dynamicAllocatedSize - d.dynamicFrameStart
	d.dynamicMaxPerFrameSize = max(d.dynamicMaxPerFrameSize, used)
	d.dynamicFrameStart = d.dynamicPerFrameSize * d.currentFrame
	d.dynamicAllocatedSize = d.dynamicFrameStart
}
