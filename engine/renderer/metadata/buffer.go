package metadata

import vk "github.com/goki/vulkan"

type BufferCreation struct {
	TypeFlags vk.BufferUsageFlags
	Usage     ResourceUsageType
	Size      uint32
	/** @brief Keep the memory mapped for the lifetime of the buffer. */
	Persistent bool
	/** @brief Place the buffer in device local memory only. */
	DeviceOnly  bool
	InitialData []byte
	Name        string
}

/**
 * @brief A GPU buffer. Dynamic buffers do not own memory: ParentBuffer points
 * at the shared dynamic buffer and GlobalOffset is their offset inside it.
 */
type Buffer struct {
	TypeFlags    vk.BufferUsageFlags
	Usage        ResourceUsageType
	Size         uint32
	GlobalOffset uint32
	Persistent   bool
	DeviceOnly   bool
	Ready        bool
	Handle       BufferHandle
	ParentBuffer BufferHandle
	Name         string
	/** @brief Host pointer of a persistently mapped buffer, nil otherwise. */
	MappedData []byte
	/** @brief The backend native buffer and allocation. */
	InternalData interface{}
}

func (b *Buffer) IsDynamicChild() bool {
	return b.ParentBuffer.IsValid()
}

/** @brief A read-only view of a buffer, returned by QueryBuffer. */
type BufferDescription struct {
	Name         string
	TypeFlags    vk.BufferUsageFlags
	Usage        ResourceUsageType
	Size         uint32
	GlobalOffset uint32
	ParentHandle BufferHandle
	NativeHandle interface{}
}
