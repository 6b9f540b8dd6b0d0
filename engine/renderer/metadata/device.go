package metadata

import vk "github.com/goki/vulkan"

type DeviceInfo struct {
	Name                 string
	DeviceType           vk.PhysicalDeviceType
	MeshShadersSupported bool
	/** @brief Nanoseconds per timestamp tick. */
	TimestampPeriod float32
	/** @brief Required alignment of dynamic uniform offsets. */
	MinUniformBufferOffsetAlignment uint64
}

type SwapchainInfo struct {
	Width       uint32
	Height      uint32
	ImageCount  uint32
	Format      vk.Format
	PresentMode vk.PresentMode
}

/** @brief A resolved GPU timing scope. */
type GPUTimestamp struct {
	Name      string
	Depth     uint32
	Frame     uint64
	Start     uint64
	End       uint64
	ElapsedMS float64
}
