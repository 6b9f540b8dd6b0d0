package vulkan

import (
	"runtime"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
)

const (
	meshShaderExtensionName          = "VK_EXT_mesh_shader"
	fragmentShadingRateExtensionName = "VK_KHR_fragment_shading_rate"
	portabilitySubsetExtensionName   = "VK_KHR_portability_subset"
)

type VulkanDevice struct {
	PhysicalDevice   vk.PhysicalDevice
	LogicalDevice    vk.Device
	SwapchainSupport VulkanSwapchainSupportInfo

	// The main family handles graphics, compute and present.
	GraphicsQueueIndex uint32
	// Equal to GraphicsQueueIndex when the device has no transfer only family.
	TransferQueueIndex uint32

	GraphicsQueue vk.Queue
	TransferQueue vk.Queue

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	DepthFormat vk.Format

	Extensions          []string
	MeshShaders         bool
	FragmentShadingRate bool
	PipelineStatistics  bool
}

func (d *VulkanDevice) Name() string {
	return cString(d.Properties.DeviceName[:])
}

type VulkanPhysicalDeviceRequirements struct {
	DeviceExtensionNames []string
	SamplerAnisotropy    bool
	DiscreteGPU          bool
}

type VulkanPhysicalDeviceQueueFamilyInfo struct {
	GraphicsFamilyIndex uint32
	TransferFamilyIndex uint32
	DedicatedTransfer   bool
}

// selectQueueFamilies picks the first family with graphics, compute and present support
// and, if one exists, a family that only does transfers.
func selectQueueFamilies(families []vk.QueueFamilyProperties, canPresent []bool) (VulkanPhysicalDeviceQueueFamilyInfo, bool) {
	info := VulkanPhysicalDeviceQueueFamilyInfo{}
	found := false
	for i, family := range families {
		flags := vk.QueueFlagBits(family.QueueFlags)
		if !found && flags&vk.QueueGraphicsBit != 0 && flags&vk.QueueComputeBit != 0 && canPresent[i] {
			info.GraphicsFamilyIndex = uint32(i)
			found = true
		}
		if !info.DedicatedTransfer && flags&vk.QueueTransferBit != 0 && flags&(vk.QueueGraphicsBit|vk.QueueComputeBit) == 0 {
			info.TransferFamilyIndex = uint32(i)
			info.DedicatedTransfer = true
		}
	}
	if !info.DedicatedTransfer {
		info.TransferFamilyIndex = info.GraphicsFamilyIndex
	}
	return info, found
}

func enumerateDeviceExtensions(device vk.PhysicalDevice) ([]string, error) {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, nil); res != vk.Success {
		return nil, core.NewVulkanError("vkEnumerateDeviceExtensionProperties", VulkanResultString(res, true))
	}
	properties := make([]vk.ExtensionProperties, count)
	if count > 0 {
		if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, properties); res != vk.Success {
			return nil, core.NewVulkanError("vkEnumerateDeviceExtensionProperties", VulkanResultString(res, true))
		}
	}
	names := make([]string, 0, count)
	for i := range properties {
		properties[i].Deref()
		names = append(names, cString(properties[i].ExtensionName[:]))
	}
	return names, nil
}

func selectPhysicalDevice(context *VulkanContext) error {
	var physicalDeviceCount uint32
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, nil); res != vk.Success {
		err := core.NewVulkanError("vkEnumeratePhysicalDevices", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	if physicalDeviceCount == 0 {
		err := errors.Wrap(core.ErrNoSuitableDevice, "no devices which support Vulkan were found")
		core.LogError(err.Error())
		return err
	}
	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, physicalDevices); res != vk.Success {
		err := core.NewVulkanError("vkEnumeratePhysicalDevices", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}

	requirements := VulkanPhysicalDeviceRequirements{
		SamplerAnisotropy:    true,
		DiscreteGPU:          runtime.GOOS != "darwin",
		DeviceExtensionNames: []string{vk.KhrSwapchainExtensionName},
	}

	// A second pass accepts integrated GPUs, so laptops without a discrete card still run.
	for pass := 0; pass < 2; pass++ {
		for _, physicalDevice := range physicalDevices {
			if device, ok := evaluatePhysicalDevice(context, physicalDevice, &requirements); ok {
				context.Device = device
				logDeviceInfo(device)
				return nil
			}
		}
		if !requirements.DiscreteGPU {
			break
		}
		core.LogWarn("No discrete GPU meets the requirements, trying every device.")
		requirements.DiscreteGPU = false
	}

	err := errors.Wrap(core.ErrNoSuitableDevice, "no physical devices were found which meet the requirements")
	core.LogError(err.Error())
	return err
}

func evaluatePhysicalDevice(context *VulkanContext, physicalDevice vk.PhysicalDevice, requirements *VulkanPhysicalDeviceRequirements) (*VulkanDevice, bool) {
	device := &VulkanDevice{PhysicalDevice: physicalDevice}
	vk.GetPhysicalDeviceProperties(physicalDevice, &device.Properties)
	device.Properties.Deref()
	device.Properties.Limits.Deref()
	vk.GetPhysicalDeviceFeatures(physicalDevice, &device.Features)
	device.Features.Deref()
	vk.GetPhysicalDeviceMemoryProperties(physicalDevice, &device.Memory)
	device.Memory.Deref()
	for i := uint32(0); i < device.Memory.MemoryTypeCount; i++ {
		device.Memory.MemoryTypes[i].Deref()
	}
	for i := uint32(0); i < device.Memory.MemoryHeapCount; i++ {
		device.Memory.MemoryHeaps[i].Deref()
	}

	name := device.Name()
	if requirements.DiscreteGPU && device.Properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
		core.LogInfo("Device '%s' is not a discrete GPU, and one is required. Skipping.", name)
		return nil, false
	}
	if requirements.SamplerAnisotropy && device.Features.SamplerAnisotropy == vk.False {
		core.LogInfo("Device '%s' does not support samplerAnisotropy, skipping.", name)
		return nil, false
	}

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(physicalDevice, &queueFamilyCount, nil)
	families := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(physicalDevice, &queueFamilyCount, families)
	canPresent := make([]bool, queueFamilyCount)
	for i := range families {
		families[i].Deref()
		var supportsPresent vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(physicalDevice, uint32(i), context.Surface, &supportsPresent)
		canPresent[i] = supportsPresent == vk.True
	}
	queues, ok := selectQueueFamilies(families, canPresent)
	if !ok {
		core.LogInfo("Device '%s' has no graphics and compute queue that can present, skipping.", name)
		return nil, false
	}
	device.GraphicsQueueIndex = queues.GraphicsFamilyIndex
	device.TransferQueueIndex = queues.TransferFamilyIndex

	if err := deviceQuerySwapchainSupport(physicalDevice, context.Surface, &device.SwapchainSupport); err != nil {
		return nil, false
	}
	if len(device.SwapchainSupport.Formats) == 0 || len(device.SwapchainSupport.PresentModes) == 0 {
		core.LogInfo("Required swapchain support not present on '%s', skipping device.", name)
		return nil, false
	}

	extensions, err := enumerateDeviceExtensions(physicalDevice)
	if err != nil {
		core.LogError(err.Error())
		return nil, false
	}
	for _, required := range requirements.DeviceExtensionNames {
		if !hasString(extensions, required) {
			core.LogInfo("Required extension not found: '%s', skipping device '%s'.", required, name)
			return nil, false
		}
	}
	device.Extensions = extensions
	device.MeshShaders = hasString(extensions, meshShaderExtensionName)
	device.FragmentShadingRate = hasString(extensions, fragmentShadingRateExtensionName)
	device.PipelineStatistics = device.Features.PipelineStatisticsQuery == vk.True

	if !deviceDetectDepthFormat(device) {
		core.LogInfo("Device '%s' has no usable depth format, skipping.", name)
		return nil, false
	}

	core.LogDebug("Graphics Family Index: %d", queues.GraphicsFamilyIndex)
	core.LogDebug("Transfer Family Index: %d (dedicated %t)", queues.TransferFamilyIndex, queues.DedicatedTransfer)
	return device, true
}

func logDeviceInfo(device *VulkanDevice) {
	properties := device.Properties
	core.LogInfo("Selected device: '%s'.", device.Name())
	switch properties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU.")
	default:
		core.LogInfo("GPU type is Unknown.")
	}

	driver := vk.Version(properties.DriverVersion)
	core.LogInfo("GPU Driver version: %d.%d.%d", driver.Major(), driver.Minor(), driver.Patch())
	api := vk.Version(properties.ApiVersion)
	core.LogInfo("Vulkan API version: %d.%d.%d", api.Major(), api.Minor(), api.Patch())

	for j := uint32(0); j < device.Memory.MemoryHeapCount; j++ {
		heap := device.Memory.MemoryHeaps[j]
		memorySizeGib := float64(heap.Size) / 1024.0 / 1024.0 / 1024.0
		if vk.MemoryHeapFlagBits(heap.Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", memorySizeGib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", memorySizeGib)
		}
	}
	core.LogInfo("Mesh shaders: %t, fragment shading rate: %t", device.MeshShaders, device.FragmentShadingRate)
}

func createLogicalDevice(context *VulkanContext) error {
	device := context.Device
	core.LogInfo("Creating logical device...")

	indices := []uint32{device.GraphicsQueueIndex}
	if device.TransferQueueIndex != device.GraphicsQueueIndex {
		indices = append(indices, device.TransferQueueIndex)
	}
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i, index := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: index,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	extensionNames := []string{vk.KhrSwapchainExtensionName}
	if hasString(device.Extensions, portabilitySubsetExtensionName) {
		core.LogInfo("Adding required extension '%s'.", portabilitySubsetExtensionName)
		extensionNames = append(extensionNames, portabilitySubsetExtensionName)
	}
	if device.MeshShaders {
		extensionNames = append(extensionNames, meshShaderExtensionName)
	}
	if device.FragmentShadingRate {
		extensionNames = append(extensionNames, fragmentShadingRateExtensionName)
	}

	features13 := vk.PhysicalDeviceVulkan13Features{
		SType:            vk.StructureTypePhysicalDeviceVulkan13Features,
		DynamicRendering: vk.True,
		Synchronization2: vk.True,
	}
	features12 := vk.PhysicalDeviceVulkan12Features{
		SType:                                        vk.StructureTypePhysicalDeviceVulkan12Features,
		PNext:                                        unsafe.Pointer(features13.Ref()),
		DescriptorIndexing:                           vk.True,
		ShaderSampledImageArrayNonUniformIndexing:    vk.True,
		DescriptorBindingSampledImageUpdateAfterBind: vk.True,
		DescriptorBindingStorageImageUpdateAfterBind: vk.True,
		DescriptorBindingPartiallyBound:              vk.True,
		DescriptorBindingVariableDescriptorCount:     vk.True,
		RuntimeDescriptorArray:                       vk.True,
		TimelineSemaphore:                            vk.True,
		StorageBuffer8BitAccess:                      vk.True,
		ShaderInt8:                                   vk.True,
	}
	features11 := vk.PhysicalDeviceVulkan11Features{
		SType:                    vk.StructureTypePhysicalDeviceVulkan11Features,
		PNext:                    unsafe.Pointer(features12.Ref()),
		StorageBuffer16BitAccess: vk.True,
		Multiview:                vk.True,
	}
	features := vk.PhysicalDeviceFeatures2{
		SType: vk.StructureTypePhysicalDeviceFeatures2,
		PNext: unsafe.Pointer(features11.Ref()),
		Features: vk.PhysicalDeviceFeatures{
			SamplerAnisotropy:       vk.True,
			PipelineStatisticsQuery: boolToVk(device.PipelineStatistics),
		},
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		PNext:                   unsafe.Pointer(features.Ref()),
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}

	if res := vk.CreateDevice(device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &device.LogicalDevice); res != vk.Success {
		err := core.NewVulkanError("vkCreateDevice", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("Logical device created.")

	vk.GetDeviceQueue(device.LogicalDevice, device.GraphicsQueueIndex, 0, &device.GraphicsQueue)
	vk.GetDeviceQueue(device.LogicalDevice, device.TransferQueueIndex, 0, &device.TransferQueue)
	context.lockPool.SetQueueFamily(device.GraphicsQueueIndex)
	context.lockPool.SetQueueFamily(device.TransferQueueIndex)
	core.LogInfo("Queues obtained.")
	return nil
}

func destroyLogicalDevice(context *VulkanContext) {
	device := context.Device
	if device == nil {
		return
	}
	device.GraphicsQueue = nil
	device.TransferQueue = nil

	core.LogInfo("Destroying logical device...")
	if device.LogicalDevice != nil {
		vk.DestroyDevice(device.LogicalDevice, context.Allocator)
		device.LogicalDevice = nil
	}
	device.SwapchainSupport = VulkanSwapchainSupportInfo{}
	device.PhysicalDevice = nil
}

func deviceQuerySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface, supportInfo *VulkanSwapchainSupportInfo) error {
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &supportInfo.Capabilities); res != vk.Success {
		err := core.NewVulkanError("vkGetPhysicalDeviceSurfaceCapabilitiesKHR", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	supportInfo.Capabilities.Deref()
	supportInfo.Capabilities.CurrentExtent.Deref()
	supportInfo.Capabilities.MinImageExtent.Deref()
	supportInfo.Capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, nil); res != vk.Success {
		err := core.NewVulkanError("vkGetPhysicalDeviceSurfaceFormatsKHR", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	supportInfo.Formats = make([]vk.SurfaceFormat, formatCount)
	if formatCount != 0 {
		if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, supportInfo.Formats); res != vk.Success {
			err := core.NewVulkanError("vkGetPhysicalDeviceSurfaceFormatsKHR", VulkanResultString(res, true))
			core.LogError(err.Error())
			return err
		}
		for i := range supportInfo.Formats {
			supportInfo.Formats[i].Deref()
		}
	}

	var presentModeCount uint32
	if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &presentModeCount, nil); res != vk.Success {
		err := core.NewVulkanError("vkGetPhysicalDeviceSurfacePresentModesKHR", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	supportInfo.PresentModes = make([]vk.PresentMode, presentModeCount)
	if presentModeCount != 0 {
		if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &presentModeCount, supportInfo.PresentModes); res != vk.Success {
			err := core.NewVulkanError("vkGetPhysicalDeviceSurfacePresentModesKHR", VulkanResultString(res, true))
			core.LogError(err.Error())
			return err
		}
	}
	return nil
}

func deviceDetectDepthFormat(device *VulkanDevice) bool {
	candidates := []vk.Format{
		vk.FormatD32Sfloat,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD24UnormS8Uint,
	}
	flags := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, candidate := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(device.PhysicalDevice, candidate, &properties)
		properties.Deref()
		if properties.LinearTilingFeatures&flags == flags || properties.OptimalTilingFeatures&flags == flags {
			device.DepthFormat = candidate
			return true
		}
	}
	return false
}
