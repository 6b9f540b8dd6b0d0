package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
)

const validationLayerName = "VK_LAYER_KHRONOS_validation"

func createInstance(context *VulkanContext, window Window, config *core.DeviceConfig) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 3, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(config.ApplicationName),
		PEngineName:        VulkanSafeString("anima-gpu"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	requiredExtensions := []string{vk.KhrSurfaceExtensionName}
	for _, name := range window.RequiredInstanceExtensions() {
		if !hasString(requiredExtensions, name) {
			requiredExtensions = append(requiredExtensions, name)
		}
	}

	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	layers := []string{}
	if config.Validation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugUtilsExtensionName, vk.ExtDebugReportExtensionName)
		if validationLayerAvailable() {
			layers = append(layers, validationLayerName)
		} else {
			core.LogWarn("validation requested but %s is not installed", validationLayerName)
		}
	}

	core.LogDebug("Required extensions:")
	for _, name := range requiredExtensions {
		core.LogDebug(name)
	}

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if res := vk.CreateInstance(&createInfo, context.Allocator, &context.Instance); res != vk.Success {
		err := core.NewVulkanError("vkCreateInstance", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	if err := vk.InitInstance(context.Instance); err != nil {
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("Vulkan Instance created (API %s).", instanceVersion())

	if config.Validation {
		if err := createDebugCallback(context); err != nil {
			return err
		}
		context.debugUtils = true
	}
	return nil
}

func validationLayerAvailable() bool {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success || count == 0 {
		return false
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		if cString(available[i].LayerName[:]) == validationLayerName {
			return true
		}
	}
	return false
}

func createDebugCallback(context *VulkanContext) error {
	core.LogDebug("Creating Vulkan debugger...")
	debugCreateInfo := vk.DebugReportCallbackCreateInfo{
		SType: vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags: vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit |
			vk.DebugReportPerformanceWarningBit | vk.DebugReportInformationBit),
		PfnCallback: dbgCallbackFunc,
	}

	var dbg vk.DebugReportCallback
	if res := vk.CreateDebugReportCallback(context.Instance, &debugCreateInfo, context.Allocator, &dbg); res != vk.Success {
		err := core.NewVulkanError("vkCreateDebugReportCallback", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	context.debugMessenger = dbg
	core.LogDebug("Vulkan debugger created.")
	return nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}

// setObjectName attaches name to a native handle so validation messages and captures show it.
func setObjectName(context *VulkanContext, objectType vk.ObjectType, handle unsafe.Pointer, name string) {
	if !context.debugUtils || name == "" || handle == nil {
		return
	}
	info := vk.DebugUtilsObjectNameInfo{
		SType:        vk.StructureTypeDebugUtilsObjectNameInfo,
		ObjectType:   objectType,
		ObjectHandle: uint64(uintptr(handle)),
		PObjectName:  VulkanSafeString(name),
	}
	if res := vk.SetDebugUtilsObjectName(context.Device.LogicalDevice, &info); res != vk.Success {
		core.LogDebug("failed to name %s: %s", name, VulkanResultString(res, false))
	}
}

func instanceVersion() string {
	version := vk.Version(vk.MakeVersion(1, 3, 0))
	return fmt.Sprintf("%d.%d.%d", version.Major(), version.Minor(), version.Patch())
}
