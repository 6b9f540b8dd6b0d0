package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

type resultDescription struct {
	name   string
	detail string
}

var resultDescriptions = map[vk.Result]resultDescription{
	vk.Success:                          {"VK_SUCCESS", "command successfully completed"},
	vk.NotReady:                         {"VK_NOT_READY", "a fence or query has not yet completed"},
	vk.Timeout:                          {"VK_TIMEOUT", "a wait operation has not completed in the specified time"},
	vk.EventSet:                         {"VK_EVENT_SET", "an event is signaled"},
	vk.EventReset:                       {"VK_EVENT_RESET", "an event is unsignaled"},
	vk.Incomplete:                       {"VK_INCOMPLETE", "a return array was too small for the result"},
	vk.Suboptimal:                       {"VK_SUBOPTIMAL_KHR", "the swapchain no longer matches the surface exactly"},
	vk.PipelineCompileRequired:          {"VK_PIPELINE_COMPILE_REQUIRED", "the pipeline would have required compilation"},
	vk.ErrorOutOfHostMemory:             {"VK_ERROR_OUT_OF_HOST_MEMORY", "a host memory allocation has failed"},
	vk.ErrorOutOfDeviceMemory:           {"VK_ERROR_OUT_OF_DEVICE_MEMORY", "a device memory allocation has failed"},
	vk.ErrorInitializationFailed:        {"VK_ERROR_INITIALIZATION_FAILED", "initialization of an object could not be completed"},
	vk.ErrorDeviceLost:                  {"VK_ERROR_DEVICE_LOST", "the logical or physical device has been lost"},
	vk.ErrorMemoryMapFailed:             {"VK_ERROR_MEMORY_MAP_FAILED", "mapping of a memory object has failed"},
	vk.ErrorLayerNotPresent:             {"VK_ERROR_LAYER_NOT_PRESENT", "a requested layer is not present or could not be loaded"},
	vk.ErrorExtensionNotPresent:         {"VK_ERROR_EXTENSION_NOT_PRESENT", "a requested extension is not supported"},
	vk.ErrorFeatureNotPresent:           {"VK_ERROR_FEATURE_NOT_PRESENT", "a requested feature is not supported"},
	vk.ErrorIncompatibleDriver:          {"VK_ERROR_INCOMPATIBLE_DRIVER", "the requested Vulkan version is not supported by the driver"},
	vk.ErrorTooManyObjects:              {"VK_ERROR_TOO_MANY_OBJECTS", "too many objects of the type have already been created"},
	vk.ErrorFormatNotSupported:          {"VK_ERROR_FORMAT_NOT_SUPPORTED", "a requested format is not supported on this device"},
	vk.ErrorFragmentedPool:              {"VK_ERROR_FRAGMENTED_POOL", "a pool allocation has failed due to fragmentation"},
	vk.ErrorSurfaceLost:                 {"VK_ERROR_SURFACE_LOST_KHR", "the surface is no longer available"},
	vk.ErrorNativeWindowInUse:           {"VK_ERROR_NATIVE_WINDOW_IN_USE_KHR", "the window is already in use"},
	vk.ErrorOutOfDate:                   {"VK_ERROR_OUT_OF_DATE_KHR", "the surface changed and the swapchain must be recreated"},
	vk.ErrorIncompatibleDisplay:         {"VK_ERROR_INCOMPATIBLE_DISPLAY_KHR", "the display is incompatible with the swapchain"},
	vk.ErrorOutOfPoolMemory:             {"VK_ERROR_OUT_OF_POOL_MEMORY", "a descriptor pool ran out of memory"},
	vk.ErrorInvalidExternalHandle:       {"VK_ERROR_INVALID_EXTERNAL_HANDLE", "an external handle is not valid"},
	vk.ErrorFragmentation:               {"VK_ERROR_FRAGMENTATION", "a descriptor pool creation failed due to fragmentation"},
	vk.ErrorInvalidDeviceAddress:        {"VK_ERROR_INVALID_DEVICE_ADDRESS_EXT", "the requested buffer address is not available"},
	vk.ErrorFullScreenExclusiveModeLost: {"VK_ERROR_FULL_SCREEN_EXCLUSIVE_MODE_LOST_EXT", "exclusive full-screen access was lost"},
	vk.ErrorUnknown:                     {"VK_ERROR_UNKNOWN", "an unknown error has occurred"},
}

func VulkanResultString(result vk.Result, getExtended bool) string {
	description, ok := resultDescriptions[result]
	if !ok {
		return fmt.Sprintf("VkResult(%d)", int32(result))
	}
	return ConditionalOperator(!getExtended, description.name, description.name+" "+description.detail)
}

// VulkanResultIsSuccess reports whether result is one of the non error codes.
func VulkanResultIsSuccess(result vk.Result) bool {
	return result >= 0
}

func ConditionalOperator(condition bool, res1, res2 string) string {
	if condition {
		return res1
	}
	return res2
}

var end = "\x00"
var endChar byte = '\x00'

func VulkanSafeString(s string) string {
	if len(s) == 0 {
		return end
	}
	if s[len(s)-1] != endChar {
		return s + end
	}
	return s
}

func VulkanSafeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = VulkanSafeString(list[i])
	}
	return out
}

// FindFirstZeroInByteArray returns the length of the C string stored in arr.
func FindFirstZeroInByteArray(arr []byte) int {
	for i, b := range arr {
		if b == 0 {
			return i
		}
	}
	return len(arr)
}

func cString(arr []byte) string {
	return string(arr[:FindFirstZeroInByteArray(arr)])
}

func hasString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func boolToVk(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}
