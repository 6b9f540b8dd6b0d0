package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
)

func TestVulkanResultString(t *testing.T) {
	tests := []struct {
		result   vk.Result
		extended bool
		want     string
	}{
		{vk.Success, false, "VK_SUCCESS"},
		{vk.ErrorOutOfDate, false, "VK_ERROR_OUT_OF_DATE_KHR"},
		{vk.ErrorDeviceLost, true, "VK_ERROR_DEVICE_LOST the logical or physical device has been lost"},
		{vk.Result(-12345), false, "VkResult(-12345)"},
	}
	for _, tt := range tests {
		if got := VulkanResultString(tt.result, tt.extended); got != tt.want {
			t.Errorf("VulkanResultString(%d, %t) = %q, want %q", tt.result, tt.extended, got, tt.want)
		}
	}
}

func TestVulkanResultIsSuccess(t *testing.T) {
	if !VulkanResultIsSuccess(vk.Suboptimal) {
		t.Error("VK_SUBOPTIMAL_KHR should count as success")
	}
	if VulkanResultIsSuccess(vk.ErrorOutOfDate) {
		t.Error("VK_ERROR_OUT_OF_DATE_KHR should not count as success")
	}
}

func TestCString(t *testing.T) {
	tests := []struct {
		in   []byte
		want string
	}{
		{[]byte("VK_KHR_swapchain\x00\x00\x00"), "VK_KHR_swapchain"},
		{[]byte("unterminated"), "unterminated"},
		{[]byte{0, 'a'}, ""},
	}
	for _, tt := range tests {
		if got := cString(tt.in); got != tt.want {
			t.Errorf("cString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestVulkanSafeStrings(t *testing.T) {
	in := []string{"a", "b\x00", ""}
	out := VulkanSafeStrings(in)
	want := []string{"a\x00", "b\x00", "\x00"}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("VulkanSafeStrings()[%d] = %q, want %q", i, out[i], want[i])
		}
	}
	if in[0] != "a" {
		t.Errorf("input was modified: %q", in[0])
	}
}
