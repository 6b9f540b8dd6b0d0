package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
)

func testMemoryProperties() *vk.PhysicalDeviceMemoryProperties {
	flags := []vk.MemoryPropertyFlagBits{
		vk.MemoryPropertyDeviceLocalBit,
		vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit,
		vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit | vk.MemoryPropertyHostCachedBit,
		vk.MemoryPropertyDeviceLocalBit | vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit,
	}
	memory := &vk.PhysicalDeviceMemoryProperties{
		MemoryTypeCount: uint32(len(flags)),
		MemoryHeapCount: 2,
	}
	for i, f := range flags {
		memory.MemoryTypes[i].PropertyFlags = vk.MemoryPropertyFlags(f)
		if f&vk.MemoryPropertyDeviceLocalBit == 0 {
			memory.MemoryTypes[i].HeapIndex = 1
		}
	}
	return memory
}

func TestFindMemoryType(t *testing.T) {
	memory := testMemoryProperties()
	tests := []struct {
		name    string
		filter  uint32
		usage   MemoryUsage
		bestFit bool
		want    int32
	}{
		{"gpu only takes the first device local type", 0xF, MemoryUsageGPUOnly, false, 0},
		{"gpu only best fit avoids host flags", 0xF, MemoryUsageGPUOnly, true, 0},
		{"gpu only filtered to the shared type", 0x8, MemoryUsageGPUOnly, false, 3},
		{"cpu to gpu prefers device local host memory", 0xF, MemoryUsageCPUToGPU, false, 3},
		{"gpu to cpu prefers cached memory", 0xF, MemoryUsageGPUToCPU, false, 2},
		{"preferred flags filtered out falls back to required", 0x7, MemoryUsageCPUToGPU, false, 1},
		{"cpu only best fit skips cached memory", 0xF, MemoryUsageCPUOnly, true, 1},
		{"no host visible type allowed", 0x1, MemoryUsageCPUOnly, false, -1},
		{"empty filter", 0x0, MemoryUsageGPUOnly, false, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			required, preferred := tt.usage.propertyFlags()
			if got := findMemoryType(memory, tt.filter, required, preferred, tt.bestFit); got != tt.want {
				t.Errorf("findMemoryType() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMemoryUsageString(t *testing.T) {
	tests := []struct {
		usage MemoryUsage
		want  string
	}{
		{MemoryUsageGPUOnly, "gpu_only"},
		{MemoryUsageCPUToGPU, "cpu_to_gpu"},
		{MemoryUsageGPUToCPU, "gpu_to_cpu"},
		{MemoryUsageCPUOnly, "cpu_only"},
		{MemoryUsage(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.usage.String(); got != tt.want {
			t.Errorf("MemoryUsage(%d).String() = %q, want %q", tt.usage, got, tt.want)
		}
	}
}

func TestAllocationProperties(t *testing.T) {
	allocation := &Allocation{
		Properties: vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit),
	}
	if !allocation.HostVisible() {
		t.Error("HostVisible() = false, want true")
	}
	if allocation.HostCoherent() {
		t.Error("HostCoherent() = true, want false")
	}
}
