package vulkan

import (
	"testing"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

type fakeWindow struct {
	surface   vk.Surface
	createErr error
}

func (w *fakeWindow) InstanceProcAddress() unsafe.Pointer { return nil }
func (w *fakeWindow) RequiredInstanceExtensions() []string { return nil }
func (w *fakeWindow) FramebufferSize() (uint32, uint32) { return 0, 0 }
func (w *fakeWindow) CreateSurface(vk.Instance) (vk.Surface, error) {
	return w.surface, w.createErr
}

func countSurfaceDestroys(t *testing.T) *int {
	t.Helper()
	destroyed := 0
	previous := vkDestroySurface
	vkDestroySurface = func(vk.Instance, vk.Surface, *vk.AllocationCallbacks) { destroyed++ }
	t.Cleanup(func() { vkDestroySurface = previous })
	return &destroyed
}

func TestRecreateSurfaceFailureClearsHandle(t *testing.T) {
	destroyed := countSurfaceDestroys(t)
	b := New(&fakeWindow{createErr: errors.New("window gone")})
	b.context = &VulkanContext{Surface: vk.SurfaceFromPointer(0x1000)}

	if err := b.recreateSurface(); err == nil {
		t.Fatal("recreateSurface() succeeded with a failing window")
	}
	if b.context.Surface != vk.NullSurface {
		t.Error("context still holds the destroyed surface")
	}

	b.destroySurface()
	if *destroyed != 1 {
		t.Errorf("surface destroyed %d times, want 1", *destroyed)
	}
}

func TestRecreateSurface(t *testing.T) {
	destroyed := countSurfaceDestroys(t)
	next := vk.SurfaceFromPointer(0x2000)
	b := New(&fakeWindow{surface: next})
	b.context = &VulkanContext{Surface: vk.SurfaceFromPointer(0x1000)}

	if err := b.recreateSurface(); err != nil {
		t.Fatalf("recreateSurface() error = %v", err)
	}
	if b.context.Surface != next || *destroyed != 1 {
		t.Errorf("surface = %v after %d destroys, want the new surface after 1", b.context.Surface, *destroyed)
	}
}
