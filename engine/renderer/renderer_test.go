package renderer

import (
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

func TestNewGPUDeviceRejectsBadConfig(t *testing.T) {
	config := testConfig()
	config.NumThreads = 1
	if _, err := NewGPUDevice(newFakeBackend(), config); !errors.Is(err, core.ErrInvalidConfig) {
		t.Fatalf("NewGPUDevice() error = %v, want ErrInvalidConfig", err)
	}
	if _, err := NewGPUDevice(nil, testConfig()); err == nil {
		t.Fatal("NewGPUDevice(nil) succeeded")
	}
}

func TestInitializeCreatesBuiltins(t *testing.T) {
	device, backend := newTestDevice(t, nil)

	if device.PreviousFrame() != 0 || device.CurrentFrame() != 1 || device.AbsoluteFrame() != 0 {
		t.Errorf("frames = %d/%d/%d, want 0/1/0", device.PreviousFrame(), device.CurrentFrame(), device.AbsoluteFrame())
	}
	if device.FramesInFlight() != 3 {
		t.Errorf("FramesInFlight() = %d, want 3", device.FramesInFlight())
	}

	dynamic := device.AccessBuffer(device.DynamicBuffer())
	if dynamic == nil || dynamic.Size != 3*1024 || dynamic.MappedData == nil {
		t.Fatalf("dynamic buffer = %+v", dynamic)
	}
	if !device.TextureReady(device.DummyTexture()) {
		t.Error("dummy texture not ready")
	}
	if device.AccessSampler(device.DefaultSampler()) == nil {
		t.Error("default sampler missing")
	}

	layout := device.AccessDescriptorSetLayout(device.BindlessLayout())
	if layout == nil || !layout.Bindless || len(layout.Bindings) != 2 {
		t.Fatalf("bindless layout = %+v", layout)
	}
	wantBindings := []struct {
		start uint16
		kind  vk.DescriptorType
	}{
		{uint16(metadata.BINDLESS_TEXTURE_BINDING), vk.DescriptorTypeCombinedImageSampler},
		{uint16(metadata.BINDLESS_IMAGE_BINDING), vk.DescriptorTypeStorageImage},
	}
	for i, want := range wantBindings {
		got := layout.Bindings[i]
		if got.Start != want.start || got.Type != want.kind || got.Count != 1024 {
			t.Errorf("binding %d = %+v, want start %d type %d", i, got, want.start, want.kind)
		}
	}

	output := device.SwapchainOutput()
	if len(output.ColorFormats) != 1 || output.ColorFormats[0] != backend.swapchain.Format {
		t.Errorf("swapchain output colors = %v", output.ColorFormats)
	}
	if output.DepthStencilFormat != vk.FormatD32Sfloat {
		t.Errorf("swapchain depth format = %d", output.DepthStencilFormat)
	}
}

func TestDeinitializeReleasesBuiltins(t *testing.T) {
	device, backend := newTestDevice(t, nil)
	runFrame(t, device, metadata.InvalidTexture)

	if err := device.Deinitialize(); err != nil {
		t.Fatalf("Deinitialize() error = %v", err)
	}
	for _, kind := range []string{"buffer", "texture", "sampler", "descriptor_set", "descriptor_set_layout"} {
		if live := backend.live(kind); live != 0 {
			t.Errorf("%d native %s objects left after Deinitialize", live, kind)
		}
	}
	if len(device.PendingDeletions()) != 0 {
		t.Errorf("deletion queue not empty: %v", device.PendingDeletions())
	}
}

func TestDeferredTextureDeletion(t *testing.T) {
	device, backend := newTestDevice(t, nil)

	handle, err := device.CreateTexture(metadata.NewTextureCreation("scratch", 16, 16, vk.FormatR8g8b8a8Unorm))
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}
	device.DestroyTexture(handle)

	for frame := 1; frame <= 2; frame++ {
		runFrame(t, device, metadata.InvalidTexture)
		if !device.textures.Live(handle.Index) {
			t.Fatalf("texture freed after %d frames, the GPU may still use it", frame)
		}
	}
	runFrame(t, device, metadata.InvalidTexture)
	if device.textures.Live(handle.Index) {
		t.Fatal("texture still alive after a full ring of frames")
	}
	if backend.destroyed["texture"] != 1 {
		t.Errorf("native textures destroyed = %d, want 1", backend.destroyed["texture"])
	}

	writes := backend.bindlessWritesFor(handle.Index)
	if len(writes) != 1 {
		t.Fatalf("bindless writes for %d = %d, want 1", handle.Index, len(writes))
	}
	if writes[0].Texture.Handle != device.DummyTexture() {
		t.Errorf("released slot written with %s, want the dummy texture", writes[0].Texture.Name)
	}
}

func TestDestroyTwiceLeavesReusedSlotAlone(t *testing.T) {
	device, backend := newTestDevice(t, nil)

	a, err := device.CreateTexture(metadata.NewTextureCreation("a", 16, 16, vk.FormatR8g8b8a8Unorm))
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}
	device.DestroyTexture(a)
	runFrame(t, device, metadata.InvalidTexture)
	device.DestroyTexture(a)
	if n := len(device.PendingDeletions()); n != 1 {
		t.Fatalf("PendingDeletions() = %d entries, want the first destroy only", n)
	}

	runFrame(t, device, metadata.InvalidTexture)
	runFrame(t, device, metadata.InvalidTexture)
	b, err := device.CreateTexture(metadata.NewTextureCreation("b", 16, 16, vk.FormatR8g8b8a8Unorm))
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}
	if b.Index != a.Index {
		t.Fatalf("b got index %d, want the released index %d", b.Index, a.Index)
	}

	for frame := 0; frame < 3; frame++ {
		runFrame(t, device, metadata.InvalidTexture)
	}
	if !device.textures.Live(b.Index) {
		t.Fatal("texture b was destroyed without a DestroyTexture call")
	}
	if backend.destroyed["texture"] != 1 {
		t.Errorf("native textures destroyed = %d, want 1", backend.destroyed["texture"])
	}
}

func TestDestroyIsQueuedOnce(t *testing.T) {
	device, _ := newTestDevice(t, nil)

	sampler, err := device.CreateSampler(metadata.SamplerCreation{Name: "once"})
	if err != nil {
		t.Fatalf("CreateSampler() error = %v", err)
	}
	buffer, err := device.CreateBuffer(metadata.BufferCreation{
		TypeFlags: vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit),
		Usage:     metadata.RESOURCE_USAGE_TYPE_IMMUTABLE,
		Size:      64,
		Name:      "once",
	})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		device.DestroySampler(sampler)
		device.DestroyBuffer(buffer)
	}
	if n := len(device.PendingDeletions()); n != 2 {
		t.Errorf("PendingDeletions() = %d entries, want one per resource", n)
	}
}

func TestResourceRoundTripDoesNotLeak(t *testing.T) {
	config := testConfig()
	config.Pools.Samplers = 4
	config.Pools.Textures = 4
	config.Pools.Buffers = 4
	device, backend := newTestDevice(t, config)

	for i := 0; i < 20; i++ {
		sampler, err := device.CreateSampler(metadata.SamplerCreation{Name: "loop"})
		if err != nil {
			t.Fatalf("iteration %d: CreateSampler() error = %v", i, err)
		}
		texture, err := device.CreateTexture(metadata.NewTextureCreation("loop", 4, 4, vk.FormatR8g8b8a8Unorm))
		if err != nil {
			t.Fatalf("iteration %d: CreateTexture() error = %v", i, err)
		}
		buffer, err := device.CreateBuffer(metadata.BufferCreation{
			TypeFlags: vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit),
			Size:      64,
			Name:      "loop",
		})
		if err != nil {
			t.Fatalf("iteration %d: CreateBuffer() error = %v", i, err)
		}
		device.DestroySampler(sampler)
		device.DestroyTexture(texture)
		device.DestroyBuffer(buffer)
		runFrame(t, device, metadata.InvalidTexture)
	}
	for i := 0; i < 3; i++ {
		runFrame(t, device, metadata.InvalidTexture)
	}

	if used := device.samplers.UsedCount(); used != 1 {
		t.Errorf("samplers in use = %d, want only the default sampler", used)
	}
	if used := device.textures.UsedCount(); used != 1 {
		t.Errorf("textures in use = %d, want only the dummy texture", used)
	}
	if used := device.buffers.UsedCount(); used != 1 {
		t.Errorf("buffers in use = %d, want only the dynamic buffer", used)
	}
	if live := backend.live("sampler"); live != 1 {
		t.Errorf("native samplers alive = %d, want 1", live)
	}
}

func TestPoolExhaustion(t *testing.T) {
	config := testConfig()
	config.Pools.Samplers = 2
	device, _ := newTestDevice(t, config)

	if _, err := device.CreateSampler(metadata.SamplerCreation{}); err != nil {
		t.Fatalf("CreateSampler() error = %v", err)
	}
	handle, err := device.CreateSampler(metadata.SamplerCreation{})
	if !errors.Is(err, core.ErrPoolExhausted) {
		t.Fatalf("CreateSampler() error = %v, want ErrPoolExhausted", err)
	}
	if handle.IsValid() {
		t.Errorf("exhausted pool returned handle %d", handle.Index)
	}
}

func TestDestroyInvalidHandleIsNoop(t *testing.T) {
	device, _ := newTestDevice(t, nil)

	device.DestroyTexture(metadata.InvalidTexture)
	device.DestroyBuffer(metadata.BufferHandle{Index: 4000})
	device.DestroySampler(metadata.SamplerHandle{Index: 31})
	device.DestroyPipeline(metadata.InvalidPipeline)
	device.DestroyDescriptorSet(metadata.InvalidDescriptorSet)
	device.DestroyDescriptorSetLayout(metadata.InvalidDescriptorSetLayout)
	device.DestroyFramebuffer(metadata.InvalidFramebuffer)
	device.DestroyRenderPass(metadata.InvalidRenderPass)
	device.DestroyShaderState(metadata.InvalidShaderState)

	if pending := device.PendingDeletions(); len(pending) != 0 {
		t.Errorf("invalid destroys queued %d deletions", len(pending))
	}
}

func TestDeletionsWaitForTheirFrameSlot(t *testing.T) {
	device, _ := newTestDevice(t, nil)

	first, _ := device.CreateSampler(metadata.SamplerCreation{Name: "first"})
	device.DestroySampler(first)
	runFrame(t, device, metadata.InvalidTexture)
	second, _ := device.CreateSampler(metadata.SamplerCreation{Name: "second"})
	device.DestroySampler(second)

	runFrame(t, device, metadata.InvalidTexture)
	runFrame(t, device, metadata.InvalidTexture)
	if device.samplers.Live(first.Index) {
		t.Error("first sampler should be gone after three presents")
	}
	if !device.samplers.Live(second.Index) {
		t.Error("second sampler released one frame early")
	}

	pending := device.PendingDeletions()
	if len(pending) != 1 || pending[0].Index != second.Index || pending[0].CurrentFrame != 2 {
		t.Errorf("pending deletions = %+v", pending)
	}
}
