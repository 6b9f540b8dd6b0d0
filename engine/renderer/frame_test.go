package renderer

import (
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

func TestFrameCountersAdvance(t *testing.T) {
	device, backend := newTestDevice(t, nil)

	want := []struct{ previous, current uint32 }{{1, 2}, {2, 0}, {0, 1}, {1, 2}}
	for i, w := range want {
		runFrame(t, device, metadata.InvalidTexture)
		if device.PreviousFrame() != w.previous || device.CurrentFrame() != w.current {
			t.Errorf("frame %d: previous/current = %d/%d, want %d/%d", i, device.PreviousFrame(), device.CurrentFrame(), w.previous, w.current)
		}
	}
	if device.AbsoluteFrame() != uint64(len(want)) {
		t.Errorf("AbsoluteFrame() = %d, want %d", device.AbsoluteFrame(), len(want))
	}
	if got := backend.waits; len(got) != 4 || got[0] != 1 || got[1] != 2 || got[2] != 0 {
		t.Errorf("waited on frames %v", got)
	}
	if backend.presents != 4 {
		t.Errorf("presents = %d, want 4", backend.presents)
	}
}

func TestPresentSubmitsQueuedCommands(t *testing.T) {
	device, backend := newTestDevice(t, nil)

	if err := device.NewFrame(); err != nil {
		t.Fatalf("NewFrame() error = %v", err)
	}
	cb, err := device.GetPrimaryCmd(0, true)
	if err != nil {
		t.Fatalf("GetPrimaryCmd() error = %v", err)
	}
	cb.Draw(3, 1, 0, 0)
	device.QueueCmd(cb)

	final, _ := device.CreateTexture(metadata.NewTextureCreation("final", 1280, 720, vk.FormatR8g8b8a8Unorm))
	if err := device.Present(final); err != nil {
		t.Fatalf("Present() error = %v", err)
	}

	if backend.submits != 1 {
		t.Errorf("submits = %d, want 1", backend.submits)
	}
	if cb.State != COMMAND_BUFFER_STATE_SUBMITTED {
		t.Errorf("command buffer state = %d, want submitted", cb.State)
	}
	native := cb.Native().(*fakeCommandBuffer)
	if last := native.calls[len(native.calls)-1]; last != "end" {
		t.Errorf("last recorded call = %s, want end", last)
	}
	if len(backend.copies) != 1 || backend.copies[0] == nil || backend.copies[0].Handle != final {
		t.Errorf("swapchain copy source = %v", backend.copies)
	}
}

func TestPresentWithoutFinalTextureClears(t *testing.T) {
	device, backend := newTestDevice(t, nil)
	runFrame(t, device, metadata.InvalidTexture)
	if len(backend.copies) != 1 || backend.copies[0] != nil {
		t.Errorf("copies = %v, want a single clear", backend.copies)
	}
}

func TestAcquireOutOfDateSkipsFrame(t *testing.T) {
	device, backend := newTestDevice(t, nil)
	backend.acquireErr = core.ErrSwapchainOutOfDate
	backend.width, backend.height = 1920, 1080

	err := device.NewFrame()
	if !errors.Is(err, core.ErrSwapchainOutOfDate) {
		t.Fatalf("NewFrame() error = %v, want ErrSwapchainOutOfDate", err)
	}
	if backend.swapchainResizes != 1 {
		t.Errorf("swapchain resizes = %d, want 1", backend.swapchainResizes)
	}
	if info := device.SwapchainInfo(); info.Width != 1920 || info.Height != 1080 {
		t.Errorf("swapchain = %dx%d after resize", info.Width, info.Height)
	}
	if !device.SwapchainResizedLastFrame {
		t.Error("SwapchainResizedLastFrame not set")
	}
	if device.CurrentFrame() != 1 || device.AbsoluteFrame() != 0 {
		t.Errorf("skipped frame moved counters to %d/%d", device.CurrentFrame(), device.AbsoluteFrame())
	}

	runFrame(t, device, metadata.InvalidTexture)
	if device.SwapchainResizedLastFrame {
		t.Error("SwapchainResizedLastFrame still set after a full frame")
	}
	if device.CurrentFrame() != 2 {
		t.Errorf("CurrentFrame() = %d, want 2", device.CurrentFrame())
	}
}

func TestPresentOutOfDateResizesWithoutAdvancing(t *testing.T) {
	device, backend := newTestDevice(t, nil)
	if err := device.NewFrame(); err != nil {
		t.Fatalf("NewFrame() error = %v", err)
	}
	backend.presentErr = core.ErrSwapchainOutOfDate

	if err := device.Present(metadata.InvalidTexture); err != nil {
		t.Fatalf("Present() error = %v", err)
	}
	if backend.swapchainResizes != 1 {
		t.Errorf("swapchain resizes = %d, want 1", backend.swapchainResizes)
	}
	if device.CurrentFrame() != 1 || device.AbsoluteFrame() != 0 {
		t.Errorf("counters = %d/%d, want the frame slot kept at 1/0", device.CurrentFrame(), device.AbsoluteFrame())
	}

	runFrame(t, device, metadata.InvalidTexture)
	if device.CurrentFrame() != 2 || device.AbsoluteFrame() != 1 {
		t.Errorf("counters = %d/%d after a full frame, want 2/1", device.CurrentFrame(), device.AbsoluteFrame())
	}
}

func TestRequestResize(t *testing.T) {
	device, backend := newTestDevice(t, nil)
	device.RequestResize()
	runFrame(t, device, metadata.InvalidTexture)
	if backend.swapchainResizes != 1 {
		t.Errorf("swapchain resizes = %d, want 1", backend.swapchainResizes)
	}
	if device.AbsoluteFrame() != 0 {
		t.Errorf("AbsoluteFrame() = %d after a resizing present, want 0", device.AbsoluteFrame())
	}
	runFrame(t, device, metadata.InvalidTexture)
	if backend.swapchainResizes != 1 {
		t.Errorf("resize request was not cleared, resizes = %d", backend.swapchainResizes)
	}
}

func TestResizeSwapchain(t *testing.T) {
	tests := []struct {
		name          string
		width, height uint32
		resized       bool
	}{
		{"minimized", 0, 0, false},
		{"zero height", 800, 0, false},
		{"same size", 1280, 720, true},
		{"larger", 2560, 1440, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device, backend := newTestDevice(t, nil)
			backend.width, backend.height = tt.width, tt.height
			before := device.SwapchainInfo()

			resized, err := device.ResizeSwapchain()
			if err != nil {
				t.Fatalf("ResizeSwapchain() error = %v", err)
			}
			if resized != tt.resized {
				t.Fatalf("ResizeSwapchain() = %v, want %v", resized, tt.resized)
			}
			if !resized {
				if device.SwapchainInfo() != before || backend.swapchainResizes != 0 {
					t.Errorf("zero extent changed the swapchain")
				}
				return
			}
			first := device.SwapchainInfo()
			if _, err := device.ResizeSwapchain(); err != nil {
				t.Fatalf("second ResizeSwapchain() error = %v", err)
			}
			if device.SwapchainInfo() != first {
				t.Errorf("resizing twice to %dx%d changed the swapchain: %+v then %+v", tt.width, tt.height, first, device.SwapchainInfo())
			}
		})
	}
}

func TestResizeSwapchainResizesFramebuffers(t *testing.T) {
	device, backend := newTestDevice(t, nil)

	output := metadata.RenderPassOutput{}
	output.Color(vk.FormatR8g8b8a8Unorm, vk.ImageLayoutShaderReadOnlyOptimal, metadata.RENDER_PASS_OPERATION_CLEAR)
	pass, _ := device.CreateRenderPass(metadata.RenderPassCreation{Output: output, Name: "half"})
	color, _ := device.CreateTexture(metadata.NewTextureCreation("half_color", 640, 360, vk.FormatR8g8b8a8Unorm))
	creation := metadata.NewFramebufferCreation("half", pass, 640, 360)
	creation.OutputTextures = []metadata.TextureHandle{color}
	creation.ScaleX, creation.ScaleY = 0.5, 0.5
	creation.Resize = true
	framebuffer, err := device.CreateFramebuffer(creation)
	if err != nil {
		t.Fatalf("CreateFramebuffer() error = %v", err)
	}

	backend.width, backend.height = 1920, 1080
	if _, err := device.ResizeSwapchain(); err != nil {
		t.Fatalf("ResizeSwapchain() error = %v", err)
	}
	fb := device.AccessFramebuffer(framebuffer)
	if fb.Width != 960 || fb.Height != 540 {
		t.Errorf("framebuffer = %dx%d, want 960x540", fb.Width, fb.Height)
	}
	if texture := device.AccessTexture(color); texture.Width != 960 || texture.Height != 540 {
		t.Errorf("attachment = %dx%d, want 960x540", texture.Width, texture.Height)
	}
}

func TestCommandBufferPoolLimits(t *testing.T) {
	device, _ := newTestDevice(t, nil)
	if err := device.NewFrame(); err != nil {
		t.Fatalf("NewFrame() error = %v", err)
	}

	for i := uint32(0); i < PRIMARY_COMMAND_BUFFERS_PER_POOL; i++ {
		if _, err := device.GetPrimaryCmd(0, true); err != nil {
			t.Fatalf("primary %d: error = %v", i, err)
		}
	}
	if _, err := device.GetPrimaryCmd(0, true); !errors.Is(err, core.ErrPoolExhausted) {
		t.Errorf("extra primary error = %v, want ErrPoolExhausted", err)
	}
	for i := uint32(0); i < SECONDARY_COMMAND_BUFFERS_PER_POOL; i++ {
		if _, err := device.GetSecondaryCmd(0); err != nil {
			t.Fatalf("secondary %d: error = %v", i, err)
		}
	}
	if _, err := device.GetSecondaryCmd(0); !errors.Is(err, core.ErrPoolExhausted) {
		t.Errorf("extra secondary error = %v, want ErrPoolExhausted", err)
	}
	if _, err := device.GetPrimaryCmd(7, true); err == nil {
		t.Error("GetPrimaryCmd on an unknown thread succeeded")
	}

	if err := device.Present(metadata.InvalidTexture); err != nil {
		t.Fatalf("Present() error = %v", err)
	}
	runFrame(t, device, metadata.InvalidTexture)
	runFrame(t, device, metadata.InvalidTexture)
	if err := device.NewFrame(); err != nil {
		t.Fatalf("NewFrame() error = %v", err)
	}
	if _, err := device.GetPrimaryCmd(0, true); err != nil {
		t.Errorf("pool of frame %d was not recycled: %v", device.CurrentFrame(), err)
	}
}

func TestGPUTimestamps(t *testing.T) {
	device, backend := newTestDevice(t, nil)
	if err := device.NewFrame(); err != nil {
		t.Fatalf("NewFrame() error = %v", err)
	}
	cb, _ := device.GetPrimaryCmd(0, true)
	cb.PushTimestamp("frame")
	cb.PushTimestamp("gbuffer")
	cb.PopTimestamp()
	cb.PopTimestamp()
	device.QueueCmd(cb)
	if err := device.Present(metadata.InvalidTexture); err != nil {
		t.Fatalf("Present() error = %v", err)
	}

	native := cb.Native().(*fakeCommandBuffer)
	wantQueries := []uint32{0, 2, 3, 1}
	for i, q := range wantQueries {
		if native.timestamps[i] != q {
			t.Fatalf("timestamps written = %v, want %v", native.timestamps, wantQueries)
		}
	}

	backend.timestampTicks[cb.PoolIndex] = []uint64{100, 1100, 200, 700}
	runFrame(t, device, metadata.InvalidTexture)
	runFrame(t, device, metadata.InvalidTexture)
	if err := device.NewFrame(); err != nil {
		t.Fatalf("NewFrame() error = %v", err)
	}

	timestamps := device.GPUTimestamps()
	if len(timestamps) != 2 {
		t.Fatalf("got %d timestamps, want 2", len(timestamps))
	}
	want := []struct {
		name    string
		depth   uint32
		elapsed float64
	}{
		{"frame", 0, 1000.0 / 1e6},
		{"gbuffer", 1, 500.0 / 1e6},
	}
	for i, w := range want {
		got := timestamps[i]
		if got.Name != w.name || got.Depth != w.depth || math.Abs(got.ElapsedMS-w.elapsed) > 1e-12 {
			t.Errorf("timestamp %d = %+v, want %s depth %d elapsed %g", i, got, w.name, w.depth, w.elapsed)
		}
	}
	if stats := device.PipelineStatistics(); len(stats) != int(metadata.GPU_PIPELINE_STATISTICS_COUNT) {
		t.Errorf("pipeline statistics = %v", stats)
	}
}

func TestUnbalancedTimestampsAreDropped(t *testing.T) {
	device, _ := newTestDevice(t, nil)
	if err := device.NewFrame(); err != nil {
		t.Fatalf("NewFrame() error = %v", err)
	}
	cb, _ := device.GetPrimaryCmd(0, true)
	cb.PushTimestamp("open")
	cb.PopTimestamp()
	cb.PopTimestamp()
	cb.PushTimestamp("never closed")
	device.QueueCmd(cb)
	if err := device.Present(metadata.InvalidTexture); err != nil {
		t.Fatalf("Present() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		runFrame(t, device, metadata.InvalidTexture)
	}
	if err := device.NewFrame(); err != nil {
		t.Fatalf("NewFrame() error = %v", err)
	}
	if got := device.GPUTimestamps(); len(got) != 0 {
		t.Errorf("open scopes resolved: %+v", got)
	}
}
