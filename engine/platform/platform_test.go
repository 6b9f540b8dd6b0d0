package platform

import (
	"testing"

	"github.com/spaghettifunk/anima-gpu/engine/core"
)

func TestResizeContext(t *testing.T) {
	tests := []struct {
		width, height int
		want          [2]uint32
	}{
		{1280, 720, [2]uint32{1280, 720}},
		{0, 0, [2]uint32{0, 0}},
		{-1, 600, [2]uint32{0, 600}},
	}
	for _, tt := range tests {
		ctx := resizeContext(tt.width, tt.height)
		if ctx.Data.U32[0] != tt.want[0] || ctx.Data.U32[1] != tt.want[1] {
			t.Errorf("resizeContext(%d, %d) = %v, want %v", tt.width, tt.height, ctx.Data.U32[:2], tt.want)
		}
	}
}

func TestFramebufferSizeCallbackFiresResize(t *testing.T) {
	bus := core.NewEventBus()
	defer bus.Shutdown()

	var got [2]uint32
	fired := false
	bus.Register(core.EVENT_CODE_RESIZED, t, func(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
		fired = true
		got = [2]uint32{data.Data.U32[0], data.Data.U32[1]}
		return true
	})

	p := New(bus)
	p.framebufferSizeCallback(nil, 800, 600)
	if !fired {
		t.Fatal("resize event not fired")
	}
	if got != [2]uint32{800, 600} {
		t.Errorf("resize extent = %v, want [800 600]", got)
	}
}

func TestFramebufferSizeWithoutWindow(t *testing.T) {
	p := New(nil)
	if w, h := p.FramebufferSize(); w != 0 || h != 0 {
		t.Errorf("FramebufferSize() = (%d, %d), want zero extent", w, h)
	}
	if !p.ShouldClose() {
		t.Error("ShouldClose() = false without a window")
	}
}
