package platform

import (
	"runtime"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

type Platform struct {
	Window *glfw.Window
	events *core.EventBus
}

func New(events *core.EventBus) *Platform {
	return &Platform{
		events: events,
	}
}

func (p *Platform) Startup(config core.WindowConfig) error {
	if err := glfw.Init(); err != nil {
		err = errors.Wrap(err, "failed to initialize glfw")
		core.LogError(err.Error())
		return err
	}
	if !glfw.VulkanSupported() {
		err := errors.Wrap(core.ErrUnsupported, "glfw reports no vulkan loader")
		core.LogError(err.Error())
		return err
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.Visible, glfw.False)

	window, err := glfw.CreateWindow(int(config.Width), int(config.Height), config.Title, nil, nil)
	if err != nil {
		err = errors.Wrap(err, "failed to create window")
		core.LogError(err.Error())
		return err
	}
	p.Window = window

	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetCloseCallback(p.closeCallback)

	p.Window.Show()

	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

// PumpMessages processes pending window events. Callbacks fire from inside this call.
func (p *Platform) PumpMessages() {
	glfw.PollEvents()
}

func (p *Platform) ShouldClose() bool {
	return p.Window == nil || p.Window.ShouldClose()
}

func (p *Platform) InstanceProcAddress() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

func (p *Platform) RequiredInstanceExtensions() []string {
	return p.Window.GetRequiredInstanceExtensions()
}

func (p *Platform) CreateSurface(instance vk.Instance) (vk.Surface, error) {
	surface, err := p.Window.CreateWindowSurface(instance, nil)
	if err != nil {
		err = errors.Wrap(err, "failed to create window surface")
		core.LogError(err.Error())
		return vk.NullSurface, err
	}
	return vk.SurfaceFromPointer(surface), nil
}

func (p *Platform) FramebufferSize() (uint32, uint32) {
	if p.Window == nil {
		return 0, 0
	}
	w, h := p.Window.GetFramebufferSize()
	return clampExtent(w), clampExtent(h)
}

// WaitWhileMinimized blocks on window events until the framebuffer has a non-zero extent.
func (p *Platform) WaitWhileMinimized() {
	for {
		w, h := p.FramebufferSize()
		if (w != 0 && h != 0) || p.ShouldClose() {
			return
		}
		glfw.WaitEvents()
	}
}

func clampExtent(v int) uint32 {
	if v < 0 {
		return 0
	}
	return uint32(v)
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width int, height int) {
	if p.events == nil {
		return
	}
	p.events.Fire(core.EVENT_CODE_RESIZED, p, resizeContext(width, height))
}

func resizeContext(width, height int) core.EventContext {
	ctx := core.EventContext{}
	ctx.Data.U32[0] = clampExtent(width)
	ctx.Data.U32[1] = clampExtent(height)
	return ctx
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if key == glfw.KeyEscape && action == glfw.Press {
		w.SetShouldClose(true)
		if p.events != nil {
			p.events.Fire(core.EVENT_CODE_APPLICATION_QUIT, p, core.EventContext{})
		}
	}
}

func (p *Platform) closeCallback(w *glfw.Window) {
	if p.events != nil {
		p.events.Fire(core.EVENT_CODE_APPLICATION_QUIT, p, core.EventContext{})
	}
}
