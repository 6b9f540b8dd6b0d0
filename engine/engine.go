package engine

import (
	"os"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/anima-gpu/engine/assets"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/platform"
	"github.com/spaghettifunk/anima-gpu/engine/renderer"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/vulkan"
	"github.com/spaghettifunk/anima-gpu/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

// Queued recording jobs per worker before Submit blocks.
const jobsPerWorker = 4

type Engine struct {
	currentStage Stage
	gameInstance *Game
	isRunning    bool
	isSuspended  bool

	// Set from signal handlers, read by the loop.
	stopRequested atomic.Bool

	config        *core.DeviceConfig
	events        *core.EventBus
	platform      *platform.Platform
	backend       *vulkan.Backend
	device        *renderer.GPUDevice
	jobs          *systems.JobSystem
	shaderWatcher *assets.ShaderWatcher
	reloader      *pipelineReloader

	width    uint32
	height   uint32
	clock    *core.Clock
	lastTime float64
}

func New(g *Game) (*Engine, error) {
	if g.ApplicationConfig.LogLevel != "" {
		if err := core.SetLogLevel(g.ApplicationConfig.LogLevel); err != nil {
			core.LogWarn("ignoring log level %q: %s", g.ApplicationConfig.LogLevel, err)
		}
	}

	path := g.ApplicationConfig.ConfigPath
	if path == "" {
		path = core.DEFAULT_CONFIG_FILE
	}
	config, err := core.LoadDeviceConfig(path)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	if err := core.SetLogLevel(config.LogLevel); err != nil {
		core.LogWarn("ignoring log level %q: %s", config.LogLevel, err)
	}
	if g.ApplicationConfig.Name != "" {
		config.ApplicationName = g.ApplicationConfig.Name
		config.Window.Title = g.ApplicationConfig.Name
	}

	events := core.NewEventBus()
	p := platform.New(events)
	backend := vulkan.New(p)

	device, err := renderer.NewGPUDevice(backend, config)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	e := &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		isRunning:    true,
		isSuspended:  false,
		config:       config,
		events:       events,
		platform:     p,
		backend:      backend,
		device:       device,
		reloader:     newPipelineReloader(device),
		clock:        core.NewClock(),
		width:        config.Window.Width,
		height:       config.Window.Height,
	}
	g.Engine = e
	g.Device = device
	return e, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.events.Register(core.EVENT_CODE_RESIZED, e, e.onResized)

	if err := e.platform.Startup(e.config.Window); err != nil {
		return err
	}
	if err := e.device.Initialize(); err != nil {
		return err
	}
	swapchain := e.device.SwapchainInfo()
	e.width, e.height = swapchain.Width, swapchain.Height

	// Thread 0 belongs to the main loop, the workers take the rest.
	if workers := int(e.config.NumThreads) - 1; workers > 0 {
		jobs, err := systems.NewJobSystem(1, workers, workers*jobsPerWorker)
		if err != nil {
			return err
		}
		e.jobs = jobs
		e.gameInstance.Jobs = jobs
	}

	if e.config.HotReload {
		if _, err := os.Stat(e.config.ShaderDir); err != nil {
			core.LogWarn("shader hot reload disabled, cannot watch %s: %s", e.config.ShaderDir, err)
		} else {
			watcher, err := assets.NewShaderWatcher(e.config.ShaderDir, e.events)
			if err != nil {
				return err
			}
			e.shaderWatcher = watcher
		}
	}

	if err := e.gameInstance.FnInitialize(); err != nil {
		return err
	}
	if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
		return err
	}

	e.currentStage = EngineStageInitialized
	return nil
}

// CreateReloadablePipeline builds a pipeline from shader files, rebuilt when any of them
// changes while hot reload is enabled.
func (e *Engine) CreateReloadablePipeline(creation metadata.PipelineCreation, sources ...string) (*ReloadablePipeline, error) {
	return e.reloader.create(creation, sources...)
}

func (e *Engine) DestroyReloadablePipeline(p *ReloadablePipeline) {
	e.reloader.destroy(p)
}

func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning {
		e.platform.PumpMessages()
		if e.platform.ShouldClose() || e.stopRequested.Load() {
			e.isRunning = false
			break
		}

		if e.isSuspended {
			e.platform.WaitWhileMinimized()
			continue
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		e.lastTime = currentTime

		e.collectShaderChanges()
		e.reloader.reload()

		if err := e.device.NewFrame(); err != nil {
			if errors.Is(err, core.ErrSwapchainOutOfDate) {
				if err := e.notifyResize(); err != nil {
					return err
				}
				continue
			}
			return err
		}

		if err := e.gameInstance.FnUpdate(delta); err != nil {
			core.LogError("game update failed, shutting down: %s", err)
			return err
		}
		final, err := e.gameInstance.FnRender(delta)
		if err != nil {
			core.LogError("game render failed, shutting down: %s", err)
			return err
		}
		if err := e.device.Present(final); err != nil {
			return err
		}
		if err := e.notifyResize(); err != nil {
			return err
		}

		e.clock.Update()
		e.device.Metrics.Update(e.clock.Elapsed() - currentTime)
	}

	return nil
}

func (e *Engine) collectShaderChanges() {
	if e.shaderWatcher == nil {
		return
	}
	for {
		select {
		case path, ok := <-e.shaderWatcher.Changes():
			if !ok {
				e.shaderWatcher = nil
				return
			}
			e.reloader.markChanged(path)
		default:
			return
		}
	}
}

// notifyResize tells the game about a swapchain recreated during the last frame.
func (e *Engine) notifyResize() error {
	if !e.device.SwapchainResizedLastFrame {
		return nil
	}
	swapchain := e.device.SwapchainInfo()
	if swapchain.Width == e.width && swapchain.Height == e.height {
		return nil
	}
	e.width, e.height = swapchain.Width, swapchain.Height
	return e.gameInstance.FnOnResize(e.width, e.height)
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	e.isRunning = false

	var errs error
	if e.shaderWatcher != nil {
		errs = errors.CombineErrors(errs, e.shaderWatcher.Close())
	}
	if e.jobs != nil {
		errs = errors.CombineErrors(errs, e.jobs.Shutdown())
	}
	if e.gameInstance.FnShutdown != nil {
		errs = errors.CombineErrors(errs, e.gameInstance.FnShutdown())
	}
	e.reloader.destroyAll()

	core.LogInfo("frame time %.3fms (%.1f fps), gpu time %.3fms", e.device.Metrics.FrameTime(), e.device.Metrics.FPS(), e.device.Metrics.GPUTime())
	for i, heap := range e.backend.MemoryStats() {
		core.LogDebug("memory heap %d before teardown: %d allocations, %d bytes", i, heap.Allocations, heap.Bytes)
	}

	errs = errors.CombineErrors(errs, e.device.Deinitialize())
	e.events.Shutdown()
	errs = errors.CombineErrors(errs, e.platform.Shutdown())
	return errs
}

func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	switch code {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning = false
		return true
	}
	return false
}

func (e *Engine) onResized(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	width, height := data.Data.U32[0], data.Data.U32[1]
	if width == 0 || height == 0 {
		core.LogDebug("window minimized, suspending")
		e.isSuspended = true
		return true
	}
	if e.isSuspended {
		core.LogDebug("window restored, resuming")
		e.isSuspended = false
	}
	e.device.RequestResize()
	return true
}

// Stop asks the loop to exit after the current frame. Safe from any goroutine.
func (e *Engine) Stop() {
	e.stopRequested.Store(true)
}
