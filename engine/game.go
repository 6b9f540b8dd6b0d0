package engine

import (
	"github.com/spaghettifunk/anima-gpu/engine/renderer"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-gpu/engine/systems"
)

// Game is driven by the engine. Device and Jobs are set before FnInitialize runs.
type Game struct {
	ApplicationConfig *ApplicationConfig
	Engine            *Engine
	Device            *renderer.GPUDevice
	Jobs              *systems.JobSystem
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

type Initialize func() error
type Update func(deltaTime float64) error

// Render records the frame and returns the texture copied into the swapchain image.
// An invalid handle presents a cleared image.
type Render func(deltaTime float64) (metadata.TextureHandle, error)
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
