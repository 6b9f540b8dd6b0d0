package testbed

import (
	"encoding/binary"
	"math"
	"os"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine"
	"github.com/spaghettifunk/anima-gpu/engine/assets"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-gpu/engine/systems"
)

const (
	vertexShader   = "assets/shaders/fullscreen.vert"
	fragmentShader = "assets/shaders/fullscreen.frag"
	albedoTexture  = "assets/textures/albedo.png"

	// float time, uint texture index, vec2 resolution
	frameDataSize uint32 = 16
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	width  uint32
	height uint32
	time   float64

	renderPass  metadata.RenderPassHandle
	framebuffer metadata.FramebufferHandle
	color       metadata.TextureHandle
	albedo      metadata.TextureHandle
	sampler     metadata.SamplerHandle
	frameData   metadata.BufferHandle

	pipeline *engine.ReloadablePipeline
	// The set is rebuilt whenever a reload replaces the pipeline and its layouts.
	frameSet         metadata.DescriptorSetHandle
	frameSetPipeline metadata.PipelineHandle
}

func NewTestGame() *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &engine.ApplicationConfig{
				Name:       "Anima GPU Testbed",
				ConfigPath: core.DEFAULT_CONFIG_FILE,
				LogLevel:   "info",
			},
			State: &gameState{
				renderPass:       metadata.InvalidRenderPass,
				framebuffer:      metadata.InvalidFramebuffer,
				color:            metadata.InvalidTexture,
				albedo:           metadata.InvalidTexture,
				sampler:          metadata.InvalidSampler,
				frameData:        metadata.InvalidBuffer,
				frameSet:         metadata.InvalidDescriptorSet,
				frameSetPipeline: metadata.InvalidPipeline,
			},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize() error {
	core.LogInfo("initializing testbed...")
	state := g.state()
	device := g.Device
	swapchain := device.SwapchainInfo()
	state.width, state.height = swapchain.Width, swapchain.Height

	output := metadata.RenderPassOutput{}
	output.Color(vk.FormatR8g8b8a8Unorm, vk.ImageLayoutShaderReadOnlyOptimal, metadata.RENDER_PASS_OPERATION_CLEAR)

	var err error
	if state.renderPass, err = device.CreateRenderPass(metadata.RenderPassCreation{Output: output, Name: "testbed_pass"}); err != nil {
		return err
	}

	colorCreation := metadata.NewTextureCreation("testbed_color", state.width, state.height, vk.FormatR8g8b8a8Unorm)
	colorCreation.Flags = metadata.TEXTURE_FLAG_RENDER_TARGET
	if state.color, err = device.CreateTexture(colorCreation); err != nil {
		return err
	}

	fbCreation := metadata.NewFramebufferCreation("testbed_framebuffer", state.renderPass, state.width, state.height)
	fbCreation.OutputTextures = []metadata.TextureHandle{state.color}
	fbCreation.Resize = true
	if state.framebuffer, err = device.CreateFramebuffer(fbCreation); err != nil {
		return err
	}

	if state.albedo, err = g.loadAlbedo(); err != nil {
		return err
	}
	state.sampler, err = device.CreateSampler(metadata.SamplerCreation{
		MinFilter:    vk.FilterNearest,
		MagFilter:    vk.FilterNearest,
		MipFilter:    vk.SamplerMipmapModeNearest,
		AddressModeU: vk.SamplerAddressModeRepeat,
		AddressModeV: vk.SamplerAddressModeRepeat,
		AddressModeW: vk.SamplerAddressModeRepeat,
		Name:         "testbed_sampler",
	})
	if err != nil {
		return err
	}
	device.LinkTextureSampler(state.albedo, state.sampler)

	if state.frameData, err = device.CreateBuffer(metadata.BufferCreation{
		TypeFlags: vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit),
		Usage:     metadata.RESOURCE_USAGE_TYPE_DYNAMIC,
		Size:      frameDataSize,
		Name:      "testbed_frame_data",
	}); err != nil {
		return err
	}

	pipelineCreation := metadata.PipelineCreation{
		Rasterization: metadata.RasterizationCreation{
			CullMode: vk.CullModeFlags(vk.CullModeNone),
			Front:    vk.FrontFaceCounterClockwise,
			Fill:     vk.PolygonModeFill,
		},
		RenderPassOutput: output,
		Name:             "testbed_fullscreen",
	}
	pipelineCreation.BlendState.AddBlendState(metadata.BlendState{})
	if state.pipeline, err = g.Engine.CreateReloadablePipeline(pipelineCreation, vertexShader, fragmentShader); err != nil {
		return errors.Wrap(err, "failed to create the fullscreen pipeline")
	}
	return nil
}

// loadAlbedo decodes the albedo texture or falls back to a generated checkerboard.
func (g *TestGame) loadAlbedo() (metadata.TextureHandle, error) {
	if _, err := os.Stat(albedoTexture); err == nil {
		data, err := assets.LoadTexture(albedoTexture)
		if err != nil {
			return metadata.InvalidTexture, err
		}
		return g.Device.CreateTexture(data.Creation(false, true))
	}

	const size = 64
	pixels := make([]byte, size*size*4)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := byte(40)
			if (x/8+y/8)%2 == 0 {
				v = 220
			}
			i := (y*size + x) * 4
			pixels[i], pixels[i+1], pixels[i+2], pixels[i+3] = v, v, v, 0xff
		}
	}
	data := &assets.TextureData{Name: "checkerboard", Width: size, Height: size, Pixels: pixels}
	return g.Device.CreateTexture(data.Creation(false, true))
}

func (g *TestGame) Update(deltaTime float64) error {
	g.state().time += deltaTime
	return nil
}

// refreshFrameSet recreates the frame set when the pipeline was rebuilt.
func (g *TestGame) refreshFrameSet() error {
	state := g.state()
	if state.frameSetPipeline == state.pipeline.Handle && state.frameSet.IsValid() {
		return nil
	}
	if state.frameSet.IsValid() {
		g.Device.DestroyDescriptorSet(state.frameSet)
	}
	creation := metadata.DescriptorSetCreation{
		Layout: g.Device.GetDescriptorSetLayout(state.pipeline.Handle, 1),
		Name:   "testbed_frame_set",
	}
	creation.Buffer(state.frameData, 0)
	set, err := g.Device.CreateDescriptorSet(creation)
	if err != nil {
		state.frameSet = metadata.InvalidDescriptorSet
		return err
	}
	state.frameSet = set
	state.frameSetPipeline = state.pipeline.Handle
	return nil
}

func (g *TestGame) Render(deltaTime float64) (metadata.TextureHandle, error) {
	state := g.state()
	device := g.Device

	if err := g.refreshFrameSet(); err != nil {
		return metadata.InvalidTexture, err
	}

	frame, err := device.MapBuffer(state.frameData, 0, frameDataSize)
	if err != nil {
		return metadata.InvalidTexture, err
	}
	binary.LittleEndian.PutUint32(frame[0:], math.Float32bits(float32(state.time)))
	binary.LittleEndian.PutUint32(frame[4:], state.albedo.Index)
	binary.LittleEndian.PutUint32(frame[8:], math.Float32bits(float32(state.width)))
	binary.LittleEndian.PutUint32(frame[12:], math.Float32bits(float32(state.height)))
	device.UnmapBuffer(state.frameData)

	primary, err := device.GetPrimaryCmd(0, true)
	if err != nil {
		return metadata.InvalidTexture, err
	}
	primary.PushTimestamp("testbed")
	primary.SetClearColor(0.1, 0.1, 0.12, 1)
	if err := primary.BeginRendering(state.renderPass, state.framebuffer, true); err != nil {
		return metadata.InvalidTexture, err
	}

	// Each job records one horizontal strip on the thread of the worker that runs it.
	strips := min(len(g.Jobs.Threads()), int(renderer.SECONDARY_COMMAND_BUFFERS_PER_POOL))
	secondaries := make([]*renderer.CommandBuffer, strips)
	stripHeight := (state.height + uint32(strips) - 1) / uint32(strips)
	for i := 0; i < strips; i++ {
		top := min(uint32(i)*stripHeight, state.height)
		err := g.Jobs.Submit(systems.JobTask{
			Name: "testbed_strip",
			OnStart: func(thread uint32) error {
				cb, err := device.GetSecondaryCmd(thread)
				if err != nil {
					return err
				}
				if err := cb.BeginSecondary(state.renderPass); err != nil {
					return err
				}
				cb.SetViewport(0, 0, float32(state.width), float32(state.height))
				cb.SetScissor(0, int32(top), state.width, min(stripHeight, state.height-top))
				cb.BindPipeline(state.pipeline.Handle)
				cb.BindDescriptorSets([]metadata.DescriptorSetHandle{state.frameSet}, 1)
				cb.Draw(3, 1, 0, 0)
				secondaries[i] = cb
				return nil
			},
		})
		if err != nil {
			return metadata.InvalidTexture, err
		}
	}
	if err := g.Jobs.Wait(); err != nil {
		return metadata.InvalidTexture, err
	}

	if err := primary.ExecuteSecondaries(secondaries); err != nil {
		return metadata.InvalidTexture, err
	}
	primary.EndCurrentRenderPass()
	primary.PopTimestamp()
	device.QueueCmd(primary)

	return state.color, nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.state()
	state.width, state.height = width, height
	core.LogDebug("testbed resized to %dx%d", width, height)
	return nil
}

func (g *TestGame) Shutdown() error {
	state := g.state()
	device := g.Device
	if state.pipeline != nil {
		g.Engine.DestroyReloadablePipeline(state.pipeline)
	}
	device.DestroyDescriptorSet(state.frameSet)
	device.DestroyBuffer(state.frameData)
	device.DestroySampler(state.sampler)
	device.DestroyTexture(state.albedo)
	// Destroys the color attachment with it.
	device.DestroyFramebuffer(state.framebuffer)
	device.DestroyRenderPass(state.renderPass)

	for _, ts := range device.GPUTimestamps() {
		core.LogInfo("gpu scope %s: %.3fms", ts.Name, ts.ElapsedMS)
	}
	return nil
}
