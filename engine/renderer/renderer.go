package renderer

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/containers"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// GPUDevice owns every GPU resource of the application. Resources are addressed by
// handles into fixed pools and destroyed frames after they were released.
type GPUDevice struct {
	backend  GPUBackend
	config   *core.DeviceConfig
	compiler ShaderCompiler
	info     metadata.DeviceInfo

	buffers              *containers.ResourcePool[metadata.Buffer]
	textures             *containers.ResourcePool[metadata.Texture]
	pipelines            *containers.ResourcePool[metadata.Pipeline]
	samplers             *containers.ResourcePool[metadata.Sampler]
	descriptorSetLayouts *containers.ResourcePool[metadata.DescriptorSetLayout]
	descriptorSets       *containers.ResourcePool[metadata.DescriptorSet]
	renderPasses         *containers.ResourcePool[metadata.RenderPass]
	framebuffers         *containers.ResourcePool[metadata.Framebuffer]
	shaders              *containers.ResourcePool[metadata.ShaderState]

	commands       *commandBufferManager
	queuedCommands []*CommandBuffer
	timestamps     *timestampManager

	resourceDeletionQueue   []metadata.ResourceUpdate
	bindlessUpdates         []metadata.ResourceUpdate
	processedBindlessWrites uint64

	swapchain       metadata.SwapchainInfo
	swapchainOutput metadata.RenderPassOutput
	imageIndex      uint32
	resizeRequested bool
	statistics      []uint64
	// Set for the frame following a swapchain recreation.
	SwapchainResizedLastFrame bool

	previousFrame  uint32
	currentFrame   uint32
	framesInFlight uint32
	absoluteFrame  uint64

	dynamicBuffer          metadata.BufferHandle
	dynamicMapped          []byte
	dynamicPerFrameSize    uint32
	dynamicAllocatedSize   uint32
	dynamicFrameStart      uint32
	dynamicMaxPerFrameSize uint32

	bindlessLayout metadata.DescriptorSetLayoutHandle
	bindlessSet    metadata.DescriptorSetHandle
	defaultSampler metadata.SamplerHandle
	dummyTexture   metadata.TextureHandle

	Metrics     *core.FrameMetrics
	initialized bool
}

// NewGPUDevice validates config and binds the device to backend. Nothing native is
// created until Initialize.
func NewGPUDevice(backend GPUBackend, config *core.DeviceConfig) (*GPUDevice, error) {
	if backend == nil {
		return nil, errors.New("gpu device requires a backend")
	}
	if config == nil {
		config = core.DefaultDeviceConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	compiler, err := NewShaderCompiler(config)
	if err != nil {
		return nil, err
	}
	return &GPUDevice{
		backend:        backend,
		config:         config,
		compiler:       compiler,
		dynamicBuffer:  metadata.InvalidBuffer,
		bindlessLayout: metadata.InvalidDescriptorSetLayout,
		bindlessSet:    metadata.InvalidDescriptorSet,
		defaultSampler: metadata.InvalidSampler,
		dummyTexture:   metadata.InvalidTexture,
		Metrics:        core.NewFrameMetrics(),
	}, nil
}

// SetShaderCompiler replaces the compiler picked from config.
func (d *GPUDevice) SetShaderCompiler(compiler ShaderCompiler) {
	d.compiler = compiler
}

func (d *GPUDevice) Initialize() error {
	if d.initialized {
		return nil
	}
	if err := d.backend.Initialize(d.config); err != nil {
		core.LogError("failed to initialize the gpu backend: %s", err)
		return err
	}
	d.info = d.backend.DeviceInfo()
	core.LogInfo("gpu device %s initialized", d.info.Name)

	pools := d.config.Pools
	d.buffers = containers.NewResourcePool[metadata.Buffer](pools.Buffers, "buffer")
	d.textures = containers.NewResourcePool[metadata.Texture](pools.Textures, "texture")
	d.pipelines = containers.NewResourcePool[metadata.Pipeline](pools.Pipelines, "pipeline")
	d.samplers = containers.NewResourcePool[metadata.Sampler](pools.Samplers, "sampler")
	d.descriptorSetLayouts = containers.NewResourcePool[metadata.DescriptorSetLayout](pools.DescriptorSetLayouts, "descriptor set layout")
	d.descriptorSets = containers.NewResourcePool[metadata.DescriptorSet](pools.DescriptorSets, "descriptor set")
	d.renderPasses = containers.NewResourcePool[metadata.RenderPass](pools.RenderPasses, "render pass")
	d.framebuffers = containers.NewResourcePool[metadata.Framebuffer](pools.Framebuffers, "framebuffer")
	d.shaders = containers.NewResourcePool[metadata.ShaderState](pools.Shaders, "shader")

	d.framesInFlight = d.config.MaxFramesInFlight
	d.previousFrame = 0
	d.currentFrame = 1
	d.absoluteFrame = 0

	d.timestamps = newTimestampManager(d.config.NumThreads*d.framesInFlight, d.info.TimestampPeriod)
	commands, err := newCommandBufferManager(d, d.config.NumThreads, d.framesInFlight)
	if err != nil {
		return err
	}
	d.commands = commands

	if err := d.createSwapchain(); err != nil {
		return err
	}

	bindlessCount := uint16(d.config.MaxBindlessResources)
	bindlessLayoutCreation := metadata.DescriptorSetLayoutCreation{
		SetIndex: metadata.BINDLESS_DESCRIPTOR_SET_INDEX,
		Bindless: true,
		Name:     "bindless_layout",
	}
	bindlessLayoutCreation.
		AddBinding(vk.DescriptorTypeCombinedImageSampler, uint16(metadata.BINDLESS_TEXTURE_BINDING), bindlessCount, "textures").
		AddBinding(vk.DescriptorTypeStorageImage, uint16(metadata.BINDLESS_IMAGE_BINDING), bindlessCount, "images")
	if d.bindlessLayout, err = d.CreateDescriptorSetLayout(bindlessLayoutCreation); err != nil {
		return err
	}
	if d.bindlessSet, err = d.CreateDescriptorSet(metadata.DescriptorSetCreation{Layout: d.bindlessLayout, Name: "bindless_set"}); err != nil {
		return err
	}

	d.defaultSampler, err = d.CreateSampler(metadata.SamplerCreation{
		MinFilter:    vk.FilterLinear,
		MagFilter:    vk.FilterLinear,
		MipFilter:    vk.SamplerMipmapModeLinear,
		AddressModeU: vk.SamplerAddressModeClampToEdge,
		AddressModeV: vk.SamplerAddressModeClampToEdge,
		AddressModeW: vk.SamplerAddressModeClampToEdge,
		Name:         "default_sampler",
	})
	if err != nil {
		return err
	}

	dummy := metadata.NewTextureCreation("dummy_texture", 1, 1, vk.FormatR8g8b8a8Unorm)
	dummy.InitialData = []byte{0xff, 0xff, 0xff, 0xff}
	if d.dummyTexture, err = d.CreateTexture(dummy); err != nil {
		return err
	}

	d.dynamicPerFrameSize = d.config.DynamicPerFrameSize
	d.dynamicBuffer, err = d.CreateBuffer(metadata.BufferCreation{
		TypeFlags:  vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit | vk.BufferUsageIndexBufferBit | vk.BufferUsageUniformBufferBit),
		Usage:      metadata.RESOURCE_USAGE_TYPE_IMMUTABLE,
		Size:       d.dynamicPerFrameSize * d.framesInFlight,
		Persistent: true,
		Name:       "dynamic_persistent_buffer",
	})
	if err != nil {
		return err
	}
	dynamic := d.buffers.Access(d.dynamicBuffer.Index)
	d.dynamicMapped = dynamic.MappedData
	if d.dynamicMapped == nil {
		if d.dynamicMapped, err = d.backend.MapBuffer(dynamic, 0, dynamic.Size); err != nil {
			return err
		}
	}
	d.dynamicFrameStart = d.dynamicPerFrameSize * d.currentFrame
	d.dynamicAllocatedSize = d.dynamicFrameStart
	d.dynamicMaxPerFrameSize = 0

	d.initialized = true
	return nil
}

// Deinitialize waits for the GPU, flushes every pending destruction and tears down the
// backend. The device can not be used afterwards.
func (d *GPUDevice) Deinitialize() error {
	if !d.initialized {
		return nil
	}
	if err := d.backend.WaitIdle(); err != nil {
		core.LogError("failed to wait for device idle on shutdown: %s", err)
	}

	if d.dynamicMapped != nil {
		if dynamic := d.buffers.Access(d.dynamicBuffer.Index); dynamic != nil && !dynamic.Persistent {
			d.backend.UnmapBuffer(dynamic)
		}
		d.dynamicMapped = nil
	}
	d.DestroyBuffer(d.dynamicBuffer)
	d.DestroyTexture(d.dummyTexture)
	d.DestroySampler(d.defaultSampler)
	d.DestroyDescriptorSet(d.bindlessSet)
	d.DestroyDescriptorSetLayout(d.bindlessLayout)

	d.flushDeletions()
	d.bindlessUpdates = d.bindlessUpdates[:0]
	d.reportLeaks()

	d.backend.DestroySwapchain()
	err := d.backend.Shutdown()
	d.initialized = false
	return err
}

func (d *GPUDevice) reportLeaks() {
	report := func(name string, used uint32) {
		if used > 0 {
			core.LogWarn("%d %s resources still alive at shutdown", used, name)
		}
	}
	report("buffer", d.buffers.UsedCount())
	report("texture", d.textures.UsedCount())
	report("pipeline", d.pipelines.UsedCount())
	report("sampler", d.samplers.UsedCount())
	report("descriptor set layout", d.descriptorSetLayouts.UsedCount())
	report("descriptor set", d.descriptorSets.UsedCount())
	report("render pass", d.renderPasses.UsedCount())
	report("framebuffer", d.framebuffers.UsedCount())
	report("shader", d.shaders.UsedCount())
}

func (d *GPUDevice) createSwapchain() error {
	info, err := d.backend.CreateSwapchain()
	if err != nil {
		core.LogError("failed to create swapchain: %s", err)
		return err
	}
	d.setSwapchain(info)
	return nil
}

func (d *GPUDevice) setSwapchain(info metadata.SwapchainInfo) {
	d.swapchain = info
	output := metadata.RenderPassOutput{}
	output.
		Color(info.Format, vk.ImageLayoutPresentSrc, metadata.RENDER_PASS_OPERATION_CLEAR).
		Depth(vk.FormatD32Sfloat, vk.ImageLayoutDepthStencilAttachmentOptimal).
		SetDepthStencilOperations(metadata.RENDER_PASS_OPERATION_CLEAR, metadata.RENDER_PASS_OPERATION_CLEAR)
	d.swapchainOutput = output
}

// ResizeSwapchain recreates the swapchain at the window framebuffer size. A minimized
// window has a zero extent and leaves everything as is.
func (d *GPUDevice) ResizeSwapchain() (bool, error) {
	width, height := d.backend.FramebufferSize()
	if width == 0 || height == 0 {
		return false, nil
	}
	info, err := d.backend.ResizeSwapchain(width, height)
	if err != nil {
		core.LogError("failed to resize swapchain to %dx%d: %s", width, height, err)
		return false, err
	}
	d.setSwapchain(info)
	d.SwapchainResizedLastFrame = true

	var resizeErr error
	d.framebuffers.Each(func(index uint32, framebuffer *metadata.Framebuffer) {
		if framebuffer.Resize && resizeErr == nil {
			resizeErr = d.ResizeFramebuffer(framebuffer.Handle)
		}
	})
	if resizeErr != nil {
		return true, resizeErr
	}
	core.LogDebug("swapchain resized to %dx%d", info.Width, info.Height)
	return true, nil
}

func resourceName(name, kind string) string {
	if name != "" {
		return name
	}
	return core.GenerateName(kind)
}

func (d *GPUDevice) Backend() GPUBackend { return d.backend }
func (d *GPUDevice) Config() *core.DeviceConfig { return d.config }
func (d *GPUDevice) DeviceInfo() metadata.DeviceInfo { return d.info }
func (d *GPUDevice) SwapchainInfo() metadata.SwapchainInfo { return d.swapchain }
func (d *GPUDevice) SwapchainOutput() metadata.RenderPassOutput { return d.swapchainOutput }
func (d *GPUDevice) CurrentFrame() uint32 { return d.currentFrame }
func (d *GPUDevice) PreviousFrame() uint32 { return d.previousFrame }
func (d *GPUDevice) AbsoluteFrame() uint64 { return d.absoluteFrame }
func (d *GPUDevice) FramesInFlight() uint32 { return d.framesInFlight }
func (d *GPUDevice) DynamicBuffer() metadata.BufferHandle { return d.dynamicBuffer }
func (d *GPUDevice) BindlessLayout() metadata.DescriptorSetLayoutHandle { return d.bindlessLayout }
func (d *GPUDevice) BindlessSet() metadata.DescriptorSetHandle { return d.bindlessSet }
func (d *GPUDevice) DefaultSampler() metadata.SamplerHandle { return d.defaultSampler }
func (d *GPUDevice) DummyTexture() metadata.TextureHandle { return d.dummyTexture }

// DynamicMaxPerFrameSize is the largest amount of dynamic memory a frame has used so far.
func (d *GPUDevice) DynamicMaxPerFrameSize() uint32 { return d.dynamicMaxPerFrameSize }
